package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"agri-ai-go/internal/model"
	"agri-ai-go/pkg/kafka"
	"agri-ai-go/pkg/log"
	"agri-ai-go/pkg/media"
	"agri-ai-go/pkg/storage"
	"agri-ai-go/pkg/tasks"
)

// ScanView 是一次扫描结果在指定语言下的展示数据
type ScanView struct {
	Entry           model.HistoryEntry `json:"entry"`
	Display         model.Diagnosis    `json:"display"`
	Language        string             `json:"language"`
	RelatedArticles []model.Article    `json:"relatedArticles"`
}

// ScanService 编排一次扫描：凭证检查、图片编码、分析、写入历史，以及可选的归档与事件投递。
type ScanService interface {
	Scan(ctx context.Context, sessionID, deviceID string, r io.Reader, filename string) (*model.HistoryEntry, error)
	// Enrich 为历史记录补充相关文章和目标语言的展示文本，两者失败均降级
	Enrich(ctx context.Context, sessionID, deviceID string, entry model.HistoryEntry, language string) ScanView
}

type scanService struct {
	credentials CredentialService
	analysis    AnalysisService
	history     HistoryService
	translation TranslationService
	matcher     MatchService
	knowledge   KnowledgeService
	archive     storage.ImageArchive
	events      kafka.EventPublisher
}

// NewScanService 创建扫描编排服务，archive 与 events 可以为 nil。
func NewScanService(
	credentials CredentialService,
	analysis AnalysisService,
	history HistoryService,
	translation TranslationService,
	matcher MatchService,
	knowledge KnowledgeService,
	archive storage.ImageArchive,
	events kafka.EventPublisher,
) ScanService {
	return &scanService{
		credentials: credentials,
		analysis:    analysis,
		history:     history,
		translation: translation,
		matcher:     matcher,
		knowledge:   knowledge,
		archive:     archive,
		events:      events,
	}
}

func (s *scanService) Scan(ctx context.Context, sessionID, deviceID string, r io.Reader, filename string) (*model.HistoryEntry, error) {
	// 1. 凭证与编码错误都在发起请求前返回
	if _, err := s.credentials.Require(sessionID); err != nil {
		return nil, err
	}
	image, err := media.Encode(r, filename)
	if err != nil {
		return nil, err
	}

	// 2. 分析失败时历史保持不变
	diagnosis, err := s.analysis.Analyze(ctx, sessionID, image)
	if err != nil {
		return nil, err
	}

	// 3. 写入历史
	entry, err := s.history.Record(ctx, deviceID, *diagnosis, image)
	if err != nil {
		return nil, fmt.Errorf("failed to save scan history: %w", err)
	}
	log.Infow("扫描完成", "device", deviceID, "entry", entry.ID, "disease", entry.DiseaseName, "severity", entry.Severity)

	// 4. 归档与事件投递只记录失败，不影响结果
	objectName := s.archiveImage(ctx, deviceID, entry.ID, image)
	s.publish(ctx, deviceID, entry, objectName)

	return &entry, nil
}

func (s *scanService) archiveImage(ctx context.Context, deviceID, entryID string, image media.InlineData) string {
	if s.archive == nil {
		return ""
	}
	raw, err := image.Decode()
	if err != nil {
		log.Warnf("归档原图失败: %v", err)
		return ""
	}
	ext := strings.TrimPrefix(image.MIMEType, "image/")
	name, err := s.archive.Put(ctx, fmt.Sprintf("%s/%s.%s", deviceID, entryID, ext), raw, image.MIMEType)
	if err != nil {
		log.Warnf("归档原图失败: %v", err)
		return ""
	}
	return name
}

func (s *scanService) publish(ctx context.Context, deviceID string, entry model.HistoryEntry, objectName string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishScan(ctx, tasks.ScanCompletedEvent{
		DeviceID:    deviceID,
		EntryID:     entry.ID,
		DiseaseName: entry.DiseaseName,
		Severity:    string(entry.Severity),
		Confidence:  entry.Confidence,
		ImageObject: objectName,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		log.Warnf("投递扫描事件失败: %v", err)
	}
}

func (s *scanService) Enrich(ctx context.Context, sessionID, deviceID string, entry model.HistoryEntry, language string) ScanView {
	language = NormalizeLanguage(language)
	// 匹配始终基于英文病害名与英文文章
	ids := s.matcher.Match(ctx, sessionID, entry.DiseaseName, s.knowledge.All())
	return ScanView{
		Entry:           entry,
		Display:         s.translation.TranslateEntry(ctx, sessionID, deviceID, entry, language),
		Language:        language,
		RelatedArticles: s.knowledge.Lookup(ids),
	}
}
