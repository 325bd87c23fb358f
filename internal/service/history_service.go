package service

import (
	"context"
	"time"

	"agri-ai-go/internal/model"
	"agri-ai-go/internal/repository"
	"agri-ai-go/pkg/media"
)

// HistoryService 管理设备的扫描历史。
type HistoryService interface {
	// Record 以诊断结果和原图生成一条历史记录并写入，返回实际保存的记录
	Record(ctx context.Context, deviceID string, d model.Diagnosis, image media.InlineData) (model.HistoryEntry, error)
	List(ctx context.Context, deviceID string) ([]model.HistoryEntry, error)
	Get(ctx context.Context, deviceID, id string) (*model.HistoryEntry, error)
	Clear(ctx context.Context, deviceID string) error
}

type historyService struct {
	repo repository.HistoryRepository
	now  func() time.Time
}

// NewHistoryService 创建一个新的 HistoryService 实例。
func NewHistoryService(repo repository.HistoryRepository) HistoryService {
	return &historyService{repo: repo, now: time.Now}
}

func (s *historyService) Record(ctx context.Context, deviceID string, d model.Diagnosis, image media.InlineData) (model.HistoryEntry, error) {
	ts := s.now().UTC().Format(time.RFC3339Nano)
	entry := model.HistoryEntry{
		Diagnosis:    d.Clone(),
		ID:           ts,
		Date:         ts,
		ImagePreview: media.DataURL(image),
	}
	return s.repo.Append(ctx, deviceID, entry)
}

func (s *historyService) List(ctx context.Context, deviceID string) ([]model.HistoryEntry, error) {
	return s.repo.List(ctx, deviceID)
}

func (s *historyService) Get(ctx context.Context, deviceID, id string) (*model.HistoryEntry, error) {
	return s.repo.Get(ctx, deviceID, id)
}

func (s *historyService) Clear(ctx context.Context, deviceID string) error {
	return s.repo.Clear(ctx, deviceID)
}
