package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agri-ai-go/internal/config"
	"agri-ai-go/internal/model"
	"agri-ai-go/internal/repository"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/log"
)

// TranslationService 把英文诊断的文本字段翻译为目标语言。
// 数值与严重程度字段不会发送给模型，始终从原诊断复制。
type TranslationService interface {
	Translate(ctx context.Context, sessionID string, d model.Diagnosis, language string) (*model.Diagnosis, error)
	// TranslateOrOriginal 翻译失败时记录日志并返回原文
	TranslateOrOriginal(ctx context.Context, sessionID string, d model.Diagnosis, language string) model.Diagnosis
	// TranslateEntry 与 TranslateOrOriginal 相同，但按历史记录 ID 与语言缓存成功的翻译
	TranslateEntry(ctx context.Context, sessionID, deviceID string, entry model.HistoryEntry, language string) model.Diagnosis
}

type translationService struct {
	credentials CredentialService
	llmClient   llm.Client
	cache       repository.TranslationCache
	model       string
}

// NewTranslationService 创建翻译服务，cache 可以为 nil。
func NewTranslationService(credentials CredentialService, llmClient llm.Client, cache repository.TranslationCache, cfg config.LLMConfig) TranslationService {
	return &translationService{
		credentials: credentials,
		llmClient:   llmClient,
		cache:       cache,
		model:       cfg.Model,
	}
}

// translatableText 是唯一发送给模型的字段集合
type translatableText struct {
	DiseaseName    string         `json:"diseaseName"`
	Summary        string         `json:"summary"`
	Treatments     []model.Advice `json:"treatments"`
	PreventionTips []model.Advice `json:"preventionTips"`
}

func (s *translationService) Translate(ctx context.Context, sessionID string, d model.Diagnosis, language string) (*model.Diagnosis, error) {
	language = NormalizeLanguage(language)
	if language == CanonicalLanguage {
		out := d.Clone()
		return &out, nil
	}

	apiKey, err := s.credentials.Require(sessionID)
	if err != nil {
		return nil, err
	}

	src := translatableText{
		DiseaseName:    d.DiseaseName,
		Summary:        d.Summary,
		Treatments:     d.Treatments,
		PreventionTips: d.PreventionTips,
	}
	payload, err := json.Marshal(src)
	if err != nil {
		return nil, errorx.Translation(err)
	}

	text, err := s.llmClient.GenerateJSON(ctx, apiKey, llm.JSONRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(translationPromptTemplate, LanguageName(language), payload),
		Schema: translatableSchema(),
	})
	if err != nil {
		return nil, errorx.Translation(err)
	}

	var got translatableText
	if err := decodeStrict(llm.ExtractJSON(text, llm.JSONObject), &got); err != nil {
		return nil, errorx.Translation(fmt.Errorf("parse translation: %w", err))
	}
	if err := sameShape(src, got); err != nil {
		return nil, errorx.Translation(err)
	}

	out := d.Clone()
	out.DiseaseName = got.DiseaseName
	out.Summary = got.Summary
	out.Treatments = got.Treatments
	out.PreventionTips = got.PreventionTips
	return &out, nil
}

func (s *translationService) TranslateOrOriginal(ctx context.Context, sessionID string, d model.Diagnosis, language string) model.Diagnosis {
	out, err := s.Translate(ctx, sessionID, d, language)
	if err != nil {
		log.Warnw("翻译失败，显示原文", "language", language, "error", err)
		return d
	}
	return *out
}

func (s *translationService) TranslateEntry(ctx context.Context, sessionID, deviceID string, entry model.HistoryEntry, language string) model.Diagnosis {
	language = NormalizeLanguage(language)
	if language == CanonicalLanguage || s.cache == nil {
		return s.TranslateOrOriginal(ctx, sessionID, entry.Diagnosis, language)
	}

	if cached, ok, err := s.cache.Get(ctx, deviceID, entry.ID, language); err != nil {
		log.Warnf("读取翻译缓存失败: %v", err)
	} else if ok {
		return *cached
	}

	out, err := s.Translate(ctx, sessionID, entry.Diagnosis, language)
	if err != nil {
		log.Warnw("翻译失败，显示原文", "entry", entry.ID, "language", language, "error", err)
		return entry.Diagnosis
	}
	if err := s.cache.Set(ctx, deviceID, entry.ID, language, *out); err != nil {
		log.Warnf("写入翻译缓存失败: %v", err)
	}
	return *out
}

// sameShape 确认译文与原文结构一致且没有空字段
func sameShape(src, got translatableText) error {
	if len(got.Treatments) != len(src.Treatments) {
		return fmt.Errorf("translated treatments has %d items, want %d", len(got.Treatments), len(src.Treatments))
	}
	if len(got.PreventionTips) != len(src.PreventionTips) {
		return fmt.Errorf("translated preventionTips has %d items, want %d", len(got.PreventionTips), len(src.PreventionTips))
	}
	if strings.TrimSpace(got.DiseaseName) == "" || strings.TrimSpace(got.Summary) == "" {
		return fmt.Errorf("translated diagnosis has empty text fields")
	}
	for _, items := range [][]model.Advice{got.Treatments, got.PreventionTips} {
		for _, it := range items {
			if strings.TrimSpace(it.Name) == "" || strings.TrimSpace(it.Description) == "" {
				return fmt.Errorf("translated advice has empty text fields")
			}
		}
	}
	return nil
}
