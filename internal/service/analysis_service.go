package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"agri-ai-go/internal/config"
	"agri-ai-go/internal/model"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/log"
	"agri-ai-go/pkg/media"
)

// AnalysisService 调用视觉模型识别植物病害。
type AnalysisService interface {
	Analyze(ctx context.Context, sessionID string, image media.InlineData) (*model.Diagnosis, error)
}

type analysisService struct {
	credentials CredentialService
	llmClient   llm.Client
	model       string
	temperature float32
}

// NewAnalysisService 创建一个新的 AnalysisService 实例。
func NewAnalysisService(credentials CredentialService, llmClient llm.Client, cfg config.LLMConfig) AnalysisService {
	return &analysisService{
		credentials: credentials,
		llmClient:   llmClient,
		model:       cfg.Model,
		temperature: float32(cfg.Generation.Temperature),
	}
}

// Analyze 发起单次受 schema 约束的分析请求，失败一律返回 AnalysisError，不重试。
func (s *analysisService) Analyze(ctx context.Context, sessionID string, image media.InlineData) (*model.Diagnosis, error) {
	apiKey, err := s.credentials.Require(sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := image.Decode()
	if err != nil {
		return nil, errorx.Encoding(err)
	}

	text, err := s.llmClient.GenerateJSON(ctx, apiKey, llm.JSONRequest{
		Model:       s.model,
		Prompt:      analysisPrompt,
		Images:      []llm.Image{{Data: raw, MIMEType: image.MIMEType}},
		Schema:      diagnosisSchema(),
		Temperature: llm.Float32(s.temperature),
	})
	if err != nil {
		log.Errorf("图片分析请求失败: %v", err)
		return nil, errorx.Analysis(err)
	}

	d, err := ParseDiagnosis(text)
	if err != nil {
		log.Warnf("分析结果不符合结构约束: %v", err)
		return nil, errorx.Analysis(err)
	}
	return d, nil
}

// ParseDiagnosis 去掉非 JSON 包裹后严格解析并校验诊断结果。
func ParseDiagnosis(text string) (*model.Diagnosis, error) {
	body := llm.ExtractJSON(text, llm.JSONObject)
	if err := requireKeys(body, "diseaseName", "confidence", "severity", "summary", "treatments", "preventionTips"); err != nil {
		return nil, fmt.Errorf("parse diagnosis: %w", err)
	}
	var d model.Diagnosis
	if err := decodeStrict(body, &d); err != nil {
		return nil, fmt.Errorf("parse diagnosis: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid diagnosis: %w", err)
	}
	return &d, nil
}

// decodeStrict 拒绝未知字段以及 JSON 值之后的多余内容
func decodeStrict(text string, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data after JSON value")
	}
	return nil
}

// requireKeys 检查顶层 JSON 对象包含全部必填键，且值不为 null
func requireKeys(text string, keys ...string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return err
	}
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || string(v) == "null" {
			return fmt.Errorf("missing required field %q", k)
		}
	}
	return nil
}
