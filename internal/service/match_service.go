package service

import (
	"context"
	"encoding/json"
	"fmt"

	"agri-ai-go/internal/config"
	"agri-ai-go/internal/model"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/log"
)

// MaxRelatedArticles 是返回的相关文章数量上限
const MaxRelatedArticles = 3

// MatchService 让模型从候选文章中挑选与病害相关的文章。
// 这是尽力而为的补充信息，任何失败都返回空结果。
type MatchService interface {
	Match(ctx context.Context, sessionID, diseaseName string, candidates []model.Article) []int
}

type matchService struct {
	credentials CredentialService
	llmClient   llm.Client
	model       string
}

// NewMatchService 创建一个新的 MatchService 实例。
func NewMatchService(credentials CredentialService, llmClient llm.Client, cfg config.LLMConfig) MatchService {
	return &matchService{
		credentials: credentials,
		llmClient:   llmClient,
		model:       cfg.Model,
	}
}

func (s *matchService) Match(ctx context.Context, sessionID, diseaseName string, candidates []model.Article) []int {
	if model.IsHealthy(diseaseName) || len(candidates) == 0 {
		return []int{}
	}
	apiKey, err := s.credentials.Require(sessionID)
	if err != nil {
		return []int{}
	}

	ids, err := s.match(ctx, apiKey, diseaseName, candidates)
	if err != nil {
		log.Warnw("相关文章匹配失败", "disease", diseaseName, "error", errorx.Match(err))
		return []int{}
	}
	return ids
}

func (s *matchService) match(ctx context.Context, apiKey, diseaseName string, candidates []model.Article) ([]int, error) {
	refs := make([]model.ArticleRef, 0, len(candidates))
	known := make(map[int]struct{}, len(candidates))
	for _, a := range candidates {
		refs = append(refs, a.Ref())
		known[a.ID] = struct{}{}
	}
	payload, err := json.Marshal(refs)
	if err != nil {
		return nil, err
	}

	text, err := s.llmClient.GenerateJSON(ctx, apiKey, llm.JSONRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(matchPromptTemplate, diseaseName, payload),
		Schema: articleIDsSchema(),
	})
	if err != nil {
		return nil, err
	}

	var raw []int
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text, llm.JSONArray)), &raw); err != nil {
		return nil, fmt.Errorf("parse article ids: %w", err)
	}
	return filterArticleIDs(raw, known), nil
}

// filterArticleIDs 去掉未知与重复的 ID，保持顺序并截断到上限
func filterArticleIDs(raw []int, known map[int]struct{}) []int {
	out := make([]int, 0, MaxRelatedArticles)
	seen := make(map[int]struct{}, len(raw))
	for _, id := range raw {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == MaxRelatedArticles {
			break
		}
	}
	return out
}
