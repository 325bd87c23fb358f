package service

import (
	"context"
	"fmt"
	"strings"

	"agri-ai-go/internal/model"
	"agri-ai-go/internal/repository"
)

// CommandResult 是取出的命令及其处理结果
type CommandResult struct {
	Command model.Command    `json:"command"`
	Draft   *model.PostDraft `json:"draft,omitempty"`
	Article *model.Article   `json:"article,omitempty"`
}

// CommandService 是跨视图命令队列，每条命令只会被消费一次。
type CommandService interface {
	Push(ctx context.Context, deviceID string, cmd model.Command) error
	// Consume 取出队首命令，队列为空时返回 repository.ErrNoCommand
	Consume(ctx context.Context, deviceID string) (*CommandResult, error)
}

type commandService struct {
	repo      repository.CommandRepository
	knowledge KnowledgeService
}

// NewCommandService 创建一个新的 CommandService 实例。
func NewCommandService(repo repository.CommandRepository, knowledge KnowledgeService) CommandService {
	return &commandService{repo: repo, knowledge: knowledge}
}

func (s *commandService) Push(ctx context.Context, deviceID string, cmd model.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.Kind == model.CommandOpenArticle {
		if _, err := s.knowledge.Get(cmd.ArticleID); err != nil {
			return fmt.Errorf("article %d: %w", cmd.ArticleID, err)
		}
	}
	return s.repo.Push(ctx, deviceID, cmd)
}

func (s *commandService) Consume(ctx context.Context, deviceID string) (*CommandResult, error) {
	cmd, err := s.repo.Pop(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	res := &CommandResult{Command: *cmd}
	switch cmd.Kind {
	case model.CommandCreatePostFromScan:
		draft := BuildPostDraft(*cmd.Scan)
		res.Draft = &draft
	case model.CommandOpenArticle:
		if a, err := s.knowledge.Get(cmd.ArticleID); err == nil {
			res.Article = a
		}
	}
	return res, nil
}

// BuildPostDraft 以扫描结果生成社区求助帖草稿
func BuildPostDraft(entry model.HistoryEntry) model.PostDraft {
	quoted := strings.Join(strings.Split(entry.Summary, "\n"), "\n> ")
	content := fmt.Sprintf(`Hello community,

I just received an AI diagnosis and would appreciate a second opinion.

**Diagnosis:** %s
**Confidence:** %.1f%%
**Severity:** %s

**AI's Summary:**
> %s

Any thoughts or similar experiences? Thanks in advance!

*(Note: Image from scan is not attached to this post yet.)*`, entry.DiseaseName, entry.Confidence, entry.Severity, quoted)

	return model.PostDraft{
		Title:   "Seeking advice on: " + entry.DiseaseName,
		Content: content,
	}
}
