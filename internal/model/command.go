package model

import (
	"encoding/json"
	"fmt"
)

// CommandKind 是跨视图命令的类型标签
type CommandKind string

const (
	CommandCreatePostFromScan CommandKind = "CREATE_POST_FROM_SCAN"
	CommandOpenArticle        CommandKind = "OPEN_ARTICLE"
)

// Command 是一条待消费的跨视图命令，按 Kind 只携带对应的负载。
type Command struct {
	Kind      CommandKind   `json:"kind"`
	Scan      *HistoryEntry `json:"scan,omitempty"`
	ArticleID int           `json:"articleId,omitempty"`
}

// NewCreatePostCommand 以一次扫描结果构造发帖命令
func NewCreatePostCommand(entry HistoryEntry) Command {
	return Command{Kind: CommandCreatePostFromScan, Scan: &entry}
}

// NewOpenArticleCommand 构造打开文章命令
func NewOpenArticleCommand(articleID int) Command {
	return Command{Kind: CommandOpenArticle, ArticleID: articleID}
}

// Validate 校验标签与负载是否一致
func (c Command) Validate() error {
	switch c.Kind {
	case CommandCreatePostFromScan:
		if c.Scan == nil {
			return fmt.Errorf("%s requires a scan payload", c.Kind)
		}
		if c.ArticleID != 0 {
			return fmt.Errorf("%s does not take an articleId", c.Kind)
		}
	case CommandOpenArticle:
		if c.ArticleID <= 0 {
			return fmt.Errorf("%s requires a positive articleId", c.Kind)
		}
		if c.Scan != nil {
			return fmt.Errorf("%s does not take a scan payload", c.Kind)
		}
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return nil
}

// UnmarshalJSON 解析后立即校验，拒绝标签与负载不匹配的命令
func (c *Command) UnmarshalJSON(data []byte) error {
	type raw Command
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	cmd := Command(r)
	if err := cmd.Validate(); err != nil {
		return err
	}
	*c = cmd
	return nil
}

// PostDraft 是由扫描结果生成的社区求助帖草稿
type PostDraft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
