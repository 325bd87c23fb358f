package model

// Article 是知识库中的一篇静态文章，内容以英文为准。
type Article struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
	Content  string `json:"content"`
}

// ArticleRef 是发送给匹配模型的精简文章描述
type ArticleRef struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Ref 返回文章的精简描述
func (a Article) Ref() ArticleRef {
	return ArticleRef{ID: a.ID, Title: a.Title, Summary: a.Summary}
}
