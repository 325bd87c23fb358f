package handler

import (
	"net/http"
	"strconv"

	"agri-ai-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ArticleHandler 负责知识库文章的查询。
type ArticleHandler struct {
	knowledge service.KnowledgeService
}

// NewArticleHandler 创建一个新的 ArticleHandler 实例。
func NewArticleHandler(knowledge service.KnowledgeService) *ArticleHandler {
	return &ArticleHandler{knowledge: knowledge}
}

// List 按 q 过滤标题或分类
func (h *ArticleHandler) List(c *gin.Context) {
	ok(c, h.knowledge.List(c.Query("q")))
}

// Get 按 ID 返回文章
func (h *ArticleHandler) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respond(c, http.StatusBadRequest, "无效的文章 ID", nil)
		return
	}
	article, err := h.knowledge.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, article)
}
