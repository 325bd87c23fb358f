// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"agri-ai-go/internal/repository"
	"agri-ai-go/internal/service"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// respond 以统一的 {code, message, data} 结构返回
func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func ok(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "success", data)
}

func badRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, message, nil)
}

// respondError 把业务错误映射为 HTTP 状态码，message 使用面向用户的文案
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		log.Warnf("%s %s 被拒绝: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	message := errorx.UserMessage(err)
	switch {
	case errors.Is(err, repository.ErrEntryNotFound):
		message = "Scan not found."
	case errors.Is(err, service.ErrArticleNotFound):
		message = "Article not found."
	}
	respond(c, status, message, gin.H{"kind": errorx.KindOf(err)})
}

func statusOf(err error) int {
	switch errorx.KindOf(err) {
	case errorx.KindCredential:
		return http.StatusPreconditionFailed
	case errorx.KindEncoding:
		return http.StatusBadRequest
	case errorx.KindAnalysis, errorx.KindTranslation, errorx.KindMatch:
		return http.StatusBadGateway
	case errorx.KindChatStream, errorx.KindVoiceSession:
		return http.StatusConflict
	}
	if errors.Is(err, repository.ErrEntryNotFound) || errors.Is(err, service.ErrArticleNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
