package handler

import (
	"net/http"
	"strings"

	"agri-ai-go/internal/middleware"
	"agri-ai-go/internal/service"
	"agri-ai-go/pkg/log"
	"agri-ai-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责签发设备令牌和管理页面会话级的 API Key。
type SessionHandler struct {
	jwtManager  *token.JWTManager
	credentials service.CredentialService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(jwtManager *token.JWTManager, credentials service.CredentialService) *SessionHandler {
	return &SessionHandler{jwtManager: jwtManager, credentials: credentials}
}

// IssueSession 为浏览器签发新的页面会话令牌。
// 请求携带仍然有效的旧令牌时沿用其设备标识，使扫描历史得以保留，旧会话的 API Key 被清除。
func (h *SessionHandler) IssueSession(c *gin.Context) {
	deviceID := ""
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if claims, err := h.jwtManager.VerifyToken(strings.TrimPrefix(auth, "Bearer ")); err == nil {
			deviceID = claims.DeviceID
			// 旧页面会话随轮换结束，其 API Key 一并丢弃
			h.credentials.ClearSessionOverride(claims.SessionID)
		}
	}

	signed, claims, err := h.jwtManager.IssueSession(deviceID)
	if err != nil {
		log.Error("IssueSession: 签发令牌失败", err)
		respond(c, http.StatusInternalServerError, "服务器内部错误", nil)
		return
	}
	ok(c, gin.H{
		"token":      signed,
		"deviceId":   claims.DeviceID,
		"sessionId":  claims.SessionID,
		"expiresAt":  claims.ExpiresAt.Time,
		"credential": h.credentials.StatusFor(claims.SessionID),
	})
}

// CredentialRequest 是设置会话级 API Key 的请求体
type CredentialRequest struct {
	APIKey string `json:"apiKey" binding:"required"`
}

// GetCredential 返回当前会话的凭证状态
func (h *SessionHandler) GetCredential(c *gin.Context) {
	ok(c, h.credentials.StatusFor(middleware.SessionID(c)))
}

// SetCredential 为当前页面会话保存用户提供的 API Key，仅保存在服务端内存中。
func (h *SessionHandler) SetCredential(c *gin.Context) {
	var req CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：apiKey 不能为空")
		return
	}
	sessionID := middleware.SessionID(c)
	if err := h.credentials.SetSessionOverride(sessionID, req.APIKey); err != nil {
		respondError(c, err)
		return
	}
	ok(c, h.credentials.StatusFor(sessionID))
}

// ClearCredential 删除当前会话的 API Key
func (h *SessionHandler) ClearCredential(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	h.credentials.ClearSessionOverride(sessionID)
	ok(c, h.credentials.StatusFor(sessionID))
}

// ListLanguages 返回受支持的界面语言
func (h *SessionHandler) ListLanguages(c *gin.Context) {
	ok(c, service.SupportedLanguages)
}
