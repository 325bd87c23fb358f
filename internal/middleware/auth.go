// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"agri-ai-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 上下文中保存设备身份的键
const (
	ContextClaims    = "claims"
	ContextDeviceID  = "deviceID"
	ContextSessionID = "sessionID"
)

// AuthMiddleware 创建一个 Gin 中间件，用于设备令牌认证。
// 验证通过后把 DeviceClaims 以及设备、会话标识存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头"})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式"})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextDeviceID, claims.DeviceID)
		c.Set(ContextSessionID, claims.SessionID)
		c.Next()
	}
}

// DeviceID 返回当前请求的设备标识
func DeviceID(c *gin.Context) string {
	return c.GetString(ContextDeviceID)
}

// SessionID 返回当前请求的页面会话标识
func SessionID(c *gin.Context) string {
	return c.GetString(ContextSessionID)
}
