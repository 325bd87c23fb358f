package handler

import (
	"agri-ai-go/internal/middleware"
	"agri-ai-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总全部路由处理器
type Handlers struct {
	Session *SessionHandler
	Scan    *ScanHandler
	Article *ArticleHandler
	Command *CommandHandler
	Chat    *ChatHandler
	Voice   *VoiceHandler
}

// NewRouter 创建路由引擎并注册全部路由
func NewRouter(jwtManager *token.JWTManager, h Handlers) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	apiV1 := r.Group("/api/v1")
	{
		// 无需认证的路由
		apiV1.POST("/session", h.Session.IssueSession)
		apiV1.GET("/languages", h.Session.ListLanguages)
		apiV1.GET("/articles", h.Article.List)
		apiV1.GET("/articles/:id", h.Article.Get)

		authed := apiV1.Group("/")
		authed.Use(middleware.AuthMiddleware(jwtManager))
		{
			authed.GET("/credential", h.Session.GetCredential)
			authed.PUT("/credential", h.Session.SetCredential)
			authed.DELETE("/credential", h.Session.ClearCredential)

			authed.POST("/scans", h.Scan.Scan)
			authed.GET("/history", h.Scan.ListHistory)
			authed.DELETE("/history", h.Scan.ClearHistory)
			authed.GET("/history/:id", h.Scan.GetHistoryEntry)

			authed.POST("/commands", h.Command.Push)
			authed.GET("/commands/next", h.Command.Next)
		}
	}

	// WebSocket 无法携带授权头，令牌放在路径中
	r.GET("/chat/:token", h.Chat.Handle)
	r.GET("/voice/:token", h.Voice.Handle)
	return r
}
