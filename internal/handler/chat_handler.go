package handler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"agri-ai-go/internal/model"
	"agri-ai-go/internal/service"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/log"
	"agri-ai-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatHandler 负责处理 WebSocket 聊天连接，每个连接对应一个对话会话。
type ChatHandler struct {
	jwtManager  *token.JWTManager
	credentials service.CredentialService
	llmClient   llm.Client
	history     service.HistoryService
	chatModel   string
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(jwtManager *token.JWTManager, credentials service.CredentialService, llmClient llm.Client, history service.HistoryService, chatModel string) *ChatHandler {
	return &ChatHandler{
		jwtManager:  jwtManager,
		credentials: credentials,
		llmClient:   llmClient,
		history:     history,
		chatModel:   chatModel,
	}
}

// Handle 处理一个传入的 WebSocket 连接。
// 文本消息（或 {"type":"message","text":...}）发起一轮对话；
// {"type":"reseed","scan":...,"lang":...} 以新的诊断或语言重建会话。
func (h *ChatHandler) Handle(c *gin.Context) {
	target, status, message := resolveTarget(c, h.jwtManager, h.history)
	if target == nil {
		c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	out := &wsConn{conn: conn}

	session := service.NewChatSession(h.credentials, h.llmClient, h.chatModel, target.claims.SessionID)
	if err := session.Open(target.diagnosis, target.language); err != nil {
		_ = out.writeJSON(gin.H{"type": "error", "message": errorx.UserMessage(err)})
		session.Close()
		return
	}
	_ = out.writeJSON(gin.H{"type": "ready", "state": session.State(), "language": target.language})
	log.Infof("聊天连接已建立，设备: %s", target.claims.DeviceID)

	ctx, cancel := context.WithCancel(context.Background())
	var turns sync.WaitGroup
	// 连接断开：先取消进行中的流，再等待其退出
	defer func() {
		cancel()
		session.Close()
		turns.Wait()
	}()

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ctrl := controlMessage{Type: "message", Text: string(raw)}
		if len(raw) > 0 && raw[0] == '{' {
			if err := json.Unmarshal(raw, &ctrl); err != nil {
				_ = out.writeJSON(gin.H{"type": "error", "message": "无效的消息格式"})
				continue
			}
		}

		switch ctrl.Type {
		case "message":
			turns.Add(1)
			go func(text string) {
				defer turns.Done()
				h.runTurn(ctx, session, out, text)
			}(ctrl.Text)
		case "reseed":
			h.reseed(ctx, session, out, target, ctrl)
		default:
			_ = out.writeJSON(gin.H{"type": "error", "message": "未知的消息类型: " + ctrl.Type})
		}
	}
}

// runTurn 执行一轮流式对话，每次更新都把完整的最后一条消息推给浏览器
func (h *ChatHandler) runTurn(ctx context.Context, session *service.ChatSession, out *wsConn, text string) {
	err := session.Send(ctx, text, func(msg model.TranscriptMessage) {
		_ = out.writeJSON(gin.H{"type": "update", "message": msg})
	})
	if err != nil {
		// 流失败时错误提示已作为模型消息推送，这里只补充错误类别
		_ = out.writeJSON(gin.H{"type": "error", "kind": errorx.KindOf(err), "message": errorx.UserMessage(err)})
		if errors.Is(err, service.ErrChatBusy) {
			// 上一轮仍在进行，由它负责发送完成通知
			return
		}
	}
	_ = out.completion()
}

func (h *ChatHandler) reseed(ctx context.Context, session *service.ChatSession, out *wsConn, target *wsTarget, ctrl controlMessage) {
	if ctrl.Lang != "" {
		target.language = service.NormalizeLanguage(ctrl.Lang)
	}
	if ctrl.Scan != nil {
		if *ctrl.Scan == "" {
			target.diagnosis = nil
		} else {
			d, err := loadDiagnosis(ctx, h.history, target.claims.DeviceID, *ctrl.Scan)
			if err != nil {
				_ = out.writeJSON(gin.H{"type": "error", "message": "无法加载扫描记录"})
				return
			}
			target.diagnosis = d
		}
	}
	if err := session.Reseed(target.diagnosis, target.language); err != nil {
		_ = out.writeJSON(gin.H{"type": "error", "message": errorx.UserMessage(err)})
		return
	}
	_ = out.writeJSON(gin.H{"type": "reset", "state": session.State(), "language": target.language})
}
