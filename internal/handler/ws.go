package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"agri-ai-go/internal/model"
	"agri-ai-go/internal/service"
	"agri-ai-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// wsConn 串行化对同一连接的写操作，gorilla/websocket 只允许一个并发写者。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) completion() error {
	now := time.Now()
	return w.writeJSON(gin.H{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	})
}

// wsTarget 是从 URL 解析出的会话上下文
type wsTarget struct {
	claims    *token.DeviceClaims
	language  string
	diagnosis *model.Diagnosis
}

// resolveTarget 验证路径中的令牌，并按 scan 参数加载诊断上下文。
// scan 为空时 diagnosis 为 nil；scan 不存在时返回错误。
func resolveTarget(c *gin.Context, jwtManager *token.JWTManager, history service.HistoryService) (*wsTarget, int, string) {
	claims, err := jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		return nil, http.StatusUnauthorized, "无效的 token"
	}
	target := &wsTarget{claims: claims, language: service.NormalizeLanguage(c.Query("lang"))}
	if scanID := c.Query("scan"); scanID != "" {
		d, err := loadDiagnosis(c.Request.Context(), history, claims.DeviceID, scanID)
		if err != nil {
			return nil, statusOf(err), "无法加载扫描记录"
		}
		target.diagnosis = d
	}
	return target, http.StatusOK, ""
}

func loadDiagnosis(ctx context.Context, history service.HistoryService, deviceID, scanID string) (*model.Diagnosis, error) {
	entry, err := history.Get(ctx, deviceID, scanID)
	if err != nil {
		return nil, err
	}
	d := entry.Diagnosis.Clone()
	return &d, nil
}

// controlMessage 是浏览器发来的 JSON 控制消息，音频帧的 Format 为 "pcm16" 或 "f32"（默认）
type controlMessage struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Scan   *string `json:"scan,omitempty"`
	Lang   string  `json:"lang,omitempty"`
	ID     string  `json:"id,omitempty"`
	Data   string  `json:"data,omitempty"`
	Format string  `json:"format,omitempty"`
	Now    float64 `json:"now,omitempty"`
	Error  string  `json:"message,omitempty"`
}
