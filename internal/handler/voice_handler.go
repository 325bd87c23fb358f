package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"

	"agri-ai-go/internal/service"
	"agri-ai-go/pkg/audio"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/log"
	"agri-ai-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// VoiceHandler 负责实时语音助手的 WebSocket 连接。
// 一个连接内可以多次 start/close，语音记录在连接存续期间保留。
type VoiceHandler struct {
	jwtManager  *token.JWTManager
	credentials service.CredentialService
	llmClient   llm.Client
	history     service.HistoryService
	cfg         service.VoiceConfig
}

// NewVoiceHandler 创建一个新的 VoiceHandler。
func NewVoiceHandler(jwtManager *token.JWTManager, credentials service.CredentialService, llmClient llm.Client, history service.HistoryService, cfg service.VoiceConfig) *VoiceHandler {
	return &VoiceHandler{
		jwtManager:  jwtManager,
		credentials: credentials,
		llmClient:   llmClient,
		history:     history,
		cfg:         cfg,
	}
}

// Handle 处理一个语音 WebSocket 连接。
//
// 浏览器发送：start / close / audio（base64 的 f32 或 pcm16 帧，也可直接发送二进制 f32 帧）/
// ended（音源播放完毕）/ clock（AudioContext 当前时间）/ error（例如麦克风权限被拒绝）。
// 服务端发送：state / transcript / play / stop / microphone / output。
func (h *VoiceHandler) Handle(c *gin.Context) {
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

	devices := newBrowserAudio(out)
	session := service.NewVoiceSession(h.credentials, h.llmClient, devices, wsObserver{out: out}, h.cfg, target.claims.SessionID)

	ctx, cancel := context.WithCancel(context.Background())
	var starts sync.WaitGroup
	defer func() {
		cancel()
		starts.Wait()
		session.Close()
	}()

	_ = out.writeJSON(gin.H{"type": "state", "state": session.State()})
	log.Infof("语音连接已建立，设备: %s", target.claims.DeviceID)

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			if samples, err := audio.DecodeFloat32LE(raw); err == nil {
				devices.pushFrame(samples)
			}
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(raw, &ctrl); err != nil {
			_ = out.writeJSON(gin.H{"type": "error", "message": "无效的消息格式"})
			continue
		}

		switch ctrl.Type {
		case "audio":
			samples, err := decodeFrame(ctrl)
			if err != nil {
				log.Debugf("丢弃无法解析的音频帧: %v", err)
				continue
			}
			devices.pushFrame(samples)
		case "clock":
			devices.setClock(ctrl.Now)
		case "ended":
			devices.setClock(ctrl.Now)
			session.PlaybackEnded(ctrl.ID)
		case "start":
			if err := h.retarget(ctx, target, ctrl); err != nil {
				_ = out.writeJSON(gin.H{"type": "error", "message": "无法加载扫描记录"})
				continue
			}
			starts.Add(1)
			go func(t wsTarget) {
				defer starts.Done()
				if err := session.Start(ctx, t.diagnosis, t.language); err != nil {
					_ = out.writeJSON(gin.H{"type": "error", "kind": errorx.KindOf(err), "message": errorx.UserMessage(err)})
				}
			}(*target)
		case "close":
			session.Close()
		case "error":
			session.Fail(errors.New(ctrl.Error))
		default:
			_ = out.writeJSON(gin.H{"type": "error", "message": "未知的消息类型: " + ctrl.Type})
		}
	}
}

// retarget 在 start 消息携带 scan 或 lang 时更新会话上下文
func (h *VoiceHandler) retarget(ctx context.Context, target *wsTarget, ctrl controlMessage) error {
	if ctrl.Lang != "" {
		target.language = service.NormalizeLanguage(ctrl.Lang)
	}
	if ctrl.Scan == nil {
		return nil
	}
	if *ctrl.Scan == "" {
		target.diagnosis = nil
		return nil
	}
	d, err := loadDiagnosis(ctx, h.history, target.claims.DeviceID, *ctrl.Scan)
	if err != nil {
		return err
	}
	target.diagnosis = d
	return nil
}

func decodeFrame(ctrl controlMessage) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(ctrl.Data)
	if err != nil {
		return nil, err
	}
	if ctrl.Format == "pcm16" {
		return audio.DecodePCM16(raw)
	}
	return audio.DecodeFloat32LE(raw)
}
