package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"agri-ai-go/internal/model"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/log"

	"go.uber.org/zap"
)

// ChatState 是对话会话的状态
type ChatState string

const (
	ChatUninitialized ChatState = "UNINITIALIZED"
	ChatReady         ChatState = "READY"
	ChatSending       ChatState = "SENDING"
	ChatReceiving     ChatState = "RECEIVING"
	ChatClosed        ChatState = "CLOSED"
)

// ChatErrorMessage 是流式失败时作为模型回复写入的统一提示
const ChatErrorMessage = "Sorry, I encountered an error. Please try again."

var errSessionReplaced = errors.New("chat session was closed or reseeded")

// ErrChatBusy 表示上一轮回复尚未结束，本次发送被拒绝
var ErrChatBusy = errors.New("chat turn in progress")

// ChatUpdateFunc 在会话最后一条消息变化时被调用，不持有会话锁
type ChatUpdateFunc func(msg model.TranscriptMessage)

// ChatSession 是一个有状态的流式对话会话。
// 同一时刻只允许一次发送；上下文变化时通过 Reseed 重建会话。
type ChatSession struct {
	credentials CredentialService
	llmClient   llm.Client
	model       string
	sessionID   string
	logger      *zap.SugaredLogger

	mu          sync.Mutex
	state       ChatState
	instruction string
	transcript  []model.TranscriptMessage
	history     []llm.Message
	cancel      context.CancelFunc
	// generation 在 Reseed/Close 时递增，用于识别过期的流
	generation uint64
}

// NewChatSession 创建处于 UNINITIALIZED 状态的会话
func NewChatSession(credentials CredentialService, llmClient llm.Client, chatModel, sessionID string) *ChatSession {
	return &ChatSession{
		credentials: credentials,
		llmClient:   llmClient,
		model:       chatModel,
		sessionID:   sessionID,
		logger:      log.With("chatSession", sessionID),
		state:       ChatUninitialized,
	}
}

// Open 绑定系统指令并进入 READY。diagnosis 为 nil 时使用通用助手指令。
func (s *ChatSession) Open(diagnosis *model.Diagnosis, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case ChatClosed:
		return errorx.ChatStream("The chat session is closed.", nil)
	case ChatUninitialized:
	default:
		return errorx.ChatStream("The chat session is already open.", nil)
	}
	s.seedLocked(diagnosis, language)
	return nil
}

// Reseed 拆除当前会话并以新的上下文重建，进行中的流被取消，记录被清空。
func (s *ChatSession) Reseed(diagnosis *model.Diagnosis, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == ChatClosed {
		return errorx.ChatStream("The chat session is closed.", nil)
	}
	s.teardownLocked()
	s.seedLocked(diagnosis, language)
	s.logger.Infof("会话已按新上下文重建，语言: %s", LanguageName(language))
	return nil
}

func (s *ChatSession) seedLocked(diagnosis *model.Diagnosis, language string) {
	if diagnosis != nil {
		s.instruction = DiagnosisChatInstruction(*diagnosis, language)
	} else {
		s.instruction = GeneralChatInstruction(language)
	}
	s.state = ChatReady
}

func (s *ChatSession) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.transcript = nil
	s.history = nil
}

// Close 取消进行中的流并清空记录，之后会话不可再用。
func (s *ChatSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == ChatClosed {
		return
	}
	s.teardownLocked()
	s.state = ChatClosed
}

// State 返回当前状态
func (s *ChatSession) State() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript 返回当前记录的副本
func (s *ChatSession) Transcript() []model.TranscriptMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TranscriptMessage(nil), s.transcript...)
}

// Send 发送一轮用户输入并流式接收回复。
// 用户消息立即追加；每个分块都原地覆盖本轮唯一的模型消息；
// 流失败时丢弃部分回复并追加一条错误提示，会话回到 READY。
func (s *ChatSession) Send(ctx context.Context, text string, onUpdate ChatUpdateFunc) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errorx.ChatStream("The message is empty.", nil)
	}
	if onUpdate == nil {
		onUpdate = func(model.TranscriptMessage) {}
	}

	s.mu.Lock()
	switch s.state {
	case ChatReady:
	case ChatSending, ChatReceiving:
		s.mu.Unlock()
		return errorx.ChatStream("Please wait for the current reply to finish.", ErrChatBusy)
	default:
		state := s.state
		s.mu.Unlock()
		return errorx.ChatStream("The chat session is not open ("+string(state)+").", nil)
	}
	apiKey, err := s.credentials.Require(s.sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	userMsg := model.TranscriptMessage{Role: model.RoleUser, Text: text}
	s.transcript = append(s.transcript, userMsg)
	s.state = ChatSending
	req := llm.ChatRequest{
		Model:             s.model,
		SystemInstruction: s.instruction,
		History:           append(append([]llm.Message(nil), s.history...), llm.Message{Role: llm.RoleUser, Text: text}),
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	gen := s.generation
	s.mu.Unlock()
	defer cancel()

	onUpdate(userMsg)

	var buffer strings.Builder
	writer := llm.ChunkWriterFunc(func(chunk string) error {
		buffer.WriteString(chunk)
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return errSessionReplaced
		}
		s.state = ChatReceiving
		s.transcript = model.ApplyStreamChunk(s.transcript, buffer.String())
		last := s.transcript[len(s.transcript)-1]
		s.mu.Unlock()
		onUpdate(last)
		return nil
	})

	streamErr := s.llmClient.StreamChat(streamCtx, apiKey, req, writer)

	s.mu.Lock()
	if s.generation != gen {
		// 会话已被关闭或重建，本轮结果直接丢弃
		s.mu.Unlock()
		return errorx.ChatStream("The chat session was closed.", errSessionReplaced)
	}
	s.cancel = nil
	s.state = ChatReady

	if streamErr != nil {
		s.transcript = model.DiscardPending(s.transcript)
		errMsg := model.TranscriptMessage{Role: model.RoleModel, Text: ChatErrorMessage}
		s.transcript = append(s.transcript, errMsg)
		s.mu.Unlock()
		s.logger.Warnf("流式回复失败: %v", streamErr)
		onUpdate(errMsg)
		return errorx.ChatStream(ChatErrorMessage, streamErr)
	}

	s.transcript = model.CommitTurn(s.transcript)
	last := s.transcript[len(s.transcript)-1]
	if last.Role != model.RoleModel {
		// 流正常结束但没有任何分块，仍然保证每轮一条模型消息
		last = model.TranscriptMessage{Role: model.RoleModel, Text: ""}
		s.transcript = append(s.transcript, last)
	}
	s.history = append(s.history,
		llm.Message{Role: llm.RoleUser, Text: text},
		llm.Message{Role: llm.RoleModel, Text: last.Text},
	)
	s.mu.Unlock()

	onUpdate(last)
	return nil
}
