// Package llm 定义与生成式 AI 服务交互的边界：结构化生成、流式对话与实时语音。
package llm

import (
	"context"
)

// 对话角色
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChunkWriter 接收流式对话的增量文本。
// 返回错误会中止本次流式读取。
type ChunkWriter interface {
	WriteChunk(text string) error
}

// ChunkWriterFunc 让普通函数满足 ChunkWriter
type ChunkWriterFunc func(text string) error

func (f ChunkWriterFunc) WriteChunk(text string) error { return f(text) }

// Client 是 AI 服务的窄接口，apiKey 由调用方按会话解析后传入。
type Client interface {
	// GenerateJSON 发起一次结构化生成，返回模型输出的原始文本（应为 JSON）。
	GenerateJSON(ctx context.Context, apiKey string, req JSONRequest) (string, error)
	// StreamChat 以完整历史发起一次流式对话，并将分块写入 writer。
	StreamChat(ctx context.Context, apiKey string, req ChatRequest, writer ChunkWriter) error
	// ConnectLive 打开一条双向实时语音连接。
	ConnectLive(ctx context.Context, apiKey string, cfg LiveConfig) (LiveSession, error)
}

// Image 是以内联方式发送的图片
type Image struct {
	Data     []byte
	MIMEType string
}

// JSONRequest 描述一次受 schema 约束的生成请求
type JSONRequest struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Images            []Image
	Schema            *Schema
	Temperature       *float32
}

// Message 表示一条角色消息
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatRequest 描述一次流式对话请求，History 末尾为本轮用户输入。
type ChatRequest struct {
	Model             string
	SystemInstruction string
	History           []Message
	Temperature       *float32
}

// LiveConfig 描述实时语音连接的参数
type LiveConfig struct {
	Model             string
	SystemInstruction string
	Voice             string
}

// LiveEvent 是实时连接上收到的一条服务端消息
type LiveEvent struct {
	InputTranscript  string
	OutputTranscript string
	// Audio 为 24kHz 单声道 PCM16 数据块
	Audio        [][]byte
	TurnComplete bool
	Interrupted  bool
}

// LiveSession 是一条已建立的实时语音连接
type LiveSession interface {
	// SendAudio 发送一帧上行音频，不等待确认。
	SendAudio(pcm []byte, mimeType string) error
	// Receive 阻塞直到收到下一条服务端消息，连接关闭后返回错误。
	Receive() (*LiveEvent, error)
	Close() error
}

// Schema 类型
const (
	TypeObject  = "OBJECT"
	TypeArray   = "ARRAY"
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeInteger = "INTEGER"
)

// Schema 是响应结构约束，字段与服务端 OpenAPI 子集对应。
type Schema struct {
	Type        string
	Description string
	Enum        []string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}

// Float32 返回 v 的指针
func Float32(v float32) *float32 { return &v }
