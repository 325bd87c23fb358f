package model

import "strings"

// 转写消息角色
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ProvisionalMarker 在流式输出进行中附加在模型消息末尾
const ProvisionalMarker = "..."

// TranscriptMessage 是会话中的一条消息，仅在会话存续期间存在。
type TranscriptMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
	// Pending 为 true 表示该模型消息仍在流式接收中
	Pending bool `json:"pending,omitempty"`
}

// ApplyStreamChunk 把已累计的缓冲区写入本轮模型消息：若最后一条是进行中的模型消息则原地替换，
// 否则追加一条。返回新的切片，不修改入参。
func ApplyStreamChunk(transcript []TranscriptMessage, buffer string) []TranscriptMessage {
	msg := TranscriptMessage{Role: RoleModel, Text: buffer + ProvisionalMarker, Pending: true}
	out := make([]TranscriptMessage, len(transcript), len(transcript)+1)
	copy(out, transcript)
	if n := len(out); n > 0 && out[n-1].Role == RoleModel && out[n-1].Pending {
		out[n-1] = msg
		return out
	}
	return append(out, msg)
}

// CommitTurn 去掉进行中模型消息的临时标记并定稿。没有进行中的消息时原样返回。
func CommitTurn(transcript []TranscriptMessage) []TranscriptMessage {
	n := len(transcript)
	if n == 0 || transcript[n-1].Role != RoleModel || !transcript[n-1].Pending {
		return transcript
	}
	out := make([]TranscriptMessage, n)
	copy(out, transcript)
	out[n-1] = TranscriptMessage{
		Role: RoleModel,
		Text: strings.TrimSuffix(out[n-1].Text, ProvisionalMarker),
	}
	return out
}

// DiscardPending 丢弃进行中的模型消息
func DiscardPending(transcript []TranscriptMessage) []TranscriptMessage {
	n := len(transcript)
	if n == 0 || transcript[n-1].Role != RoleModel || !transcript[n-1].Pending {
		return transcript
	}
	out := make([]TranscriptMessage, n-1)
	copy(out, transcript[:n-1])
	return out
}
