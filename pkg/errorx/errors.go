// Package errorx 定义了 AI 调用链路上的错误分类。
package errorx

import (
	"errors"
	"fmt"
)

// Kind 标识错误所属的类别，决定了调用方的降级策略。
type Kind string

const (
	KindCredential   Kind = "credential"    // 未配置 API Key，在发起网络请求前拦截
	KindEncoding     Kind = "encoding"      // 图片读取/编码失败
	KindAnalysis     Kind = "analysis"      // 结构化分析失败（网络、服务、解析）
	KindTranslation  Kind = "translation"   // 翻译失败，可降级为原文
	KindMatch        Kind = "match"         // 相关文章匹配失败，可降级为空列表
	KindChatStream   Kind = "chat_stream"   // 流式对话失败，会话可继续
	KindVoiceSession Kind = "voice_session" // 语音会话失败，需用户重新打开
)

// Error 是带分类的业务错误。Message 面向最终用户，Err 保留底层原因。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 支持 errors.Is / errors.As 穿透到底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 只比较 Kind，使 errors.Is(err, errorx.ErrAnalysis) 对任意同类错误成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 各类别的哨兵值，仅用于 errors.Is 比较
var (
	ErrCredential   = &Error{Kind: KindCredential}
	ErrEncoding     = &Error{Kind: KindEncoding}
	ErrAnalysis     = &Error{Kind: KindAnalysis}
	ErrTranslation  = &Error{Kind: KindTranslation}
	ErrMatch        = &Error{Kind: KindMatch}
	ErrChatStream   = &Error{Kind: KindChatStream}
	ErrVoiceSession = &Error{Kind: KindVoiceSession}
)

// New 创建一个指定类别的错误
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Credential 创建凭证缺失错误
func Credential(message string) *Error {
	return New(KindCredential, message, nil)
}

// Encoding 创建图片编码错误
func Encoding(err error) *Error {
	return New(KindEncoding, "The image could not be read. Please choose another file.", err)
}

// Analysis 创建分析错误，对用户只暴露通用提示
func Analysis(err error) *Error {
	return New(KindAnalysis, "Failed to analyze plant image. The AI model may be temporarily unavailable.", err)
}

// Translation 创建翻译错误
func Translation(err error) *Error {
	return New(KindTranslation, "Translation is unavailable, showing the original diagnosis.", err)
}

// Match 创建相关文章匹配错误
func Match(err error) *Error {
	return New(KindMatch, "Related articles are unavailable.", err)
}

// ChatStream 创建对话流错误
func ChatStream(message string, err error) *Error {
	return New(KindChatStream, message, err)
}

// VoiceSession 创建语音会话错误
func VoiceSession(message string, err error) *Error {
	return New(KindVoiceSession, message, err)
}

// KindOf 返回 err 链上第一个分类错误的类别；不存在时返回空字符串。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage 返回可直接展示给用户的文案
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Something went wrong. Please try again."
}
