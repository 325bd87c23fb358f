// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/log"
)

// CredentialSource 标识 API Key 的来源
type CredentialSource string

const (
	SourceEnv     CredentialSource = "ENV"
	SourceSession CredentialSource = "SESSION"
	SourceNone    CredentialSource = "NONE"
)

// CredentialStatus 是凭证状态快照
type CredentialStatus struct {
	Configured bool             `json:"configured"`
	Source     CredentialSource `json:"source"`
}

const missingCredentialMessage = "No API key is configured. Add one in Settings to use the AI features."

// DefaultOverrideTTL 是会话级 API Key 的默认空闲有效期
const DefaultOverrideTTL = 12 * time.Hour

// CredentialService 决定 AI 调用使用哪个 API Key。
// 环境凭证在构造时读取一次，之后只在显式调用 Resolve 时刷新。
// 页面会话级的覆盖值只保存在内存中，且环境凭证存在时被拒绝。
// 覆盖值空闲超过有效期后失效，由 Require/StatusFor 惰性淘汰，Sweep 批量清理。
type CredentialService interface {
	Resolve() CredentialStatus
	StatusFor(sessionID string) CredentialStatus
	SetSessionOverride(sessionID, apiKey string) error
	ClearSessionOverride(sessionID string)
	// Require 返回会话可用的 API Key，未配置时返回 CredentialError。
	Require(sessionID string) (string, error)
	// Sweep 删除所有已过期的会话覆盖，返回删除数量。
	Sweep() int
	// RunSweeper 按 interval 周期调用 Sweep，直到 ctx 结束。
	RunSweeper(ctx context.Context, interval time.Duration)
}

// CredentialOption 配置 CredentialService
type CredentialOption func(*credentialService)

// WithOverrideTTL 设置会话覆盖的空闲有效期，d <= 0 时忽略。
func WithOverrideTTL(d time.Duration) CredentialOption {
	return func(s *credentialService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) CredentialOption {
	return func(s *credentialService) {
		if now != nil {
			s.now = now
		}
	}
}

type sessionOverride struct {
	apiKey    string
	expiresAt time.Time
}

type credentialService struct {
	lookup func() string
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	envKey    string
	overrides map[string]sessionOverride
}

// NewCredentialService 创建凭证服务，lookup 用于读取环境级密钥。
func NewCredentialService(lookup func() string, opts ...CredentialOption) CredentialService {
	s := &credentialService{
		lookup:    lookup,
		ttl:       DefaultOverrideTTL,
		now:       time.Now,
		overrides: make(map[string]sessionOverride),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Resolve()
	return s
}

// Resolve 重新读取环境凭证并返回环境级状态
func (s *credentialService) Resolve() CredentialStatus {
	key := ""
	if s.lookup != nil {
		key = strings.TrimSpace(s.lookup())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.envKey = key
	if key != "" {
		// 环境凭证优先，丢弃所有会话覆盖
		if len(s.overrides) > 0 {
			log.Infof("检测到环境凭证，清除 %d 个会话级凭证", len(s.overrides))
		}
		s.overrides = make(map[string]sessionOverride)
		return CredentialStatus{Configured: true, Source: SourceEnv}
	}
	return CredentialStatus{Configured: false, Source: SourceNone}
}

func (s *credentialService) StatusFor(sessionID string) CredentialStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envKey != "" {
		return CredentialStatus{Configured: true, Source: SourceEnv}
	}
	if _, ok := s.liveOverride(sessionID); ok {
		return CredentialStatus{Configured: true, Source: SourceSession}
	}
	return CredentialStatus{Configured: false, Source: SourceNone}
}

func (s *credentialService) SetSessionOverride(sessionID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if sessionID == "" {
		return errorx.Credential("A page session is required to store an API key.")
	}
	if apiKey == "" {
		return errorx.Credential("The API key must not be empty.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envKey != "" {
		return errorx.Credential("An API key is already provided by the server environment.")
	}
	s.overrides[sessionID] = sessionOverride{apiKey: apiKey, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *credentialService) ClearSessionOverride(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, sessionID)
}

func (s *credentialService) Require(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envKey != "" {
		return s.envKey, nil
	}
	if o, ok := s.liveOverride(sessionID); ok {
		// 使用即续期
		o.expiresAt = s.now().Add(s.ttl)
		s.overrides[sessionID] = o
		return o.apiKey, nil
	}
	return "", errorx.Credential(missingCredentialMessage)
}

func (s *credentialService) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, o := range s.overrides {
		if !now.Before(o.expiresAt) {
			delete(s.overrides, id)
			n++
		}
	}
	return n
}

func (s *credentialService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Infof("已清理 %d 个过期的会话级凭证", n)
			}
		}
	}
}

// liveOverride 返回未过期的覆盖值，过期的顺手删除。调用方需持有锁。
func (s *credentialService) liveOverride(sessionID string) (sessionOverride, bool) {
	if sessionID == "" {
		return sessionOverride{}, false
	}
	o, ok := s.overrides[sessionID]
	if !ok {
		return sessionOverride{}, false
	}
	if !s.now().Before(o.expiresAt) {
		delete(s.overrides, sessionID)
		return sessionOverride{}, false
	}
	return o, true
}
