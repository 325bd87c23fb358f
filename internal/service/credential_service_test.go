package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"agri-ai-go/pkg/errorx"
)

func TestCredentialEnvWinsAndRejectsOverride(t *testing.T) {
	s := NewCredentialService(staticKey("env-key"))

	if st := s.Resolve(); !st.Configured || st.Source != SourceEnv {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := s.SetSessionOverride("sess", "mine"); !errors.Is(err, errorx.ErrCredential) {
		t.Fatalf("expected override to be rejected, got %v", err)
	}
	key, err := s.Require("sess")
	if err != nil || key != "env-key" {
		t.Fatalf("Require = %q, %v", key, err)
	}
}

func TestCredentialSessionOverride(t *testing.T) {
	s := NewCredentialService(staticKey(""))

	if st := s.StatusFor("sess"); st.Configured || st.Source != SourceNone {
		t.Fatalf("unexpected status %+v", st)
	}
	if _, err := s.Require("sess"); !errors.Is(err, errorx.ErrCredential) {
		t.Fatalf("expected CredentialError, got %v", err)
	}

	if err := s.SetSessionOverride("sess", "  session-key "); err != nil {
		t.Fatalf("SetSessionOverride: %v", err)
	}
	if st := s.StatusFor("sess"); !st.Configured || st.Source != SourceSession {
		t.Fatalf("unexpected status %+v", st)
	}
	if key, _ := s.Require("sess"); key != "session-key" {
		t.Fatalf("unexpected key %q", key)
	}
	// 其他页面会话看不到该覆盖
	if st := s.StatusFor("other"); st.Configured {
		t.Fatal("override leaked to another session")
	}

	s.ClearSessionOverride("sess")
	if st := s.StatusFor("sess"); st.Configured {
		t.Fatal("override should be cleared")
	}
}

func TestCredentialSnapshotOnlyChangesOnResolve(t *testing.T) {
	key := ""
	s := NewCredentialService(func() string { return key })
	_ = s.SetSessionOverride("sess", "session-key")

	key = "env-key"
	if st := s.StatusFor("sess"); st.Source != SourceSession {
		t.Fatalf("snapshot changed without Resolve: %+v", st)
	}

	if st := s.Resolve(); st.Source != SourceEnv {
		t.Fatalf("unexpected status after Resolve %+v", st)
	}
	if got, _ := s.Require("sess"); got != "env-key" {
		t.Fatalf("expected env key after Resolve, got %q", got)
	}
}

func TestCredentialRejectsEmptyOverride(t *testing.T) {
	s := NewCredentialService(nil)
	if err := s.SetSessionOverride("sess", "   "); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := s.SetSessionOverride("", "k"); err == nil {
		t.Fatal("expected error without session")
	}
}

func TestCredentialOverrideExpiresWhenIdle(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewCredentialService(staticKey(""), WithOverrideTTL(time.Hour), WithClock(func() time.Time { return now }))

	if err := s.SetSessionOverride("sess", "secret"); err != nil {
		t.Fatalf("SetSessionOverride: %v", err)
	}

	// 使用会续期
	now = now.Add(50 * time.Minute)
	if key, err := s.Require("sess"); err != nil || key != "secret" {
		t.Fatalf("Require = %q, %v", key, err)
	}
	now = now.Add(50 * time.Minute)
	if st := s.StatusFor("sess"); !st.Configured {
		t.Fatal("override should still be live after being used")
	}

	now = now.Add(2 * time.Hour)
	if st := s.StatusFor("sess"); st.Configured || st.Source != SourceNone {
		t.Fatalf("expired override still reported: %+v", st)
	}
	if _, err := s.Require("sess"); !errors.Is(err, errorx.ErrCredential) {
		t.Fatalf("expected CredentialError for expired override, got %v", err)
	}
}

func TestCredentialSweepDropsAbandonedSessions(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewCredentialService(staticKey(""), WithOverrideTTL(time.Hour), WithClock(func() time.Time { return now }))

	for i := 0; i < 1000; i++ {
		if err := s.SetSessionOverride(fmt.Sprintf("sess-%d", i), "secret"); err != nil {
			t.Fatalf("SetSessionOverride: %v", err)
		}
	}
	now = now.Add(30 * time.Minute)
	_ = s.SetSessionOverride("fresh", "secret")

	now = now.Add(45 * time.Minute)
	if n := s.Sweep(); n != 1000 {
		t.Fatalf("Sweep removed %d overrides, want 1000", n)
	}
	if _, err := s.Require("sess-0"); err == nil {
		t.Fatal("abandoned session still resolves a key")
	}
	if key, err := s.Require("fresh"); err != nil || key != "secret" {
		t.Fatalf("fresh override lost: %q, %v", key, err)
	}
	if n := s.Sweep(); n != 0 {
		t.Fatalf("second Sweep removed %d", n)
	}
}

func TestCredentialRunSweeperStopsWithContext(t *testing.T) {
	s := NewCredentialService(staticKey(""))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not return after cancel")
	}
}
