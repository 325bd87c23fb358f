package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
server:
  port: "9090"
database:
  redis:
    addr: "127.0.0.1:6379"
jwt:
  secret: "test-secret"
llm:
  api_key: ""
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "API_KEY",
		"AGRI_DATABASE_REDIS_ADDR", "AGRI_JWT_SECRET", "AGRI_LLM_API_KEY",
		"AGRI_LLM_SESSION_KEY_TTL", "AGRI_SERVER_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestEnvAPIKeyPrefersGeminiKey(t *testing.T) {
	clearEnv(t)

	if got := EnvAPIKey(); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}

	t.Setenv("API_KEY", "generic")
	if got := EnvAPIKey(); got != "generic" {
		t.Fatalf("expected API_KEY fallback, got %q", got)
	}

	t.Setenv("GEMINI_API_KEY", "  gemini  ")
	if got := EnvAPIKey(); got != "gemini" {
		t.Fatalf("expected GEMINI_API_KEY to win, got %q", got)
	}
}

func TestLoadAppliesDefaultsAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGRI_DATABASE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("AGRI_LLM_SESSION_KEY_TTL", "30m")

	cfg, err := Load(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port from yaml lost: %q", cfg.Server.Port)
	}
	if cfg.Database.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("AGRI_ override not applied: %q", cfg.Database.Redis.Addr)
	}
	if cfg.LLM.SessionKeyTTL != 30*time.Minute {
		t.Fatalf("unexpected session key ttl %v", cfg.LLM.SessionKeyTTL)
	}
	if cfg.LLM.Model != "gemini-2.5-flash" || cfg.LLM.TranslationCacheTTL != 24*time.Hour {
		t.Fatalf("defaults not applied: %+v", cfg.LLM)
	}
}

func TestLoadLeavesEnvKeyLive(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "first")

	cfg, err := Load(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Fatalf("env key must not be frozen into config, got %q", cfg.LLM.APIKey)
	}
	if got := cfg.LLM.ResolveAPIKey(); got != "first" {
		t.Fatalf("ResolveAPIKey = %q", got)
	}

	t.Setenv("GEMINI_API_KEY", "second")
	if got := cfg.LLM.ResolveAPIKey(); got != "second" {
		t.Fatalf("ResolveAPIKey did not pick up the new env key: %q", got)
	}

	fileKeyed := LLMConfig{APIKey: "from-file"}
	if got := fileKeyed.ResolveAPIKey(); got != "from-file" {
		t.Fatalf("config file key should win, got %q", got)
	}
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	clearEnv(t)

	cases := map[string]string{
		"database.redis.addr": strings.Replace(baseYAML, `addr: "127.0.0.1:6379"`, `addr: ""`, 1),
		"jwt.secret":          strings.Replace(baseYAML, `secret: "test-secret"`, `secret: ""`, 1),
	}
	for field, content := range cases {
		_, err := Load(writeConfig(t, content))
		if err == nil || !strings.Contains(err.Error(), field) {
			t.Errorf("%s: expected validation error, got %v", field, err)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
