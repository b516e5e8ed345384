package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 || cfg.LogLevel != "info" {
		t.Fatalf("unexpected server defaults: port=%d level=%s", cfg.Port, cfg.LogLevel)
	}
	if cfg.AI.Provider != providers.OpenAI || !cfg.AI.Enabled || cfg.AI.MaxTokens != 1000 {
		t.Fatalf("unexpected AI defaults: %+v", cfg.AI)
	}
	if cfg.Cache.Mode != "memory" || cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Retry.MaxRetries != 2 || cfg.Retry.Delay != time.Second || cfg.Retry.Timeout != 30*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if !slices.Equal(cfg.Instrumented, providers.Known) {
		t.Fatalf("expected all providers instrumented, got %v", cfg.Instrumented)
	}
	for _, op := range []providers.Operation{providers.OpSummary, providers.OpWritingSuggestion, providers.OpSEO, providers.OpCompletion} {
		if !cfg.Features.Enabled(op) {
			t.Fatalf("feature %s should default to enabled", op)
		}
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AI_PROVIDER", "Wenxin")
	t.Setenv("AI_API_KEY", "client-id")
	t.Setenv("AI_SECRET_KEY", "client-secret")
	t.Setenv("AI_TEMPERATURE", "0.2")
	t.Setenv("AI_FEATURE_SEO", "false")
	t.Setenv("AI_INSTRUMENTED_PROVIDERS", "openai, DeepSeek")
	t.Setenv("AI_TIMEOUT", "10s")
	t.Setenv("AI_MAX_RETRIES", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AI.Provider != providers.Wenxin || cfg.AI.SecretKey != "client-secret" || cfg.AI.Temperature != 0.2 {
		t.Fatalf("unexpected AI config: %+v", cfg.AI)
	}
	if cfg.Features.Enabled(providers.OpSEO) || !cfg.Features.Enabled(providers.OpSummary) {
		t.Fatalf("unexpected features: %+v", cfg.Features)
	}
	if !slices.Equal(cfg.Instrumented, []string{"openai", "deepseek"}) {
		t.Fatalf("unexpected instrumented list: %v", cfg.Instrumented)
	}
	if got := cfg.TimeoutPolicy().For(providers.OpenAI, providers.OpSummary, 10); got != 10*time.Second {
		t.Fatalf("expected rebased timeout 10s, got %s", got)
	}
	if got := cfg.TimeoutPolicy().For(providers.DeepSeek, providers.OpSummary, 10); got != 20*time.Second {
		t.Fatalf("expected deepseek timeout 20s, got %s", got)
	}
	if got := cfg.TimeoutPolicy().For(providers.Wenxin, providers.OpSummary, 10); got != 15*time.Second {
		t.Fatalf("expected wenxin timeout 15s, got %s", got)
	}
	if cfg.RetryPolicy().MaxRetries != 0 {
		t.Fatalf("expected no retries, got %d", cfg.RetryPolicy().MaxRetries)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AI_MODEL=qwen-plus\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("AI_MODEL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Model != "qwen-plus" {
		t.Fatalf("expected model from .env, got %q", cfg.AI.Model)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown provider", map[string]string{"AI_PROVIDER": "anthropic"}, "AI_PROVIDER"},
		{"unknown instrumented", map[string]string{"AI_INSTRUMENTED_PROVIDERS": "openai,mistral"}, "AI_INSTRUMENTED_PROVIDERS"},
		{"redis without url", map[string]string{"CACHE_MODE": "redis"}, "REDIS_URL"},
		{"bad cache mode", map[string]string{"CACHE_MODE": "disk"}, "CACHE_MODE"},
		{"bad history backend", map[string]string{"HISTORY_BACKEND": "postgres"}, "HISTORY_BACKEND"},
		{"bad log level", map[string]string{"LOG_LEVEL": "trace"}, "LOG_LEVEL"},
		{"negative retries", map[string]string{"AI_MAX_RETRIES": "-1"}, "AI_MAX_RETRIES"},
		{"negative rpm", map[string]string{"AI_RPM_LIMIT": "-5"}, "AI_RPM_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "*****"},
		{"12345678", "********"},
		{"sk-abcdef123456wxyz", "sk-a***********wxyz"},
	}
	for _, tt := range tests {
		if got := MaskKey(tt.in); got != tt.want {
			t.Fatalf("MaskKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMasked_HidesSecrets(t *testing.T) {
	cfg := &Config{AI: providers.Config{Provider: providers.Wenxin, APIKey: "abcdefghijkl", SecretKey: "secret-value-1234"}}

	m := cfg.Masked()
	if m.APIKey == cfg.AI.APIKey || m.SecretKey == cfg.AI.SecretKey {
		t.Fatalf("secrets leaked: %+v", m)
	}
	if cfg.AI.APIKey != "abcdefghijkl" {
		t.Fatal("Masked must not mutate the config")
	}
}
