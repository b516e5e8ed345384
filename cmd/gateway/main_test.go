package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nulpointcorp/blog-ai-gateway/internal/config"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

func TestLogConfig_MasksKeyAndListsFeatures(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	cfg := &config.Config{
		AI:           providers.Config{Provider: providers.Qwen, APIKey: "sk-0123456789abcdef", Enabled: true},
		Features:     config.FeatureFlags{Summary: true, SEO: true},
		Instrumented: []string{"qwen"},
		Retry:        config.RetryConfig{Timeout: 30 * time.Second, MaxRetries: 2},
		Cache:        config.CacheConfig{Mode: "memory"},
		History:      config.HistoryConfig{Backend: "sqlite"},
	}
	logConfig(log, cfg)

	if strings.Contains(buf.String(), "sk-0123456789abcdef") {
		t.Fatalf("api key leaked: %s", buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "config_loaded" || rec["features"] != "summary,seo" || rec["model"] != "(vendor default)" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["history_backend"] != "sqlite" || rec["provider"] != providers.Qwen {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestBuildLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	ctx := context.Background()
	for _, tt := range tests {
		l := buildLogger(tt.level)
		if !l.Enabled(ctx, tt.want) || (tt.want > slog.LevelDebug && l.Enabled(ctx, tt.want-1)) {
			t.Errorf("buildLogger(%q) does not gate at %s", tt.level, tt.want)
		}
	}
}
