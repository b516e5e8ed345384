// Command gateway serves the blog CMS AI assist API.
//
// It reads configuration from environment variables (or config.yaml) and
// exposes summary, writing-suggestion, SEO and completion endpoints backed by
// the configured vendor, plus performance metrics and Prometheus scraping.
//
// Quick-start (in-memory cache, SQLite history):
//
//	AI_PROVIDER=deepseek AI_API_KEY=sk-... ./gateway
//
// Against the local mock vendors (see mock/providers):
//
//	AI_PROVIDER=wenxin AI_API_KEY=ak AI_SECRET_KEY=sk \
//	AI_TOKEN_URL=http://localhost:19004/oauth/2.0/token \
//	AI_BASE_URL=http://localhost:19004/rpc/2.0/ai_custom/v1/wenxinworkshop/chat ./gateway
//
// See .env.example for all available configuration variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nulpointcorp/blog-ai-gateway/internal/app"
	"github.com/nulpointcorp/blog-ai-gateway/internal/config"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Println(version)
		return
	}

	// SIGINT / SIGTERM drain in-flight generations and pending history rows.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Malformed settings stop startup. A missing API key or AI_ENABLED=false
	// does not: the server starts and reports it on the assist routes.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: config: %v\n", err)
		os.Exit(2)
	}

	logger := buildLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logConfig(logger, cfg)

	a, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		logger.Error("startup_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error("gateway_stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// logConfig prints the effective assist setup once. Secrets are masked.
func logConfig(log *slog.Logger, cfg *config.Config) {
	var enabled []string
	for _, op := range []providers.Operation{
		providers.OpSummary, providers.OpWritingSuggestion, providers.OpSEO, providers.OpCompletion,
	} {
		if cfg.Features.Enabled(op) {
			enabled = append(enabled, string(op))
		}
	}

	model := cfg.AI.Model
	if model == "" {
		model = "(vendor default)"
	}

	log.Info("config_loaded",
		slog.String("provider", cfg.AI.Provider),
		slog.String("model", model),
		slog.String("api_key", config.MaskKey(cfg.AI.APIKey)),
		slog.Bool("ai_enabled", cfg.AI.Enabled),
		slog.String("features", strings.Join(enabled, ",")),
		slog.String("instrumented", strings.Join(cfg.Instrumented, ",")),
		slog.Duration("timeout", cfg.Retry.Timeout),
		slog.Int("max_retries", cfg.Retry.MaxRetries),
		slog.String("cache_mode", cfg.Cache.Mode),
		slog.String("history_backend", cfg.History.Backend),
		slog.Int("rpm_limit", cfg.RateLimit.RPMLimit),
	)
}

// buildLogger returns a JSON logger for LOG_LEVEL. config.Load has already
// rejected unknown levels, so the default branch is info.
func buildLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     l,
		AddSource: l == slog.LevelDebug, // file:line only when debugging
	}))
}
