// Command providers runs lightweight HTTP mock servers that simulate each
// supported AI vendor API. It is used for local development and E2E testing
// of the gateway without real credentials.
//
// Each vendor listens on its own port:
//
//	OpenAI     :19001  (AI_BASE_URL=http://localhost:19001/v1)
//	DeepSeek   :19002  (AI_BASE_URL=http://localhost:19002/v1)
//	Qwen       :19003  (AI_BASE_URL=http://localhost:19003/api/v1)
//	Wenxin     :19004  (AI_TOKEN_URL=http://localhost:19004/oauth/2.0/token
//	                    AI_BASE_URL=http://localhost:19004/rpc/2.0/ai_custom/v1/wenxinworkshop/chat)
//
// Environment overrides (PORT_<VENDOR>):
//
//	PORT_OPENAI, PORT_DEEPSEEK, PORT_QWEN, PORT_WENXIN
//
// Behaviour flags (via env):
//
//	MOCK_LATENCY_MS    artificial latency added to every response (default 0)
//	MOCK_ERROR_RATE    fraction [0,1] of requests that return HTTP 500 (default 0)
//	MOCK_THROTTLE_RATE fraction [0,1] of requests rejected with the vendor's rate-limit error (default 0)
//	MOCK_WORDS         words in each generated response (default 10)
//	MOCK_TOKEN_TTL_S   lifetime of issued wenxin access tokens (default 2592000)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Config holds runtime configuration shared across all mock servers.
type Config struct {
	LatencyMS    int
	ErrorRate    float64
	ThrottleRate float64
	Words        int
	TokenTTL     time.Duration
}

func loadConfig() Config {
	c := Config{Words: 10, TokenTTL: 30 * 24 * time.Hour}

	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LatencyMS = n
		}
	}
	c.ErrorRate = rateFromEnv("MOCK_ERROR_RATE")
	c.ThrottleRate = rateFromEnv("MOCK_THROTTLE_RATE")
	if v := os.Getenv("MOCK_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Words = n
		}
	}
	if v := os.Getenv("MOCK_TOKEN_TTL_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TokenTTL = time.Duration(n) * time.Second
		}
	}
	return c
}

func rateFromEnv(key string) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return 0
}

func portFromEnv(key string, defaultPort int) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return strconv.Itoa(defaultPort)
}

func startServer(name, addr string, h http.Handler, log *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("mock vendor listening", slog.String("vendor", name), slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("vendor", name), slog.String("error", err.Error()))
		}
	}()
	return srv
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig()

	log.Info("starting mock vendors",
		slog.Int("latency_ms", cfg.LatencyMS),
		slog.Float64("error_rate", cfg.ErrorRate),
		slog.Float64("throttle_rate", cfg.ThrottleRate),
		slog.Int("words", cfg.Words),
	)

	servers := []*http.Server{
		startServer("openai", ":"+portFromEnv("PORT_OPENAI", 19001), newChatHandler(cfg, "gpt-4o-mini"), log),
		startServer("deepseek", ":"+portFromEnv("PORT_DEEPSEEK", 19002), newChatHandler(cfg, "deepseek-chat"), log),
		startServer("qwen", ":"+portFromEnv("PORT_QWEN", 19003), newQwenHandler(cfg), log),
		startServer("wenxin", ":"+portFromEnv("PORT_WENXIN", 19004), newWenxinHandler(cfg), log),
	}

	fmt.Println("READY")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mock vendors")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s *http.Server) {
			defer wg.Done()
			_ = s.Shutdown(ctx)
		}(srv)
	}
	wg.Wait()
	log.Info("mock vendors stopped")
}
