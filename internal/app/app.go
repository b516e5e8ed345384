// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra: external connections (Redis, history store)
//  2. initServices: metrics registry, monitor, response cache, model catalog
//  3. initGateway: the active provider wrapped in the gateway
//  4. initServer: assist and management routes
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/blog-ai-gateway/internal/cache"
	"github.com/nulpointcorp/blog-ai-gateway/internal/catalog"
	"github.com/nulpointcorp/blog-ai-gateway/internal/config"
	"github.com/nulpointcorp/blog-ai-gateway/internal/gateway"
	"github.com/nulpointcorp/blog-ai-gateway/internal/history"
	"github.com/nulpointcorp/blog-ai-gateway/internal/metrics"
	"github.com/nulpointcorp/blog-ai-gateway/internal/monitor"
	"github.com/nulpointcorp/blog-ai-gateway/internal/server"
)

const shutdownTimeout = 15 * time.Second

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections, nil when not configured.
	rdb   *redis.Client
	store history.Store

	prom    *metrics.Registry
	mon     *monitor.Monitor
	cache   cache.Cache
	catalog *catalog.Catalog

	gw    *gateway.Gateway
	gwErr error

	history *history.Dispatcher
	srv     *server.Server

	closeOnce sync.Once
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"services", a.initServices},
		{"gateway", a.initGateway},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. In-flight requests get shutdownTimeout to finish.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting ai gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("provider", a.cfg.AI.Provider),
		slog.String("api_key", config.MaskKey(a.cfg.AI.APIKey)),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.String("history_backend", a.cfg.History.Backend),
		slog.Bool("ai_available", a.gw != nil),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.ListenAndServe(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		// Drain pending history writes before the store goes away.
		if a.history != nil {
			if err := a.history.Close(); err != nil {
				a.log.Error("history dispatcher close error", slog.String("error", err.Error()))
			}
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.log.Error("history store close error", slog.String("error", err.Error()))
			}
		}
		if a.rdb != nil {
			if err := a.rdb.Close(); err != nil {
				a.log.Error("redis close error", slog.String("error", err.Error()))
			}
		}
	})
}

// Server returns the HTTP server, for tests.
func (a *App) Server() *server.Server { return a.srv }

// connectRedis parses the URL and verifies connectivity with a PING.
// Callers decide whether a failure is fatal.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// openHistory opens the configured history backend. It returns a nil Store
// for HISTORY_BACKEND=none.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := history.OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "clickhouse":
		s, err := history.OpenClickHouse(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown history backend: %s", cfg.Backend)
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
