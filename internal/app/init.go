package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nulpointcorp/blog-ai-gateway/internal/cache"
	"github.com/nulpointcorp/blog-ai-gateway/internal/catalog"
	"github.com/nulpointcorp/blog-ai-gateway/internal/gateway"
	"github.com/nulpointcorp/blog-ai-gateway/internal/history"
	"github.com/nulpointcorp/blog-ai-gateway/internal/metrics"
	"github.com/nulpointcorp/blog-ai-gateway/internal/monitor"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
	"github.com/nulpointcorp/blog-ai-gateway/internal/ratelimit"
	"github.com/nulpointcorp/blog-ai-gateway/internal/server"
)

// initInfra establishes optional external connections.
// Redis is required when CACHE_MODE=redis; for rate limiting alone it is
// best-effort. A history store that cannot be opened disables recording.
func (a *App) initInfra(ctx context.Context) error {
	needRedis := a.cfg.Cache.Mode == "redis"
	wantRedis := needRedis || (a.cfg.Redis.URL != "" && a.cfg.RateLimit.RPMLimit > 0)

	if wantRedis {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		switch {
		case err != nil && needRedis:
			return fmt.Errorf("redis: %w", err)
		case err != nil:
			a.log.Warn("redis unavailable, rate limiting disabled", slog.String("error", err.Error()))
		default:
			a.rdb = rdb
			a.log.Info("redis connected")
		}
	}

	store, err := openHistory(ctx, a.cfg.History)
	if err != nil {
		a.log.Warn("history store unavailable, generations will not be recorded",
			slog.String("backend", a.cfg.History.Backend),
			slog.String("error", err.Error()),
		)
		return nil
	}
	a.store = store
	if store != nil {
		a.log.Info("history store ready", slog.String("backend", a.cfg.History.Backend))
	}

	return nil
}

// initServices creates the metrics registry, performance monitor, response
// cache and model catalog.
func (a *App) initServices(_ context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version, a.cfg.AI.Provider)

	a.mon = monitor.New(monitor.Config{})

	switch a.cfg.Cache.Mode {
	case "redis":
		a.cache = cache.NewRedisCache(a.rdb)
		a.log.Info("cache backend: redis")
	case "memory":
		a.cache = cache.NewMemoryCache()
		a.log.Info("cache backend: memory (in-process)")
	case "none":
		a.log.Info("cache backend: disabled")
	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	a.catalog = cat

	if a.store != nil {
		rec := history.NewRecorder(a.store, a.log, a.prom)
		a.history = history.NewDispatcher(a.baseCtx, rec, a.prom, 0)
	}

	return nil
}

// initGateway resolves the active provider. A disabled or incomplete AI
// configuration does not stop the server: the assist routes report the
// configuration error instead.
func (a *App) initGateway(_ context.Context) error {
	gw, err := gateway.Build(a.cfg.AI, gateway.Options{
		Logger:       a.log,
		Cache:        a.cache,
		Monitor:      a.mon,
		Metrics:      a.prom,
		CacheTTL:     a.cfg.Cache.TTL,
		Timeouts:     a.cfg.TimeoutPolicy(),
		Retry:        a.cfg.RetryPolicy(),
		Instrumented: a.cfg.Instrumented,
	})
	if err != nil {
		a.gwErr = err
		a.log.Warn("ai gateway unavailable",
			slog.String("provider", a.cfg.AI.Provider),
			slog.String("kind", string(providers.KindOf(err))),
			slog.String("error", err.Error()),
		)
		return nil
	}

	a.gw = gw
	a.log.Info("ai provider ready",
		slog.String("provider", gw.Provider()),
		slog.String("model", gw.Model()),
		slog.Bool("instrumented", gw.Instrumented()),
	)
	return nil
}

// initServer builds the HTTP surface.
func (a *App) initServer(_ context.Context) error {
	opts := server.Options{
		Logger:     a.log,
		GatewayErr: a.gwErr,
		Features:   a.cfg.Features,
		AIConfig:   a.cfg.Masked(),
		Monitor:    a.mon,
		Catalog:    a.catalog,
		History:    a.history,
		Metrics:    a.prom,
		Probes:     map[string]server.Probe{},
		Version:    a.version,
	}
	if a.gw != nil {
		opts.Gateway = a.gw
		// Adapters fill in a default model when AI_MODEL is empty.
		opts.AIConfig.Model = a.gw.Model()
	}

	// Rate limiting needs Redis.
	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		opts.Limiter = ratelimit.NewUserLimiter(a.rdb, a.cfg.RateLimit.RPMLimit, ratelimit.WithMetrics(a.prom))
		a.log.Info("rate limiting enabled", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))
	}

	if a.rdb != nil {
		rdb := a.rdb
		opts.Probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if a.store != nil {
		store := a.store
		opts.Probes["history"] = store.Ping
	}

	a.srv = server.New(opts)
	return nil
}
