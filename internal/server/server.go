// Package server exposes the gateway over HTTP for the rest of the CMS:
// the four assist operations plus a small management surface (performance
// metrics, masked configuration, the model catalog, health and Prometheus).
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/blog-ai-gateway/internal/catalog"
	"github.com/nulpointcorp/blog-ai-gateway/internal/config"
	"github.com/nulpointcorp/blog-ai-gateway/internal/gateway"
	"github.com/nulpointcorp/blog-ai-gateway/internal/history"
	"github.com/nulpointcorp/blog-ai-gateway/internal/metrics"
	"github.com/nulpointcorp/blog-ai-gateway/internal/monitor"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
	"github.com/nulpointcorp/blog-ai-gateway/internal/ratelimit"
)

// Generator is the subset of *gateway.Gateway the handlers call.
type Generator interface {
	GenerateSummary(ctx context.Context, content, template string) (*gateway.Generation, error)
	GenerateWritingSuggestion(ctx context.Context, content, prompt string) (*gateway.Generation, error)
	GenerateSEO(ctx context.Context, content, template string) (*gateway.Generation, error)
	GenerateCompletion(ctx context.Context, prompt string) (*gateway.Generation, error)
}

// Probe checks one dependency for /health.
type Probe func(ctx context.Context) error

// Options holds the server collaborators. Everything except Features is
// optional and nil-safe.
type Options struct {
	Logger *slog.Logger

	// Gateway serves the assist routes. When nil, every assist call fails
	// with GatewayErr, or a configuration error when that is nil too.
	Gateway    Generator
	GatewayErr error

	Features config.FeatureFlags

	// AIConfig is displayed by GET /v1/ai/config. Secrets must already be
	// masked.
	AIConfig providers.Config

	Monitor *monitor.Monitor
	Catalog *catalog.Catalog
	Limiter *ratelimit.UserLimiter
	History *history.Dispatcher
	Metrics *metrics.Registry
	Probes  map[string]Probe
	Version string
}

type Server struct {
	log      *slog.Logger
	gen      Generator
	features config.FeatureFlags
	aiConfig providers.Config
	monitor  *monitor.Monitor
	catalog  *catalog.Catalog
	limiter  *ratelimit.UserLimiter
	history  *history.Dispatcher
	metrics  *metrics.Registry
	probes   map[string]Probe
	version  string

	srv *fasthttp.Server
}

func New(opts Options) *Server {
	s := &Server{
		log:      opts.Logger,
		gen:      opts.Gateway,
		features: opts.Features,
		aiConfig: opts.AIConfig,
		monitor:  opts.Monitor,
		catalog:  opts.Catalog,
		limiter:  opts.Limiter,
		history:  opts.History,
		metrics:  opts.Metrics,
		probes:   opts.Probes,
		version:  opts.Version,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.gen == nil {
		err := opts.GatewayErr
		if err == nil {
			err = providers.Configuration(opts.AIConfig.Provider, "AI assistant is not configured")
		}
		s.gen = unavailable{err: err}
	}

	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 3 * time.Minute,
	}
	return s
}

// Handler returns the full route table wrapped in middleware.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.POST("/v1/ai/summary", s.route("summary", s.assist(providers.OpSummary)))
	r.POST("/v1/ai/writing-suggestion", s.route("writing_suggestion", s.assist(providers.OpWritingSuggestion)))
	r.POST("/v1/ai/seo", s.route("seo", s.assist(providers.OpSEO)))
	r.POST("/v1/ai/completion", s.route("completion", s.assist(providers.OpCompletion)))

	r.GET("/v1/ai/metrics", s.route("ai_metrics", s.handlePerformance))
	r.POST("/v1/ai/metrics/reset", s.route("ai_metrics_reset", s.handlePerformanceReset))
	r.GET("/v1/ai/config", s.route("ai_config", s.handleConfig))
	r.GET("/v1/ai/models", s.route("ai_models", s.handleModels))
	r.GET("/health", s.handleHealth)

	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		securityHeaders,
	)
}

func (s *Server) route(name string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return instrument(s.metrics, name, h)
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe(addr string) error {
	return s.srv.ListenAndServe(addr)
}

// Serve accepts connections on ln until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// unavailable stands in for a gateway that could not be built.
type unavailable struct{ err error }

func (u unavailable) GenerateSummary(context.Context, string, string) (*gateway.Generation, error) {
	return nil, u.err
}

func (u unavailable) GenerateWritingSuggestion(context.Context, string, string) (*gateway.Generation, error) {
	return nil, u.err
}

func (u unavailable) GenerateSEO(context.Context, string, string) (*gateway.Generation, error) {
	return nil, u.err
}

func (u unavailable) GenerateCompletion(context.Context, string) (*gateway.Generation, error) {
	return nil, u.err
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
