// Package gateway is the entry point the rest of the CMS uses to generate
// text. A Gateway wraps the single active provider adapter and adds prompt
// templating, the response cache, per-attempt timeouts, transport retries,
// the performance monitor and Prometheus metrics.
//
// Cache and monitor are optional and nil-safe. Whether a provider consults
// them is controlled by Options.Instrumented.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nulpointcorp/blog-ai-gateway/internal/cache"
	"github.com/nulpointcorp/blog-ai-gateway/internal/metrics"
	"github.com/nulpointcorp/blog-ai-gateway/internal/monitor"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

// Options holds optional collaborators. Zero values fall back to defaults.
type Options struct {
	Logger  *slog.Logger
	Cache   cache.Cache
	Monitor *monitor.Monitor
	Metrics *metrics.Registry

	// CacheTTL defaults to cache.DefaultTTL.
	CacheTTL time.Duration

	// Timeouts defaults to providers.DefaultTimeoutPolicy().
	Timeouts *providers.TimeoutPolicy

	// Retry defaults to providers.DefaultRetryPolicy().
	Retry *providers.RetryPolicy

	// Instrumented lists the providers that use the cache and feed the
	// monitor. nil means every provider; an empty non-nil slice means none.
	Instrumented []string
}

// Generation is the result of one gateway call.
type Generation struct {
	Text       string        `json:"text"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	TokensUsed int           `json:"tokens_used"`
	Cached     bool          `json:"cached"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"-"`

	// Prompt is the rendered prompt sent upstream.
	Prompt string `json:"-"`
}

type cachedGeneration struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type Gateway struct {
	provider providers.Provider
	log      *slog.Logger
	cache    cache.Cache
	monitor  *monitor.Monitor
	metrics  *metrics.Registry

	cacheTTL     time.Duration
	timeouts     providers.TimeoutPolicy
	retry        providers.RetryPolicy
	instrumented bool
}

// Build resolves cfg to an adapter and wraps it. It fails with a
// configuration error when the assistant is disabled.
func Build(cfg providers.Config, opts Options) (*Gateway, error) {
	if !cfg.Enabled {
		return nil, providers.Configuration(cfg.Provider, "AI assistant is disabled")
	}
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return New(p, opts), nil
}

// New wraps an already constructed provider.
func New(p providers.Provider, opts Options) *Gateway {
	g := &Gateway{
		provider: p,
		log:      opts.Logger,
		cache:    opts.Cache,
		monitor:  opts.Monitor,
		metrics:  opts.Metrics,
		cacheTTL: opts.CacheTTL,
		timeouts: providers.DefaultTimeoutPolicy(),
		retry:    providers.DefaultRetryPolicy(),
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.cacheTTL <= 0 {
		g.cacheTTL = cache.DefaultTTL
	}
	if opts.Timeouts != nil {
		g.timeouts = *opts.Timeouts
	}
	if opts.Retry != nil {
		g.retry = *opts.Retry
	}

	g.instrumented = opts.Instrumented == nil
	for _, name := range opts.Instrumented {
		if name == p.Name() {
			g.instrumented = true
		}
	}
	return g
}

func (g *Gateway) Provider() string { return g.provider.Name() }
func (g *Gateway) Model() string    { return g.provider.Model() }

// Instrumented reports whether calls use the cache and the monitor.
func (g *Gateway) Instrumented() bool { return g.instrumented }

func (g *Gateway) GenerateSummary(ctx context.Context, content, template string) (*Generation, error) {
	return g.generate(ctx, providers.OpSummary, providers.Render(template, content), utf8.RuneCountInString(content))
}

func (g *Gateway) GenerateWritingSuggestion(ctx context.Context, content, prompt string) (*Generation, error) {
	return g.generate(ctx, providers.OpWritingSuggestion, providers.Render(prompt, content), utf8.RuneCountInString(content))
}

func (g *Gateway) GenerateSEO(ctx context.Context, content, template string) (*Generation, error) {
	return g.generate(ctx, providers.OpSEO, providers.Render(template, content), utf8.RuneCountInString(content))
}

func (g *Gateway) GenerateCompletion(ctx context.Context, prompt string) (*Generation, error) {
	return g.generate(ctx, providers.OpCompletion, prompt, utf8.RuneCountInString(prompt))
}

func (g *Gateway) generate(ctx context.Context, op providers.Operation, prompt string, contentLen int) (*Generation, error) {
	start := time.Now()
	name := g.provider.Name()

	var trace monitor.Trace
	track := g.instrumented && g.monitor != nil
	if track {
		trace = g.monitor.Start()
	}

	useCache := g.instrumented && g.cache != nil
	key := cache.Key(name, g.provider.Model(), prompt)

	if useCache {
		if gen, ok := g.fromCache(ctx, key); ok {
			gen.Duration = time.Since(start)
			gen.Prompt = prompt
			if track {
				g.monitor.End(trace, true, true)
			}
			g.observe(op, "ok", gen)
			g.log.DebugContext(ctx, "cache_hit",
				slog.String("provider", name),
				slog.String("operation", string(op)),
			)
			return gen, nil
		}
	} else if g.metrics != nil {
		g.metrics.CacheGetBypass()
	}

	requestID := trace.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req := &providers.Request{Prompt: prompt, Operation: op, RequestID: requestID}
	timeout := g.timeouts.For(name, op, contentLen)

	comp, attempts, err := g.completeWithRetry(ctx, req, timeout)
	if err != nil {
		if track {
			g.monitor.End(trace, false, false)
		}
		if g.metrics != nil {
			g.metrics.ObserveGeneration(name, string(op), string(providers.KindOf(err)), false, time.Since(start))
		}
		g.log.ErrorContext(ctx, "generation_failed",
			slog.String("provider", name),
			slog.String("operation", string(op)),
			slog.Int("attempts", attempts),
			slog.String("kind", string(providers.KindOf(err))),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	gen := &Generation{
		Text:       comp.Text,
		Provider:   name,
		Model:      g.provider.Model(),
		TokensUsed: comp.Usage.TotalTokens,
		Attempts:   attempts,
		Duration:   time.Since(start),
		Prompt:     prompt,
	}

	if useCache {
		g.store(ctx, key, gen)
	}
	if track {
		g.monitor.End(trace, true, false)
	}
	if g.metrics != nil {
		g.metrics.AddTokens(name, comp.Usage.InputTokens, comp.Usage.OutputTokens, comp.Usage.TotalTokens)
	}
	g.observe(op, "ok", gen)
	return gen, nil
}

func (g *Gateway) fromCache(ctx context.Context, key string) (*Generation, bool) {
	data, ok := g.cache.Get(ctx, key)
	if !ok {
		if g.metrics != nil {
			g.metrics.CacheGetMiss()
		}
		return nil, false
	}

	var cg cachedGeneration
	if err := json.Unmarshal(data, &cg); err != nil || cg.Text == "" {
		g.log.WarnContext(ctx, "cache_entry_invalid", slog.String("key", key))
		if g.metrics != nil {
			g.metrics.CacheGetMiss()
		}
		return nil, false
	}

	if g.metrics != nil {
		g.metrics.CacheGetHit()
	}
	return &Generation{
		Text:     cg.Text,
		Provider: g.provider.Name(),
		Model:    cg.Model,
		Cached:   true,
	}, true
}

// store is best-effort: a failed write never fails the call.
func (g *Gateway) store(ctx context.Context, key string, gen *Generation) {
	data, err := json.Marshal(cachedGeneration{Text: gen.Text, Model: gen.Model})
	if err == nil {
		err = g.cache.Set(ctx, key, data, g.cacheTTL)
	}
	if err != nil {
		g.log.WarnContext(ctx, "cache_set_error",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		if g.metrics != nil {
			g.metrics.CacheSetError()
		}
		return
	}
	if g.metrics != nil {
		g.metrics.CacheSetOK()
	}
}

func (g *Gateway) observe(op providers.Operation, outcome string, gen *Generation) {
	if g.metrics == nil {
		return
	}
	g.metrics.ObserveGeneration(gen.Provider, string(op), outcome, gen.Cached, gen.Duration)
}
