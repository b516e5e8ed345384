package server

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/blog-ai-gateway/internal/catalog"
	"github.com/nulpointcorp/blog-ai-gateway/internal/monitor"
	"github.com/nulpointcorp/blog-ai-gateway/pkg/apierr"
)

const probeTimeout = 2 * time.Second

type performanceResponse struct {
	Metrics monitor.Snapshot `json:"metrics"`
	Advice  []string         `json:"advice"`
}

func (s *Server) handlePerformance(ctx *fasthttp.RequestCtx) {
	if s.monitor == nil {
		writeJSON(ctx, performanceResponse{Advice: []string{}})
		return
	}
	advice := s.monitor.Advice()
	if advice == nil {
		advice = []string{}
	}
	writeJSON(ctx, performanceResponse{Metrics: s.monitor.Metrics(), Advice: advice})
}

func (s *Server) handlePerformanceReset(ctx *fasthttp.RequestCtx) {
	if s.monitor != nil {
		s.monitor.Reset()
	}
	s.log.InfoContext(ctx, "performance_metrics_reset")
	writeJSON(ctx, map[string]string{"status": "ok"})
}

type configView struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key"`
	SecretKey   string  `json:"secret_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Enabled     bool    `json:"enabled"`

	// ModelInfo is the catalog entry for the active model, when known.
	ModelInfo *catalog.Model `json:"model_info,omitempty"`

	Features struct {
		Summary           bool `json:"summary"`
		WritingSuggestion bool `json:"writing_suggestion"`
		SEO               bool `json:"seo"`
		Completion        bool `json:"completion"`
	} `json:"features"`
}

func (s *Server) handleConfig(ctx *fasthttp.RequestCtx) {
	c := s.aiConfig
	v := configView{
		Provider:    c.Provider,
		APIKey:      c.APIKey,
		SecretKey:   c.SecretKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Enabled:     c.Enabled,
	}
	if s.catalog != nil {
		if m, ok := s.catalog.Lookup(c.Provider, c.Model); ok {
			v.ModelInfo = &m
		}
	}
	v.Features.Summary = s.features.Summary
	v.Features.WritingSuggestion = s.features.WritingSuggestion
	v.Features.SEO = s.features.SEO
	v.Features.Completion = s.features.Completion
	writeJSON(ctx, v)
}

func (s *Server) handleModels(ctx *fasthttp.RequestCtx) {
	if s.catalog == nil {
		apierr.Write(ctx, fasthttp.StatusServiceUnavailable, "model catalog unavailable",
			apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	models := s.catalog.Models(string(ctx.QueryArgs().Peek("provider")))
	writeJSON(ctx, map[string]any{"models": models})
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth reports "degraded" with 200 when an optional dependency is
// down: the cache and the history store both fail open.
func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	resp := healthResponse{Status: "ok", Version: s.version}
	if len(s.probes) > 0 {
		resp.Checks = make(map[string]string, len(s.probes))
	}
	for name, probe := range s.probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probe(pctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(ctx, resp)
}
