package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/blog-ai-gateway/internal/gateway"
	"github.com/nulpointcorp/blog-ai-gateway/internal/history"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
	"github.com/nulpointcorp/blog-ai-gateway/pkg/apierr"
)

// maxContentChars bounds a single assist request.
const maxContentChars = 100_000

type assistRequest struct {
	Content  string `json:"content"`
	Template string `json:"template"`
	Prompt   string `json:"prompt"`
	UserID   string `json:"user_id"`
}

type assistResponse struct {
	*gateway.Generation
	DurationMs int64  `json:"duration_ms"`
	RequestID  string `json:"request_id"`
}

var historyTypes = map[providers.Operation]history.Type{
	providers.OpSummary:           history.TypeSummary,
	providers.OpWritingSuggestion: history.TypeWritingSuggestion,
	providers.OpSEO:               history.TypeSEO,
	providers.OpCompletion:        history.TypeCompletion,
}

func (s *Server) assist(op providers.Operation) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		reqID, _ := ctx.UserValue("request_id").(string)

		if !s.features.Enabled(op) {
			apierr.WriteGatewayError(ctx, providers.Configuration(s.aiConfig.Provider,
				fmt.Sprintf("AI %s is disabled", strings.ReplaceAll(string(op), "_", " "))))
			return
		}

		var req assistRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			apierr.WriteBadRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
			return
		}
		if msg := validateAssist(op, &req); msg != "" {
			apierr.WriteBadRequest(ctx, msg)
			return
		}

		if s.limiter != nil && !s.limiter.Allow(ctx, req.UserID) {
			s.log.WarnContext(ctx, "rate_limit_exceeded",
				slog.String("request_id", reqID),
				slog.String("user_id", req.UserID),
				slog.String("operation", string(op)),
			)
			apierr.WriteRateLimit(ctx)
			return
		}

		gen, err := s.generate(ctx, op, &req)
		if err != nil {
			apierr.WriteGatewayError(ctx, err)
			return
		}

		s.record(op, &req, gen)

		writeJSON(ctx, assistResponse{
			Generation: gen,
			DurationMs: gen.Duration.Milliseconds(),
			RequestID:  reqID,
		})
	}
}

// validateAssist returns a client-facing message for an unusable request.
func validateAssist(op providers.Operation, req *assistRequest) string {
	if op == providers.OpCompletion {
		if req.Prompt == "" {
			req.Prompt = req.Content
		}
		if strings.TrimSpace(req.Prompt) == "" {
			return "field 'prompt' is required"
		}
		if utf8.RuneCountInString(req.Prompt) > maxContentChars {
			return fmt.Sprintf("field 'prompt' exceeds %d characters", maxContentChars)
		}
		return ""
	}

	if strings.TrimSpace(req.Content) == "" {
		return "field 'content' is required"
	}
	if utf8.RuneCountInString(req.Content) > maxContentChars {
		return fmt.Sprintf("field 'content' exceeds %d characters", maxContentChars)
	}
	return ""
}

func (s *Server) generate(ctx *fasthttp.RequestCtx, op providers.Operation, req *assistRequest) (*gateway.Generation, error) {
	switch op {
	case providers.OpSummary:
		return s.gen.GenerateSummary(ctx, req.Content, req.Template)
	case providers.OpWritingSuggestion:
		prompt := req.Prompt
		if prompt == "" {
			prompt = req.Template
		}
		return s.gen.GenerateWritingSuggestion(ctx, req.Content, prompt)
	case providers.OpSEO:
		return s.gen.GenerateSEO(ctx, req.Content, req.Template)
	default:
		return s.gen.GenerateCompletion(ctx, req.Prompt)
	}
}

// record hands the generation to the history dispatcher without waiting.
func (s *Server) record(op providers.Operation, req *assistRequest, gen *gateway.Generation) {
	if s.history == nil {
		return
	}
	s.history.Enqueue(history.Entry{
		UserID:     req.UserID,
		Type:       historyTypes[op],
		Prompt:     gen.Prompt,
		Result:     gen.Text,
		TokensUsed: gen.TokensUsed,
		Model:      gen.Model,
		Provider:   gen.Provider,
		CreatedAt:  time.Now().UTC(),
	})
}
