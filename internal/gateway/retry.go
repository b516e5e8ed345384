package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

type attemptResult struct {
	comp *providers.Completion
	err  error
}

// completeWithRetry calls the provider until it succeeds, returns a
// non-retryable error, or the retry budget (MaxRetries+1 attempts) is spent.
// It returns the number of attempts made.
func (g *Gateway) completeWithRetry(
	ctx context.Context,
	req *providers.Request,
	timeout time.Duration,
) (*providers.Completion, int, error) {
	name := g.provider.Name()

	for attempt := 1; ; attempt++ {
		start := time.Now()
		comp, err := g.attempt(ctx, req, timeout)
		dur := time.Since(start)

		if err == nil {
			if g.metrics != nil {
				g.metrics.ObserveUpstreamAttempt(name, "ok", dur)
			}
			return comp, attempt, nil
		}

		kind := providers.KindOf(err)
		if g.metrics != nil {
			g.metrics.ObserveUpstreamAttempt(name, string(kind), dur)
		}
		g.log.WarnContext(ctx, "provider_attempt_failed",
			slog.String("request_id", req.RequestID),
			slog.String("provider", name),
			slog.Int("attempt", attempt),
			slog.String("kind", string(kind)),
			slog.Int64("latency_ms", dur.Milliseconds()),
			slog.String("error", err.Error()),
		)

		if attempt > g.retry.MaxRetries || !g.retry.Retryable(err) || ctx.Err() != nil {
			return nil, attempt, err
		}

		if g.metrics != nil {
			g.metrics.RecordRetry(name, codeOf(err))
		}
		if !sleep(ctx, g.retry.Delay) {
			return nil, attempt, err
		}
	}
}

// attempt races one provider call against timeout. The caller gets a timeout
// error once the deadline passes even if the adapter ignores cancellation;
// a late result is discarded.
func (g *Gateway) attempt(ctx context.Context, req *providers.Request, timeout time.Duration) (*providers.Completion, error) {
	name := g.provider.Name()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		comp, err := g.provider.Complete(attemptCtx, req)
		done <- attemptResult{comp: comp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, providers.ClassifyTransport(name, r.err)
		}
		if r.comp == nil {
			return nil, providers.Malformed(name, "empty completion", nil)
		}
		return r.comp, nil
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, providers.ClassifyTransport(name, err)
		}
		return nil, providers.Timeout(name, attemptCtx.Err())
	}
}

func codeOf(err error) string {
	var pe *providers.Error
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return "unknown"
}

// sleep waits d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
