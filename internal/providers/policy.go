package providers

import (
	"errors"
	"math"
	"time"
)

// Default timeout and retry constants.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = time.Second
)

// LengthStep scales the timeout for content longer than a threshold.
type LengthStep struct {
	MaxChars int // exclusive upper bound; 0 means unbounded
	Factor   float64
}

// TimeoutPolicy maps (provider, operation, content length) to a deadline.
type TimeoutPolicy struct {
	// Default applies to providers without an explicit entry.
	Default time.Duration
	// Providers holds per-vendor base timeouts for slower vendors.
	Providers map[string]time.Duration
	// Operations scales the base per assist operation. Missing entries use 1.
	Operations map[Operation]float64
	// Steps is ordered by MaxChars ascending; the last step should be unbounded.
	Steps []LengthStep
}

// DefaultTimeoutPolicy returns the stock lookup table.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Default: DefaultTimeout,
		Providers: map[string]time.Duration{
			Wenxin:   45 * time.Second,
			DeepSeek: 60 * time.Second,
		},
		Operations: map[Operation]float64{
			OpCompletion: 1.5,
		},
		Steps: []LengthStep{
			{MaxChars: 2000, Factor: 1},
			{MaxChars: 8000, Factor: 1.5},
			{MaxChars: 0, Factor: 2},
		},
	}
}

// Rebase returns a copy whose Default is d and whose per-vendor entries keep
// their ratio to the old Default, so a slower vendor stays proportionally
// slower under a configured base timeout.
func (p TimeoutPolicy) Rebase(d time.Duration) TimeoutPolicy {
	old := p.Default
	if old <= 0 {
		old = DefaultTimeout
	}
	out := p
	out.Default = d
	out.Providers = make(map[string]time.Duration, len(p.Providers))
	for name, v := range p.Providers {
		out.Providers[name] = time.Duration(math.Round(float64(v) / float64(old) * float64(d)))
	}
	return out
}

// For returns the timeout for one attempt.
func (p TimeoutPolicy) For(provider string, op Operation, contentLen int) time.Duration {
	base := p.Default
	if base <= 0 {
		base = DefaultTimeout
	}
	if d, ok := p.Providers[provider]; ok && d > 0 {
		base = d
	}

	factor := 1.0
	if f, ok := p.Operations[op]; ok && f > 0 {
		factor = f
	}
	for _, s := range p.Steps {
		if s.MaxChars == 0 || contentLen < s.MaxChars {
			if s.Factor > 0 {
				factor *= s.Factor
			}
			break
		}
	}
	return time.Duration(float64(base) * factor)
}

// RetryPolicy bounds automatic retries of transient transport failures.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	// Codes is the retry allow-list of transport error codes.
	Codes map[string]struct{}
}

// DefaultRetryPolicy returns the stock retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(DefaultMaxRetries, DefaultRetryDelay)
}

// NewRetryPolicy builds a policy with the standard allow-list.
func NewRetryPolicy(maxRetries int, delay time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay < 0 {
		delay = 0
	}
	return RetryPolicy{
		MaxRetries: maxRetries,
		Delay:      delay,
		Codes: map[string]struct{}{
			CodeAborted:      {},
			CodeTimedOut:     {},
			CodeHostNotFound: {},
			CodeReset:        {},
		},
	}
}

// Retryable reports whether err may be retried. Auth, rate-limit, malformed
// and generic provider errors never self-resolve and are not retried.
func (p RetryPolicy) Retryable(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Kind != KindTimeout && pe.Kind != KindTransport {
		return false
	}
	_, ok := p.Codes[pe.Code]
	return ok
}
