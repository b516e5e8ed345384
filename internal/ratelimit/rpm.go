// Package ratelimit caps how many generations a single CMS user may request
// per minute, using a Redis sliding window driven by an atomic Lua script.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nulpointcorp/blog-ai-gateway/internal/metrics"
)

// slidingWindowScript keeps one sorted-set member per accepted request.
// KEYS[1] = per-user key
// ARGV[1] = now (unix ns), ARGV[2] = window (ns), ARGV[3] = limit
// Returns 1 when allowed, 0 when limited.
var slidingWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local now    = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit  = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

		if redis.call('ZCARD', key) >= limit then
			return 0
		end

		local member = tostring(now) .. tostring(math.random(1, 1000000))
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, math.ceil(window / 1000000))
		return 1
`)

const (
	keyPrefix     = "ai:rpm:"
	anonymousUser = "anonymous"
)

// UserLimiter enforces a per-user requests-per-minute limit.
type UserLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
	m      *metrics.Registry
}

type Option func(*UserLimiter)

// WithMetrics counts allowed, limited and degraded decisions.
func WithMetrics(m *metrics.Registry) Option {
	return func(l *UserLimiter) { l.m = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *UserLimiter) { l.now = now }
}

// NewUserLimiter returns a limiter allowing limit generations per minute per
// user. limit must be > 0.
func NewUserLimiter(rdb *redis.Client, limit int, opts ...Option) *UserLimiter {
	l := &UserLimiter{rdb: rdb, limit: limit, window: time.Minute, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow reports whether userID may issue another generation. Requests
// without a user share the anonymous bucket. Redis failures allow the
// request.
func (l *UserLimiter) Allow(ctx context.Context, userID string) bool {
	if userID == "" {
		userID = anonymousUser
	}

	res, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{keyPrefix + userID},
		l.now().UnixNano(), l.window.Nanoseconds(), l.limit,
	).Int()
	if err != nil {
		slog.WarnContext(ctx, "ratelimit_degraded",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		l.record("degraded")
		return true
	}
	if res != 1 {
		l.record("limited")
		return false
	}
	l.record("allowed")
	return true
}

func (l *UserLimiter) record(result string) {
	if l.m != nil {
		l.m.RecordRateLimit(result)
	}
}
