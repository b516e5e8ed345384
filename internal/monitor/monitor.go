// Package monitor tracks the lifecycle of gateway requests and derives
// health advice from the rolling response-time history.
package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultHistorySize = 100
	DefaultRecentSize  = 10
)

// Advice thresholds.
const (
	slowAverage      = 5 * time.Second
	minCacheHitRate  = 0.20
	minSuccessRate   = 0.95
	degradationRatio = 1.5
)

// Advice strings returned by Monitor.Advice.
const (
	AdviceSlowResponses = "Average response time exceeds 5s: reduce prompt/content size or check network latency to the AI service."
	AdviceLowCacheHits  = "Cache hit rate is below 20%: review cache key composition and TTL."
	AdviceLowSuccess    = "Success rate is below 95%: verify API credentials and network connectivity."
	AdviceDegradation   = "Recent response times are over 1.5x the lifetime average: check the AI vendor's service status."
)

// Config tunes the monitor. Zero values fall back to the defaults.
type Config struct {
	HistorySize int
	RecentSize  int
	Now         func() time.Time
}

func (c Config) historySize() int {
	if c.HistorySize > 0 {
		return c.HistorySize
	}
	return DefaultHistorySize
}

func (c Config) recentSize() int {
	if c.RecentSize > 0 {
		return c.RecentSize
	}
	return DefaultRecentSize
}

// Trace is created by Start and consumed once by End.
type Trace struct {
	RequestID string
	StartTime time.Time
}

// Result is what End reports for a single request.
type Result struct {
	RequestID    string        `json:"request_id"`
	ResponseTime time.Duration `json:"-"`
	ResponseMs   int64         `json:"response_time_ms"`
	Success      bool          `json:"success"`
	FromCache    bool          `json:"from_cache"`
}

// Snapshot is a point-in-time copy of the counters plus derived rates.
type Snapshot struct {
	TotalRequests         int64   `json:"total_requests"`
	SuccessfulRequests    int64   `json:"successful_requests"`
	FailedRequests        int64   `json:"failed_requests"`
	CacheHits             int64   `json:"cache_hits"`
	CacheMisses           int64   `json:"cache_misses"`
	TotalResponseTimeMs   int64   `json:"total_response_time_ms"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	RecentAverageMs       float64 `json:"recent_average_ms"`
	CacheHitRate          float64 `json:"cache_hit_rate"`
	SuccessRate           float64 `json:"success_rate"`
	History               []int64 `json:"history_ms"`
}

// Monitor is safe for concurrent use. It is constructed once by the
// composition root and shared by every gateway call.
type Monitor struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	total       int64
	success     int64
	failed      int64
	hits        int64
	misses      int64
	totalTimeMs int64

	// history is a ring of response times in ms; head is the oldest sample.
	history []int64
	head    int
}

func New(cfg Config) *Monitor {
	m := &Monitor{cfg: cfg, now: cfg.Now}
	if m.now == nil {
		m.now = time.Now
	}
	m.history = make([]int64, 0, cfg.historySize())
	return m
}

// Start opens a trace for one request.
func (m *Monitor) Start() Trace {
	return Trace{RequestID: uuid.NewString(), StartTime: m.now()}
}

// End closes trace and folds the outcome into the counters.
func (m *Monitor) End(trace Trace, success, fromCache bool) Result {
	elapsed := m.now().Sub(trace.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	ms := elapsed.Milliseconds()

	m.mu.Lock()
	m.total++
	if success {
		m.success++
	} else {
		m.failed++
	}
	if fromCache {
		m.hits++
	} else {
		m.misses++
	}
	m.totalTimeMs += ms
	m.push(ms)
	m.mu.Unlock()

	return Result{
		RequestID:    trace.RequestID,
		ResponseTime: elapsed,
		ResponseMs:   ms,
		Success:      success,
		FromCache:    fromCache,
	}
}

func (m *Monitor) push(ms int64) {
	size := m.cfg.historySize()
	if len(m.history) < size {
		m.history = append(m.history, ms)
		return
	}
	m.history[m.head] = ms
	m.head = (m.head + 1) % size
}

// ordered returns history oldest first. Caller holds mu.
func (m *Monitor) ordered() []int64 {
	out := make([]int64, 0, len(m.history))
	out = append(out, m.history[m.head:]...)
	out = append(out, m.history[:m.head]...)
	return out
}

func (m *Monitor) Metrics() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalRequests:       m.total,
		SuccessfulRequests:  m.success,
		FailedRequests:      m.failed,
		CacheHits:           m.hits,
		CacheMisses:         m.misses,
		TotalResponseTimeMs: m.totalTimeMs,
		History:             m.ordered(),
	}
	if m.total > 0 {
		s.AverageResponseTimeMs = float64(m.totalTimeMs) / float64(m.total)
		s.CacheHitRate = float64(m.hits) / float64(m.total)
		s.SuccessRate = float64(m.success) / float64(m.total)
	}

	recent := s.History
	if n := m.cfg.recentSize(); len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	if len(recent) > 0 {
		var sum int64
		for _, v := range recent {
			sum += v
		}
		s.RecentAverageMs = float64(sum) / float64(len(recent))
	}
	return s
}

// Advice applies fixed heuristics to the current snapshot. It returns nil
// until at least one request has completed.
func (m *Monitor) Advice() []string {
	s := m.Metrics()
	if s.TotalRequests == 0 {
		return nil
	}

	var advice []string
	if s.AverageResponseTimeMs > float64(slowAverage.Milliseconds()) {
		advice = append(advice, AdviceSlowResponses)
	}
	if s.CacheHitRate < minCacheHitRate {
		advice = append(advice, AdviceLowCacheHits)
	}
	if s.SuccessRate < minSuccessRate {
		advice = append(advice, AdviceLowSuccess)
	}
	if s.AverageResponseTimeMs > 0 && s.RecentAverageMs > degradationRatio*s.AverageResponseTimeMs {
		advice = append(advice, AdviceDegradation)
	}
	return advice
}

// Reset zeroes every counter and clears the history.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.total, m.success, m.failed = 0, 0, 0
	m.hits, m.misses = 0, 0
	m.totalTimeMs = 0
	m.history = m.history[:0]
	m.head = 0
	m.mu.Unlock()
}
