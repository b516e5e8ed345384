package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/nulpointcorp/blog-ai-gateway/internal/metrics"
)

const writeTimeout = 5 * time.Second

// Recorder writes entries to a Store and never surfaces store errors.
type Recorder struct {
	store   Store
	log     *slog.Logger
	metrics *metrics.Registry
}

func NewRecorder(store Store, log *slog.Logger, m *metrics.Registry) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log, metrics: m}
}

// Record persists e and returns its id. On any failure it logs and returns
// ("", false).
func (r *Recorder) Record(ctx context.Context, e Entry) (id string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "history_record_panic", slog.Any("panic", rec))
			r.count("error")
			id, ok = "", false
		}
	}()

	if r.store == nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	id, err := r.store.Insert(ctx, e)
	if err != nil {
		r.log.WarnContext(ctx, "history_record_failed",
			slog.String("type", string(e.Type)),
			slog.String("provider", e.Provider),
			slog.String("error", err.Error()),
		)
		r.count("error")
		return "", false
	}

	r.count("ok")
	return id, true
}

func (r *Recorder) count(result string) {
	if r.metrics != nil {
		r.metrics.RecordHistory(result)
	}
}
