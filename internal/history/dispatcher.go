package history

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nulpointcorp/blog-ai-gateway/internal/metrics"
)

const defaultBuffer = 1_000

// Dispatcher hands entries to a Recorder on a background goroutine so
// request handlers never wait on the history store. When the buffer is full
// new entries are dropped and counted.
type Dispatcher struct {
	rec     *Recorder
	metrics *metrics.Registry

	ch        chan Entry
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped atomic.Int64
	baseCtx context.Context
}

// NewDispatcher starts the writer goroutine. buffer <= 0 uses the default.
func NewDispatcher(ctx context.Context, rec *Recorder, m *metrics.Registry, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	d := &Dispatcher{
		rec:     rec,
		metrics: m,
		ch:      make(chan Entry, buffer),
		done:    make(chan struct{}),
		baseCtx: context.WithoutCancel(ctx),
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue never blocks. It reports whether the entry was accepted.
func (d *Dispatcher) Enqueue(e Entry) bool {
	select {
	case <-d.done:
		d.drop()
		return false
	default:
	}

	select {
	case d.ch <- e:
		return true
	default:
		d.drop()
		return false
	}
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.HistoryDropped()
	}
}

func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Close stops accepting entries, writes whatever is buffered and waits for
// the writer to finish.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.ch:
			d.rec.Record(d.baseCtx, e)
		case <-d.done:
			for {
				select {
				case e := <-d.ch:
					d.rec.Record(d.baseCtx, e)
				default:
					return
				}
			}
		}
	}
}
