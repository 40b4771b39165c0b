// Package pool implements the per-backend bounded worker pool. Each
// configured backend tag gets its own pool, so a stalled backend can only
// ever occupy its own workers.
package pool

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultCeiling is the per-backend concurrency ceiling when the
// configuration does not specify one.
const DefaultCeiling = 4

// submitBuffer sizes the handoff channel between Submit and the
// coordinator. The coordinator drains it continuously; the buffer only
// absorbs bursts.
const submitBuffer = 64

// Pool admits units of work for one backend tag up to a concurrency
// ceiling. Admission uses hysteresis: once the pool saturates, nothing new
// is admitted until in-flight work drops to the low-water mark (ceiling/2),
// which stops a slow backend from thrashing between full and almost-full.
//
// All admission state is owned by the coordinator goroutine; Submit and
// Close only pass messages.
type Pool struct {
	tag      string
	ceiling  int
	lowWater int
	logger   *slog.Logger

	submissions chan func()
	completions chan struct{}
	quit        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once

	inFlight atomic.Int64
	queued   atomic.Int64
}

// New creates a pool for tag and starts its coordinator. A ceiling below 1
// falls back to DefaultCeiling.
func New(tag string, ceiling int, logger *slog.Logger) *Pool {
	if ceiling < 1 {
		ceiling = DefaultCeiling
	}
	low := ceiling / 2
	p := &Pool{
		tag:         tag,
		ceiling:     ceiling,
		lowWater:    low,
		logger:      logger,
		submissions: make(chan func(), submitBuffer),
		completions: make(chan struct{}, ceiling),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Tag returns the backend tag this pool serves.
func (p *Pool) Tag() string { return p.tag }

// Ceiling returns the configured concurrency ceiling.
func (p *Pool) Ceiling() int { return p.ceiling }

// Submit queues one unit of work. It never waits for pool capacity; a
// saturated pool holds the work in its queue until admission resumes.
// Work submitted after Close is dropped.
func (p *Pool) Submit(task func()) {
	select {
	case p.submissions <- task:
	case <-p.quit:
	}
}

// Close stops the coordinator. Workers already executing run to completion;
// queued work that was never admitted is discarded. Safe to call more than
// once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.quit) })
	<-p.stopped
}

// Stats reports the pool's current admission state.
type Stats struct {
	InFlight int `json:"in_flight"`
	Queued   int `json:"queued"`
	Ceiling  int `json:"ceiling"`
}

// Stats returns a snapshot of in-flight and queued work.
func (p *Pool) Stats() Stats {
	return Stats{
		InFlight: int(p.inFlight.Load()),
		Queued:   int(p.queued.Load()),
		Ceiling:  p.ceiling,
	}
}

// run is the coordinator. It owns the queue, the in-flight count and the
// admission flag; nothing else touches them.
func (p *Pool) run() {
	defer close(p.stopped)

	var queue []func()
	inFlight := 0
	admitting := true

	for {
		for admitting && inFlight < p.ceiling && len(queue) > 0 {
			task := queue[0]
			queue = queue[1:]
			inFlight++
			if inFlight == p.ceiling {
				admitting = false
			}
			go p.exec(task)
		}
		p.inFlight.Store(int64(inFlight))
		p.queued.Store(int64(len(queue)))
		poolInFlight.WithLabelValues(p.tag).Set(float64(inFlight))
		poolQueued.WithLabelValues(p.tag).Set(float64(len(queue)))

		select {
		case task := <-p.submissions:
			queue = append(queue, task)
		case <-p.completions:
			inFlight--
			if !admitting && inFlight <= p.lowWater {
				admitting = true
			}
		case <-p.quit:
			p.inFlight.Store(0)
			p.queued.Store(0)
			return
		}
	}
}

// exec runs one admitted task in its own goroutine. A panicking task
// terminates only itself: the panic is logged, accounting stays correct,
// and the task is not restarted.
func (p *Pool) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			poolPanics.WithLabelValues(p.tag).Inc()
			p.logger.Error("worker panic", "backend", p.tag, "panic", r)
		}
		p.completions <- struct{}{}
	}()
	poolTasks.WithLabelValues(p.tag).Inc()
	task()
}
