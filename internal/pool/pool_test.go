package pool_test

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depot/internal/pool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// highWater tracks the maximum number of concurrently running tasks.
type highWater struct {
	current atomic.Int64
	max     atomic.Int64
}

func (h *highWater) enter() {
	cur := h.current.Add(1)
	for {
		m := h.max.Load()
		if cur <= m || h.max.CompareAndSwap(m, cur) {
			return
		}
	}
}

func (h *highWater) leave() { h.current.Add(-1) }

func TestConcurrencyNeverExceedsCeiling(t *testing.T) {
	const ceiling = 3
	const tasks = ceiling + 7

	p := pool.New("test", ceiling, testLogger())
	defer p.Close()

	var hw highWater
	var wg sync.WaitGroup
	wg.Add(tasks)
	for range tasks {
		p.Submit(func() {
			defer wg.Done()
			hw.enter()
			defer hw.leave()
			time.Sleep(20 * time.Millisecond)
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not complete")
	}

	assert.LessOrEqual(t, hw.max.Load(), int64(ceiling))
	assert.Equal(t, int64(0), hw.current.Load())
}

func TestSaturatedPoolResumesAtLowWater(t *testing.T) {
	const ceiling = 4 // low-water mark is 2

	p := pool.New("test", ceiling, testLogger())
	defer p.Close()

	started := make(chan struct{}, ceiling+2)
	release := make(chan struct{})
	for range ceiling + 2 {
		p.Submit(func() {
			started <- struct{}{}
			<-release
		})
	}

	// The pool saturates at the ceiling; the remaining work stays queued.
	for range ceiling {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("pool did not fill to its ceiling")
		}
	}

	// One completion leaves in-flight above the low-water mark, so the
	// queued work must not be admitted yet.
	release <- struct{}{}
	select {
	case <-started:
		t.Fatal("admission resumed above the low-water mark")
	case <-time.After(100 * time.Millisecond):
	}

	// A second completion reaches the low-water mark; admission resumes
	// and refills from the queue up to the ceiling.
	release <- struct{}{}
	for range 2 {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("admission did not resume at the low-water mark")
		}
	}

	close(release)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := pool.New("test", 2, testLogger())
	p.Close()
	p.Close()
}

func TestAllQueuedWorkEventuallyRuns(t *testing.T) {
	p := pool.New("test", 2, testLogger())
	defer p.Close()

	const tasks = 50
	var ran atomic.Int64
	var wg sync.WaitGroup
	wg.Add(tasks)
	for range tasks {
		p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queued work did not drain")
	}
	assert.Equal(t, int64(tasks), ran.Load())
}

func TestPanicDoesNotCorruptAccounting(t *testing.T) {
	p := pool.New("test", 2, testLogger())
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(3)
	p.Submit(func() { defer wg.Done(); panic("worker crash") })
	p.Submit(func() { defer wg.Done() })
	p.Submit(func() { defer wg.Done() })

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool stalled after worker panic")
	}

	// The slot freed by the panicking worker must be reusable.
	extra := make(chan struct{})
	p.Submit(func() { close(extra) })
	select {
	case <-extra:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not admit work after panic")
	}
}

func TestStatsReflectConfiguration(t *testing.T) {
	p := pool.New("stats", 5, testLogger())
	defer p.Close()

	require.Equal(t, "stats", p.Tag())
	assert.Equal(t, 5, p.Ceiling())
	assert.Equal(t, 5, p.Stats().Ceiling)
}

func TestDefaultCeiling(t *testing.T) {
	p := pool.New("dflt", 0, testLogger())
	defer p.Close()
	assert.Equal(t, pool.DefaultCeiling, p.Ceiling())
}
