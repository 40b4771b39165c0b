package job

import (
	"sync"

	"github.com/depotfs/depot/internal/model"
)

// WorkerHandle is the termination channel between a job and one worker
// executing it. The job signals Stop on shutdown; the worker watches
// Stopped to cancel its in-flight backend call's context. Stopping does not
// roll back side effects the backend already performed.
type WorkerHandle struct {
	id   string
	once sync.Once
	stop chan struct{}
}

// NewWorkerHandle creates a handle with a unique identity. Registering the
// same handle with a job more than once is idempotent.
func NewWorkerHandle() *WorkerHandle {
	return &WorkerHandle{
		id:   model.NewID(),
		stop: make(chan struct{}),
	}
}

// ID returns the handle's unique identity.
func (h *WorkerHandle) ID() string { return h.id }

// Stop signals the worker to terminate. Safe to call multiple times.
func (h *WorkerHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Stopped returns a channel closed when Stop is called.
func (h *WorkerHandle) Stopped() <-chan struct{} { return h.stop }
