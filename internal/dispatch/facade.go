// Package dispatch is the public entry point of the storage core. The
// facade turns each request into a registered job, routes it by backend tag
// into that backend's bounded pool, and exposes synchronous convenience
// wrappers over the job handles.
package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/job"
	"github.com/depotfs/depot/internal/model"
	"github.com/depotfs/depot/internal/pool"
)

// DefaultTimeout is the request deadline when none is configured.
const DefaultTimeout = 30 * time.Second

// Facade dispatches storage requests. One pool exists per registered
// backend tag, created when the facade is built; a request whose tag has no
// pool is rejected before any job is created.
type Facade struct {
	jobs           *job.Registry
	backends       *backend.Registry
	pools          map[string]*pool.Pool
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// New builds a facade over the given job registry and backend set,
// creating one worker pool of the given ceiling per registered tag.
func New(jobs *job.Registry, backends *backend.Registry, ceiling int, defaultTimeout time.Duration, logger *slog.Logger) *Facade {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	f := &Facade{
		jobs:           jobs,
		backends:       backends,
		pools:          make(map[string]*pool.Pool),
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
	for _, tag := range backends.Tags() {
		f.pools[tag] = pool.New(tag, ceiling, logger)
	}
	return f
}

// Close stops every backend pool. In-flight workers run to completion.
func (f *Facade) Close() {
	for _, p := range f.pools {
		p.Close()
	}
}

// Submit validates the request, creates and registers a job with a
// generated name, and queues it into the pool for cfg.Tag. The handle is
// returned even when the pool is saturated and the work is merely queued.
func (f *Facade) Submit(op string, cfg model.BackendConfig, args model.Args, opts model.Options) (*job.Job, error) {
	return f.SubmitNamed("", op, cfg, args, opts)
}

// SubmitNamed is Submit with a caller-supplied job name. It fails with
// model.ErrNameConflict when the name is taken and with
// model.ErrUnregisteredBackend when cfg.Tag has no pool; in both cases no
// job is left registered.
func (f *Facade) SubmitNamed(name, op string, cfg model.BackendConfig, args model.Args, opts model.Options) (*job.Job, error) {
	p, ok := f.pools[cfg.Tag]
	if !ok {
		return nil, fmt.Errorf("submit %q: %w", cfg.Tag, model.ErrUnregisteredBackend)
	}

	req := model.Request{
		Op:      op,
		Config:  cfg,
		Args:    args,
		Options: opts.Normalize(f.defaultTimeout),
	}
	j, err := job.New(f.jobs, req, name)
	if err != nil {
		return nil, fmt.Errorf("create job %q: %w", name, err)
	}

	f.logger.Debug("job submitted", "job", j.Name(), "op", op, "backend", cfg.Tag)
	p.Submit(func() { f.runWorker(j) })
	return j, nil
}

// LookupJob returns the live job registered under name.
func (f *Facade) LookupJob(name string) (*job.Job, bool) {
	return f.jobs.Lookup(name)
}

// PoolStats returns a snapshot of every backend pool's admission state.
func (f *Facade) PoolStats() map[string]pool.Stats {
	stats := make(map[string]pool.Stats, len(f.pools))
	for tag, p := range f.pools {
		stats[tag] = p.Stats()
	}
	return stats
}

// DefaultTimeout returns the process-wide request deadline.
func (f *Facade) DefaultTimeout() time.Duration {
	return f.defaultTimeout
}

// timeoutFor picks the await deadline for a synchronous call.
func (f *Facade) timeoutFor(opts model.Options) time.Duration {
	if opts.Timeout != 0 {
		return opts.Timeout
	}
	return f.defaultTimeout
}
