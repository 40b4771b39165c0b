package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/job"
	"github.com/depotfs/depot/internal/model"
)

// runWorker is one unit of execution, run inside a pool slot. It registers
// itself with the job, executes the request against the backend capability
// and reports the outcome. A job that disappears mid-flight (shut down by
// its caller) is logged and abandoned without retries; side effects the
// backend already performed are not rolled back.
func (f *Facade) runWorker(j *job.Job) {
	h := job.NewWorkerHandle()
	if err := j.RegisterWorker(h); err != nil {
		f.logger.Debug("job gone before worker start", "job", j.Name())
		return
	}

	req := j.Payload()
	capability, err := f.backends.Resolve(req.Config.Tag)
	if err != nil {
		f.finish(j, job.Outcome{Err: err})
		return
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if req.Options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Options.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Cancel the backend call's context when the job shuts this worker
	// down. The watcher itself exits once the call returns.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-h.Stopped():
			cancel()
		case <-watcherDone:
		}
	}()

	value, opErr := invoke(ctx, capability, req)
	f.finish(j, job.Outcome{Value: value, Err: opErr})
}

// finish reports the outcome, treating a vanished job as unrecoverable but
// non-fatal.
func (f *Facade) finish(j *job.Job, o job.Outcome) {
	err := j.Finish(o)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrJobGone):
		f.logger.Debug("job gone before finish", "job", j.Name())
	case errors.Is(err, model.ErrAlreadyFinished):
		f.logger.Warn("duplicate finish ignored", "job", j.Name())
	default:
		f.logger.Error("finish job", "job", j.Name(), "error", err)
	}
}

// invoke dispatches the request's operation tag to the capability. The
// result is returned uniformly; the core never interprets it.
func invoke(ctx context.Context, c backend.Capability, req model.Request) (any, error) {
	opts := req.Options
	switch req.Op {
	case model.OpStore, model.OpStoreData:
		return c.Store(ctx, req.Args.Source, opts)
	case model.OpGetInfo:
		return c.GetInfo(ctx, req.Args.Key, opts)
	case model.OpGetURL:
		return c.GetURL(ctx, req.Args.Key, opts)
	case model.OpListFiles:
		return c.ListFiles(ctx, opts)
	case model.OpDelete:
		return nil, c.Delete(ctx, req.Args.Key, opts)
	case model.OpDeleteScope:
		return nil, c.DeleteScope(ctx, opts)
	case model.OpDeleteAll:
		return nil, c.DeleteAll(ctx, opts)
	case model.OpTestConnection:
		return nil, c.TestConnection(ctx)
	default:
		return nil, fmt.Errorf("unknown operation %q", req.Op)
	}
}
