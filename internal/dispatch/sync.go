package dispatch

import (
	"fmt"
	"time"

	"github.com/depotfs/depot/internal/job"
	"github.com/depotfs/depot/internal/model"
)

// call submits a request and blocks on it with wait-and-destroy semantics:
// the job is shut down once the await returns, whether it produced a
// result, timed out or was abandoned.
func (f *Facade) call(op string, cfg model.BackendConfig, args model.Args, opts model.Options) (any, error) {
	j, err := f.Submit(op, cfg, args, opts)
	if err != nil {
		return nil, err
	}
	o, err := j.AwaitAndShutdown(f.timeoutFor(opts))
	if err != nil {
		return nil, err
	}
	return o.Value, o.Err
}

// Store writes src to the backend identified by cfg and blocks for the
// result.
func (f *Facade) Store(cfg model.BackendConfig, src model.Source, opts model.Options) (*model.FileInfo, error) {
	v, err := f.call(model.OpStore, cfg, model.Args{Source: src}, opts)
	if err != nil {
		return nil, err
	}
	return asFileInfo(v)
}

// StoreData writes inline bytes to the backend identified by cfg.
func (f *Facade) StoreData(cfg model.BackendConfig, data []byte, opts model.Options) (*model.FileInfo, error) {
	v, err := f.call(model.OpStoreData, cfg, model.Args{Source: model.Source{Data: data}}, opts)
	if err != nil {
		return nil, err
	}
	return asFileInfo(v)
}

// StoreAsync submits a store and returns the job handle immediately.
func (f *Facade) StoreAsync(cfg model.BackendConfig, src model.Source, opts model.Options) (*job.Job, error) {
	return f.Submit(model.OpStore, cfg, model.Args{Source: src}, opts)
}

// GetInfo returns info for key on the backend identified by cfg.
func (f *Facade) GetInfo(cfg model.BackendConfig, key string, opts model.Options) (*model.FileInfo, error) {
	v, err := f.call(model.OpGetInfo, cfg, model.Args{Key: key}, opts)
	if err != nil {
		return nil, err
	}
	return asFileInfo(v)
}

// GetURL returns an access URL for key, or "" when the backend has none.
func (f *Facade) GetURL(cfg model.BackendConfig, key string, opts model.Options) (string, error) {
	v, err := f.call(model.OpGetURL, cfg, model.Args{Key: key}, opts)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected result type %T", v)
	}
	return s, nil
}

// ListFiles returns the keys stored under opts.Scope.
func (f *Facade) ListFiles(cfg model.BackendConfig, opts model.Options) ([]string, error) {
	v, err := f.call(model.OpListFiles, cfg, model.Args{}, opts)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	keys, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", v)
	}
	return keys, nil
}

// Delete removes key from the backend identified by cfg.
func (f *Facade) Delete(cfg model.BackendConfig, key string, opts model.Options) error {
	_, err := f.call(model.OpDelete, cfg, model.Args{Key: key}, opts)
	return err
}

// DeleteScope removes everything under opts.Scope.
func (f *Facade) DeleteScope(cfg model.BackendConfig, opts model.Options) error {
	_, err := f.call(model.OpDeleteScope, cfg, model.Args{}, opts)
	return err
}

// DeleteAll removes everything the backend holds.
func (f *Facade) DeleteAll(cfg model.BackendConfig, opts model.Options) error {
	_, err := f.call(model.OpDeleteAll, cfg, model.Args{}, opts)
	return err
}

// TestConnection verifies the backend identified by cfg is reachable.
func (f *Facade) TestConnection(cfg model.BackendConfig, opts model.Options) error {
	_, err := f.call(model.OpTestConnection, cfg, model.Args{}, opts)
	return err
}

// Await blocks on a previously submitted job without destroying it.
func Await(j *job.Job, timeout time.Duration) (job.Outcome, error) {
	return j.Await(timeout)
}

func asFileInfo(v any) (*model.FileInfo, error) {
	if v == nil {
		return nil, nil
	}
	info, ok := v.(*model.FileInfo)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", v)
	}
	return info, nil
}
