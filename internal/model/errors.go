package model

import "errors"

// Core error taxonomy. Facade-level errors (ErrUnregisteredBackend,
// ErrNameConflict) are returned synchronously and never reach a job.
// Backend-reported errors are not classified here; they pass through as a
// job's result unmodified.
var (
	// ErrUnregisteredBackend is returned when a request's backend tag
	// matches no configured pool. No job is created.
	ErrUnregisteredBackend = errors.New("backend tag is not registered")

	// ErrNameConflict is returned when a caller-supplied job name is
	// already registered.
	ErrNameConflict = errors.New("job name already registered")

	// ErrTimedOut is returned by Await when its deadline elapses. The job
	// is unaffected and remains awaitable.
	ErrTimedOut = errors.New("await timed out")

	// ErrJobGone is returned on any interaction with a job that has been
	// shut down or never existed.
	ErrJobGone = errors.New("job no longer exists")

	// ErrAlreadyFinished is returned by a second Finish call on a
	// completed job. The stored result is not altered.
	ErrAlreadyFinished = errors.New("job already finished")
)
