// Package job implements the correlation object tracking one in-flight
// request: its immutable payload, its at-most-once result, the waiters
// subscribed to that result, and the workers executing it.
package job

import (
	"sync"
	"time"

	"github.com/depotfs/depot/internal/model"
	"github.com/depotfs/depot/internal/registry"
)

// Forever disables the Await deadline.
const Forever = time.Duration(-1)

// Registry is the process-wide table of live jobs, keyed by name.
type Registry = registry.Table[*Job]

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return registry.New[*Job]()
}

// Outcome is the uniform result a worker reports. Value holds whatever the
// backend capability returned; Err a backend-reported failure. Abandoned is
// set on the notification delivered when a job is shut down before
// finishing, so waiters can tell abandonment apart from completion.
type Outcome struct {
	Value     any
	Err       error
	Abandoned bool
}

// Job correlates one request with its eventual result. All mutation is
// serialized under mu; independent jobs share nothing, so operations on
// different jobs proceed fully in parallel.
//
// Lifecycle: created and registered by the facade, finished exactly once by
// a worker, destroyed explicitly via Shutdown (or AwaitAndShutdown). A job
// is never removed from the registry implicitly.
type Job struct {
	name    string
	payload model.Request
	reg     *Registry

	mu       sync.Mutex
	alive    bool
	finished bool
	outcome  Outcome
	subs     map[int]chan<- Outcome
	nextSub  int
	workers  map[string]*WorkerHandle
}

// New creates a job for payload and registers it under name, or under a
// freshly generated ULID when name is empty. It fails with
// model.ErrNameConflict if the name is already registered.
func New(reg *Registry, payload model.Request, name string) (*Job, error) {
	if name == "" {
		name = model.NewID()
	}
	j := &Job{
		name:    name,
		payload: payload,
		reg:     reg,
		alive:   true,
		subs:    make(map[int]chan<- Outcome),
		workers: make(map[string]*WorkerHandle),
	}
	if err := reg.Register(name, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Name returns the job's registry name.
func (j *Job) Name() string { return j.name }

// Payload returns the request this job was created for. The payload is
// immutable, so no copy is made.
func (j *Job) Payload() model.Request { return j.payload }

// Finished reports whether a result has been recorded.
func (j *Job) Finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finished
}

// Alive reports whether the job has not been shut down.
func (j *Job) Alive() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.alive
}

// RegisterWorker records a worker handle executing this job so Shutdown can
// signal it. Registering the same handle twice is a no-op. Returns
// model.ErrJobGone if the job has been shut down.
func (j *Job) RegisterWorker(h *WorkerHandle) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.alive {
		return model.ErrJobGone
	}
	j.workers[h.id] = h
	return nil
}

// Finish records the result and notifies every current subscriber exactly
// once. A second call returns model.ErrAlreadyFinished and leaves the
// stored result untouched. Returns model.ErrJobGone after Shutdown.
func (j *Job) Finish(o Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.alive {
		return model.ErrJobGone
	}
	if j.finished {
		return model.ErrAlreadyFinished
	}
	j.finished = true
	j.outcome = o
	j.broadcast(o)
	return nil
}

// broadcast delivers o to every subscriber and clears the set. Callers must
// hold mu. Channels are buffered by Subscribe's contract, so the
// non-blocking send only drops when a subscriber violated it.
func (j *Job) broadcast(o Outcome) {
	for id, ch := range j.subs {
		select {
		case ch <- o:
		default:
		}
		delete(j.subs, id)
	}
}

// Subscribe registers ch to receive the job's outcome when it finishes.
// ch must have capacity for one value or the notification is dropped. If
// the job already finished, the outcome is delivered on ch immediately, so
// a late subscriber never loses the notification. Returns model.ErrJobGone
// after Shutdown.
func (j *Job) Subscribe(ch chan<- Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.alive {
		return model.ErrJobGone
	}
	if j.finished {
		select {
		case ch <- j.outcome:
		default:
		}
		return nil
	}
	j.subs[j.nextSub] = ch
	j.nextSub++
	return nil
}

// subscribe is the internal variant used by Await; it returns the
// subscription id so a timed-out waiter can unsubscribe.
func (j *Job) subscribe(ch chan<- Outcome) int {
	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	return id
}

func (j *Job) unsubscribe(id int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.subs, id)
}

// Peek returns the outcome if the job has finished.
func (j *Job) Peek() (Outcome, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.finished {
		return Outcome{}, false
	}
	return j.outcome, true
}

// Await blocks the calling goroutine (never the job itself) until the job
// finishes or timeout elapses. A finished job answers immediately. On
// timeout it returns model.ErrTimedOut and the job remains alive and
// awaitable. Pass Forever to disable the deadline. If the job is shut down
// while waiting, Await returns the abandonment outcome and model.ErrJobGone.
func (j *Job) Await(timeout time.Duration) (Outcome, error) {
	j.mu.Lock()
	if j.finished {
		o := j.outcome
		j.mu.Unlock()
		return o, nil
	}
	if !j.alive {
		j.mu.Unlock()
		return Outcome{Abandoned: true}, model.ErrJobGone
	}
	ch := make(chan Outcome, 1)
	id := j.subscribe(ch)
	j.mu.Unlock()

	var deadline <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case o := <-ch:
		if o.Abandoned {
			return o, model.ErrJobGone
		}
		return o, nil
	case <-deadline:
		j.unsubscribe(id)
		// A finish may have won the race with the timer; prefer it.
		select {
		case o := <-ch:
			if o.Abandoned {
				return o, model.ErrJobGone
			}
			return o, nil
		default:
		}
		return Outcome{}, model.ErrTimedOut
	}
}

// AwaitAndShutdown awaits the job, then shuts it down unconditionally,
// returning the await outcome regardless of what shutdown found.
func (j *Job) AwaitAndShutdown(timeout time.Duration) (Outcome, error) {
	o, err := j.Await(timeout)
	j.Shutdown()
	return o, err
}

// Shutdown terminates the job unconditionally: pending waiters receive an
// abandonment notification, every registered worker handle is signalled to
// stop, and the name is removed from the registry. Idempotent.
func (j *Job) Shutdown() {
	j.mu.Lock()
	if !j.alive {
		j.mu.Unlock()
		return
	}
	j.alive = false
	if !j.finished {
		j.broadcast(Outcome{Abandoned: true})
	}
	workers := make([]*WorkerHandle, 0, len(j.workers))
	for _, h := range j.workers {
		workers = append(workers, h)
	}
	clear(j.workers)
	j.mu.Unlock()

	for _, h := range workers {
		h.Stop()
	}
	j.reg.Remove(j.name)
}
