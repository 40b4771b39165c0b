package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/depotfs/depot/internal/model"
)

// Info pairs a backend tag with its kind for API responses.
type Info struct {
	Tag  string `json:"tag"`
	Kind string `json:"kind"`
}

// Registry maps backend tags to their capability implementations. It is
// populated once at startup from the configured backend set and read-only
// afterwards, but stays lock-guarded so tests can register fakes freely.
type Registry struct {
	mu       sync.RWMutex
	kinds    map[string]string
	backends map[string]Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:    make(map[string]string),
		backends: make(map[string]Capability),
	}
}

// Register adds a capability under tag, recording its kind for listings.
func (r *Registry) Register(tag, kind string, c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[tag] = kind
	r.backends[tag] = c
}

// Resolve returns the capability registered under tag.
func (r *Registry) Resolve(tag string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.backends[tag]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", tag, model.ErrUnregisteredBackend)
	}
	return c, nil
}

// Tags returns all registered backend tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.backends))
	for tag := range r.backends {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// List returns information about all registered backends, sorted by tag
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.backends))
	for tag := range r.backends {
		infos = append(infos, Info{Tag: tag, Kind: r.kinds[tag]})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Tag < infos[j].Tag })
	return infos
}
