package device

import (
	"log"
	"sort"
	"sync"
)

// Status describes one collaborator for the operator and the monitor.
type Status struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Disabled string `json:"disabled_reason,omitempty"`
	Calls    int    `json:"calls"`
}

// Registry tracks which collaborators are live. A collaborator that fails
// once is disabled for the rest of the session. Safe for concurrent use;
// the monitor reads it from HTTP handlers.
type Registry struct {
	mu     sync.RWMutex
	status map[string]*Status
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{status: make(map[string]*Status)}
}

// Register adds a collaborator, enabled or not.
func (r *Registry) Register(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[name] = &Status{Name: name, Enabled: enabled}
}

// Enabled reports whether name is registered and still live.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[name]
	return ok && s.Enabled
}

// Check records a call result. A failure disables the collaborator and
// returns false; the warning is logged once.
func (r *Registry) Check(name string, res Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.status[name]
	if !ok || !s.Enabled {
		return false
	}
	s.Calls++
	if res.OK {
		return true
	}
	s.Enabled = false
	s.Disabled = res.Reason
	log.Printf("[device] %s disabled for the rest of the session: %s", name, res.Reason)
	return false
}

// Disable turns a collaborator off with a reason.
func (r *Registry) Disable(name, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.status[name]; ok && s.Enabled {
		s.Enabled = false
		s.Disabled = reason
	}
}

// Snapshot returns a copy of every status, sorted by name.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.status))
	for _, s := range r.status {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
