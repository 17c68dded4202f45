package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/student-map/internal/markers"
)

// Registry hands out controllers keyed by session id.
type Registry struct {
	markers     *markers.Store
	radiusMiles float64

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewRegistry creates a registry whose sessions start at radiusMiles.
func NewRegistry(store *markers.Store, radiusMiles float64) *Registry {
	return &Registry{
		markers:     store,
		radiusMiles: radiusMiles,
		sessions:    make(map[string]*Controller),
	}
}

// Get returns the controller for id.
func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	return c, ok
}

// Acquire returns the controller for id, creating a session with a fresh id
// when id is empty or unknown. The second result is true for new sessions.
func (r *Registry) Acquire(id string) (*Controller, bool) {
	if id != "" {
		if c, ok := r.Get(id); ok {
			return c, false
		}
	}

	c := NewController(uuid.New().String(), r.markers, r.radiusMiles)
	r.mu.Lock()
	r.sessions[c.ID()] = c
	r.mu.Unlock()
	return c, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Prune drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, c := range r.sessions {
		if c.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
