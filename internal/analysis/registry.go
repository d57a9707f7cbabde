package analysis

import (
	"sync"
	"time"
)

// Registry maps session IDs to isolated sessions.
type Registry struct {
	analyzer *Analyzer

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry whose sessions share analyzer.
func NewRegistry(analyzer *Analyzer) *Registry {
	return &Registry{analyzer: analyzer, sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it if needed.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = NewSession(id, r.analyzer)
		r.sessions[id] = s
		r.analyzer.Metrics.Sessions(len(r.sessions))
	}
	return s
}

// Lookup returns the session for id without creating one.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than maxIdle, except running ones, and
// returns how many were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.busy() || s.idleSince().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	r.analyzer.Metrics.Sessions(len(r.sessions))
	return removed
}
