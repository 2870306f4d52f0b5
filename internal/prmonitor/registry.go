package prmonitor

import "sync"

// Registry is the process-wide table of active sessions, keyed by monitor
// ID ("<owner>/<repo>#<number>"). Grounded on the teacher's
// internal/autopilot.Controller.activePRs map, replaced with sync.Map
// since sessions are registered and removed from arbitrary goroutines
// (the tool surface, under concurrent LLM tool calls) with no need for a
// single coarse-grained lock across the whole table (see DESIGN.md).
type Registry struct {
	sessions sync.Map // monitor ID -> *Session
}

// NewRegistry builds an empty session registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Put registers a session, replacing any existing entry for the same ID.
func (r *Registry) Put(s *Session) {
	r.sessions.Store(s.ID, s)
}

// Get returns the session for id, or nil if none is registered.
func (r *Registry) Get(id string) *Session {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil
	}
	return v.(*Session)
}

// Delete removes a session from the registry.
func (r *Registry) Delete(id string) {
	r.sessions.Delete(id)
}

// Len reports the number of active sessions, for diagnostics.
func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
