package frames

import (
	"sync"
	"weak"
)

// Registry maps session ids to frame bindings without keeping them alive.
// The router that created a binding owns it; once the router is gone the
// entry reads as absent.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]weak.Pointer[Binding]
	observe  func(int)
}

// NewRegistry creates an empty affinity registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]weak.Pointer[Binding])}
}

// OnChange registers fn to receive the live binding count after changes
func (r *Registry) OnChange(fn func(int)) {
	r.mu.Lock()
	r.observe = fn
	r.mu.Unlock()
}

// Register binds sessionID to b, replacing any previous binding
func (r *Registry) Register(sessionID string, b *Binding) {
	if sessionID == "" || b == nil {
		return
	}
	r.mu.Lock()
	r.sessions[sessionID] = weak.Make(b)
	n := r.pruneLocked()
	fn := r.observe
	r.mu.Unlock()
	notify(fn, n)
}

// Lookup returns the binding for sessionID. A reclaimed binding is
// reported as absent.
func (r *Registry) Lookup(sessionID string) (*Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wp, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	b := wp.Value()
	if b == nil {
		delete(r.sessions, sessionID)
		return nil, false
	}
	return b, true
}

// Forget removes sessionID
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	n := r.pruneLocked()
	fn := r.observe
	r.mu.Unlock()
	notify(fn, n)
}

// ForgetBinding removes every session bound to b and returns their ids
func (r *Registry) ForgetBinding(b *Binding) []string {
	if b == nil {
		return nil
	}
	target := weak.Make(b)

	r.mu.Lock()
	var removed []string
	for sid, wp := range r.sessions {
		if wp == target {
			delete(r.sessions, sid)
			removed = append(removed, sid)
		}
	}
	n := r.pruneLocked()
	fn := r.observe
	r.mu.Unlock()

	notify(fn, n)
	return removed
}

// Sessions returns the session ids bound to b
func (r *Registry) Sessions(b *Binding) []string {
	if b == nil {
		return nil
	}
	target := weak.Make(b)

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for sid, wp := range r.sessions {
		if wp == target {
			out = append(out, sid)
		}
	}
	return out
}

// Len returns the number of live bindings, dropping reclaimed ones
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked()
}

func (r *Registry) pruneLocked() int {
	for sid, wp := range r.sessions {
		if wp.Value() == nil {
			delete(r.sessions, sid)
		}
	}
	return len(r.sessions)
}

func notify(fn func(int), n int) {
	if fn != nil {
		fn(n)
	}
}
