package observability

import "sync"

// Readiness tracks which components have finished starting. The process
// reports ready only once every registered component has been marked up,
// so load balancers never route to a bot that is still connecting.
type Readiness struct {
	mu         sync.RWMutex
	components map[string]bool
}

// NewReadiness registers the named components, all initially not ready.
func NewReadiness(components ...string) *Readiness {
	m := make(map[string]bool, len(components))
	for _, c := range components {
		m[c] = false
	}
	return &Readiness{components: m}
}

// MarkReady flags a component as up.
func (r *Readiness) MarkReady(component string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[component] = true
}

// MarkNotReady flags a component as down again.
func (r *Readiness) MarkNotReady(component string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[component] = false
}

// Ready reports whether every registered component is up.
func (r *Readiness) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ok := range r.components {
		if !ok {
			return false
		}
	}
	return true
}

// Components returns the per-component readiness state.
func (r *Readiness) Components() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.components))
	for k, v := range r.components {
		out[k] = v
	}
	return out
}
