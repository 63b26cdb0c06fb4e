package engine

import "sync"

// Hooks holds callbacks run after a mutation commits. Copies of an Engine share one Hooks.
type Hooks struct {
	mu     sync.RWMutex
	commit []func()
}

// OnCommit registers fn to run after every committed mutation.
func (h *Hooks) OnCommit(fn func()) {
	if h == nil || fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commit = append(h.commit, fn)
}

func (h *Hooks) committed() {
	if h == nil {
		return
	}
	h.mu.RLock()
	fns := append([]func(){}, h.commit...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
