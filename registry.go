package perspective

import (
	"sync"

	"github.com/mostrub/perspective/engine"
)

// callbackRegistry maps session identifiers to their registered handlers.
// Lookups happen on every delivery and may run concurrently; inserts and
// removes only happen at session create/close. A lookup racing a remove may
// see either outcome — a dropped delivery to a concurrently-closing session
// is accepted.
type callbackRegistry struct {
	mu       sync.RWMutex
	handlers map[engine.SessionID]SessionHandler
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{handlers: make(map[engine.SessionID]SessionHandler)}
}

func (r *callbackRegistry) insert(id engine.SessionID, h SessionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

func (r *callbackRegistry) lookup(id engine.SessionID) (SessionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// remove deletes the entry and reports whether it existed.
func (r *callbackRegistry) remove(id engine.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[id]
	delete(r.handlers, id)
	return ok
}

func (r *callbackRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
