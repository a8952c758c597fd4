package mqtt

import (
	"sync"
	"sync/atomic"
)

// HandlerID identifies one registration. IDs increase monotonically, so a lower
// ID was registered earlier.
type HandlerID uint64

// handlerEntry is one (pattern, handler) registration.
type handlerEntry struct {
	id      HandlerID
	pattern string
	handler MessageHandler
}

// registry maps subscription patterns to handlers in registration order.
//
// Readers load an immutable snapshot without locking; writers copy the slice,
// modify the copy and swap it in under writeMu. Dispatch therefore never sees a
// half-applied register or unregister.
type registry struct {
	entries atomic.Pointer[[]handlerEntry]
	writeMu sync.Mutex
	nextID  atomic.Uint64
}

func newRegistry() *registry {
	r := &registry{}
	empty := []handlerEntry{}
	r.entries.Store(&empty)
	return r
}

func (r *registry) snapshot() []handlerEntry {
	return *r.entries.Load()
}

// register appends a handler and reports whether it is the first one for pattern.
func (r *registry) register(pattern string, handler MessageHandler) (HandlerID, bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot()
	first := true
	for _, e := range current {
		if e.pattern == pattern {
			first = false
			break
		}
	}

	id := HandlerID(r.nextID.Add(1))
	next := make([]handlerEntry, len(current), len(current)+1)
	copy(next, current)
	next = append(next, handlerEntry{id: id, pattern: pattern, handler: handler})
	r.entries.Store(&next)

	return id, first
}

// unregister removes the entry with id. It returns the entry's pattern and
// whether that pattern has no handlers left. Unknown ids are a no-op.
func (r *registry) unregister(id HandlerID) (pattern string, last bool, found bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot()
	idx := -1
	for i, e := range current {
		if e.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false, false
	}

	pattern = current[idx].pattern
	next := make([]handlerEntry, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	r.entries.Store(&next)

	for _, e := range next {
		if e.pattern == pattern {
			return pattern, false, true
		}
	}
	return pattern, true, true
}

// handlersFor returns the handlers whose pattern matches topic, in registration order.
func (r *registry) handlersFor(topic string) []handlerEntry {
	var matched []handlerEntry
	for _, e := range r.snapshot() {
		if Match(e.pattern, topic) {
			matched = append(matched, e)
		}
	}
	return matched
}

// patterns returns the distinct registered patterns in first-registration order.
func (r *registry) patterns() []string {
	entries := r.snapshot()
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.pattern]; ok {
			continue
		}
		seen[e.pattern] = struct{}{}
		out = append(out, e.pattern)
	}
	return out
}

// hasPattern reports whether any handler is registered for pattern.
func (r *registry) hasPattern(pattern string) bool {
	for _, e := range r.snapshot() {
		if e.pattern == pattern {
			return true
		}
	}
	return false
}

func (r *registry) len() int {
	return len(r.snapshot())
}
