// Package notify broadcasts action lifecycle events.
//
// Only two transitions are broadcast: an action starting to execute and an
// action finishing successfully. Failures and cancellations are visible on
// the proxy alone.
//
// The hub refers to the coordinator that reports the events through a weak
// pointer set after the coordinator is fully built; until then, and after
// the coordinator is collected, events carry a nil source.
package notify

import (
	"sync"
	"weak"

	"github.com/roach88/connect/internal/engine"
)

// EventKind names a broadcast transition.
type EventKind string

const (
	ActionDidStartExecuting  EventKind = "action.started"
	ActionDidFinishExecuting EventKind = "action.finished"
)

// Event is one broadcast transition.
type Event[S any] struct {
	Kind   EventKind
	Proxy  *engine.Proxy
	Source *S
}

// Listener receives events on the goroutine that ran the action.
type Listener[S any] func(Event[S])

type subscription[S any] struct {
	id uint64
	fn Listener[S]
}

// Hub fans proxy state changes out to listeners. It implements engine.Observer.
//
// Thread-safety: all methods are safe for concurrent use.
type Hub[S any] struct {
	mu        sync.RWMutex
	source    weak.Pointer[S]
	listeners []subscription[S]
	nextID    uint64
}

// NewHub creates a hub without a source. The hub must exist before the
// coordinator assigns itself as source.
func NewHub[S any]() *Hub[S] {
	return &Hub[S]{}
}

// SetSource records s as the reported source without keeping it alive.
func (h *Hub[S]) SetSource(s *S) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = weak.Make(s)
}

// Source returns the source, or nil if unset or already collected.
func (h *Hub[S]) Source() *S {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.source.Value()
}

// Subscribe registers l and returns a function that removes it.
func (h *Hub[S]) Subscribe(l Listener[S]) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.listeners = append(h.listeners, subscription[S]{id: id, fn: l})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.listeners {
			if sub.id == id {
				h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
				return
			}
		}
	}
}

// ActionStateChanged broadcasts executing and finished transitions.
func (h *Hub[S]) ActionStateChanged(p *engine.Proxy, state engine.State) {
	var kind EventKind
	switch state {
	case engine.StateExecuting:
		kind = ActionDidStartExecuting
	case engine.StateFinished:
		kind = ActionDidFinishExecuting
	default:
		return
	}

	h.mu.RLock()
	listeners := make([]Listener[S], len(h.listeners))
	for i, sub := range h.listeners {
		listeners[i] = sub.fn
	}
	source := h.source.Value()
	h.mu.RUnlock()

	ev := Event[S]{Kind: kind, Proxy: p, Source: source}
	for _, l := range listeners {
		l(ev)
	}
}
