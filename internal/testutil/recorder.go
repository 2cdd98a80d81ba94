package testutil

import (
	"sync"
	"time"
)

// Recorder is an append-only, thread-safe event log for ordering assertions.
type Recorder struct {
	mu     sync.Mutex
	events []string
	notify chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Record appends an event.
func (r *Recorder) Record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// WaitFor blocks until at least n events were recorded or timeout elapses.
// Returns the events seen.
func (r *Recorder) WaitFor(n int, timeout time.Duration) []string {
	deadline := time.After(timeout)
	for {
		if events := r.Events(); len(events) >= n {
			return events
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Events()
		}
	}
}

// Gate blocks actions until the test opens it.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases every current and future waiter. Safe to call more than once.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// C is closed once the gate opens.
func (g *Gate) C() <-chan struct{} {
	return g.ch
}
