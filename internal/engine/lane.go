package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/connect/internal/ir"
)

// Mode is a lane's concurrency mode.
type Mode int

const (
	// Concurrent lanes run queued actions in parallel, best-effort in order.
	Concurrent Mode = iota + 1
	// Serial lanes run one action at a time, strictly in submission order.
	Serial
)

func (m Mode) String() string {
	switch m {
	case Concurrent:
		return "concurrent"
	case Serial:
		return "serial"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Lane is a named action queue with a concurrency mode and a suspended flag.
//
// Dispatch happens on worker goroutines the lane starts itself; Submit never
// blocks. Suspending a lane stops new dispatch but leaves running actions alone.
//
// Thread-safety: all methods are safe for concurrent use.
type Lane struct {
	label string
	mode  Mode
	limit int // max running actions, 0 = unbounded

	queue *proxyQueue

	mu        sync.Mutex
	suspended bool
	running   int
	waiters   []chan struct{}
}

// NewLane creates a lane. Serial lanes run at most one action at a time.
func NewLane(label string, mode Mode, suspended bool) *Lane {
	l := &Lane{
		label:     label,
		mode:      mode,
		queue:     newProxyQueue(),
		suspended: suspended,
	}
	if mode == Serial {
		l.limit = 1
	}
	return l
}

// Label returns the lane's name.
func (l *Lane) Label() string { return l.label }

// Mode returns the lane's concurrency mode.
func (l *Lane) Mode() Mode { return l.mode }

// Suspended reports whether dispatch is paused.
func (l *Lane) Suspended() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suspended
}

// SetSuspended pauses or resumes dispatch. Resuming releases queued actions.
func (l *Lane) SetSuspended(suspended bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.suspended == suspended {
		return
	}
	l.suspended = suspended
	slog.Debug("lane suspension changed", "lane", l.label, "suspended", suspended)
	l.dispatchLocked()
	l.notifyLocked()
}

// Pending returns the number of queued, not yet dispatched actions.
func (l *Lane) Pending() int {
	return l.queue.Len()
}

// Running returns the number of actions currently dispatched.
func (l *Lane) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// submit queues p and dispatches if allowed. Returns false when the lane has
// been closed; the proxy is then cancelled.
func (l *Lane) submit(p *Proxy) bool {
	if !l.queue.Enqueue(p) {
		p.transition(StateCancelled, ir.NewCancelledError(fmt.Errorf("lane %s is closed", l.label)))
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatchLocked()
	return true
}

// dispatchLocked starts queued actions while the lane has capacity.
// Caller must hold l.mu.
func (l *Lane) dispatchLocked() {
	for !l.suspended && (l.limit == 0 || l.running < l.limit) {
		p, ok := l.queue.TryDequeue()
		if !ok {
			return
		}
		l.running++
		go l.run(p)
	}
}

func (l *Lane) run(p *Proxy) {
	p.execute()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.running--
	l.dispatchLocked()
	l.notifyLocked()
}

// quiescentLocked reports whether nothing is running and nothing more will
// be dispatched until the lane is resumed.
func (l *Lane) quiescentLocked() bool {
	return l.running == 0 && (l.suspended || l.queue.Len() == 0)
}

func (l *Lane) notifyLocked() {
	if !l.quiescentLocked() {
		return
	}
	for _, w := range l.waiters {
		close(w)
	}
	l.waiters = nil
}

// Wait blocks until the lane is quiescent: no action running, and either
// nothing queued or the lane suspended.
func (l *Lane) Wait(ctx context.Context) error {
	l.mu.Lock()
	if l.quiescentLocked() {
		l.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w:
		return nil
	}
}

// Close discards the lane. Queued actions are cancelled; running ones finish.
func (l *Lane) Close() {
	rest := l.queue.Close()
	for _, p := range rest {
		p.transition(StateCancelled, ir.NewCancelledError(fmt.Errorf("lane %s discarded", l.label)))
	}
	if len(rest) > 0 {
		slog.Info("lane discarded with queued actions", "lane", l.label, "cancelled", len(rest))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifyLocked()
}
