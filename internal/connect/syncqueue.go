package connect

import (
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed coordinator.
var ErrClosed = errors.New("connect: coordinator closed")

// syncQueue runs closures one at a time, in submission order, on a single
// goroutine it owns.
//
// The queue is unbounded so callers never block on enqueue; Do blocks only
// until its own closure has run. A closure must not call Do on the queue
// that runs it.
type syncQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered, size 1
	done   chan struct{}
}

// newSyncQueue creates a queue and starts its goroutine.
func newSyncQueue() *syncQueue {
	q := &syncQueue{
		tasks:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue schedules fn. Returns false if the queue is closed.
func (q *syncQueue) Enqueue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)

	// Coalesce: one pending signal is enough to wake the runner.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the queue goroutine and waits for it to return.
func (q *syncQueue) Do(fn func()) error {
	ran := make(chan struct{})
	if !q.Enqueue(func() {
		defer close(ran)
		fn()
	}) {
		return ErrClosed
	}
	<-ran
	return nil
}

func (q *syncQueue) tryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	fn := q.tasks[0]
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return fn, true
}

func (q *syncQueue) run() {
	defer close(q.done)
	for {
		if fn, ok := q.tryDequeue(); ok {
			fn()
			continue
		}
		// The signal channel is closed by Close, so a closed and drained
		// queue falls through here and exits.
		<-q.signal
		q.mu.Lock()
		exit := q.closed && len(q.tasks) == 0
		q.mu.Unlock()
		if exit {
			return
		}
	}
}

// Close rejects further closures, runs those already queued and waits for
// the goroutine to exit.
func (q *syncQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
	q.mu.Unlock()
	<-q.done
}
