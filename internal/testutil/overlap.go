package testutil

import "sync"

// OverlapTracker measures how many actions run at once, per key.
//
// Actions call Enter when they start and Exit when they end; tests then check
// MaxConcurrent to prove serialization or parallelism.
//
// Thread-safety: all methods are safe for concurrent use.
type OverlapTracker struct {
	mu      sync.Mutex
	current map[string]int
	max     map[string]int
	total   int
	maxAll  int
}

// NewOverlapTracker creates an empty tracker.
func NewOverlapTracker() *OverlapTracker {
	return &OverlapTracker{
		current: make(map[string]int),
		max:     make(map[string]int),
	}
}

// Enter records the start of an execution under key.
func (t *OverlapTracker) Enter(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[key]++
	if t.current[key] > t.max[key] {
		t.max[key] = t.current[key]
	}
	t.total++
	if t.total > t.maxAll {
		t.maxAll = t.total
	}
}

// Exit records the end of an execution under key.
func (t *OverlapTracker) Exit(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[key]--
	t.total--
}

// MaxConcurrent returns the highest number of simultaneous executions seen for key.
func (t *OverlapTracker) MaxConcurrent(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max[key]
}

// MaxConcurrentAll returns the highest number of simultaneous executions across all keys.
func (t *OverlapTracker) MaxConcurrentAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxAll
}
