package engine

import "sync"

// proxyQueue is a thread-safe FIFO of submitted actions.
//
// The queue is unbounded so submitters never block; a lane's dispatch
// decisions bound how much of it runs at once.
type proxyQueue struct {
	mu      sync.Mutex
	proxies []*Proxy
	closed  bool
}

// newProxyQueue creates an empty queue.
func newProxyQueue() *proxyQueue {
	return &proxyQueue{
		proxies: make([]*Proxy, 0, 16),
	}
}

// Enqueue adds p to the back of the queue.
// Returns false if the queue is closed.
func (q *proxyQueue) Enqueue(p *Proxy) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.proxies = append(q.proxies, p)
	return true
}

// TryDequeue removes and returns the front proxy without blocking.
func (q *proxyQueue) TryDequeue() (*Proxy, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.proxies) == 0 {
		return nil, false
	}

	p := q.proxies[0]

	// Nil out the slot so the backing array does not pin finished proxies.
	q.proxies[0] = nil
	if len(q.proxies) == 1 {
		q.proxies = q.proxies[:0]
	} else {
		q.proxies = q.proxies[1:]
	}
	return p, true
}

// Len returns the number of queued proxies.
func (q *proxyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.proxies)
}

// Close rejects further enqueues and returns whatever was still queued,
// in submission order.
func (q *proxyQueue) Close() []*Proxy {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	rest := q.proxies
	q.proxies = nil
	return rest
}
