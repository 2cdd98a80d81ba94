package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queuedProxy(id string) *Proxy {
	return newProxy(id, 0, KindGeneric, "", "test", nil, nil, nil)
}

func TestProxyQueue_FIFO(t *testing.T) {
	q := newProxyQueue()

	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(queuedProxy(id)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		p, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, p.ID())
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestProxyQueue_CloseReturnsRemaining(t *testing.T) {
	q := newProxyQueue()
	q.Enqueue(queuedProxy("A"))
	q.Enqueue(queuedProxy("B"))

	rest := q.Close()
	require.Len(t, rest, 2)
	assert.Equal(t, "A", rest[0].ID())
	assert.Equal(t, "B", rest[1].ID())

	assert.False(t, q.Enqueue(queuedProxy("C")), "enqueue after close should fail")
	assert.Nil(t, q.Close(), "second close returns nothing")
	assert.Equal(t, 0, q.Len())
}
