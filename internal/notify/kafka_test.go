package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/connect/internal/engine"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaListener_PublishesEvents(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, 16)

	hub := NewHub[testSource]()
	src := &testSource{name: "app"}
	hub.SetSource(src)
	hub.Subscribe(KafkaListener[testSource](sink))

	p := run(t, hub, func(context.Context) error { return nil })
	require.NoError(t, sink.Close())

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	require.Len(t, w.messages, 2)

	var first Message
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &first))
	assert.Equal(t, ActionDidStartExecuting, first.Event)
	assert.Equal(t, p.ID(), first.ActionID)
	assert.Equal(t, engine.GenericLaneLabel, first.Lane)
	assert.Equal(t, "generic", first.Kind)
	assert.Equal(t, "app", first.Source)
	assert.Equal(t, []byte(p.ID()), w.messages[0].Key)
}

func TestKafkaSink_WriteErrorsAreNotFatal(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	sink := newKafkaSink(w, 4)

	assert.True(t, sink.Enqueue(Message{Event: ActionDidFinishExecuting, ActionID: "a1"}))
	assert.NoError(t, sink.Close())
	assert.NoError(t, sink.Close(), "close is idempotent")
}

func TestKafkaSink_EnqueueAfterCloseDrops(t *testing.T) {
	sink := newKafkaSink(&fakeWriter{}, 4)
	require.NoError(t, sink.Close())

	assert.False(t, sink.Enqueue(Message{Event: ActionDidStartExecuting, ActionID: "late"}))
}
