package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON value published for each event.
type Message struct {
	Event    EventKind `json:"event"`
	ActionID string    `json:"action_id"`
	Kind     string    `json:"kind"`
	Lane     string    `json:"lane"`
	Resource string    `json:"resource,omitempty"`
	Seq      int64     `json:"seq"`
	Source   string    `json:"source,omitempty"`
}

// Named is implemented by sources that can be identified in messages.
type Named interface {
	Name() string
}

// KafkaSink publishes events to a Kafka topic in the background.
// Events are keyed by action id so one action's events stay in one partition.
//
// Publishing never blocks the action that produced the event: when the
// buffer is full the event is dropped with a warning.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan Message
	done   chan struct{}
}

// DefaultKafkaBuffer is the number of events held while the writer is busy.
const DefaultKafkaBuffer = 256

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}, DefaultKafkaBuffer)
}

func newKafkaSink(w messageWriter, buffer int) *KafkaSink {
	s := &KafkaSink{
		writer:  w,
		timeout: 5 * time.Second,
		events:  make(chan Message, buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for msg := range s.events {
		value, err := json.Marshal(msg)
		if err != nil {
			slog.Error("encode event", "action_id", msg.ActionID, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err = s.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(msg.ActionID),
			Value: value,
		})
		cancel()
		if err != nil {
			slog.Warn("publish event failed",
				"event", string(msg.Event),
				"action_id", msg.ActionID,
				"error", err,
			)
		}
	}
}

// Enqueue hands msg to the background writer. Returns false if it was
// dropped, which includes every call after Close.
func (s *KafkaSink) Enqueue(msg Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.events <- msg:
		return true
	default:
		slog.Warn("event buffer full, dropping event", "event", string(msg.Event), "action_id", msg.ActionID)
		return false
	}
}

// Close flushes buffered events and closes the writer. Closing twice is a no-op.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done
	return s.writer.Close()
}

// KafkaListener adapts sink to a hub listener.
func KafkaListener[S any](sink *KafkaSink) Listener[S] {
	return func(ev Event[S]) {
		sink.Enqueue(NewMessage(ev))
	}
}

// NewMessage builds the published form of ev.
func NewMessage[S any](ev Event[S]) Message {
	msg := Message{
		Event:    ev.Kind,
		ActionID: ev.Proxy.ID(),
		Kind:     ev.Proxy.Kind().String(),
		Lane:     ev.Proxy.Lane(),
		Resource: ev.Proxy.Resource(),
		Seq:      ev.Proxy.Seq(),
	}
	if ev.Source != nil {
		if n, ok := any(ev.Source).(Named); ok {
			msg.Source = n.Name()
		}
	}
	return msg
}
