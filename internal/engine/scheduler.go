package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/connect/internal/commit"
	"github.com/roach88/connect/internal/ir"
)

// GenericLaneLabel names the shared concurrent lane.
const GenericLaneLabel = "lane.generic"

// Scheduler routes actions to lanes: one concurrent lane for generic actions
// and one serial lane per managed resource, attached by the registry.
//
// The coordinator calls the scheduler only from its coordination point; the
// internal mutex keeps direct use (tests, tools) safe as well.
type Scheduler struct {
	mu        sync.Mutex
	generic   *Lane
	lanes     map[string]*Lane // resource name -> serial lane
	suspended bool

	clock    *Clock
	ids      ir.IDGenerator
	observer Observer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrency bounds the generic lane. Default: unbounded.
func WithMaxConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.generic.limit = n
		}
	}
}

// WithObserver sets the observer told about every proxy state change.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithIDGenerator sets the generator for action ids. Default: UUIDv7.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(s *Scheduler) {
		s.ids = g
	}
}

// NewScheduler creates a scheduler. Like every lane, it starts suspended.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		generic:   NewLane(GenericLaneLabel, Concurrent, true),
		lanes:     make(map[string]*Lane),
		suspended: true,
		clock:     NewClock(),
		ids:       ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitGeneric queues a generic action on the concurrent lane.
// completion, if non-nil, runs on the worker goroutine once the action is terminal.
func (s *Scheduler) SubmitGeneric(action GenericAction, completion func(*Proxy)) *Proxy {
	s.mu.Lock()
	lane := s.generic
	p := newProxy(s.ids.Generate(), s.clock.Next(), KindGeneric, "", lane.Label(),
		action.Execute, s.observer, completion)
	s.mu.Unlock()

	s.notifyQueued(p)
	lane.submit(p)
	return p
}

// SubmitEntity queues an entity action on its resource's serial lane.
// newContext is called when the action starts, so every execution gets a
// fresh context. Fails with UnmanagedResource, before anything is queued,
// if the resource has no lane.
func (s *Scheduler) SubmitEntity(action EntityAction, newContext func() *commit.Context, completion func(*Proxy)) (*Proxy, error) {
	resource := action.Resource()

	s.mu.Lock()
	lane, ok := s.lanes[resource]
	if !ok {
		s.mu.Unlock()
		return nil, ir.NewUnmanagedResourceError(resource)
	}
	run := func(ctx context.Context) error {
		return action.Execute(ctx, newContext())
	}
	p := newProxy(s.ids.Generate(), s.clock.Next(), KindEntity, resource, lane.Label(),
		run, s.observer, completion)
	s.mu.Unlock()

	s.notifyQueued(p)
	lane.submit(p)
	return p, nil
}

func (s *Scheduler) notifyQueued(p *Proxy) {
	slog.Debug("action queued",
		"action_id", p.ID(),
		"kind", p.Kind().String(),
		"lane", p.Lane(),
		"seq", p.Seq(),
	)
	if s.observer != nil {
		s.observer.ActionStateChanged(p, StateQueued)
	}
}

// AttachLanes installs per-resource lanes. Each lane takes the scheduler's
// current suspension state. Attaching a resource that already has a lane
// keeps the existing one.
func (s *Scheduler) AttachLanes(lanes map[string]*Lane) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for resource, lane := range lanes {
		if _, exists := s.lanes[resource]; exists {
			continue
		}
		lane.SetSuspended(s.suspended)
		s.lanes[resource] = lane
	}
}

// DetachLanes removes every per-resource lane and returns them.
// The caller owns closing them.
func (s *Scheduler) DetachLanes() map[string]*Lane {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.lanes
	s.lanes = make(map[string]*Lane)
	return out
}

// Lane returns the lane of a resource.
func (s *Scheduler) Lane(resource string) (*Lane, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lanes[resource]
	return l, ok
}

// GenericLane returns the shared concurrent lane.
func (s *Scheduler) GenericLane() *Lane {
	return s.generic
}

// Suspended reports the scheduler-wide suspension flag.
func (s *Scheduler) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// SetSuspended applies the suspension flag to every lane.
func (s *Scheduler) SetSuspended(suspended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.suspended = suspended
	s.generic.SetSuspended(suspended)
	for _, l := range s.lanes {
		l.SetSuspended(suspended)
	}
}

// Wait blocks until every lane is quiescent.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	lanes := make([]*Lane, 0, len(s.lanes)+1)
	lanes = append(lanes, s.generic)
	for _, l := range s.lanes {
		lanes = append(lanes, l)
	}
	s.mu.Unlock()

	for _, l := range lanes {
		if err := l.Wait(ctx); err != nil {
			return fmt.Errorf("wait for %s: %w", l.Label(), err)
		}
	}
	return nil
}

// Close suspends every lane and discards the generic lane and any attached
// resource lanes. Queued actions are cancelled, running ones finish, and
// later submissions are cancelled on arrival.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.suspended = true
	lanes := make([]*Lane, 0, len(s.lanes)+1)
	lanes = append(lanes, s.generic)
	for _, l := range s.lanes {
		lanes = append(lanes, l)
	}
	s.mu.Unlock()

	for _, l := range lanes {
		l.SetSuspended(true)
		l.Close()
	}
}
