package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/connect/internal/ir"
)

// State is the lifecycle position of a submitted action.
type State int

const (
	StateQueued State = iota + 1
	StateExecuting
	StateFinished
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateExecuting:
		return "executing"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCancelled
}

// canTransition encodes the forward-only state graph:
//
//	queued -> executing -> {finished | failed | cancelled}
//	queued -> cancelled
func canTransition(from, to State) bool {
	switch from {
	case StateQueued:
		return to == StateExecuting || to == StateCancelled
	case StateExecuting:
		return to.Terminal()
	default:
		return false
	}
}

// Observer is told about every state transition of every proxy.
// Called on the goroutine that performed the transition, after it was recorded.
type Observer interface {
	ActionStateChanged(p *Proxy, state State)
}

// Proxy is the caller's handle to a submitted action.
//
// Thread-safety: all methods are safe for concurrent use.
type Proxy struct {
	id       string
	seq      int64
	kind     Kind
	resource string
	lane     string

	run        func(ctx context.Context) error
	observer   Observer
	completion func(*Proxy)

	mu              sync.Mutex
	state           State
	err             error
	cancelRequested bool
	cancel          context.CancelFunc
	done            chan struct{}
}

func newProxy(id string, seq int64, kind Kind, resource, lane string, run func(context.Context) error, observer Observer, completion func(*Proxy)) *Proxy {
	return &Proxy{
		id:         id,
		seq:        seq,
		kind:       kind,
		resource:   resource,
		lane:       lane,
		run:        run,
		observer:   observer,
		completion: completion,
		state:      StateQueued,
		done:       make(chan struct{}),
	}
}

// ID returns the action id.
func (p *Proxy) ID() string { return p.id }

// Seq returns the submission sequence number.
func (p *Proxy) Seq() int64 { return p.seq }

// Kind returns whether the action is generic or entity-scoped.
func (p *Proxy) Kind() Kind { return p.kind }

// Resource returns the resource of an entity action, "" for generic actions.
func (p *Proxy) Resource() string { return p.resource }

// Lane returns the label of the lane the action was queued on.
func (p *Proxy) Lane() string { return p.lane }

// State returns the current state.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the action's failure, or nil while running or after success.
func (p *Proxy) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the proxy reaches a terminal state.
func (p *Proxy) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the action is terminal and returns its error.
func (p *Proxy) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return p.Err()
	}
}

// Cancel requests cancellation. A queued action is cancelled immediately;
// an executing one sees its context cancelled and decides itself.
func (p *Proxy) Cancel() {
	p.mu.Lock()
	p.cancelRequested = true
	cancel := p.cancel
	cancelled := p.state == StateQueued &&
		p.setStateLocked(StateCancelled, ir.NewCancelledError(context.Canceled))
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cancelled {
		p.notify(StateCancelled)
	}
}

// transition moves the proxy to state to. Returns false if the move would go
// backwards or sideways.
func (p *Proxy) transition(to State, err error) bool {
	p.mu.Lock()
	ok := p.setStateLocked(to, err)
	p.mu.Unlock()

	if ok {
		p.notify(to)
	}
	return ok
}

func (p *Proxy) setStateLocked(to State, err error) bool {
	if !canTransition(p.state, to) {
		return false
	}
	p.state = to
	if to.Terminal() {
		p.err = err
		close(p.done)
	}
	return true
}

// notify reports a recorded transition. Never called with mu held.
func (p *Proxy) notify(to State) {
	if p.observer != nil {
		p.observer.ActionStateChanged(p, to)
	}
	if to.Terminal() && p.completion != nil {
		p.completion(p)
	}
}

// execute runs the action on the calling goroutine. Proxies cancelled while
// queued return without running.
func (p *Proxy) execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.mu.Lock()
	if p.state != StateQueued {
		p.mu.Unlock()
		return
	}
	if p.cancelRequested {
		ok := p.setStateLocked(StateCancelled, ir.NewCancelledError(context.Canceled))
		p.mu.Unlock()
		if ok {
			p.notify(StateCancelled)
		}
		return
	}
	p.cancel = cancel
	ok := p.setStateLocked(StateExecuting, nil)
	p.mu.Unlock()
	if !ok {
		return
	}
	p.notify(StateExecuting)

	err := p.invoke(ctx)

	p.mu.Lock()
	cancelled := p.cancelRequested
	p.mu.Unlock()

	switch {
	case err == nil:
		p.transition(StateFinished, nil)
	case cancelled || errors.Is(err, context.Canceled):
		p.transition(StateCancelled, ir.NewCancelledError(err))
	default:
		slog.Debug("action failed",
			"action_id", p.id,
			"lane", p.lane,
			"error", err,
		)
		p.transition(StateFailed, err)
	}
}

func (p *Proxy) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("action panicked",
				"action_id", p.id,
				"lane", p.lane,
				"panic", r,
			)
			err = fmt.Errorf("action %s panicked: %v", p.id, r)
		}
	}()
	return p.run(ctx)
}
