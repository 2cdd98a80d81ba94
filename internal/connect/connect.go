// Package connect is the coordinator: it owns the stores, the WAL, the
// resource registry and the action scheduler, and moves them together
// through the stopped → starting → started → stopping lifecycle.
//
// Every state change happens on one coordination point, a goroutine that
// drains a FIFO of closures. Lifecycle requests are additionally ordered
// among themselves so that Stop can wait for in-flight actions without
// holding the coordination point; actions that submit follow-up work
// while the coordinator stops therefore never deadlock.
package connect

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/connect/internal/commit"
	"github.com/roach88/connect/internal/config"
	"github.com/roach88/connect/internal/engine"
	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/notify"
	"github.com/roach88/connect/internal/registry"
	"github.com/roach88/connect/internal/schema"
	"github.com/roach88/connect/internal/store"
	"github.com/roach88/connect/internal/wal"
)

// Lifecycle is the capability handed to a SignalSource.
type Lifecycle interface {
	Suspend()
	Resume()
}

// SignalSource delivers external suspend and resume triggers.
// Register must not call back synchronously and Unregister must not wait for
// a delivery in progress: both run on the coordination point.
type SignalSource interface {
	Register(l Lifecycle)
	Unregister(l Lifecycle)
}

// Event is a notification about one of the coordinator's actions.
type Event = notify.Event[Connect]

// Listener receives coordinator events.
type Listener = notify.Listener[Connect]

// Option configures a Connect.
type Option func(*Connect)

// WithConfiguration sets the store, WAL and notification configuration.
// Unset locations are resolved against the coordinator name at start.
func WithConfiguration(cfg config.Configuration) Option {
	return func(c *Connect) {
		c.cfg = cfg
	}
}

// WithSignalSource registers the coordinator with src while started.
func WithSignalSource(src SignalSource) Option {
	return func(c *Connect) {
		c.signals = src
	}
}

// WithIDGenerator sets the generator for action, record and transaction ids.
//
// Default: ir.UUIDv7Generator.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(c *Connect) {
		c.ids = g
	}
}

// Connect is the coordinator. It implements commit.Committer for the
// execution contexts it hands out.
//
// Thread-safety: all methods are safe for concurrent use.
type Connect struct {
	name    string
	schema  *schema.Schema
	cfg     config.Configuration
	signals SignalSource
	ids     ir.IDGenerator

	queue     *syncQueue // coordination point
	lifecycle *syncQueue // orders Start and Stop requests
	hub       *notify.Hub[Connect]
	scheduler *engine.Scheduler
	registry  *registry.Registry

	state       atomic.Int32
	interceptor atomic.Pointer[commit.Interceptor]

	// Owned by the coordination point.
	resolved config.Configuration
	router   *store.Router
	wal      *wal.WAL
	sink     *notify.KafkaSink
	unsink   func()
}

var _ commit.Committer = (*Connect)(nil)

// New creates a stopped, suspended coordinator for s.
func New(name string, s *schema.Schema, opts ...Option) *Connect {
	c := &Connect{
		name:     name,
		schema:   s,
		ids:      ir.UUIDv7Generator{},
		registry: registry.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.schema == nil {
		c.schema = &schema.Schema{}
	}

	c.hub = notify.NewHub[Connect]()
	c.scheduler = engine.NewScheduler(
		engine.WithObserver(c.hub),
		engine.WithIDGenerator(c.ids),
		engine.WithMaxConcurrency(c.cfg.MaxConcurrency),
	)
	c.queue = newSyncQueue()
	c.lifecycle = newSyncQueue()

	// Only now is the coordinator complete enough to be reported as a source.
	c.hub.SetSource(c)
	return c
}

// Name returns the coordinator name.
func (c *Connect) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Connect) State() State {
	return State(c.state.Load())
}

func (c *Connect) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	slog.Debug("coordinator state changed", "name", c.name, "from", old.String(), "to", s.String())
}

// Suspended reports whether new actions are held back.
func (c *Connect) Suspended() bool {
	return c.scheduler.Suspended()
}

// SetSuspended suspends or resumes dispatch. Suspension never preempts an
// executing action. Resuming is only possible while started.
func (c *Connect) SetSuspended(suspended bool) {
	_ = c.queue.Do(func() {
		if !suspended && c.State() != StateStarted {
			slog.Warn("resume ignored: coordinator not started", "name", c.name, "state", c.State().String())
			return
		}
		c.scheduler.SetSuspended(suspended)
		slog.Info("coordinator suspension changed", "name", c.name, "suspended", suspended)
	})
}

// Suspend holds back new actions.
func (c *Connect) Suspend() { c.SetSuspended(true) }

// Resume releases held-back actions.
func (c *Connect) Resume() { c.SetSuspended(false) }

// SubmitGeneric queues a generic action on the shared concurrent lane.
func (c *Connect) SubmitGeneric(action engine.GenericAction) (*engine.Proxy, error) {
	return c.SubmitGenericWithCompletion(action, nil)
}

// SubmitGenericWithCompletion is SubmitGeneric with a callback run on the
// worker goroutine once the action is terminal.
func (c *Connect) SubmitGenericWithCompletion(action engine.GenericAction, completion func(*engine.Proxy)) (*engine.Proxy, error) {
	var p *engine.Proxy
	if err := c.queue.Do(func() {
		p = c.scheduler.SubmitGeneric(action, completion)
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// SubmitEntity queues an entity action on its resource's serial lane.
// The action receives a fresh, logged execution context.
func (c *Connect) SubmitEntity(action engine.EntityAction) (*engine.Proxy, error) {
	return c.SubmitEntityWithCompletion(action, nil)
}

// SubmitEntityWithCompletion is SubmitEntity with a completion callback.
// Fails with UnmanagedResource when the resource has no lane.
func (c *Connect) SubmitEntityWithCompletion(action engine.EntityAction, completion func(*engine.Proxy)) (*engine.Proxy, error) {
	var (
		p   *engine.Proxy
		err error
	)
	if qerr := c.queue.Do(func() {
		p, err = c.scheduler.SubmitEntity(action, c.newActionContext, completion)
	}); qerr != nil {
		return nil, qerr
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Connect) newActionContext() *commit.Context {
	return commit.NewContext(c, c.registry.KeyFor, true)
}

// NewBackgroundContext returns an execution context for work outside any
// action. Saves from an unlogged context bypass the WAL.
func (c *Connect) NewBackgroundContext(logged bool) *commit.Context {
	return commit.NewContext(c, c.registry.KeyFor, logged)
}

// Commit implements commit.Committer. Fails with NotStarted unless started.
func (c *Connect) Commit(ctx context.Context, req commit.Request, tx *commit.Context) (commit.Result, error) {
	i := c.interceptor.Load()
	if i == nil {
		return commit.Result{}, ir.NewNotStartedError(c.name)
	}
	return i.Commit(ctx, req, tx)
}

// PendingTransactions lists the transactions retained in the WAL, oldest
// first. Without a WAL the list is empty.
func (c *Connect) PendingTransactions(ctx context.Context) ([]ir.Transaction, error) {
	var (
		txs []ir.Transaction
		err error
	)
	if qerr := c.queue.Do(func() {
		if c.State() != StateStarted {
			err = ir.NewNotStartedError(c.name)
			return
		}
		if c.wal == nil {
			return
		}
		txs, err = c.wal.Pending(ctx)
	}); qerr != nil {
		return nil, qerr
	}
	return txs, err
}

// Descriptors returns the registered resources in declaration order.
// Empty while stopped.
func (c *Connect) Descriptors() []registry.Descriptor {
	return c.registry.Descriptors()
}

// Configuration returns the configuration resolved at the last start.
func (c *Connect) Configuration() config.Configuration {
	var cfg config.Configuration
	_ = c.queue.Do(func() {
		cfg = c.resolved
	})
	return cfg
}

// Subscribe registers l for action events and returns a function that
// removes it. Listeners run on worker goroutines.
func (c *Connect) Subscribe(l Listener) (unsubscribe func()) {
	return c.hub.Subscribe(l)
}

// Close stops the coordinator and shuts down the coordination point.
// Actions still queued are cancelled. Every later operation fails with
// ErrClosed.
func (c *Connect) Close() error {
	err := c.Stop()
	c.lifecycle.Close()
	_ = c.queue.Do(c.scheduler.Close)
	c.queue.Close()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
