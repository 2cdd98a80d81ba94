package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/connect/internal/commit"
	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/notify"
	"github.com/roach88/connect/internal/store"
	"github.com/roach88/connect/internal/wal"
)

// State is a coordinator lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateStarted
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Start registers the schema, opens every store and the WAL, and resumes
// dispatch. On failure everything opened so far is closed again and the
// coordinator stays stopped. Starting a started coordinator is a no-op.
func (c *Connect) Start() error {
	var err error
	if qerr := c.lifecycle.Do(func() { err = c.start() }); qerr != nil {
		return qerr
	}
	return err
}

// StartAsync starts the coordinator and reports the outcome to done on its
// own goroutine. Lifecycle requests are served in call order.
func (c *Connect) StartAsync(done func(error)) {
	c.async(c.start, done)
}

// Stop suspends dispatch, waits for in-flight actions, closes every store
// and the WAL and discards the resource lanes; actions still queued in them
// are cancelled. Stopping a stopped coordinator is a no-op.
func (c *Connect) Stop() error {
	var err error
	if qerr := c.lifecycle.Do(func() { err = c.stop() }); qerr != nil {
		return qerr
	}
	return err
}

// StopAsync is Stop with the outcome reported to done on its own goroutine.
func (c *Connect) StopAsync(done func(error)) {
	c.async(c.stop, done)
}

func (c *Connect) async(op func() error, done func(error)) {
	ok := c.lifecycle.Enqueue(func() {
		err := op()
		if done != nil {
			go done(err)
		}
	})
	if !ok && done != nil {
		go done(ErrClosed)
	}
}

func (c *Connect) start() error {
	var err error
	if qerr := c.queue.Do(func() { err = c.startLocked() }); qerr != nil {
		return qerr
	}
	return err
}

// startLocked runs on the coordination point.
func (c *Connect) startLocked() error {
	if c.State() == StateStarted {
		slog.Warn("start ignored: already started", "name", c.name)
		return nil
	}
	c.setState(StateStarting)
	slog.Info("coordinator starting", "name", c.name)

	c.registry.RegisterAll(c.schema)
	c.scheduler.AttachLanes(c.registry.Lanes())

	resolved := c.cfg.Resolved(c.name)

	stores := make([]*store.Records, 0, len(resolved.Stores))
	for _, sc := range resolved.Stores {
		s, err := store.OpenRecords(sc.StoreConfig(), c.registry.KeyFor)
		if err != nil {
			c.rollback(stores)
			return err
		}
		slog.Debug("store opened", "store", sc.Name, "kind", string(sc.Kind), "location", sc.Location)
		stores = append(stores, s)
	}

	router, err := store.NewRouter(stores...)
	if err != nil {
		c.rollback(stores)
		return fmt.Errorf("start %s: %w", c.name, err)
	}

	var (
		w   *wal.WAL
		log commit.Log
	)
	if resolved.WAL.IsEnabled() {
		meta := resolved.MetaStoreConfiguration()
		w, err = wal.Open(meta, wal.WithIDGenerator(c.ids))
		if err != nil {
			c.rollback(stores)
			if !ir.IsStoreLoadFailure(err) {
				err = ir.NewStoreLoadError(meta.Name, err)
			}
			return err
		}
		log = w
		slog.Debug("wal opened", "store", meta.Name, "kind", string(meta.Kind), "location", meta.Path)
	}

	c.resolved = resolved
	c.router = router
	c.wal = w
	c.interceptor.Store(commit.NewInterceptor(router, log, commit.WithIDGenerator(c.ids)))

	if k := resolved.Notify.Kafka; len(k.Brokers) > 0 {
		c.sink = notify.NewKafkaSink(k.Brokers, k.Topic)
		c.unsink = c.hub.Subscribe(notify.KafkaListener[Connect](c.sink))
	}

	if c.signals != nil {
		c.signals.Register(c)
	}

	c.scheduler.SetSuspended(false)
	c.setState(StateStarted)
	slog.Info("coordinator started",
		"name", c.name,
		"stores", len(stores),
		"wal", w != nil,
		"managed", len(c.registry.Lanes()),
	)
	return nil
}

// rollback undoes a partial start. Runs on the coordination point.
func (c *Connect) rollback(stores []*store.Records) {
	for _, s := range stores {
		if err := s.Close(); err != nil {
			slog.Warn("failed to close store during rollback", "store", s.Name(), "error", err)
		}
	}
	c.scheduler.DetachLanes()
	c.registry.UnregisterAll()
	c.setState(StateStopped)
	slog.Warn("coordinator start rolled back", "name", c.name)
}

func (c *Connect) stop() error {
	var proceed bool
	if err := c.queue.Do(func() { proceed = c.beginStopLocked() }); err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	// In-flight actions may submit follow-up work, so the coordination
	// point stays free while they finish.
	if err := c.scheduler.Wait(context.Background()); err != nil {
		return fmt.Errorf("stop %s: %w", c.name, err)
	}

	var err error
	if qerr := c.queue.Do(func() { err = c.finishStopLocked() }); qerr != nil {
		return qerr
	}
	return err
}

func (c *Connect) beginStopLocked() bool {
	if c.State() != StateStarted {
		slog.Warn("stop ignored: not started", "name", c.name, "state", c.State().String())
		return false
	}
	c.setState(StateStopping)
	slog.Info("coordinator stopping", "name", c.name)

	c.scheduler.SetSuspended(true)
	if c.signals != nil {
		c.signals.Unregister(c)
	}
	return true
}

func (c *Connect) finishStopLocked() error {
	c.interceptor.Store(nil)

	var errs []error
	if c.router != nil {
		if err := c.router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stores: %w", err))
		}
	}
	if c.wal != nil {
		if err := c.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close wal: %w", err))
		}
	}
	c.router = nil
	c.wal = nil

	if c.unsink != nil {
		c.unsink()
		c.unsink = nil
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			slog.Warn("failed to close kafka sink", "error", err)
		}
		c.sink = nil
	}

	c.scheduler.DetachLanes()
	c.registry.UnregisterAll()
	c.setState(StateStopped)
	slog.Info("coordinator stopped", "name", c.name)
	return errors.Join(errs...)
}
