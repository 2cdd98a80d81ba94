package commit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/connect/internal/ir"
)

// Interceptor wraps an Executor and logs every mutating request in a WAL
// before delegating to it.
//
// With a nil Log the interceptor is a pass-through.
type Interceptor struct {
	next Executor
	log  Log
	ids  ir.IDGenerator
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithIDGenerator sets the generator used for durable record ids.
//
// Default: ir.UUIDv7Generator.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(i *Interceptor) {
		i.ids = g
	}
}

// NewInterceptor creates an interceptor in front of next. log may be nil.
func NewInterceptor(next Executor, log Log, opts ...Option) *Interceptor {
	i := &Interceptor{
		next: next,
		log:  log,
		ids:  ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Logging reports whether a WAL is attached.
func (i *Interceptor) Logging() bool {
	return i.log != nil
}

// Commit executes req for context c.
//
// Save and batch-update requests from a logged context are written to the WAL
// first. A store failure after logging returns a CommitFailure that wraps the
// store's error unchanged and names the retained transaction.
func (i *Interceptor) Commit(ctx context.Context, req Request, c *Context) (Result, error) {
	if !req.Kind.Mutating() {
		return i.next.Execute(ctx, req, ir.ChangeSet{})
	}

	changes, err := i.prepare(req, c)
	if err != nil {
		return Result{}, err
	}
	if changes.Empty() {
		return Result{}, nil
	}

	if i.log == nil || (c != nil && !c.Logged()) {
		res, err := i.next.Execute(ctx, req, changes)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", req.Kind, err)
		}
		return res, nil
	}

	txID, err := i.log.LogTransaction(ctx, changes)
	if err != nil {
		return Result{}, fmt.Errorf("log transaction: %w", err)
	}

	slog.Debug("transaction logged",
		"transaction_id", txID,
		"request", req.Kind.String(),
		"changes", changes.Len(),
	)

	res, err := i.next.Execute(ctx, req, changes)
	if err != nil {
		slog.Error("commit failed, transaction retained",
			"transaction_id", txID,
			"request", req.Kind.String(),
			"error", err,
		)
		return Result{}, ir.NewCommitError(txID, err)
	}

	// The commit is durable at this point; purge even if the caller's context
	// has been cancelled meanwhile.
	if err := i.log.RemoveTransaction(context.WithoutCancel(ctx), txID); err != nil {
		slog.Warn("committed transaction could not be purged",
			"transaction_id", txID,
			"error", err,
		)
	}

	return res, nil
}

// prepare assigns durable ids and builds the change set for a mutating request.
func (i *Interceptor) prepare(req Request, c *Context) (ir.ChangeSet, error) {
	switch req.Kind {
	case RequestSave:
		if c == nil {
			return ir.ChangeSet{}, fmt.Errorf("save request without a context")
		}
		c.assignPermanentIDs(i.ids)
		return c.Changes(), nil
	case RequestBatchUpdate:
		if req.Batch == nil {
			return ir.ChangeSet{}, fmt.Errorf("batch update request without a batch")
		}
		return ir.ChangeSet{Batch: req.Batch}, nil
	default:
		return ir.ChangeSet{}, fmt.Errorf("unsupported request %s", req.Kind)
	}
}
