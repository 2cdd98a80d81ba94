// Package wal is the transaction log the commit interceptor writes to before
// every store commit.
//
// A transaction stays in the log from "commit requested" until "commit
// confirmed". Entries left behind by failed commits are kept for diagnosis;
// nothing here replays them.
//
// The log sits on a Journal: either the SQLite metadata store
// (store.Journal) or a pebble database (PebbleJournal). Both live apart from
// the record stores.
package wal

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/store"
)

// ErrTransactionNotFound is returned for ids the log does not hold.
var ErrTransactionNotFound = errors.New("wal: transaction not found")

// ErrCorruptTransaction is returned when a stored payload no longer matches
// its digest.
var ErrCorruptTransaction = errors.New("wal: transaction digest mismatch")

// Journal persists transaction records.
// Implemented by *store.Journal and *PebbleJournal.
type Journal interface {
	Append(ctx context.Context, rec ir.TransactionRecord) (ir.TransactionRecord, error)
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (ir.TransactionRecord, error)
	List(ctx context.Context) ([]ir.TransactionRecord, error)
	Close() error
}

// WAL logs change sets as transactions. It implements commit.Log.
//
// Thread-safety: safe for concurrent use. Every id is allocated here, so no
// two callers ever touch the same entry.
type WAL struct {
	journal Journal
	ids     ir.IDGenerator
}

// Option configures a WAL.
type Option func(*WAL)

// WithIDGenerator sets the generator for transaction ids. Default: UUIDv7.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(w *WAL) {
		w.ids = g
	}
}

// New creates a WAL on top of journal.
func New(journal Journal, opts ...Option) *WAL {
	w := &WAL{
		journal: journal,
		ids:     ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// LogTransaction appends changes and returns the new transaction id.
func (w *WAL) LogTransaction(ctx context.Context, changes ir.ChangeSet) (string, error) {
	payload, err := ir.MarshalChangeSet(changes)
	if err != nil {
		return "", fmt.Errorf("log transaction: %w", err)
	}

	rec := ir.TransactionRecord{
		ID:      w.ids.Generate(),
		Digest:  ir.TransactionDigest(payload),
		Payload: payload,
	}
	if _, err := w.journal.Append(ctx, rec); err != nil {
		return "", fmt.Errorf("log transaction: %w", err)
	}
	return rec.ID, nil
}

// RemoveTransaction purges a committed transaction.
func (w *WAL) RemoveTransaction(ctx context.Context, id string) error {
	if err := w.journal.Remove(ctx, id); err != nil {
		return w.wrap("remove transaction", id, err)
	}
	return nil
}

// Transaction returns one logged transaction, verifying its digest.
func (w *WAL) Transaction(ctx context.Context, id string) (ir.Transaction, error) {
	rec, err := w.journal.Get(ctx, id)
	if err != nil {
		return ir.Transaction{}, w.wrap("get transaction", id, err)
	}
	return decode(rec)
}

// Pending returns every transaction still in the log, oldest first.
func (w *WAL) Pending(ctx context.Context) ([]ir.Transaction, error) {
	recs, err := w.journal.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]ir.Transaction, 0, len(recs))
	for _, rec := range recs {
		txn, err := decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, nil
}

// Close closes the underlying journal.
func (w *WAL) Close() error {
	return w.journal.Close()
}

func (w *WAL) wrap(op, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) && !errors.Is(err, ErrTransactionNotFound) {
		return fmt.Errorf("%s %s: %w", op, id, ErrTransactionNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func decode(rec ir.TransactionRecord) (ir.Transaction, error) {
	if ir.TransactionDigest(rec.Payload) != rec.Digest {
		return ir.Transaction{}, fmt.Errorf("transaction %s: %w", rec.ID, ErrCorruptTransaction)
	}
	return rec.Decode()
}
