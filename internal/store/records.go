package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/connect/internal/commit"
	"github.com/roach88/connect/internal/ir"
)

// Records is a SQLite record store. It implements commit.Executor.
//
// Thread-safety: safe for concurrent use; writes are serialized by the
// single SQLite connection.
type Records struct {
	db        *sql.DB
	name      string
	resources []string
	keys      commit.KeyResolver
}

// OpenRecords opens the record store described by cfg. keys resolves the
// uniqueness key of a resource, used to recompute keys on update; it may be nil.
//
// Failures are StoreLoadFailure errors.
func OpenRecords(cfg Config, keys commit.KeyResolver) (*Records, error) {
	db, err := open(cfg, recordsSQL, recordsSchemaVersion)
	if err != nil {
		return nil, ir.NewStoreLoadError(cfg.Name, err)
	}
	if keys == nil {
		keys = func(string) []string { return nil }
	}
	return &Records{
		db:        db,
		name:      cfg.Name,
		resources: append([]string(nil), cfg.Resources...),
		keys:      keys,
	}, nil
}

// Name returns the configured store name.
func (r *Records) Name() string { return r.name }

// Resources returns the resource types routed to this store.
func (r *Records) Resources() []string { return r.resources }

// Close closes the database connection.
func (r *Records) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Execute runs a commit request against the store.
func (r *Records) Execute(ctx context.Context, req commit.Request, changes ir.ChangeSet) (commit.Result, error) {
	switch req.Kind {
	case commit.RequestFetch:
		records, err := r.Fetch(ctx, req.Resource, req.Filter)
		if err != nil {
			return commit.Result{}, err
		}
		return commit.Result{Records: records}, nil
	case commit.RequestSave, commit.RequestBatchUpdate:
		return r.apply(ctx, changes)
	default:
		return commit.Result{}, fmt.Errorf("store %s: unsupported request %s", r.name, req.Kind)
	}
}
