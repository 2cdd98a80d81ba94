package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/connect/internal/commit"
	"github.com/roach88/connect/internal/ir"
)

// Apply writes a change set in one SQL transaction and returns the number of
// records written. Either every change lands or none does.
//
// Inserts whose uniqueness key already exists merge into the existing row.
// Updating a record that does not exist fails with ErrNotFound; deleting one
// is a no-op.
func (r *Records) Apply(ctx context.Context, cs ir.ChangeSet) (int, error) {
	res, err := r.apply(ctx, cs)
	return res.Affected, err
}

// apply is Apply reporting, in Result.Merged, every insert that landed on an
// existing row instead of its own id.
func (r *Records) apply(ctx context.Context, cs ir.ChangeSet) (commit.Result, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return commit.Result{}, fmt.Errorf("apply: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM records`).Scan(&seq); err != nil {
		return commit.Result{}, fmt.Errorf("apply: next seq: %w", err)
	}

	var merged map[string]string
	n := 0
	for _, rec := range cs.Inserted {
		id, err := insertRecord(ctx, tx, rec, seq)
		if err != nil {
			return commit.Result{}, err
		}
		if id != rec.ID {
			if merged == nil {
				merged = make(map[string]string)
			}
			merged[rec.ID] = id
		}
		n++
	}
	for _, rec := range cs.Updated {
		if err := r.updateRecord(ctx, tx, rec.Resource, rec.ID, rec.Attributes, seq); err != nil {
			return commit.Result{}, err
		}
		n++
	}
	for _, rec := range cs.Deleted {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND resource = ?`, rec.ID, rec.Resource)
		if err != nil {
			return commit.Result{}, fmt.Errorf("delete %s %s: %w", rec.Resource, rec.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			n++
		}
	}
	if cs.Batch != nil {
		m, err := r.batchUpdate(ctx, tx, *cs.Batch, seq)
		if err != nil {
			return commit.Result{}, err
		}
		n += m
	}

	if err := tx.Commit(); err != nil {
		return commit.Result{}, fmt.Errorf("apply: commit: %w", err)
	}
	return commit.Result{Affected: n, Merged: merged}, nil
}

// insertRecord writes rec and returns the id of the row it landed on, which
// differs from rec.ID when the uniqueness key already existed.
func insertRecord(ctx context.Context, tx *sql.Tx, rec ir.Record, seq int64) (string, error) {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = ir.Object{}
	}
	attrsJSON, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("insert %s %s: %w", rec.Resource, rec.ID, err)
	}

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO records (id, resource, key, attributes, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(resource, key) DO UPDATE SET
			attributes = json_patch(records.attributes, excluded.attributes),
			seq = excluded.seq
		RETURNING id
	`, rec.ID, rec.Resource, nullableKey(rec.Key), string(attrsJSON), seq).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert %s %s: %w", rec.Resource, rec.ID, err)
	}
	return id, nil
}

// updateRecord merges attrs into the stored attributes and recomputes the key.
func (r *Records) updateRecord(ctx context.Context, tx *sql.Tx, resource, id string, attrs ir.Object, seq int64) error {
	var stored string
	err := tx.QueryRowContext(ctx,
		`SELECT attributes FROM records WHERE id = ? AND resource = ?`, id, resource,
	).Scan(&stored)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update %s %s: %w", resource, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %s %s: %w", resource, id, err)
	}

	current, err := decodeAttributes(stored)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", resource, id, err)
	}
	merged := current.Merge(attrs)

	mergedJSON, err := ir.MarshalCanonical(merged)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", resource, id, err)
	}

	key := ir.KeyOf(r.keys(resource), merged)
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET attributes = ?, key = ?, seq = ? WHERE id = ?`,
		string(mergedJSON), nullableKey(key), seq, id,
	); err != nil {
		return fmt.Errorf("update %s %s: %w", resource, id, err)
	}
	return nil
}

func (r *Records) batchUpdate(ctx context.Context, tx *sql.Tx, b ir.BatchUpdate, seq int64) (int, error) {
	matches, err := fetchTx(ctx, tx, b.Resource, b.Filter)
	if err != nil {
		return 0, fmt.Errorf("batch update %s: %w", b.Resource, err)
	}
	for _, rec := range matches {
		if err := r.updateRecord(ctx, tx, b.Resource, rec.ID, b.Values, seq); err != nil {
			return 0, fmt.Errorf("batch update: %w", err)
		}
	}
	return len(matches), nil
}

func nullableKey(key string) sql.NullString {
	return sql.NullString{String: key, Valid: key != ""}
}
