package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/connect/internal/ir"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Fetch returns the records of resource whose attributes match filter,
// ordered by seq then id.
func (r *Records) Fetch(ctx context.Context, resource string, filter ir.Object) ([]ir.Record, error) {
	records, err := fetchTx(ctx, r.db, resource, filter)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", resource, err)
	}
	return records, nil
}

// Get returns one record by id.
func (r *Records) Get(ctx context.Context, id string) (ir.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, resource, key, attributes, seq
		FROM records
		WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

// Count returns the number of records of resource.
func (r *Records) Count(ctx context.Context, resource string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE resource = ?`, resource,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", resource, err)
	}
	return n, nil
}

func fetchTx(ctx context.Context, q queryer, resource string, filter ir.Object) ([]ir.Record, error) {
	query, params := compileFetch(resource, filter)
	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ir.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if rec.Attributes.Matches(filter) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (ir.Record, error) {
	var (
		rec   ir.Record
		key   sql.NullString
		attrs string
	)
	if err := s.Scan(&rec.ID, &rec.Resource, &key, &attrs, &rec.Seq); err != nil {
		return ir.Record{}, err
	}
	rec.Key = key.String

	obj, err := decodeAttributes(attrs)
	if err != nil {
		return ir.Record{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.Attributes = obj
	return rec, nil
}

func decodeAttributes(data string) (ir.Object, error) {
	v, err := ir.ParseValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("decode attributes: expected object, got %T", v)
	}
	return obj, nil
}
