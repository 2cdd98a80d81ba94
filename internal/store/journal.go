package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/connect/internal/ir"
)

// Journal is the SQLite metadata store holding logged transactions.
// It lives in its own database, independent from every record store.
type Journal struct {
	db   *sql.DB
	name string
}

// OpenJournal opens the journal described by cfg.
// Failures are StoreLoadFailure errors.
func OpenJournal(cfg Config) (*Journal, error) {
	db, err := open(cfg, journalSQL, journalSchemaVersion)
	if err != nil {
		return nil, ir.NewStoreLoadError(cfg.Name, err)
	}
	return &Journal{db: db, name: cfg.Name}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append stores rec and returns it with its assigned sequence number.
func (j *Journal) Append(ctx context.Context, rec ir.TransactionRecord) (ir.TransactionRecord, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("append transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions`).Scan(&rec.Seq); err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("append transaction: next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, seq, digest, payload)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Seq, rec.Digest, rec.Payload); err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("append transaction %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("append transaction %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Remove deletes a transaction. Returns ErrNotFound if it does not exist.
func (j *Journal) Remove(ctx context.Context, id string) error {
	res, err := j.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove transaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("remove transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns one transaction.
func (j *Journal) Get(ctx context.Context, id string) (ir.TransactionRecord, error) {
	var rec ir.TransactionRecord
	err := j.db.QueryRowContext(ctx, `
		SELECT id, seq, digest, payload
		FROM transactions
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Seq, &rec.Digest, &rec.Payload)
	if err == sql.ErrNoRows {
		return ir.TransactionRecord{}, fmt.Errorf("get transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return rec, nil
}

// List returns every transaction in log order.
func (j *Journal) List(ctx context.Context) ([]ir.TransactionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, digest, payload
		FROM transactions
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []ir.TransactionRecord
	for rows.Next() {
		var rec ir.TransactionRecord
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.Digest, &rec.Payload); err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}
