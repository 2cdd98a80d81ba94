package wal

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/store"
)

const keyPrefix = "txn/"

var errBadRecord = errors.New("wal: undecodable journal record")

// PebbleJournal stores transactions in a pebble database, one key per
// transaction: txn/<id>.
type PebbleJournal struct {
	db *pebble.DB

	mu  sync.Mutex
	seq int64
}

// OpenPebbleJournal opens or creates a pebble journal in dir.
// Failures are StoreLoadFailure errors. Only a path that is not a
// directory, or entries this journal cannot decode, also match
// store.ErrIncompatible; a held lock or an I/O error never does.
func OpenPebbleJournal(name, dir string) (*PebbleJournal, error) {
	if fi, err := os.Stat(dir); err == nil && !fi.IsDir() {
		return nil, ir.NewStoreLoadError(name, fmt.Errorf("%w: %s is not a directory", store.ErrIncompatible, dir))
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, ir.NewStoreLoadError(name, err)
	}

	j := &PebbleJournal{db: db}
	recs, err := j.List(context.Background())
	if err != nil {
		db.Close()
		if errors.Is(err, errBadRecord) {
			err = fmt.Errorf("%w: %v", store.ErrIncompatible, err)
		}
		return nil, ir.NewStoreLoadError(name, err)
	}
	for _, rec := range recs {
		if rec.Seq > j.seq {
			j.seq = rec.Seq
		}
	}
	return j, nil
}

// Close closes the database.
func (j *PebbleJournal) Close() error {
	return j.db.Close()
}

// Append stores rec with the next sequence number.
func (j *PebbleJournal) Append(ctx context.Context, rec ir.TransactionRecord) (ir.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return ir.TransactionRecord{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	key := keyFor(rec.ID)
	if _, closer, err := j.db.Get(key); err == nil {
		closer.Close()
		return ir.TransactionRecord{}, fmt.Errorf("append transaction %s: already logged", rec.ID)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return ir.TransactionRecord{}, fmt.Errorf("append transaction %s: %w", rec.ID, err)
	}

	rec.Seq = j.seq + 1
	if err := j.db.Set(key, encodeRecord(rec), pebble.Sync); err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("append transaction %s: %w", rec.ID, err)
	}
	j.seq = rec.Seq
	return rec, nil
}

// Remove deletes a transaction.
func (j *PebbleJournal) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	key := keyFor(id)
	_, closer, err := j.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("remove transaction %s: %w", id, ErrTransactionNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove transaction %s: %w", id, err)
	}
	closer.Close()

	return j.db.Delete(key, pebble.Sync)
}

// Get returns one transaction.
func (j *PebbleJournal) Get(ctx context.Context, id string) (ir.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return ir.TransactionRecord{}, err
	}

	val, closer, err := j.db.Get(keyFor(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return ir.TransactionRecord{}, fmt.Errorf("get transaction %s: %w", id, ErrTransactionNotFound)
	}
	if err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	defer closer.Close()

	return decodeRecord(id, val)
}

// List returns every transaction ordered by sequence number.
func (j *PebbleJournal) List(ctx context.Context) ([]ir.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("txn0"), // '0' follows '/'
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer iter.Close()

	var out []ir.TransactionRecord
	for iter.First(); iter.Valid(); iter.Next() {
		id := string(bytes.TrimPrefix(iter.Key(), []byte(keyPrefix)))
		rec, err := decodeRecord(id, iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

func keyFor(id string) []byte {
	return []byte(keyPrefix + id)
}

// binary encoding: [seq:8][digestLen:2][digest][payload]
func encodeRecord(rec ir.TransactionRecord) []byte {
	buf := make([]byte, 8+2+len(rec.Digest)+len(rec.Payload))
	binary.BigEndian.PutUint64(buf[0:8], uint64(rec.Seq))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(rec.Digest)))
	n := copy(buf[10:], rec.Digest)
	copy(buf[10+n:], rec.Payload)
	return buf
}

func decodeRecord(id string, b []byte) (ir.TransactionRecord, error) {
	if len(b) < 10 {
		return ir.TransactionRecord{}, fmt.Errorf("transaction %s: %w: length %d", id, errBadRecord, len(b))
	}
	digestLen := int(binary.BigEndian.Uint16(b[8:10]))
	if len(b) < 10+digestLen {
		return ir.TransactionRecord{}, fmt.Errorf("transaction %s: %w: truncated digest", id, errBadRecord)
	}
	// Values returned by pebble are only valid until the closer or iterator
	// moves on; copy the payload out.
	payload := make([]byte, len(b)-10-digestLen)
	copy(payload, b[10+digestLen:])
	return ir.TransactionRecord{
		ID:      id,
		Seq:     int64(binary.BigEndian.Uint64(b[0:8])),
		Digest:  string(b[10 : 10+digestLen]),
		Payload: payload,
	}, nil
}
