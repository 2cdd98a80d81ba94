package wal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/store"
)

func sampleChanges() ir.ChangeSet {
	return ir.ChangeSet{
		Inserted: []ir.Record{{
			ID:         "u1",
			Resource:   "User",
			Key:        `["a@example.com"]`,
			Attributes: ir.Object{"email": ir.String("a@example.com")},
		}},
		Deleted: []ir.Record{{ID: "l1", Resource: "Log"}},
	}
}

// journals returns every backend, each freshly opened in a temp dir.
func journals(t *testing.T) map[string]Journal {
	t.Helper()
	dir := t.TempDir()
	out := make(map[string]Journal)
	for name, cfg := range map[string]Config{
		"sqlite": {Name: "test._metadata", Kind: KindSQLite, Path: filepath.Join(dir, "meta.db")},
		"memory": {Name: "test._metadata", Kind: KindMemory},
		"pebble": {Name: "test._metadata", Kind: KindPebble, Path: filepath.Join(dir, "meta.pebble")},
	} {
		j, err := OpenJournal(cfg)
		require.NoError(t, err, name)
		t.Cleanup(func() { j.Close() })
		out[name] = j
	}
	return out
}

func TestWAL_LogThenRemove(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			w := New(j, WithIDGenerator(ir.NewSequenceGenerator("txn")))

			id, err := w.LogTransaction(ctx, sampleChanges())
			require.NoError(t, err)
			assert.Equal(t, "txn-1", id)

			txn, err := w.Transaction(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(1), txn.Seq)
			require.Len(t, txn.Changes.Inserted, 1)
			assert.Equal(t, "u1", txn.Changes.Inserted[0].ID)
			assert.Equal(t, ir.String("a@example.com"), txn.Changes.Inserted[0].Attributes["email"])
			require.Len(t, txn.Changes.Deleted, 1)

			require.NoError(t, w.RemoveTransaction(ctx, id))

			pending, err := w.Pending(ctx)
			require.NoError(t, err)
			assert.Empty(t, pending, "log -> commit -> purge leaves the WAL empty")

			_, err = w.Transaction(ctx, id)
			assert.True(t, errors.Is(err, ErrTransactionNotFound), "got %v", err)
			assert.True(t, errors.Is(w.RemoveTransaction(ctx, id), ErrTransactionNotFound))
		})
	}
}

func TestWAL_PendingInLogOrder(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			w := New(j, WithIDGenerator(ir.NewSequenceGenerator("z")))

			var ids []string
			for i := 0; i < 3; i++ {
				id, err := w.LogTransaction(ctx, sampleChanges())
				require.NoError(t, err)
				ids = append(ids, id)
			}
			require.NoError(t, w.RemoveTransaction(ctx, ids[1]))

			pending, err := w.Pending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, ids[0], pending[0].ID)
			assert.Equal(t, ids[2], pending[1].ID)
			assert.Less(t, pending[0].Seq, pending[1].Seq)
		})
	}
}

func TestWAL_BatchUpdateRoundTrip(t *testing.T) {
	j := journals(t)["sqlite"]
	ctx := context.Background()
	w := New(j)

	id, err := w.LogTransaction(ctx, ir.ChangeSet{Batch: &ir.BatchUpdate{
		Resource: "User",
		Filter:   ir.Object{"active": ir.Bool(false)},
		Values:   ir.Object{"archived": ir.Bool(true)},
	}})
	require.NoError(t, err)

	txn, err := w.Transaction(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, txn.Changes.Batch)
	assert.Equal(t, "User", txn.Changes.Batch.Resource)
	assert.Equal(t, ir.Bool(true), txn.Changes.Batch.Values["archived"])
}

// corruptJournal returns records whose payload no longer matches the digest.
type corruptJournal struct {
	Journal
}

func (c corruptJournal) Get(ctx context.Context, id string) (ir.TransactionRecord, error) {
	rec, err := c.Journal.Get(ctx, id)
	rec.Payload = []byte(`{"inserted":[]}`)
	return rec, err
}

func TestWAL_DetectsCorruptPayload(t *testing.T) {
	j := journals(t)["memory"]
	ctx := context.Background()

	id, err := New(j).LogTransaction(ctx, sampleChanges())
	require.NoError(t, err)

	_, err = New(corruptJournal{j}).Transaction(ctx, id)
	assert.ErrorIs(t, err, ErrCorruptTransaction)
}

func TestPebbleJournal_SequenceSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "meta.pebble")
	ctx := context.Background()

	j, err := OpenPebbleJournal("meta", dir)
	require.NoError(t, err)
	w := New(j, WithIDGenerator(ir.NewSequenceGenerator("a")))
	_, err = w.LogTransaction(ctx, sampleChanges())
	require.NoError(t, err)
	_, err = w.LogTransaction(ctx, sampleChanges())
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = OpenPebbleJournal("meta", dir)
	require.NoError(t, err)
	defer j.Close()

	rec, err := j.Append(ctx, ir.TransactionRecord{ID: "b-1", Digest: "d", Payload: []byte("{}")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Seq)

	_, err = j.Append(ctx, ir.TransactionRecord{ID: "b-1", Digest: "d", Payload: []byte("{}")})
	assert.Error(t, err, "duplicate id must be rejected")
}

func TestOpenJournal_UnknownKind(t *testing.T) {
	_, err := OpenJournal(Config{Name: "x", Kind: "etcd"})
	assert.Error(t, err)
}

func TestOpenPebble_LockedJournalIsNeverRecreated(t *testing.T) {
	cfg := Config{
		Name:                  "app._metadata",
		Kind:                  KindPebble,
		Path:                  filepath.Join(t.TempDir(), "app._metadata.pebble"),
		OverwriteIncompatible: true,
	}
	ctx := context.Background()

	first, err := Open(cfg)
	require.NoError(t, err)
	id, err := first.LogTransaction(ctx, sampleChanges())
	require.NoError(t, err)

	_, err = Open(cfg)
	require.Error(t, err, "second open must fail while the lock is held")
	assert.True(t, ir.IsStoreLoadFailure(err))
	assert.False(t, errors.Is(err, store.ErrIncompatible))

	require.NoError(t, first.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
}

func TestOpenPebble_UndecodableJournal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "meta.pebble")
	db, err := pebble.Open(dir, &pebble.Options{})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte(keyPrefix+"broken"), []byte{1, 2}, pebble.Sync))
	require.NoError(t, db.Close())

	cfg := Config{Name: "meta", Kind: KindPebble, Path: dir}
	_, err = Open(cfg)
	require.Error(t, err)
	assert.True(t, ir.IsStoreLoadFailure(err))
	assert.ErrorIs(t, err, store.ErrIncompatible)

	cfg.OverwriteIncompatible = true
	w, err := Open(cfg)
	require.NoError(t, err)
	defer w.Close()

	pending, err := w.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOpenPebble_PathIsARegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.pebble")
	require.NoError(t, os.WriteFile(path, []byte("not pebble"), 0o644))

	_, err := Open(Config{Name: "meta", Kind: KindPebble, Path: path})
	assert.ErrorIs(t, err, store.ErrIncompatible)

	w, err := Open(Config{Name: "meta", Kind: KindPebble, Path: path, OverwriteIncompatible: true})
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
