package commit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/connect/internal/ir"
)

func TestContext_InsertStampsKey(t *testing.T) {
	c := NewContext(nil, userKeys, true)

	id := c.Insert("User", ir.Object{"email": ir.String("a@example.com"), "name": ir.String("A")})
	assert.True(t, ir.IsTemporaryID(id))

	cs := c.Changes()
	require.Len(t, cs.Inserted, 1)
	assert.Equal(t, `["a@example.com"]`, cs.Inserted[0].Key)

	c.Insert("Log", ir.Object{"message": ir.String("x")})
	assert.Empty(t, c.Changes().Inserted[1].Key, "resources without a key get no key")
}

func TestContext_UpdatePendingInsert(t *testing.T) {
	c := NewContext(nil, userKeys, true)
	id := c.Insert("User", ir.Object{"email": ir.String("a@example.com")})

	require.NoError(t, c.Update("User", id, ir.Object{"email": ir.String("b@example.com")}))

	cs := c.Changes()
	assert.Empty(t, cs.Updated)
	require.Len(t, cs.Inserted, 1)
	assert.Equal(t, ir.String("b@example.com"), cs.Inserted[0].Attributes["email"])
	assert.Equal(t, `["b@example.com"]`, cs.Inserted[0].Key)
}

func TestContext_UpdatesAccumulate(t *testing.T) {
	c := NewContext(nil, nil, true)

	require.NoError(t, c.Update("User", "u1", ir.Object{"name": ir.String("A")}))
	require.NoError(t, c.Update("User", "u1", ir.Object{"role": ir.String("admin")}))

	cs := c.Changes()
	require.Len(t, cs.Updated, 1)
	assert.Equal(t, ir.Object{"name": ir.String("A"), "role": ir.String("admin")}, cs.Updated[0].Attributes)
}

func TestContext_DeletePendingInsertDropsIt(t *testing.T) {
	c := NewContext(nil, nil, true)
	id := c.Insert("Log", ir.Object{"message": ir.String("x")})

	c.Delete("Log", id)
	assert.False(t, c.HasChanges())
}

func TestContext_DeleteSupersedesUpdate(t *testing.T) {
	c := NewContext(nil, nil, true)
	require.NoError(t, c.Update("User", "u1", ir.Object{"name": ir.String("A")}))

	c.Delete("User", "u1")
	c.Delete("User", "u1")

	cs := c.Changes()
	assert.Empty(t, cs.Updated)
	require.Len(t, cs.Deleted, 1)
	assert.Equal(t, "u1", cs.Deleted[0].ID)

	err := c.Update("User", "u1", ir.Object{"name": ir.String("B")})
	assert.True(t, errors.Is(err, ErrRecordDeleted))
}

func TestContext_ChangesIsACopy(t *testing.T) {
	c := NewContext(nil, nil, true)
	c.Insert("Log", ir.Object{"message": ir.String("x")})

	cs := c.Changes()
	cs.Inserted[0].Attributes["message"] = ir.String("mutated")

	assert.Equal(t, ir.String("x"), c.Changes().Inserted[0].Attributes["message"])
}

func TestContext_FailedSaveKeepsDurableIDs(t *testing.T) {
	st := &fakeStore{err: errors.New("boom")}
	wal := newFakeLog()
	c := NewContext(NewInterceptor(st, wal, WithIDGenerator(ir.NewSequenceGenerator("rec"))), nil, true)

	tmp := c.Insert("Log", ir.Object{"message": ir.String("x")})
	require.Error(t, c.Save(context.Background()))

	durable, ok := c.ResolvedID(tmp)
	require.True(t, ok)
	assert.Equal(t, "rec-1", durable)

	// The temporary id keeps addressing the staged insert.
	require.NoError(t, c.Update("Log", tmp, ir.Object{"level": ir.String("info")}))

	st.err = nil
	require.NoError(t, c.Save(context.Background()))
	require.Len(t, st.calls, 1)
	assert.Equal(t, "rec-1", st.calls[0].Inserted[0].ID, "retry must reuse the durable id")
	assert.Equal(t, ir.String("info"), st.calls[0].Inserted[0].Attributes["level"])
}

func TestContext_SaveAdoptsMergedRowID(t *testing.T) {
	st := &fakeStore{merged: map[string]string{"rec-1": "existing"}}
	c := NewContext(NewInterceptor(st, newFakeLog(), WithIDGenerator(ir.NewSequenceGenerator("rec"))), userKeys, true)

	tmp := c.Insert("User", ir.Object{"email": ir.String("a@example.com")})
	other := c.Insert("User", ir.Object{"email": ir.String("b@example.com")})
	require.NoError(t, c.Save(context.Background()))

	got, ok := c.ResolvedID(tmp)
	require.True(t, ok)
	assert.Equal(t, "existing", got)

	got, ok = c.ResolvedID(other)
	require.True(t, ok)
	assert.Equal(t, "rec-2", got, "inserts that were not merged keep their own id")
}

func TestContext_Reset(t *testing.T) {
	c := NewContext(nil, nil, true)
	c.Insert("Log", ir.Object{"message": ir.String("x")})
	c.Delete("User", "u1")

	c.Reset()
	assert.False(t, c.HasChanges())
	assert.True(t, c.Changes().Empty())
}
