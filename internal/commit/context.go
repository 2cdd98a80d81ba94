package commit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/connect/internal/ir"
)

// ErrRecordDeleted is returned when an update names a record that was already
// deleted in the same context.
var ErrRecordDeleted = errors.New("commit: record deleted in this context")

// KeyResolver returns the uniqueness key of a resource, or nil if it has none.
type KeyResolver func(resource string) []string

// Context stages record changes for one action and commits them through a
// Committer. Inserts receive temporary ids until the commit interceptor
// replaces them with durable ones.
//
// Thread-safety: all methods are safe for concurrent use, though a context
// normally belongs to a single action.
type Context struct {
	mu        sync.Mutex
	committer Committer
	keys      KeyResolver
	logged    bool

	nextTemp int64
	inserted []ir.Record
	updated  []ir.Record
	deleted  []ir.Record

	// resolved maps temporary ids to the durable ids they were given.
	resolved map[string]string
}

// NewContext creates an empty context that commits through c.
// keys may be nil for resources without uniqueness keys.
// Changes saved through a context created with logged=false bypass the WAL.
func NewContext(c Committer, keys KeyResolver, logged bool) *Context {
	if keys == nil {
		keys = func(string) []string { return nil }
	}
	return &Context{
		committer: c,
		keys:      keys,
		logged:    logged,
		resolved:  make(map[string]string),
	}
}

// Logged reports whether saves from this context are written to the WAL.
func (c *Context) Logged() bool {
	return c.logged
}

// Insert stages a new record and returns its temporary id.
func (c *Context) Insert(resource string, attrs ir.Object) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextTemp++
	id := ir.TemporaryID(c.nextTemp)
	attrs = attrs.Clone()
	c.inserted = append(c.inserted, ir.Record{
		ID:         id,
		Resource:   resource,
		Key:        ir.KeyOf(c.keys(resource), attrs),
		Attributes: attrs,
	})
	return id
}

// Update stages new attribute values for a record. Attributes not named in
// attrs are left as they are. Updating a record inserted in this context
// amends the pending insert.
func (c *Context) Update(resource, id string, attrs ir.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexOf(c.deleted, id) >= 0 {
		return fmt.Errorf("update %s %s: %w", resource, id, ErrRecordDeleted)
	}
	if i := c.indexOf(c.inserted, id); i >= 0 {
		r := &c.inserted[i]
		r.Attributes = r.Attributes.Merge(attrs)
		r.Key = ir.KeyOf(c.keys(r.Resource), r.Attributes)
		return nil
	}
	if i := c.indexOf(c.updated, id); i >= 0 {
		c.updated[i].Attributes = c.updated[i].Attributes.Merge(attrs)
		return nil
	}
	c.updated = append(c.updated, ir.Record{
		ID:         id,
		Resource:   resource,
		Attributes: attrs.Clone(),
	})
	return nil
}

// Delete stages removal of a record. Deleting a record inserted in this
// context drops the pending insert.
func (c *Context) Delete(resource, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(c.inserted, id); i >= 0 {
		c.inserted = append(c.inserted[:i], c.inserted[i+1:]...)
		return
	}
	if i := c.indexOf(c.updated, id); i >= 0 {
		c.updated = append(c.updated[:i], c.updated[i+1:]...)
	}
	if c.indexOf(c.deleted, id) < 0 {
		c.deleted = append(c.deleted, ir.Record{ID: id, Resource: resource})
	}
}

// HasChanges reports whether anything is staged.
func (c *Context) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inserted)+len(c.updated)+len(c.deleted) > 0
}

// Changes returns a copy of the staged changes.
func (c *Context) Changes() ir.ChangeSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ir.ChangeSet{
		Inserted: cloneRecords(c.inserted),
		Updated:  cloneRecords(c.updated),
		Deleted:  cloneRecords(c.deleted),
	}
}

// Reset discards all staged changes.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserted, c.updated, c.deleted = nil, nil, nil
}

// ResolvedID returns the durable id a temporary id was committed under. When
// the insert merged into an existing row, that row's id is returned.
// Non-temporary ids are returned unchanged.
func (c *Context) ResolvedID(id string) (string, bool) {
	if !ir.IsTemporaryID(id) {
		return id, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	durable, ok := c.resolved[id]
	return durable, ok
}

// Save commits the staged changes. On success the context is cleared;
// on failure the changes stay staged under their durable ids.
func (c *Context) Save(ctx context.Context) error {
	if !c.HasChanges() {
		return nil
	}
	res, err := c.committer.Commit(ctx, Request{Kind: RequestSave}, c)
	if err != nil {
		return err
	}
	c.adoptMerged(res.Merged)
	c.Reset()
	return nil
}

// adoptMerged points temporary ids at the rows their inserts were merged into.
func (c *Context) adoptMerged(merged map[string]string) {
	if len(merged) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for temp, durable := range c.resolved {
		if survivor, ok := merged[durable]; ok {
			c.resolved[temp] = survivor
		}
	}
}

// Fetch returns the committed records of resource whose attributes match
// filter. Staged changes are not visible.
func (c *Context) Fetch(ctx context.Context, resource string, filter ir.Object) ([]ir.Record, error) {
	res, err := c.committer.Commit(ctx, Request{
		Kind:     RequestFetch,
		Resource: resource,
		Filter:   filter,
	}, c)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// BatchUpdate sets values on every committed record of resource matching
// filter and returns the number of records changed. It is committed
// immediately and independent of staged changes.
func (c *Context) BatchUpdate(ctx context.Context, resource string, filter, values ir.Object) (int, error) {
	res, err := c.committer.Commit(ctx, Request{
		Kind: RequestBatchUpdate,
		Batch: &ir.BatchUpdate{
			Resource: resource,
			Filter:   filter.Clone(),
			Values:   values.Clone(),
		},
	}, c)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// assignPermanentIDs replaces temporary ids of staged inserts.
func (c *Context) assignPermanentIDs(ids ir.IDGenerator) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.inserted {
		r := &c.inserted[i]
		if !ir.IsTemporaryID(r.ID) {
			continue
		}
		durable := ids.Generate()
		c.resolved[r.ID] = durable
		r.ID = durable
	}
}

// indexOf finds id in rs. A temporary id also matches the durable id it was
// assigned by an earlier, failed save.
func (c *Context) indexOf(rs []ir.Record, id string) int {
	durable, resolved := c.resolved[id]
	for i, r := range rs {
		if r.ID == id || (resolved && r.ID == durable) {
			return i
		}
	}
	return -1
}

func cloneRecords(rs []ir.Record) []ir.Record {
	if len(rs) == 0 {
		return nil
	}
	out := make([]ir.Record, len(rs))
	for i, r := range rs {
		r.Attributes = r.Attributes.Clone()
		out[i] = r
	}
	return out
}
