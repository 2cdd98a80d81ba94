package commit

import (
	"context"
	"fmt"

	"github.com/roach88/connect/internal/ir"
)

// RequestKind distinguishes store requests.
type RequestKind int

const (
	// RequestFetch reads committed records. Never logged.
	RequestFetch RequestKind = iota + 1
	// RequestSave commits a context's pending inserts, updates and deletes.
	RequestSave
	// RequestBatchUpdate sets values on every record matching a filter.
	RequestBatchUpdate
)

func (k RequestKind) String() string {
	switch k {
	case RequestFetch:
		return "fetch"
	case RequestSave:
		return "save"
	case RequestBatchUpdate:
		return "batch-update"
	default:
		return fmt.Sprintf("request(%d)", int(k))
	}
}

// Mutating reports whether the request writes to the store.
func (k RequestKind) Mutating() bool {
	return k == RequestSave || k == RequestBatchUpdate
}

// Request describes one store operation.
type Request struct {
	Kind RequestKind

	// Resource and Filter select records for fetch requests.
	Resource string
	Filter   ir.Object

	// Batch describes a batch update.
	Batch *ir.BatchUpdate
}

// Result is what the store reports back.
type Result struct {
	// Records holds fetched records.
	Records []ir.Record

	// Affected counts records written by a save or batch update.
	Affected int

	// Merged maps the id of each inserted record that was merged into an
	// existing row with the same uniqueness key to that row's id.
	Merged map[string]string
}

// Executor is the underlying store the interceptor delegates to.
type Executor interface {
	Execute(ctx context.Context, req Request, changes ir.ChangeSet) (Result, error)
}

// Log is the write-ahead log the interceptor records transactions in.
type Log interface {
	LogTransaction(ctx context.Context, changes ir.ChangeSet) (string, error)
	RemoveTransaction(ctx context.Context, id string) error
}

// Committer commits requests on behalf of a Context.
// Implemented by *Interceptor, and by the coordinator which forwards to
// whichever interceptor is attached at the time of the call.
type Committer interface {
	Commit(ctx context.Context, req Request, c *Context) (Result, error)
}
