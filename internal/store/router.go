package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/connect/internal/commit"
	"github.com/roach88/connect/internal/ir"
)

// Router dispatches commit requests to the record store that holds each
// resource. It implements commit.Executor.
//
// A save touching resources of several stores is split per store and applied
// store by store; if a later store fails, earlier ones stay committed and the
// retained WAL entry describes the whole change set.
type Router struct {
	stores     []*Records
	byResource map[string]*Records
	fallback   *Records
}

// NewRouter routes each resource to the store listing it. Resources no store
// lists go to the first store with an empty resource list, or the first store.
func NewRouter(stores ...*Records) (*Router, error) {
	if len(stores) == 0 {
		return nil, errors.New("router: no stores")
	}

	rt := &Router{
		stores:     stores,
		byResource: make(map[string]*Records),
	}
	for _, s := range stores {
		if len(s.Resources()) == 0 && rt.fallback == nil {
			rt.fallback = s
		}
		for _, res := range s.Resources() {
			if other, ok := rt.byResource[res]; ok {
				return nil, fmt.Errorf("router: resource %q claimed by stores %q and %q", res, other.Name(), s.Name())
			}
			rt.byResource[res] = s
		}
	}
	if rt.fallback == nil {
		rt.fallback = stores[0]
	}
	return rt, nil
}

// StoreFor returns the store that holds resource.
func (rt *Router) StoreFor(resource string) *Records {
	if s, ok := rt.byResource[resource]; ok {
		return s
	}
	return rt.fallback
}

// Stores returns every routed store.
func (rt *Router) Stores() []*Records {
	return rt.stores
}

// Execute routes req to the owning store or stores.
func (rt *Router) Execute(ctx context.Context, req commit.Request, changes ir.ChangeSet) (commit.Result, error) {
	if req.Kind == commit.RequestFetch {
		return rt.StoreFor(req.Resource).Execute(ctx, req, changes)
	}

	var total commit.Result
	for _, s := range rt.stores {
		part := changes.Filter(func(resource string) bool {
			return rt.StoreFor(resource) == s
		})
		if part.Empty() {
			continue
		}
		res, err := s.Execute(ctx, req, part)
		if err != nil {
			return commit.Result{}, fmt.Errorf("store %s: %w", s.Name(), err)
		}
		total.Affected += res.Affected
		for from, to := range res.Merged {
			if total.Merged == nil {
				total.Merged = make(map[string]string)
			}
			total.Merged[from] = to
		}
	}
	return total, nil
}

// Close closes every store and returns the first error.
func (rt *Router) Close() error {
	var first error
	for _, s := range rt.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
