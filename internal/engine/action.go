package engine

import (
	"context"

	"github.com/roach88/connect/internal/commit"
)

// GenericAction is work without resource affinity. It runs in the shared
// concurrent lane.
type GenericAction interface {
	Execute(ctx context.Context) error
}

// EntityAction is work bound to one resource type. It runs in that
// resource's serial lane with a fresh execution context.
type EntityAction interface {
	Resource() string
	Execute(ctx context.Context, tx *commit.Context) error
}

// GenericFunc adapts a function to GenericAction.
type GenericFunc func(ctx context.Context) error

// Execute calls f(ctx).
func (f GenericFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// EntityFunc adapts a function to EntityAction for the named resource.
func EntityFunc(resource string, fn func(ctx context.Context, tx *commit.Context) error) EntityAction {
	return entityFunc{resource: resource, fn: fn}
}

type entityFunc struct {
	resource string
	fn       func(ctx context.Context, tx *commit.Context) error
}

func (e entityFunc) Resource() string { return e.resource }

func (e entityFunc) Execute(ctx context.Context, tx *commit.Context) error {
	return e.fn(ctx, tx)
}

// Kind distinguishes the two action variants.
type Kind int

const (
	KindGeneric Kind = iota + 1
	KindEntity
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindEntity:
		return "entity"
	default:
		return "unknown"
	}
}
