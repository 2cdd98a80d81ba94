// Package registry decides which resource types get an isolated serial lane.
//
// A resource is managed when it has a resolvable uniqueness key:
//   - a declared key whose attributes all exist on the resource, or
//   - failing that, the structural constraint with the fewest attributes,
//     ties going to the first declared.
//
// A declared key naming a missing attribute downgrades the resource to
// unmanaged with a warning; it never aborts startup.
package registry

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/connect/internal/engine"
	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/schema"
)

// Descriptor is the registry's view of one resource type.
type Descriptor struct {
	Name          string
	Attributes    []string
	UniquenessKey []string
	Managed       bool

	// Lane is the serial lane label, "" when unmanaged.
	Lane string

	// Err explains why a declared key was rejected.
	Err error
}

// Registry holds descriptors and the serial lanes of managed resources.
//
// Thread-safety: all methods are safe for concurrent use. The coordinator
// only mutates it from its coordination point.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	descriptors map[string]Descriptor
	lanes       map[string]*engine.Lane
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		lanes:       make(map[string]*engine.Lane),
	}
}

// LaneLabel returns the deterministic lane label for a resource.
func LaneLabel(resource string) string {
	return "lane." + strings.ToLower(resource)
}

// RegisterAll registers every resource of s. Resources already registered
// are left untouched, so calling it twice creates no extra lanes.
func (r *Registry) RegisterAll(s *schema.Schema) {
	for _, res := range s.Resources {
		r.Register(res)
	}
}

// Register registers one resource and returns its descriptor. Registering a
// known name returns the existing descriptor.
func (r *Registry) Register(res schema.Resource) Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.descriptors[res.Name]; ok {
		return d
	}

	d := Descriptor{
		Name:       res.Name,
		Attributes: append([]string(nil), res.Attributes...),
	}

	key, err := ResolveKey(res)
	switch {
	case err != nil:
		d.Err = err
		slog.Warn("uniqueness key rejected, resource unmanaged",
			"resource", res.Name,
			"key", res.UniquenessKey,
			"error", err,
		)
	case len(key) > 0:
		d.UniquenessKey = key
		d.Managed = true
		d.Lane = LaneLabel(res.Name)
		r.lanes[res.Name] = engine.NewLane(d.Lane, engine.Serial, true)
		slog.Debug("resource managed", "resource", res.Name, "key", key, "lane", d.Lane)
	default:
		slog.Debug("resource unmanaged: no uniqueness key", "resource", res.Name)
	}

	r.descriptors[res.Name] = d
	r.order = append(r.order, res.Name)
	return d
}

// ResolveKey returns the uniqueness key of res, or nil if it has none.
// A declared key naming a missing attribute is a ValidationFailure.
func ResolveKey(res schema.Resource) ([]string, error) {
	if len(res.UniquenessKey) > 0 {
		for _, attr := range res.UniquenessKey {
			if !res.HasAttribute(attr) {
				return nil, ir.NewValidationError(res.Name, attr)
			}
		}
		return append([]string(nil), res.UniquenessKey...), nil
	}

	var best []string
	for _, c := range res.Constraints {
		if len(c) == 0 {
			continue
		}
		if best == nil || len(c) < len(best) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	return append([]string(nil), best...), nil
}

// UnregisterAll discards every lane and descriptor. Actions still queued in a
// discarded lane are cancelled.
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	lanes := r.lanes
	r.lanes = make(map[string]*engine.Lane)
	r.descriptors = make(map[string]Descriptor)
	r.order = nil
	r.mu.Unlock()

	for _, l := range lanes {
		l.Close()
	}
}

// Descriptor returns the descriptor of a resource.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Descriptors returns every descriptor in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Lanes returns the serial lanes keyed by resource name.
func (r *Registry) Lanes() map[string]*engine.Lane {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*engine.Lane, len(r.lanes))
	for name, l := range r.lanes {
		out[name] = l
	}
	return out
}

// KeyFor returns the uniqueness key of a resource, nil if unknown or unmanaged.
// It has the shape of commit.KeyResolver.
func (r *Registry) KeyFor(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[name].UniquenessKey
}
