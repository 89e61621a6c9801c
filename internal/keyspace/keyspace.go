// Package keyspace implements named sub-policies layered over a ring:
// each Keyspace carries its own Quorum, an optional strategy-name
// override, and optional affinity rules, per spec.md §4.6. Keyspace
// itself is free of ring mutation logic — it's pure configuration,
// looked up by name from a Registry.
package keyspace

import (
	"fmt"

	"placementcore/internal/affinity"
	"placementcore/internal/ring"
)

// Keyspace is one named sub-policy. StrategyOverride, if non-empty,
// names a strategy the caller expects the ring (or a per-keyspace
// ring) to use instead of its default; the core does not itself swap
// strategies mid-flight — applying the override is the caller's
// responsibility, matching spec.md §4.6's "unless a per-keyspace
// override is implemented by the caller."
type Keyspace struct {
	Name             string
	Quorum           ring.Quorum
	StrategyOverride string
	AffinityRules    []affinity.Rule
}

// Registry is a named collection of Keyspaces, registered per ring.
type Registry struct {
	byName map[string]*Keyspace
	order  []string
}

// NewRegistry builds an empty keyspace registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Keyspace)}
}

// Add registers ks by name. Duplicate names are rejected.
func (r *Registry) Add(ks Keyspace) error {
	if ks.Name == "" {
		return fmt.Errorf("%w: keyspace name is required", ring.ErrInvalidConfig)
	}
	if _, exists := r.byName[ks.Name]; exists {
		return fmt.Errorf("%w: keyspace %q", ring.ErrExists, ks.Name)
	}
	copied := ks
	r.byName[ks.Name] = &copied
	r.order = append(r.order, ks.Name)
	return nil
}

// Remove deletes a keyspace by name, shifting remaining entries down
// to keep Order's iteration order compact.
func (r *Registry) Remove(name string) error {
	if _, exists := r.byName[name]; !exists {
		return fmt.Errorf("%w: keyspace %q", ring.ErrNotFound, name)
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a borrow of the named keyspace, if registered.
func (r *Registry) Get(name string) (*Keyspace, bool) {
	ks, ok := r.byName[name]
	return ks, ok
}

// Len reports how many keyspaces are registered.
func (r *Registry) Len() int { return len(r.order) }

// Names returns registered keyspace names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
