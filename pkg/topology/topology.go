// Package topology describes the static shape of a task: the ordered set of
// state stores it must bring into service before processing starts.
//
// A topology is built once, before any task runs, and is read-only
// afterwards. Declaration order matters: stores are bound into the task in
// exactly the order they were added.
package topology

import (
	"fmt"

	"github.com/silt-io/silt/pkg/store"
)

// Topology is an immutable, ordered enumeration of a task's state stores.
// A topology with no stores is valid: such tasks hold no state and skip
// directory locking entirely.
type Topology struct {
	stores []store.StateStore
	byName map[string]store.StateStore
}

// Builder assembles a Topology. Not safe for concurrent use.
type Builder struct {
	stores []store.StateStore
	byName map[string]store.StateStore
	err    error
}

// New creates an empty topology builder.
func New() *Builder {
	return &Builder{byName: make(map[string]store.StateStore)}
}

// AddStore declares a state store. Declaration order is preserved.
// Duplicate names are rejected when Build is called.
func (b *Builder) AddStore(s store.StateStore) *Builder {
	if b.err != nil {
		return b
	}
	if s == nil {
		b.err = fmt.Errorf("topology: nil store")
		return b
	}
	if _, ok := b.byName[s.Name()]; ok {
		b.err = fmt.Errorf("topology: duplicate store name %q", s.Name())
		return b
	}
	b.byName[s.Name()] = s
	b.stores = append(b.stores, s)
	return b
}

// Build finalizes the topology.
func (b *Builder) Build() (*Topology, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Topology{stores: b.stores, byName: b.byName}, nil
}

// StateStores returns the declared stores in declaration order.
// Callers must not mutate the returned slice.
func (t *Topology) StateStores() []store.StateStore {
	return t.stores
}

// StoreByName looks a declared store up by name.
func (t *Topology) StoreByName(name string) (store.StateStore, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// HasStores reports whether the topology declares any state stores.
func (t *Topology) HasStores() bool {
	return len(t.stores) > 0
}
