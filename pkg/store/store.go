// Package store defines the state store abstraction used by stream-processing
// tasks.
//
// A state store is a named key-value structure that lives inside a task's
// state directory. Stores are declared up front by the topology, bound into
// the task at registration time, and restored from their changelog through a
// RestoreCallback before the task starts processing.
//
// Concrete engines live in subpackages:
//   - store/memory: volatile, map-backed store
//   - store/badger: persistent store backed by BadgerDB
package store

// RestoreCallback applies a single replayed changelog record to a store.
//
// It is invoked once per record, in changelog order, while the task is being
// restored. A nil value means the key was deleted.
type RestoreCallback func(key, value []byte) error

// StateStore is the contract every state store engine implements.
//
// Thread safety: a store is owned by one task and accessed from that task's
// worker only; implementations are not required to be safe for concurrent
// use unless documented otherwise.
type StateStore interface {
	// Name returns the store's name as declared in the topology. Names are
	// unique within a task and double as the store's directory name.
	Name() string

	// Persistent reports whether the store survives process restarts.
	Persistent() bool

	// Transactional reports whether the store participates in
	// transactional (exactly-once) processing semantics.
	Transactional() bool

	// RestoreCallback returns the callback used to replay changelog
	// history into this store.
	RestoreCallback() RestoreCallback

	// Put writes a key-value pair. A nil value is not a delete; use Delete.
	Put(key, value []byte) error

	// Get reads the value for key. Returns ErrKeyNotFound if absent.
	Get(key []byte) ([]byte, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Flush makes all pending writes durable (no-op for volatile stores).
	Flush() error

	// Close releases the store's resources. The store is unusable after
	// Close returns; Put/Get/Delete report ErrStoreClosed.
	Close() error
}
