// Package memory provides a volatile, map-backed state store.
//
// The memory store keeps all data in process memory and loses it on restart;
// it always restores from the beginning of its changelog. It is the store of
// choice for tests and for small derived state that is cheap to rebuild.
package memory

import (
	"sync"

	"github.com/silt-io/silt/pkg/store"
)

// MemoryStore is an in-memory implementation of store.StateStore.
//
// Unlike most stores it is safe for concurrent use: interactive queries may
// read it while the owning task writes.
type MemoryStore struct {
	name          string
	transactional bool

	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store with the given name.
// The transactional flag marks the store as participating in exactly-once
// processing; the memory engine itself treats it as informational.
func NewMemoryStore(name string, transactional bool) *MemoryStore {
	return &MemoryStore{
		name:          name,
		transactional: transactional,
		data:          make(map[string][]byte),
	}
}

// Name returns the store name declared in the topology.
func (s *MemoryStore) Name() string { return s.name }

// Persistent returns false: memory stores do not survive restarts.
func (s *MemoryStore) Persistent() bool { return false }

// Transactional reports the exactly-once flag given at construction.
func (s *MemoryStore) Transactional() bool { return s.transactional }

// RestoreCallback returns a callback that applies changelog records
// directly to the map. A nil value deletes the key.
func (s *MemoryStore) RestoreCallback() store.RestoreCallback {
	return func(key, value []byte) error {
		if value == nil {
			return s.Delete(key)
		}
		return s.Put(key, value)
	}
}

// Put writes a key-value pair.
func (s *MemoryStore) Put(key, value []byte) error {
	if len(key) == 0 {
		return store.NewInvalidKeyError(s.name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.NewStoreClosedError(s.name)
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[string(key)] = cp
	return nil
}

// Get reads the value for key.
func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.NewStoreClosedError(s.name)
	}

	value, ok := s.data[string(key)]
	if !ok {
		return nil, store.NewKeyNotFoundError(s.name)
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

// Delete removes a key. Absent keys are ignored.
func (s *MemoryStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.NewStoreClosedError(s.name)
	}

	delete(s.data, string(key))
	return nil
}

// Len returns the number of entries currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Flush is a no-op for the memory engine.
func (s *MemoryStore) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.NewStoreClosedError(s.name)
	}
	return nil
}

// Close marks the store closed and drops its data. Closing twice is an error.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.NewStoreClosedError(s.name)
	}
	s.closed = true
	s.data = nil
	return nil
}
