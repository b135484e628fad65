// Package badger provides a persistent state store backed by BadgerDB.
//
// Each store opens its own Badger instance in a subdirectory of the task's
// state directory (<taskDir>/<storeName>). Because the data survives process
// restarts, a badger store only needs its changelog replayed from the last
// checkpointed offset, not from the beginning.
package badger

import (
	"errors"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/silt-io/silt/pkg/store"
)

// Options tunes the underlying Badger instance.
type Options struct {
	// SyncWrites forces an fsync on every write. Off by default; the
	// lifecycle's Flush/checkpoint sequence provides the durability point.
	SyncWrites bool

	// ValueLogFileSize caps individual value log files, in bytes.
	// Zero keeps Badger's default.
	ValueLogFileSize int64
}

// BadgerStore is a persistent implementation of store.StateStore.
type BadgerStore struct {
	name          string
	transactional bool
	db            *badgerdb.DB
	closed        bool
}

// NewBadgerStore opens (or creates) a Badger-backed store at dir.
func NewBadgerStore(name, dir string, transactional bool, opts Options) (*BadgerStore, error) {
	badgerOpts := badgerdb.DefaultOptions(dir).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil)
	if opts.ValueLogFileSize > 0 {
		badgerOpts = badgerOpts.WithValueLogFileSize(opts.ValueLogFileSize)
	}

	db, err := badgerdb.Open(badgerOpts)
	if err != nil {
		return nil, store.NewIOError(name, "failed to open badger store", err)
	}

	return &BadgerStore{
		name:          name,
		transactional: transactional,
		db:            db,
	}, nil
}

// Name returns the store name declared in the topology.
func (s *BadgerStore) Name() string { return s.name }

// Persistent returns true: badger stores survive restarts.
func (s *BadgerStore) Persistent() bool { return true }

// Transactional reports the exactly-once flag given at construction.
func (s *BadgerStore) Transactional() bool { return s.transactional }

// RestoreCallback returns a callback that applies replayed changelog records
// to the store. A nil value is a tombstone and deletes the key.
func (s *BadgerStore) RestoreCallback() store.RestoreCallback {
	return func(key, value []byte) error {
		if value == nil {
			return s.Delete(key)
		}
		return s.Put(key, value)
	}
}

// Put writes a key-value pair.
func (s *BadgerStore) Put(key, value []byte) error {
	if len(key) == 0 {
		return store.NewInvalidKeyError(s.name)
	}
	if s.closed {
		return store.NewStoreClosedError(s.name)
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return store.NewIOError(s.name, "failed to write key", err)
	}
	return nil
}

// Get reads the value for key.
func (s *BadgerStore) Get(key []byte) ([]byte, error) {
	if s.closed {
		return nil, store.NewStoreClosedError(s.name)
	}

	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, store.NewKeyNotFoundError(s.name)
	}
	if err != nil {
		return nil, store.NewIOError(s.name, "failed to read key", err)
	}
	return value, nil
}

// Delete removes a key. Absent keys are ignored.
func (s *BadgerStore) Delete(key []byte) error {
	if s.closed {
		return store.NewStoreClosedError(s.name)
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return store.NewIOError(s.name, "failed to delete key", err)
	}
	return nil
}

// Flush syncs pending writes to disk.
func (s *BadgerStore) Flush() error {
	if s.closed {
		return store.NewStoreClosedError(s.name)
	}
	if err := s.db.Sync(); err != nil {
		return store.NewIOError(s.name, "failed to sync store", err)
	}
	return nil
}

// Close syncs and closes the underlying Badger instance.
func (s *BadgerStore) Close() error {
	if s.closed {
		return store.NewStoreClosedError(s.name)
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return store.NewIOError(s.name, "failed to close store", err)
	}
	return nil
}
