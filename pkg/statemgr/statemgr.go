// Package statemgr implements the store manager: the owner of one task's
// live state stores and their checkpointed offsets.
//
// A StateManager is created before the task registers its stores and
// destroyed after shutdown completes. Between those two points it is the
// single authority on which stores exist, where their data lives, and up to
// which changelog offset that data is trustworthy.
package statemgr

import (
	"fmt"

	"github.com/silt-io/silt/internal/logger"
	"github.com/silt-io/silt/pkg/checkpoint"
	"github.com/silt-io/silt/pkg/store"
	"github.com/silt-io/silt/pkg/task"
)

// registeredStore pairs a bound store with its restore callback.
type registeredStore struct {
	store   store.StateStore
	restore store.RestoreCallback
}

// StateManager owns the live set of state stores for one task.
//
// It is confined to the task's worker; methods are not safe for concurrent
// use.
type StateManager struct {
	taskID  task.ID
	baseDir string
	cpFile  *checkpoint.File

	stores []string
	byName map[string]registeredStore

	// offsets are the checkpointed changelog positions the on-disk state is
	// known to be consistent with. Empty until initialized.
	offsets checkpoint.Offsets
	closed  bool
}

// New creates a state manager for the task whose state lives in baseDir
// (normally statedir.DirForTask(id)).
func New(id task.ID, baseDir string) *StateManager {
	return &StateManager{
		taskID:  id,
		baseDir: baseDir,
		cpFile:  checkpoint.ForTaskDir(baseDir),
		byName:  make(map[string]registeredStore),
		offsets: checkpoint.Offsets{},
	}
}

// TaskID returns the owning task's id.
func (m *StateManager) TaskID() task.ID { return m.taskID }

// BaseDir returns the root of the task's on-disk state.
func (m *StateManager) BaseDir() string { return m.baseDir }

// RegisterStore binds a store and its restore callback into the manager.
// Stores must be registered at most once.
func (m *StateManager) RegisterStore(s store.StateStore, cb store.RestoreCallback) error {
	if m.closed {
		return fmt.Errorf("cannot register store %q on closed state manager for task %s", s.Name(), m.taskID)
	}
	if _, ok := m.byName[s.Name()]; ok {
		return fmt.Errorf("store %q is already registered for task %s", s.Name(), m.taskID)
	}

	m.byName[s.Name()] = registeredStore{store: s, restore: cb}
	m.stores = append(m.stores, s.Name())

	logger.Debug("Registered state store", "task_id", m.taskID.String(), "store", s.Name())
	return nil
}

// Store returns a registered store by name.
func (m *StateManager) Store(name string) (store.StateStore, bool) {
	rs, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return rs.store, true
}

// StoreNames returns the registered store names in registration order.
func (m *StateManager) StoreNames() []string {
	names := make([]string, len(m.stores))
	copy(names, m.stores)
	return names
}

// ChangelogFor returns the changelog partition backing the named store,
// following the "<store>-changelog" topic convention.
func (m *StateManager) ChangelogFor(storeName string) checkpoint.Changelog {
	return checkpoint.Changelog{
		Topic:     storeName + "-changelog",
		Partition: m.taskID.Partition,
	}
}

// InitializeStoreOffsetsFromCheckpoint establishes the offsets replay must
// start from.
//
// When the task directory was empty at lock time there is no prior state,
// so any leftover checkpoint file is stale by definition: it is deleted and
// all stores restore from the beginning of their changelogs. Otherwise the
// checkpoint file is loaded and its offsets become authoritative.
func (m *StateManager) InitializeStoreOffsetsFromCheckpoint(dirEmpty bool) error {
	if dirEmpty {
		if err := m.cpFile.Delete(); err != nil {
			return fmt.Errorf("failed to discard stale checkpoint for task %s: %w", m.taskID, err)
		}
		m.offsets = checkpoint.Offsets{}
		logger.Debug("Initialized offsets from scratch", "task_id", m.taskID.String())
		return nil
	}

	offsets, err := m.cpFile.Read()
	if err != nil {
		return fmt.Errorf("failed to initialize offsets for task %s: %w", m.taskID, err)
	}
	m.offsets = offsets

	logger.Debug("Initialized offsets from checkpoint",
		"task_id", m.taskID.String(), "entries", len(offsets))
	return nil
}

// ChangelogOffsets returns a copy of the current checkpointed offsets.
func (m *StateManager) ChangelogOffsets() checkpoint.Offsets {
	out := make(checkpoint.Offsets, len(m.offsets))
	for cl, off := range m.offsets {
		out[cl] = off
	}
	return out
}

// Restore replays a single changelog record into the named store via its
// restore callback and advances the in-memory offset.
func (m *StateManager) Restore(storeName string, offset int64, key, value []byte) error {
	rs, ok := m.byName[storeName]
	if !ok {
		return fmt.Errorf("cannot restore unregistered store %q for task %s", storeName, m.taskID)
	}
	if rs.restore == nil {
		return fmt.Errorf("store %q for task %s has no restore callback", storeName, m.taskID)
	}
	if err := rs.restore(key, value); err != nil {
		return err
	}
	m.offsets[m.ChangelogFor(storeName)] = offset
	return nil
}

// Flush makes every registered store's pending writes durable. All stores
// are flushed even if one fails; the first failure is returned.
func (m *StateManager) Flush() error {
	var firstErr error
	for _, name := range m.stores {
		if err := m.byName[name].store.Flush(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Error("Failed to flush state store",
				"task_id", m.taskID.String(), "store", name, "error", err)
		}
	}
	return firstErr
}

// Checkpoint flushes the stores, merges the given offsets over the current
// ones and atomically rewrites the checkpoint file.
func (m *StateManager) Checkpoint(offsets checkpoint.Offsets) error {
	if err := m.Flush(); err != nil {
		return err
	}
	for cl, off := range offsets {
		m.offsets[cl] = off
	}
	if err := m.cpFile.Write(m.offsets); err != nil {
		return fmt.Errorf("failed to checkpoint offsets for task %s: %w", m.taskID, err)
	}
	return nil
}

// Close closes every registered store. Every store's Close is attempted even
// when an earlier one fails; the first failure is returned. The manager is
// unusable afterwards.
func (m *StateManager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for _, name := range m.stores {
		if err := m.byName[name].store.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Error("Failed to close state store",
				"task_id", m.taskID.String(), "store", name, "error", err)
		}
	}
	return firstErr
}
