// Package lifecycle coordinates bringing a task's persistent state into
// service and retiring it again.
//
// It owns exactly two operations. RegisterStateStores acquires the task's
// exclusive state directory lock, binds every declared store into the task
// context, and initializes checkpoint offsets according to whether the
// directory held prior state. CloseStateManager tears the state down again,
// always attempting every step (close, unlock, optional wipe) and reconciling
// whatever failed into at most one surfaced error.
//
// The package performs no storage itself; it orchestrates the store manager,
// the state directory and the task context through the small interfaces
// below, translating their failures into its Error taxonomy.
package lifecycle

import (
	"errors"
	"fmt"
	"os"

	"github.com/silt-io/silt/internal/logger"
	"github.com/silt-io/silt/pkg/metrics"
	"github.com/silt-io/silt/pkg/store"
	"github.com/silt-io/silt/pkg/task"
)

// Topology enumerates the state stores a task must instantiate.
type Topology interface {
	// StateStores returns the declared stores in declaration order.
	// An empty slice is valid.
	StateStores() []store.StateStore
}

// StateManager is the owner of a task's live stores and offsets.
type StateManager interface {
	// TaskID returns the owning task's id.
	TaskID() task.ID
	// BaseDir returns the root of the task's on-disk state. Valid even if
	// the directory was never locked.
	BaseDir() string
	// InitializeStoreOffsetsFromCheckpoint establishes replay offsets.
	// dirEmpty reports whether the state directory held no prior state.
	InitializeStoreOffsetsFromCheckpoint(dirEmpty bool) error
	// Close releases all stores owned by the manager.
	Close() error
}

// LockRegistry is the per-task exclusive lock over state directories.
type LockRegistry interface {
	// Lock attempts to acquire the task's directory lock. It returns false
	// without an error when another owner holds the lock; an error means
	// the lock mechanism itself faulted.
	Lock(id task.ID) (bool, error)
	// Unlock releases the task's directory lock.
	Unlock(id task.ID) error
	// TaskDirIsEmpty reports whether the task's directory holds no state.
	// Only meaningful while the lock is held.
	TaskDirIsEmpty(id task.ID) (bool, error)
}

// Context is the per-store binding hook of the executing task.
type Context interface {
	// Uninitialize marks the context not ready.
	Uninitialize()
	// Register binds a store and its restore callback into the task.
	Register(s store.StateStore, cb store.RestoreCallback) error
}

// removeAll is swapped out by tests to inject wipe failures.
var removeAll = os.RemoveAll

// RegisterStateStores brings the task's declared state stores into service.
//
// For a store-less topology this is a no-op: no lock is taken. Otherwise the
// sequence is fixed: lock the state directory, query its emptiness, bind
// every store in declaration order, then initialize checkpoint offsets with
// the emptiness flag. Registration is fail-fast; the first failure aborts
// the remaining steps and nothing is retried or unwound here. In particular
// the directory lock stays held after a post-lock failure, and releasing it
// is part of the caller's own cleanup.
//
// Lock failures are translated into the package's Error taxonomy
// (ErrFatalLock for a faulted mechanism, ErrLockUnavailable for contention);
// store binding and offset initialization failures are the collaborators'
// own errors and propagate unmodified.
func RegisterStateStores(logPrefix string, topo Topology, mgr StateManager, dir LockRegistry, pctx Context) error {
	stores := topo.StateStores()
	if len(stores) == 0 {
		return nil
	}

	id := mgr.TaskID()

	acquired, err := dir.Lock(id)
	if err != nil {
		metrics.IncFatalLockErrors()
		return NewFatalLockError(logPrefix, id, err)
	}
	if !acquired {
		metrics.IncLockContention()
		return NewLockUnavailableError(logPrefix, id)
	}

	empty, err := dir.TaskDirIsEmpty(id)
	if err != nil {
		return err
	}

	for _, s := range stores {
		pctx.Uninitialize()
		if err := pctx.Register(s, s.RestoreCallback()); err != nil {
			return err
		}
	}

	if err := mgr.InitializeStoreOffsetsFromCheckpoint(empty); err != nil {
		return err
	}

	metrics.IncTaskRegistrations()
	logger.Debug("Registered state stores",
		"task_id", id.String(), "stores", len(stores), "fresh_dir", empty)
	return nil
}

// CloseStateManager retires the task's state.
//
// clean and wipeStateStore are mutually exclusive: a clean shutdown
// preserves exactly the state the next run should see, so asking to wipe it
// is a programming error and fails with ErrInvalidArgument before any side
// effect.
//
// Every step runs regardless of earlier failures in the same call: the store
// manager is closed, the directory lock is released, and the state directory
// is wiped when requested. Only the error reporting is policy driven:
//
//   - clean: a close failure takes priority and is surfaced (unchanged if it
//     is already a structured *Error, wrapped as ErrCloseFailed otherwise);
//     an unlock failure is surfaced as ErrUnlockFailed only when the close
//     itself succeeded.
//   - dirty: close and unlock failures are demoted to warnings and
//     discarded; the shutdown is itself an error-recovery path and the
//     original cause was already reported upstream.
//
// A wipe failure is the exception: a half-wiped directory is unsafe to leave
// behind, so it is surfaced as ErrWipeFailed under either policy.
func CloseStateManager(logPrefix string, clean, wipeStateStore bool, mgr StateManager, dir LockRegistry, taskType task.Type) error {
	if clean && wipeStateStore {
		return NewInvalidArgumentError("state stores may not be wiped during a clean close")
	}

	id := mgr.TaskID()
	logger.Debug("Closing state manager",
		"task_type", taskType.String(), "task_id", id.String(), "clean", clean, "wipe", wipeStateStore)

	closeErr := mgr.Close()
	if closeErr != nil && !clean {
		metrics.IncSwallowedCloseFailures()
		logger.Warn(fmt.Sprintf("%sClosing %s task %s uncleanly and swallows an exception",
			logPrefix, taskType, id), "error", closeErr)
		closeErr = nil
	}

	// The lock must not outlive the close attempt, so release it even when
	// closing failed.
	var unlockErr error
	if err := dir.Unlock(id); err != nil {
		if clean {
			unlockErr = err
		} else {
			logger.Warn(fmt.Sprintf("%sFailed to release state dir lock of %s task %s during dirty close",
				logPrefix, taskType, id), "error", err)
		}
	}

	if wipeStateStore {
		logger.Debug("Wiping state stores", "task_type", taskType.String(), "task_id", id.String())
		if err := removeAll(mgr.BaseDir()); err != nil {
			return NewWipeFailedError(id, err)
		}
		metrics.IncStateWipes()
	}

	if clean {
		metrics.IncCleanCloses()
	} else {
		metrics.IncDirtyCloses()
	}

	if closeErr != nil {
		var structured *Error
		if errors.As(closeErr, &structured) {
			return closeErr
		}
		return NewCloseFailedError(logPrefix, closeErr)
	}
	if unlockErr != nil {
		return NewUnlockFailedError(logPrefix, unlockErr)
	}
	return nil
}
