// Package statedir manages the on-disk layout of task state and the
// per-task exclusive locks over it.
//
// All task state lives under a single root:
//
//	<root>/
//	  0_0/              state directory for task 0_0
//	    .lock           advisory lock file (flock)
//	    .checkpoint     offset checkpoint (pkg/checkpoint)
//	    counts/         one subdirectory per persistent store
//	  0_1/
//	  ...
//
// Locks are real OS advisory locks (flock), so exclusivity holds across
// processes on the same machine, and an in-process holder table keeps a
// second lock attempt from the same process honest: it reports contention
// instead of silently re-acquiring.
package statedir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/silt-io/silt/internal/logger"
	"github.com/silt-io/silt/pkg/task"
	"golang.org/x/sys/unix"
)

// LockFileName is the name of the advisory lock file in each task directory.
const LockFileName = ".lock"

// StateDirectory is the lock registry for one state root. It is safe for
// concurrent use by multiple task workers.
type StateDirectory struct {
	root     string
	instance uuid.UUID

	mu      sync.Mutex
	holders map[task.ID]*os.File
}

// New creates a StateDirectory rooted at root, creating the root directory
// if needed. The registry gets a fresh instance id, recorded in every lock
// file it writes, so a stale lock can be traced back to its owner.
func New(root string) (*StateDirectory, error) {
	if root == "" {
		return nil, fmt.Errorf("state directory root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state root %s: %w", root, err)
	}
	return &StateDirectory{
		root:     root,
		instance: uuid.New(),
		holders:  make(map[task.ID]*os.File),
	}, nil
}

// Root returns the state root path.
func (d *StateDirectory) Root() string { return d.root }

// DirForTask returns the task's state directory path. The directory is not
// created by this call.
func (d *StateDirectory) DirForTask(id task.ID) string {
	return filepath.Join(d.root, id.String())
}

// Lock attempts to acquire the exclusive lock on the task's state directory,
// creating the directory if it does not exist yet.
//
// Returns (true, nil) when the lock was acquired, (false, nil) when another
// owner holds it (in this process or another), and a non-nil error only when
// the lock mechanism itself faulted.
func (d *StateDirectory) Lock(id task.ID) (bool, error) {
	d.mu.Lock()
	if _, held := d.holders[id]; held {
		d.mu.Unlock()
		return false, nil
	}
	d.mu.Unlock()

	taskDir := d.DirForTask(id)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create task directory %s: %w", taskDir, err)
	}

	lockPath := filepath.Join(taskDir, LockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("failed to flock %s: %w", lockPath, err)
	}

	// Stamp the lock file for diagnostics. Failure here is not fatal: the
	// flock is what matters.
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "pid=%d\ninstance=%s\n", os.Getpid(), d.instance)
	}

	d.mu.Lock()
	d.holders[id] = f
	d.mu.Unlock()

	logger.Debug("Acquired state directory lock", "task_id", id.String(), "dir", taskDir)
	return true, nil
}

// Unlock releases the task's directory lock. Releasing a lock this registry
// does not hold is a no-op.
func (d *StateDirectory) Unlock(id task.ID) error {
	d.mu.Lock()
	f, held := d.holders[id]
	if held {
		delete(d.holders, id)
	}
	d.mu.Unlock()

	if !held {
		return nil
	}

	flockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if flockErr != nil {
		return fmt.Errorf("failed to release flock for task %s: %w", id, flockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock file for task %s: %w", id, closeErr)
	}

	logger.Debug("Released state directory lock", "task_id", id.String())
	return nil
}

// Locked reports whether this registry currently holds the task's lock.
func (d *StateDirectory) Locked(id task.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, held := d.holders[id]
	return held
}

// TaskDirIsEmpty reports whether the task's directory holds no state.
// Bookkeeping files (the lock file, checkpoint files and temp files, all
// dot-prefixed) do not count as state. The result is only meaningful while
// the caller holds the task's lock.
func (d *StateDirectory) TaskDirIsEmpty(id task.ID) (bool, error) {
	entries, err := os.ReadDir(d.DirForTask(id))
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to list task directory for %s: %w", id, err)
	}

	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			return false, nil
		}
	}
	return true, nil
}

// ListTaskDirs returns the ids of all task directories under the root, in
// ascending id order. Entries that do not parse as task ids are skipped.
func (d *StateDirectory) ListTaskDirs() ([]task.ID, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list state root %s: %w", d.root, err)
	}

	var ids []task.ID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := task.ParseID(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids, nil
}

// CleanRemovedTasks deletes task directories that are not locked by any
// owner and have not been modified within the grace period. Returns the ids
// that were removed.
//
// Directories whose lock cannot be taken are presumed live and skipped.
func (d *StateDirectory) CleanRemovedTasks(grace time.Duration) ([]task.ID, error) {
	ids, err := d.ListTaskDirs()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var removed []task.ID
	for _, id := range ids {
		taskDir := d.DirForTask(id)

		info, err := os.Stat(taskDir)
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < grace {
			continue
		}

		acquired, err := d.Lock(id)
		if err != nil || !acquired {
			continue
		}

		rmErr := os.RemoveAll(taskDir)
		if unlockErr := d.Unlock(id); unlockErr != nil {
			logger.Warn("Failed to release lock while cleaning task directory",
				"task_id", id.String(), "error", unlockErr)
		}
		if rmErr != nil {
			return removed, fmt.Errorf("failed to remove task directory %s: %w", taskDir, rmErr)
		}

		logger.Info("Removed obsolete task directory", "task_id", id.String(), "dir", taskDir)
		removed = append(removed, id)
	}
	return removed, nil
}
