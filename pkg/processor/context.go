// Package processor holds the per-task runtime context through which state
// stores are bound into an executing task.
package processor

import (
	"fmt"

	"github.com/silt-io/silt/pkg/statemgr"
	"github.com/silt-io/silt/pkg/store"
	"github.com/silt-io/silt/pkg/task"
	"github.com/silt-io/silt/pkg/topology"
)

// TaskContext is the runtime context of one task.
//
// During registration the lifecycle coordinator marks the context
// uninitialized before each store binding, so nothing running inside a
// store's own initialization can mistake the task for ready. Once every
// store is bound the task runtime calls MarkInitialized and processors may
// look stores up by name.
type TaskContext struct {
	taskID task.ID
	topo   *topology.Topology
	mgr    *statemgr.StateManager

	initialized bool
}

// NewTaskContext creates a context binding stores into mgr, accepting only
// stores declared by topo.
func NewTaskContext(id task.ID, topo *topology.Topology, mgr *statemgr.StateManager) *TaskContext {
	return &TaskContext{taskID: id, topo: topo, mgr: mgr}
}

// TaskID returns the owning task's id.
func (c *TaskContext) TaskID() task.ID { return c.taskID }

// Uninitialize marks the context as not ready. Store lookups fail until
// MarkInitialized is called.
func (c *TaskContext) Uninitialize() {
	c.initialized = false
}

// MarkInitialized marks the context ready for store lookups.
func (c *TaskContext) MarkInitialized() {
	c.initialized = true
}

// Initialized reports whether the context is ready.
func (c *TaskContext) Initialized() bool { return c.initialized }

// Register binds a declared store and its restore callback into the task's
// state manager. Registering a store the topology does not declare is an
// error, as is registering the same store twice.
func (c *TaskContext) Register(s store.StateStore, cb store.RestoreCallback) error {
	if _, declared := c.topo.StoreByName(s.Name()); !declared {
		return fmt.Errorf("store %q is not declared by the topology of task %s", s.Name(), c.taskID)
	}
	return c.mgr.RegisterStore(s, cb)
}

// Store looks up a bound store by name. It fails while the context is
// uninitialized: processors must not touch stores mid-registration.
func (c *TaskContext) Store(name string) (store.StateStore, error) {
	if !c.initialized {
		return nil, fmt.Errorf("task %s is not initialized", c.taskID)
	}
	s, ok := c.mgr.Store(name)
	if !ok {
		return nil, fmt.Errorf("store %q is not registered for task %s", name, c.taskID)
	}
	return s, nil
}
