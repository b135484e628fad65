package lifecycle

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/silt-io/silt/internal/logger"
	"github.com/silt-io/silt/pkg/store"
	"github.com/silt-io/silt/pkg/store/memory"
	"github.com/silt-io/silt/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the cross-collaborator call sequence so tests can assert
// strict ordering, not just that calls happened.
type recorder struct {
	calls []string
}

func (r *recorder) record(call string) {
	r.calls = append(r.calls, call)
}

type fakeTopology struct {
	stores []store.StateStore
}

func (f *fakeTopology) StateStores() []store.StateStore { return f.stores }

type fakeManager struct {
	rec     *recorder
	id      task.ID
	baseDir string

	closeErr error
	initErr  error

	initFlags []bool
}

func (f *fakeManager) TaskID() task.ID { return f.id }
func (f *fakeManager) BaseDir() string {
	f.rec.record("baseDir")
	return f.baseDir
}
func (f *fakeManager) InitializeStoreOffsetsFromCheckpoint(dirEmpty bool) error {
	f.rec.record(fmt.Sprintf("initOffsets:%t", dirEmpty))
	f.initFlags = append(f.initFlags, dirEmpty)
	return f.initErr
}
func (f *fakeManager) Close() error {
	f.rec.record("close")
	return f.closeErr
}

type fakeRegistry struct {
	rec *recorder

	acquired  bool
	lockErr   error
	unlockErr error
	empty     bool
	emptyErr  error
}

func (f *fakeRegistry) Lock(id task.ID) (bool, error) {
	f.rec.record("lock:" + id.String())
	return f.acquired, f.lockErr
}
func (f *fakeRegistry) Unlock(id task.ID) error {
	f.rec.record("unlock:" + id.String())
	return f.unlockErr
}
func (f *fakeRegistry) TaskDirIsEmpty(id task.ID) (bool, error) {
	f.rec.record("isEmpty:" + id.String())
	return f.empty, f.emptyErr
}

type fakeContext struct {
	rec         *recorder
	registerErr map[string]error
}

func (f *fakeContext) Uninitialize() {
	f.rec.record("uninitialize")
}
func (f *fakeContext) Register(s store.StateStore, cb store.RestoreCallback) error {
	f.rec.record("register:" + s.Name())
	return f.registerErr[s.Name()]
}

func newFixtures() (*recorder, *fakeManager, *fakeRegistry, *fakeContext) {
	rec := &recorder{}
	mgr := &fakeManager{rec: rec, id: task.NewID(0, 0)}
	reg := &fakeRegistry{rec: rec, acquired: true, empty: true}
	pctx := &fakeContext{rec: rec, registerErr: map[string]error{}}
	return rec, mgr, reg, pctx
}

func mockStores(names ...string) []store.StateStore {
	stores := make([]store.StateStore, len(names))
	for i, name := range names {
		stores[i] = memory.NewMemoryStore(name, false)
	}
	return stores
}

func TestRegisterWithEmptyTopology(t *testing.T) {
	rec, mgr, reg, pctx := newFixtures()

	err := RegisterStateStores("logPrefix:", &fakeTopology{}, mgr, reg, pctx)
	require.NoError(t, err)
	assert.Empty(t, rec.calls, "a store-less task must cause no lock, bind or init calls")
}

func TestRegisterFailsWhenLockUnavailable(t *testing.T) {
	rec, mgr, reg, pctx := newFixtures()
	reg.acquired = false

	err := RegisterStateStores("logPrefix:", &fakeTopology{stores: mockStores("store")}, mgr, reg, pctx)
	require.Error(t, err)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrLockUnavailable, le.Code)
	assert.Equal(t, "logPrefix:Failed to lock the state directory for task 0_0", err.Error())

	assert.Equal(t, []string{"lock:0_0"}, rec.calls, "no bindings may occur after a contended lock")
}

func TestRegisterWrapsLockFault(t *testing.T) {
	rec, mgr, reg, pctx := newFixtures()
	fault := errors.New("fail to lock state dir")
	reg.lockErr = fault

	err := RegisterStateStores("logPrefix:", &fakeTopology{stores: mockStores("store")}, mgr, reg, pctx)
	require.Error(t, err)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrFatalLock, le.Code)
	assert.Equal(t, "logPrefix:Fatal error while trying to lock the state directory for task 0_0", err.Error())
	assert.True(t, errors.Is(err, fault), "the underlying fault must be preserved as cause")

	assert.Equal(t, []string{"lock:0_0"}, rec.calls)
}

func TestRegisterBindsStoresInDeclarationOrder(t *testing.T) {
	rec, mgr, reg, pctx := newFixtures()
	reg.empty = true

	err := RegisterStateStores("logPrefix:",
		&fakeTopology{stores: mockStores("store1", "store2")}, mgr, reg, pctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"lock:0_0",
		"isEmpty:0_0",
		"uninitialize",
		"register:store1",
		"uninitialize",
		"register:store2",
		"initOffsets:true",
	}, rec.calls)
	assert.Equal(t, []bool{true}, mgr.initFlags)
}

func TestRegisterPassesNonEmptyFlagThrough(t *testing.T) {
	_, mgr, reg, pctx := newFixtures()
	reg.empty = false

	err := RegisterStateStores("logPrefix:",
		&fakeTopology{stores: mockStores("store")}, mgr, reg, pctx)
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, mgr.initFlags)
}

func TestRegisterBindingFailurePropagatesUnmodified(t *testing.T) {
	rec, mgr, reg, pctx := newFixtures()
	bindErr := errors.New("store init exploded")
	pctx.registerErr["store1"] = bindErr

	err := RegisterStateStores("logPrefix:",
		&fakeTopology{stores: mockStores("store1", "store2")}, mgr, reg, pctx)
	require.Error(t, err)
	assert.Same(t, bindErr, err, "binding failures must not be wrapped")

	assert.Equal(t, []string{
		"lock:0_0",
		"isEmpty:0_0",
		"uninitialize",
		"register:store1",
	}, rec.calls, "the failing store aborts the remaining bindings")
}

func TestRegisterEmptinessQueryFailurePropagates(t *testing.T) {
	rec, mgr, reg, pctx := newFixtures()
	queryErr := errors.New("stat failed")
	reg.emptyErr = queryErr

	err := RegisterStateStores("logPrefix:",
		&fakeTopology{stores: mockStores("store")}, mgr, reg, pctx)
	assert.Same(t, queryErr, err)
	assert.Equal(t, []string{"lock:0_0", "isEmpty:0_0"}, rec.calls)
}

func TestRegisterOffsetInitFailurePropagatesUnmodified(t *testing.T) {
	_, mgr, reg, pctx := newFixtures()
	initErr := errors.New("corrupt checkpoint")
	mgr.initErr = initErr

	err := RegisterStateStores("logPrefix:",
		&fakeTopology{stores: mockStores("store")}, mgr, reg, pctx)
	assert.Same(t, initErr, err)
}

func TestCloseRejectsCleanAndWipeTogether(t *testing.T) {
	rec, mgr, reg, _ := newFixtures()

	err := CloseStateManager("logPrefix:", true, true, mgr, reg, task.Active)
	require.Error(t, err)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrInvalidArgument, le.Code)
	assert.Empty(t, rec.calls, "the precondition failure must precede any side effect")
}

func TestCloseClean(t *testing.T) {
	rec, mgr, reg, _ := newFixtures()

	err := CloseStateManager("logPrefix:", true, false, mgr, reg, task.Active)
	require.NoError(t, err)
	assert.Equal(t, []string{"close", "unlock:0_0"}, rec.calls)
}

func TestCloseCleanSurfacesUnlockFault(t *testing.T) {
	rec, mgr, reg, _ := newFixtures()
	fault := errors.New("timeout")
	reg.unlockErr = fault

	err := CloseStateManager("logPrefix:", true, false, mgr, reg, task.Active)
	require.Error(t, err)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrUnlockFailed, le.Code)
	assert.Equal(t, "logPrefix:Failed to release state dir lock", err.Error())
	assert.True(t, errors.Is(err, fault))
	assert.Equal(t, []string{"close", "unlock:0_0"}, rec.calls)
}

func TestCloseCleanCloseErrorTakesPriorityOverUnlockError(t *testing.T) {
	rec, mgr, reg, _ := newFixtures()
	closeFault := errors.New("state manager failed to close")
	unlockFault := errors.New("timeout")
	mgr.closeErr = closeFault
	reg.unlockErr = unlockFault

	err := CloseStateManager("logPrefix:", true, false, mgr, reg, task.Active)
	require.Error(t, err)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCloseFailed, le.Code)
	assert.True(t, errors.Is(err, closeFault), "the close fault is the surfaced cause")
	assert.False(t, errors.Is(err, unlockFault), "the unlock fault must not be surfaced")
	assert.Equal(t, []string{"close", "unlock:0_0"}, rec.calls, "unlock still runs after a failed close")
}

func TestCloseCleanStructuredCloseErrorNotDoubleWrapped(t *testing.T) {
	_, mgr, reg, _ := newFixtures()
	structured := &Error{Code: ErrCloseFailed, Message: "state manager failed to close"}
	mgr.closeErr = structured

	err := CloseStateManager("logPrefix:", true, false, mgr, reg, task.Active)
	require.Error(t, err)
	assert.Same(t, error(structured), err, "an already structured error is surfaced unchanged")
	assert.Equal(t, "state manager failed to close", err.Error())
}

func TestCloseDirtySwallowsCloseError(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "WARN", "text")
	t.Cleanup(func() { logger.InitWithWriter(os.Stderr, "INFO", "text") })

	rec, mgr, reg, _ := newFixtures()
	mgr.closeErr = errors.New("state manager failed to close")

	err := CloseStateManager("logPrefix:", false, false, mgr, reg, task.Active)
	require.NoError(t, err, "dirty close must not surface the close failure")

	assert.Equal(t, []string{"close", "unlock:0_0"}, rec.calls, "unlock still runs")
	assert.Contains(t, buf.String(),
		"logPrefix:Closing ACTIVE task 0_0 uncleanly and swallows an exception")
}

func TestCloseDirtyLogsUnlockFault(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "WARN", "text")
	t.Cleanup(func() { logger.InitWithWriter(os.Stderr, "INFO", "text") })

	_, mgr, reg, _ := newFixtures()
	reg.unlockErr = errors.New("timeout")

	err := CloseStateManager("logPrefix:", false, false, mgr, reg, task.Standby)
	require.NoError(t, err, "dirty close must not surface the unlock failure")
	assert.Contains(t, buf.String(), "Failed to release state dir lock of STANDBY task 0_0")
}

func TestCloseDirtyWipesStateDirectory(t *testing.T) {
	rec, mgr, reg, _ := newFixtures()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir+"/counts", 0o755))
	require.NoError(t, os.WriteFile(dir+"/counts/data", []byte("x"), 0o644))
	mgr.baseDir = dir

	err := CloseStateManager("logPrefix:", false, true, mgr, reg, task.Active)
	require.NoError(t, err)

	assert.Equal(t, []string{"close", "unlock:0_0", "baseDir"}, rec.calls,
		"the wipe reads the base dir only after close and unlock")
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "the state directory must be gone")
}

func TestCloseWipeFailureAlwaysSurfaced(t *testing.T) {
	_, mgr, reg, _ := newFixtures()
	mgr.baseDir = "/some/task/dir"

	fault := errors.New("deletion failed")
	removeAll = func(string) error { return fault }
	t.Cleanup(func() { removeAll = os.RemoveAll })

	err := CloseStateManager("logPrefix:", false, true, mgr, reg, task.Active)
	require.Error(t, err)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrWipeFailed, le.Code)
	assert.Equal(t, "Failed to wiping state stores for task 0_0", err.Error())
	assert.True(t, errors.Is(err, fault))
}

func TestCloseWipeFailureSurfacedEvenWithSwallowedCloseError(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "WARN", "text")
	t.Cleanup(func() { logger.InitWithWriter(os.Stderr, "INFO", "text") })

	_, mgr, reg, _ := newFixtures()
	mgr.closeErr = errors.New("close exploded")
	mgr.baseDir = "/some/task/dir"

	removeAll = func(string) error { return errors.New("deletion failed") }
	t.Cleanup(func() { removeAll = os.RemoveAll })

	err := CloseStateManager("logPrefix:", false, true, mgr, reg, task.Active)
	require.Error(t, err)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrWipeFailed, le.Code)
	assert.Contains(t, buf.String(), "uncleanly and swallows an exception")
}

func TestTaskIDFormatInMessages(t *testing.T) {
	_, mgr, reg, pctx := newFixtures()
	mgr.id = task.NewID(3, 41)
	reg.acquired = false

	err := RegisterStateStores("prefix/", &fakeTopology{stores: mockStores("s")}, mgr, reg, pctx)
	require.Error(t, err)
	assert.Equal(t, "prefix/Failed to lock the state directory for task 3_41", err.Error())
}
