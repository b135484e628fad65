// Package metrics exposes Prometheus counters for task state lifecycle
// events.
//
// Metrics are opt-in: until Init is called every recording function is a
// no-op with zero overhead, so library users who do not run a metrics
// endpoint pay nothing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu      sync.Mutex
	enabled bool

	taskRegistrations      prometheus.Counter
	lockContention         prometheus.Counter
	fatalLockErrors        prometheus.Counter
	cleanCloses            prometheus.Counter
	dirtyCloses            prometheus.Counter
	swallowedCloseFailures prometheus.Counter
	stateWipes             prometheus.Counter
)

// Init registers the lifecycle collectors with reg and enables recording.
// Passing prometheus.DefaultRegisterer is the usual choice. Init is
// idempotent; only the first call registers.
func Init(reg prometheus.Registerer) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	taskRegistrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "silt",
		Name:      "task_registrations_total",
		Help:      "Number of successful task state registrations.",
	})
	lockContention = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "silt",
		Name:      "lock_contention_total",
		Help:      "Number of registrations rejected because the state directory was held by another owner.",
	})
	fatalLockErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "silt",
		Name:      "fatal_lock_errors_total",
		Help:      "Number of state directory lock attempts that faulted.",
	})
	cleanCloses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "silt",
		Name:      "clean_closes_total",
		Help:      "Number of clean state manager closes.",
	})
	dirtyCloses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "silt",
		Name:      "dirty_closes_total",
		Help:      "Number of dirty (error path) state manager closes.",
	})
	swallowedCloseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "silt",
		Name:      "swallowed_close_failures_total",
		Help:      "Number of close failures demoted to warnings during dirty shutdown.",
	})
	stateWipes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "silt",
		Name:      "state_wipes_total",
		Help:      "Number of task state directories wiped.",
	})

	for _, c := range []prometheus.Collector{
		taskRegistrations, lockContention, fatalLockErrors,
		cleanCloses, dirtyCloses, swallowedCloseFailures, stateWipes,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	enabled = true
	return nil
}

// IsEnabled reports whether Init has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

func inc(c prometheus.Counter) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		c.Inc()
	}
}

// IncTaskRegistrations records a successful registration.
func IncTaskRegistrations() { inc(taskRegistrations) }

// IncLockContention records a registration rejected by lock contention.
func IncLockContention() { inc(lockContention) }

// IncFatalLockErrors records a faulted lock attempt.
func IncFatalLockErrors() { inc(fatalLockErrors) }

// IncCleanCloses records a clean close.
func IncCleanCloses() { inc(cleanCloses) }

// IncDirtyCloses records a dirty close.
func IncDirtyCloses() { inc(dirtyCloses) }

// IncSwallowedCloseFailures records a close failure swallowed in dirty mode.
func IncSwallowedCloseFailures() { inc(swallowedCloseFailures) }

// IncStateWipes records a wiped state directory.
func IncStateWipes() { inc(stateWipes) }
