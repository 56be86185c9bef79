package scheduler

import (
	"reflect"

	"github.com/iancoleman/strcase"
	"golang.org/x/time/rate"
)

// SystemID identifies a registered system. It is only meaningful relative to
// the Scheduler that assigned it, and is reused after RemoveSystem like any
// dgraph vertex id.
type SystemID int

// Status is a system node's lifecycle state.
type Status int

const (
	// StatusOff is the state a node is created in, and the state a
	// successful Shutdown returns it to.
	StatusOff Status = iota
	// StatusOK means the last Awake succeeded and no Update has failed
	// since.
	StatusOK
	// StatusDeprecated is a caller-set state that causes the scheduler
	// to skip the node entirely.
	StatusDeprecated
	// StatusErr means the last op raised an error; terminal for the
	// frame, not permanent — a fresh Awake clears it.
	StatusErr
)

// String renders the status for logging.
func (s Status) String() string {
	switch s {
	case StatusOff:
		return "OFF"
	case StatusOK:
		return "OK"
	case StatusDeprecated:
		return "DEPRECATED"
	case StatusErr:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}

// System is the capability set every registered node must satisfy: it can be
// woken up, updated once per frame, and shut down, and it can be asked for
// handles a dependent system can use to find it.
type System interface {
	Awake() error
	Update() error
	Shutdown() error
	ObjectHandle() interface{}
	CapabilityHandle() interface{}
}

// DependencyKeyer lets a system override the default type-derived
// dependency key used for deduplication.
type DependencyKeyer interface {
	DependencyKey() string
}

// DependencyReceiver lets a system accept its resolved dependencies (the
// key->handle map built from the edges recorded by AddDependency)
// immediately before the scheduler invokes any of its ops. This is how a
// system reaches its dependencies without holding a back-reference to the
// scheduler: the map is handed to it fresh at pass time.
type DependencyReceiver interface {
	ResolveDependencies(deps map[string]interface{})
}

// RetryPolicy bounds how many times, and how often, a caller may retry a
// node that ended a pass in ERR status via Scheduler.Retry. The scheduler
// never retries a failed node on its own — a failed op's status stays ERR
// until the caller explicitly retries it.
type RetryPolicy struct {
	// Retry is the number of retry attempts the caller may make via
	// Scheduler.Retry; -1 means unlimited, 0 means retrying is disabled
	// entirely (Retry always fails).
	Retry int
	// Limit and Burst bound how often the caller's retries may succeed,
	// so a caller retrying in a tight loop can't spin a persistently
	// failing system.
	Limit rate.Limit
	Burst int
}

// node is the scheduler's internal bookkeeping for one registered system.
type node struct {
	id   SystemID
	sys  System
	key  string
	deps map[string]SystemID

	enabled        bool
	mainThreadOnly bool
	status         Status
	lastErr        error

	retry     *RetryPolicy
	limiter   *rate.Limiter
	retryLeft int
}

func defaultDependencyKey(sys System) string {
	if keyer, ok := sys.(DependencyKeyer); ok {
		if k := keyer.DependencyKey(); k != "" {
			return k
		}
	}
	t := reflect.TypeOf(sys)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return strcase.ToSnake(t.Name())
}
