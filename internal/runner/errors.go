package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/pool"
	"github.com/torosent/linkprobe/internal/registry"
)

// NoResult is the value passed to the terminal callback with any kind other
// than ErrorKindNone.
const NoResult = -1.0

var (
	// ErrShutdown is reported to tests started after Shutdown.
	ErrShutdown = errors.New("runner: shut down")
	// ErrTaskPanic wraps a panic recovered inside a task.
	ErrTaskPanic = errors.New("runner: task panicked")
)

// ErrorKind classifies the outcome delivered to the terminal callback.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindOutOfMemory
	ErrorKindCouldNotCreateTask
	ErrorKindCancelled
	ErrorKindInvalidConfig
	ErrorKindDuplicateID
	ErrorKindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindOutOfMemory:
		return "out_of_memory"
	case ErrorKindCouldNotCreateTask:
		return "could_not_create_task"
	case ErrorKindCancelled:
		return "cancelled"
	case ErrorKindInvalidConfig:
		return "invalid_config"
	case ErrorKindDuplicateID:
		return "duplicate_id"
	case ErrorKindInternal:
		return "internal"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Status is the task status a terminal kind leaves behind.
func (k ErrorKind) Status() registry.Status {
	switch k {
	case ErrorKindNone:
		return registry.StatusCompleted
	case ErrorKindCancelled:
		return registry.StatusCancelled
	default:
		return registry.StatusFailed
	}
}

// KindFromError maps an error from the registry, spawner or strategy to the
// kind reported to callers.
func KindFromError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, registry.ErrAllocationFailed), errors.Is(err, measure.ErrSampleBuffer):
		return ErrorKindOutOfMemory
	case errors.Is(err, registry.ErrDuplicateID):
		return ErrorKindDuplicateID
	case errors.Is(err, pool.ErrRejected), errors.Is(err, pool.ErrClosed),
		errors.Is(err, registry.ErrClosed), errors.Is(err, ErrShutdown):
		return ErrorKindCouldNotCreateTask
	case errors.Is(err, measure.ErrCancelled), errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, measure.ErrUnknownTestType):
		return ErrorKindInvalidConfig
	default:
		return ErrorKindInternal
	}
}

// Outcome is a terminal result in the channel form of the API.
type Outcome struct {
	ID    registry.ID
	Value float64
	Kind  ErrorKind
	Err   error // underlying cause, nil when Kind is ErrorKindNone
}

// OK reports whether the test completed.
func (o Outcome) OK() bool {
	return o.Kind == ErrorKindNone
}
