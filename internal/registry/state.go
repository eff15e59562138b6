package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ID is the opaque caller identity a test is registered under.
type ID string

// Status is the lifecycle state of a task.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// TaskState is the registry's view of one running test.
//
// Only the cancellation flag is shared: any goroutine may set it through
// [Registry.RequestCancel], and only the owning task reads it. Everything else
// is written by the owner.
type TaskState struct {
	ID        ID
	Kind      string
	CreatedAt time.Time

	cancelRequested atomic.Bool
	status          atomic.Int32
	cancel          context.CancelFunc
	releaseOnce     sync.Once
	onRelease       func()
}

// NewTaskState returns a pending state. cancel, when non-nil, is invoked on a
// cancellation request and again on release.
func NewTaskState(id ID, kind string, cancel context.CancelFunc) *TaskState {
	return &TaskState{
		ID:        id,
		Kind:      kind,
		CreatedAt: time.Now(),
		cancel:    cancel,
	}
}

// OnRelease registers fn to run once when the state is released. It must be
// called before the state is inserted.
func (s *TaskState) OnRelease(fn func()) {
	s.onRelease = fn
}

// CancelRequested reports whether cancellation was requested.
func (s *TaskState) CancelRequested() bool {
	return s.cancelRequested.Load()
}

// Status returns the current lifecycle state.
func (s *TaskState) Status() Status {
	return Status(s.status.Load())
}

// SetStatus records a new lifecycle state. Terminal states are sticky.
func (s *TaskState) SetStatus(next Status) {
	for {
		cur := s.status.Load()
		if Status(cur).Terminal() {
			return
		}
		if s.status.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (s *TaskState) requestCancel() {
	s.cancelRequested.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *TaskState) release() {
	s.releaseOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.onRelease != nil {
			s.onRelease()
		}
	})
}
