// Package registry tracks the in-flight simulated tests.
//
// A [Registry] maps a caller supplied [ID] to the [TaskState] of the test
// running on its behalf. Every operation takes the same mutex, so inserts,
// lookups, removals and cancellation requests are linearizable with respect to
// each other. The registry is an ordinary value owned by whoever constructs it;
// there is no process-wide instance.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/torosent/linkprobe/internal/logging"
)

var (
	// ErrAllocationFailed is returned by Insert when the registry is at capacity.
	ErrAllocationFailed = errors.New("registry: allocation failed")
	// ErrDuplicateID is returned by Insert when the ID already has a running task.
	ErrDuplicateID = errors.New("registry: duplicate id")
	// ErrClosed is returned by Insert after Close.
	ErrClosed = errors.New("registry: closed")
)

// Options configure a Registry.
type Options struct {
	MaxTasks int          // 0 means unbounded
	Logger   *slog.Logger // nil discards diagnostics
}

// Registry is a mutex guarded map of running tasks.
type Registry struct {
	mu     sync.Mutex
	tasks  map[ID]*TaskState
	max    int
	closed bool
	logger *slog.Logger
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.MaxTasks < 0 {
		opts.MaxTasks = 0
	}
	return &Registry{
		tasks:  make(map[ID]*TaskState),
		max:    opts.MaxTasks,
		logger: logging.OrDiscard(opts.Logger).With("component", "registry"),
	}
}

// Insert adds state under state.ID.
func (r *Registry) Insert(state *TaskState) error {
	if state == nil {
		return fmt.Errorf("registry: nil task state")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, exists := r.tasks[state.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, state.ID)
	}
	if r.max > 0 && len(r.tasks) >= r.max {
		return fmt.Errorf("%w: %d tasks registered", ErrAllocationFailed, len(r.tasks))
	}
	r.tasks[state.ID] = state
	return nil
}

// Find returns the state registered under id.
func (r *Registry) Find(id ID) (*TaskState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.tasks[id]
	return state, ok
}

// Remove deletes the entry for id and releases its state. Removing an unknown
// id is a no-op; a cancel request can race with natural completion.
func (r *Registry) Remove(id ID) bool {
	r.mu.Lock()
	state, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("remove: task not found", "id", id)
		return false
	}
	state.release()
	return true
}

// Release removes state only if it is still the entry registered under its ID,
// then releases it. It reports whether the entry was removed.
func (r *Registry) Release(state *TaskState) bool {
	if state == nil {
		return false
	}
	r.mu.Lock()
	current, ok := r.tasks[state.ID]
	owned := ok && current == state
	if owned {
		delete(r.tasks, state.ID)
	}
	r.mu.Unlock()

	if !owned {
		r.logger.Debug("release: task not registered", "id", state.ID)
	}
	state.release()
	return owned
}

// RequestCancel sets the cancellation flag of the task registered under id.
// It reports false when no such task exists; the test may already have ended.
func (r *Registry) RequestCancel(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.tasks[id]
	if !ok {
		r.logger.Info("cancel: task not found", "id", id)
		return false
	}
	state.requestCancel()
	return true
}

// CancelAll flags every registered task and returns how many were flagged.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, state := range r.tasks {
		state.requestCancel()
	}
	return len(r.tasks)
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []ID {
	r.mu.Lock()
	ids := make([]ID, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close rejects further inserts. Registered tasks are left in place so they can
// still remove themselves.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
