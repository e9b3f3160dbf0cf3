package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arlojenkins/exq/internal/job"
)

// HandlerFunc processes a dequeued job and returns an optional result
// payload to be stored by the completion notifier.
type HandlerFunc func(ctx context.Context, j *job.Job) (json.RawMessage, error)

// WorkerNotFoundError is returned when a job's class has no registered
// handler.
type WorkerNotFoundError struct {
	Class string
}

func (e *WorkerNotFoundError) Error() string {
	return fmt.Sprintf("no handler registered for class %q", e.Class)
}

// Registry maps a job's class (the part before any "/method" selector) to
// a handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler for the given class. The handler receives the
// full job, including any "/method" selector, so it may dispatch
// internally.
func (r *Registry) Register(class string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[class] = handler
}

// Get retrieves a handler by class.
func (r *Registry) Get(class string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[class]
	return h, ok
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch looks up the handler for j's class (ignoring the method
// selector for lookup purposes) and invokes it. Returns WorkerNotFoundError
// if no handler is registered.
func (r *Registry) Dispatch(ctx context.Context, j *job.Job) (json.RawMessage, error) {
	class, _ := j.MethodSelector()
	handler, ok := r.Get(class)
	if !ok {
		return nil, &WorkerNotFoundError{Class: class}
	}
	return handler(ctx, j)
}
