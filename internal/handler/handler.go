// Package handler routes tasks to specialized domain handlers. A handler
// recognizes a family of task descriptions, seeds the task with a plan
// shaped for that domain, and delegates execution to the workflow.
package handler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
	"github.com/webpilot-ai/webpilot/internal/workflow"
)

// Runner executes a prepared task to a terminal state. *workflow.Workflow
// satisfies it.
type Runner interface {
	Run(ctx context.Context, t *task.Task) (*workflow.Report, error)
}

var _ Runner = (*workflow.Workflow)(nil)

// Handler is a specialized executor for one family of tasks.
type Handler interface {
	// ID names the handler in results and logs.
	ID() string
	// CanHandle reports whether the task belongs to this handler's family.
	CanHandle(t *task.Task) bool
	// Execute runs the task and returns a result map for the task record.
	Execute(ctx context.Context, t *task.Task) (map[string]any, error)
}

// Registry holds handlers in registration order; the first handler whose
// CanHandle accepts a task wins.
type Registry struct {
	mu       sync.Mutex
	handlers []Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register appends a handler. Registering an ID twice replaces the earlier
// entry in place so precedence is stable.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.handlers {
		if existing.ID() == h.ID() {
			r.handlers[i] = h
			return
		}
	}
	r.handlers = append(r.handlers, h)
	r.logger.Info("registered task handler", "handler", h.ID())
}

// Unregister removes the handler with the given ID, if present.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.ID() == id {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			r.logger.Info("unregistered task handler", "handler", id)
			return
		}
	}
}

// Get returns the handler with the given ID.
func (r *Registry) Get(id string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handlers {
		if h.ID() == id {
			return h, true
		}
	}
	return nil, false
}

// Find returns the first handler that accepts the task.
func (r *Registry) Find(t *task.Task) (Handler, bool) {
	r.mu.Lock()
	handlers := make([]Handler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	for _, h := range handlers {
		if h.CanHandle(t) {
			return h, true
		}
	}
	return nil, false
}

// Execute routes the task to a suitable handler and runs it. The handler ID
// is recorded in the result under "handler_used".
func (r *Registry) Execute(ctx context.Context, t *task.Task) (map[string]any, error) {
	h, ok := r.Find(t)
	if !ok {
		return nil, types.NewError(types.TASK_NOT_FOUND,
			"no suitable handler for task: "+t.Description)
	}

	r.logger.Info("executing task with handler", "handler", h.ID(), "task_id", t.ID)
	result, err := h.Execute(ctx, t)
	if result == nil {
		result = map[string]any{}
	}
	result["handler_used"] = h.ID()
	if err != nil {
		r.logger.Error("handler execution failed",
			"handler", h.ID(), "task_id", t.ID, "error", err)
		return result, err
	}
	return result, nil
}

// IDs lists registered handler IDs in precedence order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		ids = append(ids, h.ID())
	}
	return ids
}
