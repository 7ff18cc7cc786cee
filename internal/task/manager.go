package task

import (
	"log/slog"
	"sync"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// Manager owns the task queue and the per-task context store. The queue and
// the task index are guarded by a single lock; tasks themselves are mutated
// only through their transition methods while held by the workflow.
type Manager struct {
	mu      sync.Mutex
	tasks   map[types.ID]*Task
	queue   []types.ID
	context *TaskContext
	logger  *slog.Logger
}

// NewManager creates an empty task manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tasks:   make(map[types.ID]*Task),
		queue:   make([]types.ID, 0),
		context: NewTaskContext(),
		logger:  logger,
	}
}

// Context returns the shared context store.
func (m *Manager) Context() *TaskContext {
	return m.context
}

// Create builds a pending task from a description and enqueues it.
func (m *Manager) Create(description string) *Task {
	t := New(description)
	m.mu.Lock()
	m.tasks[t.ID] = t
	m.queue = append(m.queue, t.ID)
	m.mu.Unlock()
	m.logger.Debug("task created", "task_id", t.ID, "description", description)
	return t
}

// Submit enqueues an externally built task.
func (m *Manager) Submit(t *Task) error {
	if t == nil || t.ID.IsZero() {
		return types.NewError(types.TASK_NOT_FOUND, "cannot submit a task without an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[t.ID]; exists {
		return types.NewError(types.TASK_INVALID_TRANSITION, "task already submitted")
	}
	m.tasks[t.ID] = t
	m.queue = append(m.queue, t.ID)
	return nil
}

// Get looks up a task by id.
func (m *Manager) Get(id types.ID) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

// Next pops the next pending task off the queue. Tasks that were cancelled
// while queued are skipped.
func (m *Manager) Next() (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		t, ok := m.tasks[id]
		if !ok {
			continue
		}
		if t.Status == StatusPending {
			return t, true
		}
	}
	return nil, false
}

// Cancel marks a task cancelled. Queued tasks are skipped at dequeue time;
// a running task's workflow observes the status at its next loop iteration.
func (m *Manager) Cancel(id types.ID) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return types.NewError(types.TASK_NOT_FOUND, "no such task")
	}
	if err := t.Cancel(); err != nil {
		return err
	}
	m.context.Drop(id)
	m.logger.Info("task cancelled", "task_id", id)
	return nil
}

// Pending returns the number of queued tasks.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// All returns a snapshot of every known task.
func (m *Manager) All() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out
}
