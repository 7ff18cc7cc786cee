package task

import (
	"maps"
	"sync"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// TaskContext holds the shared context bucket plus one bucket per task.
// Each bucket is guarded by a single lock; reads and writes are whole-map
// merges, never partial, so concurrent updaters cannot tear a task's view.
type TaskContext struct {
	mu     sync.RWMutex
	shared map[string]any
	tasks  map[types.ID]map[string]any
}

// NewTaskContext creates an empty context store.
func NewTaskContext() *TaskContext {
	return &TaskContext{
		shared: make(map[string]any),
		tasks:  make(map[types.ID]map[string]any),
	}
}

// SetShared merges the given values into the shared bucket, last writer wins.
func (c *TaskContext) SetShared(values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.shared, values)
}

// Set merges the given values into the bucket for taskID, last writer wins.
func (c *TaskContext) Set(taskID types.ID, values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.tasks[taskID]
	if !ok {
		bucket = make(map[string]any)
		c.tasks[taskID] = bucket
	}
	maps.Copy(bucket, values)
}

// Get returns a combined snapshot of the shared bucket overlaid with the
// task's own bucket. The returned map is a copy; mutating it does not affect
// the store.
func (c *TaskContext) Get(taskID types.ID) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	combined := make(map[string]any, len(c.shared))
	maps.Copy(combined, c.shared)
	if bucket, ok := c.tasks[taskID]; ok {
		maps.Copy(combined, bucket)
	}
	return combined
}

// Value looks up a single key, task bucket first, then the shared bucket.
func (c *TaskContext) Value(taskID types.ID, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if bucket, ok := c.tasks[taskID]; ok {
		if v, ok := bucket[key]; ok {
			return v, true
		}
	}
	v, ok := c.shared[key]
	return v, ok
}

// Drop removes a task's bucket once the task is terminal.
func (c *TaskContext) Drop(taskID types.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, taskID)
}
