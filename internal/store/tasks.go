package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
)

// TaskStore persists tasks as one JSON file per task under a directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written record. A record that fails to decode is quarantined to a
// .backup file instead of being deleted.
type TaskStore struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewTaskStore creates the directory if needed and returns the store.
func NewTaskStore(fs afero.Fs, dir string, logger *slog.Logger) (*TaskStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "create task store directory", err)
	}
	return &TaskStore{fs: fs, dir: dir, logger: logger}, nil
}

func (s *TaskStore) path(id types.ID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Save writes the task record, replacing any previous version atomically.
func (s *TaskStore) Save(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(t.ToMap(), "", "  ")
	if err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "encode task "+t.ID.String(), err)
	}

	target := s.path(t.ID)
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "write task "+t.ID.String(), err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		s.fs.Remove(tmp)
		return types.WrapError(types.STORE_WRITE_FAILED, "commit task "+t.ID.String(), err)
	}
	return nil
}

// Load reads one task record. A corrupt record is moved aside to
// <id>.json.backup and reported as STORE_CORRUPT.
func (s *TaskStore) Load(id types.ID) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *TaskStore) loadLocked(id types.ID) (*task.Task, error) {
	target := s.path(id)
	data, err := afero.ReadFile(s.fs, target)
	if err != nil {
		return nil, types.WrapError(types.STORE_READ_FAILED, "read task "+id.String(), err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.quarantine(target)
		return nil, types.WrapError(types.STORE_CORRUPT,
			fmt.Sprintf("task record %s is not valid JSON", id), err)
	}
	t, err := task.FromMap(raw)
	if err != nil {
		s.quarantine(target)
		return nil, err
	}
	return t, nil
}

// quarantine moves a bad record to a .backup file so the original bytes
// survive for inspection.
func (s *TaskStore) quarantine(target string) {
	backup := target + ".backup"
	if err := s.fs.Rename(target, backup); err != nil {
		s.logger.Error("failed to quarantine corrupt task record",
			"path", target, "error", err)
		return
	}
	s.logger.Warn("quarantined corrupt task record", "path", target, "backup", backup)
}

// List loads every readable task record, oldest first by creation time.
// Corrupt records are quarantined and skipped, not fatal.
func (s *TaskStore) List() ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, types.WrapError(types.STORE_READ_FAILED, "list task store", err)
	}

	var tasks []*task.Task
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := types.ID(strings.TrimSuffix(name, ".json"))
		t, err := s.loadLocked(id)
		if err != nil {
			s.logger.Warn("skipping unreadable task record", "id", id, "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Delete removes a task record. Deleting a missing record is not an error.
func (s *TaskStore) Delete(id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.path(id))
	if err != nil {
		if exists, statErr := afero.Exists(s.fs, s.path(id)); statErr == nil && !exists {
			return nil
		}
		return types.WrapError(types.STORE_WRITE_FAILED, "delete task "+id.String(), err)
	}
	return nil
}
