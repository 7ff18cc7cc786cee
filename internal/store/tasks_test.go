package store

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
)

func newTestTaskStore(t *testing.T) (*TaskStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := NewTaskStore(fs, "tasks", nil)
	require.NoError(t, err)
	return store, fs
}

func TestTaskStoreRoundtrip(t *testing.T) {
	store, _ := newTestTaskStore(t)

	tk := task.New("order a new mouse")
	tk.Context["site"] = "shop.example.com"
	require.NoError(t, tk.Start())
	require.NoError(t, tk.Complete(map[string]any{"order_id": "A-1001"}))
	require.NoError(t, store.Save(tk))

	loaded, err := store.Load(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, loaded.ID)
	assert.Equal(t, "order a new mouse", loaded.Description)
	assert.Equal(t, task.StatusCompleted, loaded.Status)
	assert.Equal(t, "shop.example.com", loaded.Context["site"])
	assert.Equal(t, "A-1001", loaded.Result["order_id"])
	require.NotNil(t, loaded.CompletedAt)
	assert.True(t, loaded.CompletedAt.Equal(*tk.CompletedAt))
}

func TestTaskStoreSaveReplacesExisting(t *testing.T) {
	store, _ := newTestTaskStore(t)

	tk := task.New("check the weather")
	require.NoError(t, store.Save(tk))
	require.NoError(t, tk.Start())
	require.NoError(t, store.Save(tk))

	loaded, err := store.Load(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, loaded.Status)
}

func TestTaskStoreQuarantinesCorruptRecord(t *testing.T) {
	store, fs := newTestTaskStore(t)

	id := types.NewID()
	path := "tasks/" + id.String() + ".json"
	require.NoError(t, afero.WriteFile(fs, path, []byte("{not json"), 0o644))

	_, err := store.Load(id)
	require.Error(t, err)
	var agentErr *types.AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, types.STORE_CORRUPT, agentErr.Code)

	// The bad bytes move aside rather than disappearing.
	backedUp, err := afero.Exists(fs, path+".backup")
	require.NoError(t, err)
	assert.True(t, backedUp)
	original, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, original)
}

func TestTaskStoreQuarantinesUnknownStatus(t *testing.T) {
	store, fs := newTestTaskStore(t)

	id := types.NewID()
	path := "tasks/" + id.String() + ".json"
	record := `{"id":"` + id.String() + `","description":"x","status":"exploded",` +
		`"created_at":"2026-08-25T10:00:00Z","updated_at":"2026-08-25T10:00:00Z"}`
	require.NoError(t, afero.WriteFile(fs, path, []byte(record), 0o644))

	_, err := store.Load(id)
	require.Error(t, err)
	backedUp, _ := afero.Exists(fs, path+".backup")
	assert.True(t, backedUp)
}

func TestTaskStoreListSkipsCorruptAndSorts(t *testing.T) {
	store, fs := newTestTaskStore(t)

	first := task.New("first task")
	second := task.New("second task")
	second.CreatedAt = second.CreatedAt.Add(1) // deterministic order
	require.NoError(t, store.Save(second))
	require.NoError(t, store.Save(first))
	require.NoError(t, afero.WriteFile(fs, "tasks/"+types.NewID().String()+".json",
		[]byte("garbage"), 0o644))

	tasks, err := store.List()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "first task", tasks[0].Description)
	assert.Equal(t, "second task", tasks[1].Description)
}

func TestTaskStoreDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestTaskStore(t)

	tk := task.New("short lived")
	require.NoError(t, store.Save(tk))
	require.NoError(t, store.Delete(tk.ID))
	assert.NoError(t, store.Delete(tk.ID))

	_, err := store.Load(tk.ID)
	assert.Error(t, err)
}
