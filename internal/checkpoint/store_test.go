// internal/checkpoint/store_test.go
package checkpoint

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store, err := NewStore(t.TempDir(), logger)
	require.NoError(t, err)
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	err := store.Save("seattle_python_repos", "X", Progress{Count: 500, Query: "location:seattle language:python"})
	require.NoError(t, err)

	cp, err := store.Load("seattle_python_repos")
	require.NoError(t, err)
	require.NotNil(t, cp)

	assert.Equal(t, "seattle_python_repos", cp.TaskID)
	assert.Equal(t, "X", cp.Cursor)
	assert.Equal(t, 500, cp.Progress.Count)
	assert.Equal(t, "location:seattle language:python", cp.Progress.Query)
	assert.False(t, cp.Timestamp.IsZero())
	assert.Equal(t, "1.0", cp.Version)
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("task", "A", Progress{Count: 100}))
	require.NoError(t, store.Save("task", "B", Progress{Count: 200}))

	cp, err := store.Load("task")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "B", cp.Cursor, "last write wins")
	assert.Equal(t, 200, cp.Progress.Count)
}

func TestStore_LoadAbsent(t *testing.T) {
	store := newTestStore(t)

	cp, err := store.Load("never-saved")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestStore_ClearThenLoad(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("task", "X", Progress{Count: 1}))
	require.NoError(t, store.Clear("task"))

	cp, err := store.Load("task")
	require.NoError(t, err)
	assert.Nil(t, cp)

	// Clearing again is a no-op, not an error.
	assert.NoError(t, store.Clear("task"))
}

func TestStore_CorruptTreatedAsAbsent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "broken.json"), []byte("{not json"), 0o644))

	cp, err := store.Load("broken")
	require.NoError(t, err, "corrupt checkpoints must never raise")
	assert.Nil(t, cp)
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.Save("alpha", "A", Progress{Count: 1}))
	require.NoError(t, store.Save("beta", "B", Progress{Count: 2}))

	ids, err = store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, ids)

	require.NoError(t, store.Clear("alpha"))
	ids, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, ids)
}
