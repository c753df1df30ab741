package taskcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voicetask/internal/task"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	due := time.Date(2024, 3, 2, 17, 0, 0, 0, time.UTC)
	created := time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)
	records := []task.Record{
		task.Record{ID: "b", Title: "Second", DueDate: &due, CreatedAt: created, UpdatedAt: created}.WithStatus(task.StatusDone),
		task.Record{ID: "a", Title: "First"}.WithStatus(task.StatusToDo),
	}
	require.NoError(t, store.SaveSnapshot(ctx, records))

	loaded, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, records, loaded)

	require.NoError(t, store.SaveSnapshot(ctx, records[:1]))
	loaded, err = store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestSQLiteStoreOrderAndClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveOrder(ctx, map[string]int{"a": 1, "b": 0}))
	order, err := store.LoadOrder(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 1, "b": 0}, order)

	require.NoError(t, store.Clear(ctx))
	order, err = store.LoadOrder(ctx)
	require.NoError(t, err)
	require.Empty(t, order)
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveOrder(ctx, map[string]int{"x": 3}))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	order, err := store.LoadOrder(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, order["x"])
}

func TestSQLiteStoreRebuildsOnSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveOrder(ctx, map[string]int{"x": 3}))
	_, err = store.db.ExecContext(ctx, "UPDATE schema_version SET version = 0")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	order, err := store.LoadOrder(ctx)
	require.NoError(t, err)
	require.Empty(t, order)
}

func TestCacheWarmsFromStoreAndPersistsOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := NewCache(seededRemote(), store, nil)
	require.NoError(t, first.Load(ctx))
	require.NoError(t, first.Reorder(ctx, []string{"2", "1"}))

	offline := seededRemote()
	offline.listErr = context.DeadlineExceeded
	second := NewCache(offline, store, nil)
	require.NoError(t, second.Warm(ctx))

	require.Len(t, second.Snapshot(), 4)
	require.Equal(t, []string{"2", "1"}, ids(second.List(task.StatusToDo)))
}
