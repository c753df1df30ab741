package taskcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voicetask/internal/remote"
	"github.com/rbright/voicetask/internal/task"
)

type fakeRemote struct {
	mu      sync.Mutex
	tasks   []task.Record
	nextID  int
	listErr error
	failOn  map[string]error

	listCalls   atomic.Int32
	createCalls atomic.Int32
	updateCalls atomic.Int32
	deleteCalls atomic.Int32

	// block, when set, is received from before each mutation returns.
	block chan struct{}
}

func (f *fakeRemote) ListTasks(_ context.Context, _ task.Status) ([]task.Record, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return task.CloneRecords(f.tasks), nil
}

func (f *fakeRemote) CreateTask(_ context.Context, candidate task.Candidate) (task.Record, error) {
	f.createCalls.Add(1)
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["create:"+candidate.Title]; err != nil {
		return task.Record{}, err
	}
	f.nextID++
	record := task.Record{
		ID:        "srv-" + string(rune('a'+f.nextID-1)),
		Title:     candidate.Title,
		DueDate:   candidate.DueDate,
		CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}.WithStatus(candidate.Status)
	f.tasks = append(f.tasks, record)
	return record, nil
}

func (f *fakeRemote) UpdateTask(_ context.Context, id string, update remote.Update) (task.Record, error) {
	f.updateCalls.Add(1)
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["update:"+id]; err != nil {
		return task.Record{}, err
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			if update.Status != nil {
				f.tasks[i] = f.tasks[i].WithStatus(*update.Status)
			}
			return f.tasks[i], nil
		}
	}
	return task.Record{}, errors.New("404")
}

func (f *fakeRemote) DeleteTask(_ context.Context, id string) error {
	f.deleteCalls.Add(1)
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["delete:"+id]; err != nil {
		return err
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return errors.New("404")
}

func (f *fakeRemote) wait() {
	if f.block != nil {
		<-f.block
	}
}

func seededRemote() *fakeRemote {
	due := time.Date(2024, 3, 2, 17, 0, 0, 0, time.UTC)
	created := time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)
	return &fakeRemote{
		failOn: map[string]error{},
		tasks: []task.Record{
			task.Record{ID: "1", Title: "Buy groceries", DueDate: &due, CreatedAt: created, UpdatedAt: created}.WithStatus(task.StatusToDo),
			task.Record{ID: "2", Title: "Call mom", CreatedAt: created, UpdatedAt: created}.WithStatus(task.StatusToDo),
			task.Record{ID: "3", Title: "Write report", CreatedAt: created, UpdatedAt: created}.WithStatus(task.StatusInProgress),
			task.Record{ID: "4", Title: "File taxes", CreatedAt: created, UpdatedAt: created}.WithStatus(task.StatusDone),
		},
	}
}

func loadedCache(t *testing.T, r *fakeRemote) *Cache {
	t.Helper()
	c := NewCache(r, nil, nil)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestLoadReplacesWholesale(t *testing.T) {
	r := seededRemote()
	c := NewCache(r, nil, nil)

	c.Add(task.Candidate{Title: "Placeholder"})
	require.Len(t, c.Snapshot(), 1)

	require.NoError(t, c.Load(context.Background()))
	snapshot := c.Snapshot()
	require.Len(t, snapshot, 4)
	for _, record := range snapshot {
		require.False(t, IsPlaceholder(record.ID))
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	c := loadedCache(t, seededRemote())
	first := c.Snapshot()

	require.NoError(t, c.Load(context.Background()))
	require.Equal(t, first, c.Snapshot())
}

func TestLoadFailureKeepsLocalState(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)
	before := c.Snapshot()

	r.listErr = errors.New("offline")
	err := c.Load(context.Background())
	require.Error(t, err)
	require.Equal(t, before, c.Snapshot())
}

func TestAddUsesPlaceholderID(t *testing.T) {
	c := NewCache(seededRemote(), nil, nil)
	record := c.Add(task.Candidate{Title: "Water plants"})

	require.True(t, IsPlaceholder(record.ID))
	require.Equal(t, task.StatusToDo, record.Status)
	require.False(t, record.Completed)
}

func TestSetStatusFailureRestoresSnapshotExactly(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)
	require.NoError(t, c.Reorder(context.Background(), []string{"2", "1"}))
	before := c.Snapshot()

	r.failOn["update:1"] = errors.New("500")
	_, err := c.SetStatus(context.Background(), "1", task.StatusDone)
	require.ErrorIs(t, err, ErrMutationFailed)

	require.Equal(t, before, c.Snapshot())
}

func TestSetStatusSuccessDerivesCompletion(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)

	record, err := c.SetStatus(context.Background(), "1", task.StatusDone)
	require.NoError(t, err)
	require.True(t, record.Completed)

	stored, err := c.Get("1")
	require.NoError(t, err)
	require.Equal(t, task.StatusDone, stored.Status)
	require.True(t, stored.Completed)
	require.Equal(t, int32(1), r.updateCalls.Load())
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)

	_, err := c.SetStatus(context.Background(), "1", task.Status("Blocked"))
	require.ErrorIs(t, err, task.ErrInvalidStatus)
	require.Equal(t, int32(0), r.updateCalls.Load())
}

func TestSetStatusShowsOptimisticStateWhilePending(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)
	r.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.SetStatus(context.Background(), "2", task.StatusInProgress)
		done <- err
	}()

	require.Eventually(t, func() bool {
		record, err := c.Get("2")
		return err == nil && record.Status == task.StatusInProgress
	}, time.Second, 5*time.Millisecond)

	close(r.block)
	require.NoError(t, <-done)
}

func TestRemoveFailureRestoresPosition(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)
	before := c.Snapshot()

	r.failOn["delete:2"] = errors.New("500")
	err := c.Remove(context.Background(), "2")
	require.ErrorIs(t, err, ErrMutationFailed)
	require.Equal(t, before, c.Snapshot())
}

func TestRemoveSuccess(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)

	require.NoError(t, c.Remove(context.Background(), "2"))
	_, err := c.Get("2")
	require.ErrorIs(t, err, ErrTaskNotFound)

	require.ErrorIs(t, c.Remove(context.Background(), "missing"), ErrTaskNotFound)
}

func TestRemovePlaceholderSkipsRemote(t *testing.T) {
	r := seededRemote()
	c := NewCache(r, nil, nil)
	record := c.Add(task.Candidate{Title: "Local only"})

	require.NoError(t, c.Remove(context.Background(), record.ID))
	require.Equal(t, int32(0), r.deleteCalls.Load())
	require.Empty(t, c.Snapshot())
}

func TestSerializedMutationsDoNotClobberEachOther(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)
	r.failOn["delete:1"] = errors.New("500")
	r.block = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	var removeErr, statusErr error
	go func() {
		defer wg.Done()
		removeErr = c.Remove(context.Background(), "1")
	}()
	require.Eventually(t, func() bool { return r.deleteCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	go func() {
		defer wg.Done()
		_, statusErr = c.SetStatus(context.Background(), "3", task.StatusDone)
	}()

	r.block <- struct{}{}
	r.block <- struct{}{}
	wg.Wait()

	require.ErrorIs(t, removeErr, ErrMutationFailed)
	require.NoError(t, statusErr)

	restored, err := c.Get("1")
	require.NoError(t, err)
	require.Equal(t, "Buy groceries", restored.Title)

	updated, err := c.Get("3")
	require.NoError(t, err)
	require.Equal(t, task.StatusDone, updated.Status)
}

func TestCreateAllRollsBackOnlyFailures(t *testing.T) {
	r := &fakeRemote{failOn: map[string]error{"create:Bad": errors.New("422")}}
	c := NewCache(r, nil, nil)

	created, err := c.CreateAll(context.Background(), []task.Candidate{
		{Title: "Good one", Status: task.StatusToDo},
		{Title: "Bad", Status: task.StatusToDo},
		{Title: "Good two", Status: task.StatusInProgress},
	})
	require.ErrorIs(t, err, ErrMutationFailed)
	require.Len(t, created, 2)

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 2)
	require.Equal(t, "Good one", snapshot[0].Title)
	require.Equal(t, "Good two", snapshot[1].Title)
	for _, record := range snapshot {
		require.False(t, IsPlaceholder(record.ID))
	}
}

func TestReorderTouchesOnlySubset(t *testing.T) {
	c := loadedCache(t, seededRemote())

	require.NoError(t, c.Reorder(context.Background(), []string{"2", "1"}))

	todo := c.List(task.StatusToDo)
	require.Equal(t, []string{"2", "1"}, ids(todo))
	require.Equal(t, 0, *todo[0].Order)
	require.Equal(t, 1, *todo[1].Order)

	other, err := c.Get("3")
	require.NoError(t, err)
	require.Nil(t, other.Order)
}

func TestReorderRejectsMixedBuckets(t *testing.T) {
	c := loadedCache(t, seededRemote())
	before := c.Snapshot()

	err := c.Reorder(context.Background(), []string{"1", "3"})
	require.ErrorIs(t, err, ErrMixedStatusBuckets)
	require.Equal(t, before, c.Snapshot())

	require.ErrorIs(t, c.Reorder(context.Background(), []string{"1", "nope"}), ErrTaskNotFound)
}

func TestOrderSurvivesLoad(t *testing.T) {
	r := seededRemote()
	c := loadedCache(t, r)
	require.NoError(t, c.Reorder(context.Background(), []string{"2", "1"}))

	require.NoError(t, c.Load(context.Background()))
	require.Equal(t, []string{"2", "1"}, ids(c.List(task.StatusToDo)))
}

func TestListAllStatuses(t *testing.T) {
	c := loadedCache(t, seededRemote())
	require.Len(t, c.List(""), 4)
	require.Len(t, c.List(task.StatusDone), 1)
}

func TestResetDropsState(t *testing.T) {
	c := loadedCache(t, seededRemote())
	require.NoError(t, c.Reset(context.Background()))
	require.Empty(t, c.Snapshot())
}

func ids(records []task.Record) []string {
	out := make([]string, len(records))
	for i, record := range records {
		out[i] = record.ID
	}
	return out
}
