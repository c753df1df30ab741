// Package taskcache holds the client-side task list and reconciles it with the server.
package taskcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rbright/voicetask/internal/remote"
	"github.com/rbright/voicetask/internal/task"
)

const placeholderPrefix = "local-"

var (
	ErrMutationFailed     = errors.New("task mutation failed")
	ErrTaskNotFound       = errors.New("task not found")
	ErrMixedStatusBuckets = errors.New("reorder spans more than one status bucket")
)

// Remote is the server-side task collection.
type Remote interface {
	ListTasks(ctx context.Context, status task.Status) ([]task.Record, error)
	CreateTask(ctx context.Context, candidate task.Candidate) (task.Record, error)
	UpdateTask(ctx context.Context, id string, update remote.Update) (task.Record, error)
	DeleteTask(ctx context.Context, id string) error
}

// pendingMutation is the undo state of one optimistic change.
type pendingMutation struct {
	op       string
	target   string
	previous []task.Record
}

// Cache is the authoritative local view of the task list.
//
// Writers are serialized: each mutation holds writeMu from its optimistic
// apply until the server acknowledges it or the rollback has completed.
// Readers only take mu and observe optimistic state while a call is pending.
type Cache struct {
	remote Remote
	store  Store
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	records []task.Record
	order   map[string]int
	loaded  bool
}

// NewCache builds a Cache. A nil store keeps everything in memory.
func NewCache(r Remote, store Store, logger *slog.Logger) *Cache {
	if store == nil {
		store = memoryStore{}
	}
	return &Cache{
		remote: r,
		store:  store,
		logger: logger,
	}
}

// IsPlaceholder reports whether id was assigned locally and never confirmed by the server.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// Warm fills an empty cache from the persisted snapshot so a list can be shown
// before the first Load completes.
func (c *Cache) Warm(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ensureOrder(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	populated := c.loaded || len(c.records) > 0
	c.mu.RUnlock()
	if populated {
		return nil
	}

	records, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("read cached snapshot: %w", err)
	}

	c.mu.Lock()
	c.records = applyOrder(records, c.order)
	c.mu.Unlock()
	return nil
}

// Load replaces local state wholesale with the server's task list. Placeholders
// and optimistic edits are discarded. Local order is re-applied to surviving
// records and pruned for the rest.
func (c *Cache) Load(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ensureOrder(ctx); err != nil {
		c.logWarn("task order overlay unavailable", "error", err.Error())
		c.mu.Lock()
		c.order = map[string]int{}
		c.mu.Unlock()
	}

	fetched, err := c.remote.ListTasks(ctx, "")
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	live := make(map[string]struct{}, len(fetched))
	for _, record := range fetched {
		live[record.ID] = struct{}{}
	}

	c.mu.Lock()
	for id := range c.order {
		if _, ok := live[id]; !ok {
			delete(c.order, id)
		}
	}
	c.records = applyOrder(task.CloneRecords(fetched), c.order)
	c.loaded = true
	c.mu.Unlock()

	c.persist(ctx)
	c.logDebug("tasks loaded", "count", len(fetched))
	return nil
}

// Add appends candidate locally under a placeholder id. The placeholder is
// superseded by the server record on the next Load.
func (c *Cache) Add(candidate task.Candidate) task.Record {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	record := placeholderFor(candidate)
	c.mu.Lock()
	c.records = append(c.records, record)
	c.mu.Unlock()
	return record.Clone()
}

// Create adds candidate optimistically and confirms it with the server. On
// failure the placeholder is rolled back before ErrMutationFailed is returned.
func (c *Cache) Create(ctx context.Context, candidate task.Candidate) (task.Record, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	placeholder := placeholderFor(candidate)
	pending := c.begin("create", placeholder.ID)

	c.mu.Lock()
	c.records = append(c.records, placeholder)
	c.mu.Unlock()

	created, err := c.remote.CreateTask(ctx, candidate)
	if err != nil {
		c.rollback(pending, err)
		return task.Record{}, fmt.Errorf("%w: create %q: %w", ErrMutationFailed, candidate.Title, err)
	}

	c.mu.Lock()
	if idx := c.indexLocked(placeholder.ID); idx >= 0 {
		c.records[idx] = created.Clone()
	}
	c.mu.Unlock()

	c.persist(ctx)
	return created.Clone(), nil
}

// CreateAll creates each candidate in turn. A failed candidate is rolled back
// on its own and the rest are still attempted.
func (c *Cache) CreateAll(ctx context.Context, candidates []task.Candidate) ([]task.Record, error) {
	created := make([]task.Record, 0, len(candidates))
	var errs []error
	for _, candidate := range candidates {
		record, err := c.Create(ctx, candidate)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		created = append(created, record)
	}
	return created, errors.Join(errs...)
}

// Remove deletes id locally, then remotely. Placeholders never reached the
// server and are removed locally only.
func (c *Cache) Remove(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	pending := c.begin("remove", id)

	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	c.records = slices.Delete(c.records, idx, idx+1)
	c.mu.Unlock()

	if !IsPlaceholder(id) {
		if err := c.remote.DeleteTask(ctx, id); err != nil {
			c.rollback(pending, err)
			return fmt.Errorf("%w: delete %s: %w", ErrMutationFailed, id, err)
		}
	}

	c.mu.Lock()
	delete(c.order, id)
	c.mu.Unlock()

	c.persist(ctx)
	return nil
}

// SetStatus moves id into another bucket, updating the derived completion
// flag immediately and rolling back if the server rejects the change.
func (c *Cache) SetStatus(ctx context.Context, id string, status task.Status) (task.Record, error) {
	if !status.Valid() {
		return task.Record{}, fmt.Errorf("%w: %q", task.ErrInvalidStatus, status)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	pending := c.begin("set_status", id)

	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return task.Record{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if c.records[idx].Status == status {
		current := c.records[idx].Clone()
		c.mu.Unlock()
		return current, nil
	}
	c.records[idx] = c.records[idx].WithStatus(status)
	c.records[idx].Order = nil
	optimistic := c.records[idx].Clone()
	c.mu.Unlock()

	if IsPlaceholder(id) {
		return optimistic, nil
	}

	updated, err := c.remote.UpdateTask(ctx, id, remote.Update{Status: &status})
	if err != nil {
		c.rollback(pending, err)
		return task.Record{}, fmt.Errorf("%w: set status of %s: %w", ErrMutationFailed, id, err)
	}

	c.mu.Lock()
	delete(c.order, id)
	if idx := c.indexLocked(id); idx >= 0 {
		c.records[idx] = updated.WithStatus(updated.Status).Clone()
	}
	c.mu.Unlock()

	c.persist(ctx)
	return updated.Clone(), nil
}

// Reorder ranks ids 0..n-1 in the given order. Every id must share one status
// bucket. Records outside ids keep their current order. Order is local only
// and survives Load through the persisted overlay.
func (c *Cache) Reorder(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	var bucket task.Status
	positions := make([]int, len(ids))
	for i, id := range ids {
		idx := c.indexLocked(id)
		if idx < 0 {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if i == 0 {
			bucket = c.records[idx].Status
		} else if c.records[idx].Status != bucket {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s is %q, expected %q", ErrMixedStatusBuckets, id, c.records[idx].Status, bucket)
		}
		positions[i] = idx
	}

	if c.order == nil {
		c.order = map[string]int{}
	}
	for rank, idx := range positions {
		value := rank
		c.records[idx].Order = &value
		c.order[c.records[idx].ID] = rank
	}
	c.mu.Unlock()

	c.persist(ctx)
	return nil
}

// Get returns a copy of one record.
func (c *Cache) Get(id string) (task.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := c.indexLocked(id)
	if idx < 0 {
		return task.Record{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return c.records[idx].Clone(), nil
}

// Snapshot returns a deep copy of every record in storage order.
func (c *Cache) Snapshot() []task.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return task.CloneRecords(c.records)
}

// List returns the records in one bucket, or all records for an empty status,
// ranked records first by rank and the rest in server order.
func (c *Cache) List(status task.Status) []task.Record {
	c.mu.RLock()
	out := make([]task.Record, 0, len(c.records))
	for _, record := range c.records {
		if status == "" || record.Status == status {
			out = append(out, record.Clone())
		}
	}
	c.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b task.Record) int {
		switch {
		case a.Order != nil && b.Order != nil:
			return *a.Order - *b.Order
		case a.Order != nil:
			return -1
		case b.Order != nil:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Reset drops all local state, in memory and on disk.
func (c *Cache) Reset(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.records = nil
	c.order = map[string]int{}
	c.loaded = false
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear task cache: %w", err)
	}
	return nil
}

func (c *Cache) begin(op string, target string) pendingMutation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pendingMutation{op: op, target: target, previous: task.CloneRecords(c.records)}
}

// rollback restores the full pre-mutation list. Writers are serialized, so no
// other change can have landed since pending was taken.
func (c *Cache) rollback(pending pendingMutation, cause error) {
	c.mu.Lock()
	c.records = pending.previous
	c.mu.Unlock()
	c.logWarn("task mutation rolled back",
		"op", pending.op,
		"task_id", pending.target,
		"error", cause.Error(),
	)
}

func (c *Cache) ensureOrder(ctx context.Context) error {
	c.mu.RLock()
	ready := c.order != nil
	c.mu.RUnlock()
	if ready {
		return nil
	}

	order, err := c.store.LoadOrder(ctx)
	if err != nil {
		return fmt.Errorf("read task order: %w", err)
	}
	if order == nil {
		order = map[string]int{}
	}
	c.mu.Lock()
	c.order = order
	c.mu.Unlock()
	return nil
}

// persist writes confirmed records and the order overlay. Failures only cost
// the warm start, so they are logged rather than returned.
func (c *Cache) persist(ctx context.Context) {
	c.mu.RLock()
	confirmed := make([]task.Record, 0, len(c.records))
	for _, record := range c.records {
		if !IsPlaceholder(record.ID) {
			confirmed = append(confirmed, record.Clone())
		}
	}
	order := make(map[string]int, len(c.order))
	for id, rank := range c.order {
		order[id] = rank
	}
	c.mu.RUnlock()

	if err := c.store.SaveSnapshot(ctx, confirmed); err != nil {
		c.logWarn("unable to persist task snapshot", "error", err.Error())
	}
	if err := c.store.SaveOrder(ctx, order); err != nil {
		c.logWarn("unable to persist task order", "error", err.Error())
	}
}

func (c *Cache) indexLocked(id string) int {
	return slices.IndexFunc(c.records, func(r task.Record) bool { return r.ID == id })
}

func placeholderFor(candidate task.Candidate) task.Record {
	status := candidate.Status
	if !status.Valid() {
		status = task.StatusToDo
	}
	record := task.Record{
		ID:    placeholderPrefix + uuid.NewString(),
		Title: candidate.Title,
	}.WithStatus(status)
	if candidate.DueDate != nil {
		due := *candidate.DueDate
		record.DueDate = &due
	}
	return record
}

func applyOrder(records []task.Record, order map[string]int) []task.Record {
	for i := range records {
		records[i].Order = nil
		if rank, ok := order[records[i].ID]; ok {
			value := rank
			records[i].Order = &value
		}
	}
	return records
}

func (c *Cache) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Cache) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
