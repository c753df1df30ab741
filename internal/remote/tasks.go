package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/voicetask/internal/task"
)

// timestampLayouts covers RFC 3339 plus the naive forms the API emits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

type taskWire struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	DueDate   *string `json:"due_date,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type createTaskRequest struct {
	Title   string  `json:"title"`
	Status  string  `json:"status"`
	DueDate *string `json:"due_date,omitempty"`
}

type updateTaskRequest struct {
	Title  *string `json:"title,omitempty"`
	Status *string `json:"status,omitempty"`
}

// Update is a partial task modification; nil fields are left unchanged.
type Update struct {
	Title  *string
	Status *task.Status
}

// ListTasks fetches every task, optionally filtered to one status bucket.
func (c *Client) ListTasks(ctx context.Context, status task.Status) ([]task.Record, error) {
	const op = "list tasks"

	u := c.endpoint("tasks/")
	if status != "" {
		u.RawQuery = url.Values{"status": []string{status.String()}}.Encode()
	}
	req, err := c.newJSONRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var payload []taskWire
	if err := c.do(op, req, &payload); err != nil {
		return nil, err
	}

	records := make([]task.Record, 0, len(payload))
	for _, wire := range payload {
		record, err := wire.record()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// CreateTask persists a candidate and returns the server's record.
func (c *Client) CreateTask(ctx context.Context, candidate task.Candidate) (task.Record, error) {
	const op = "create task"

	status := candidate.Status
	if status == "" {
		status = task.StatusToDo
	}
	body := createTaskRequest{Title: candidate.Title, Status: status.String()}
	if candidate.DueDate != nil {
		due := candidate.DueDate.UTC().Format(time.RFC3339)
		body.DueDate = &due
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, c.endpoint("tasks/"), body)
	if err != nil {
		return task.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.authorize(req); err != nil {
		return task.Record{}, err
	}

	var wire taskWire
	if err := c.do(op, req, &wire); err != nil {
		return task.Record{}, err
	}
	record, err := wire.record()
	if err != nil {
		return task.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return record, nil
}

// UpdateTask applies a partial update to the task with id.
func (c *Client) UpdateTask(ctx context.Context, id string, update Update) (task.Record, error) {
	const op = "update task"

	var body updateTaskRequest
	body.Title = update.Title
	if update.Status != nil {
		status := update.Status.String()
		body.Status = &status
	}

	req, err := c.newJSONRequest(ctx, http.MethodPut, c.endpoint("tasks", id), body)
	if err != nil {
		return task.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.authorize(req); err != nil {
		return task.Record{}, err
	}

	var wire taskWire
	if err := c.do(op, req, &wire); err != nil {
		return task.Record{}, err
	}
	record, err := wire.record()
	if err != nil {
		return task.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return record, nil
}

// DeleteTask removes the task with id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	const op = "delete task"

	req, err := c.newJSONRequest(ctx, http.MethodDelete, c.endpoint("tasks", id), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.authorize(req); err != nil {
		return err
	}
	return c.do(op, req, nil)
}

func (w taskWire) record() (task.Record, error) {
	status, err := task.ParseStatus(w.Status)
	if err != nil {
		return task.Record{}, fmt.Errorf("task %s: %w", w.ID, err)
	}

	record := task.Record{ID: w.ID, Title: w.Title}.WithStatus(status)
	if w.DueDate != nil {
		if due, ok := parseTimestamp(*w.DueDate); ok {
			record.DueDate = &due
		}
	}
	record.CreatedAt, _ = parseTimestamp(w.CreatedAt)
	record.UpdatedAt, _ = parseTimestamp(w.UpdatedAt)
	return record, nil
}

// parseTimestamp reads API timestamps; naive values are taken as UTC.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
