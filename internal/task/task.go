// Package task defines the task records and extracted candidates shared across the pipeline.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidStatus indicates a status outside the closed ToDo/InProgress/Done set.
var ErrInvalidStatus = errors.New("invalid task status")

// Status is the closed set of task buckets.
type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusToDo, StatusInProgress, StatusDone}

// ParseStatus accepts wire values and the short mobile-client forms.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.Join(strings.Fields(raw), " ")) {
	case "to do", "todo", "to-do":
		return StatusToDo, nil
	case "in progress", "in-progress", "inprogress":
		return StatusInProgress, nil
	case "done", "completed", "complete":
		return StatusDone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Valid reports whether s is one of the three canonical values.
func (s Status) Valid() bool {
	return s == StatusToDo || s == StatusInProgress || s == StatusDone
}

func (s Status) String() string {
	return string(s)
}

// UnmarshalJSON rejects anything outside the closed set.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Record is one persisted task as seen by the local cache.
type Record struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    Status     `json:"status"`
	Completed bool       `json:"completed"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Order     *int       `json:"order,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WithStatus returns a copy carrying status and the derived completion flag.
func (r Record) WithStatus(status Status) Record {
	r.Status = status
	r.Completed = status == StatusDone
	return r
}

// Clone deep-copies pointer fields so snapshots never alias live records.
func (r Record) Clone() Record {
	if r.DueDate != nil {
		due := *r.DueDate
		r.DueDate = &due
	}
	if r.Order != nil {
		order := *r.Order
		r.Order = &order
	}
	return r
}

// Candidate is an unconfirmed task proposal produced by extraction.
type Candidate struct {
	Title   string
	Status  Status
	DueDate *time.Time
	// DueText is the date phrase the extractor attributed to this candidate, if any.
	DueText string
}

// CloneRecords deep-copies a record slice.
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
