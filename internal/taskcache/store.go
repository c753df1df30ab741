package taskcache

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rbright/voicetask/internal/task"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. The cache is
// disposable, so a mismatch rebuilds it instead of migrating.
const schemaVersion = 1

// Store persists the reconciled snapshot and the local order overlay.
type Store interface {
	LoadSnapshot(ctx context.Context) ([]task.Record, error)
	SaveSnapshot(ctx context.Context, records []task.Record) error
	LoadOrder(ctx context.Context) (map[string]int, error)
	SaveOrder(ctx context.Context, order map[string]int) error
	Clear(ctx context.Context) error
}

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	for _, table := range []string{"schema_version", "tasks", "task_order"} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop stale table %s: %w", table, err)
		}
	}
	return s.createSchema(ctx)
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// LoadSnapshot returns the last saved task list in its saved order.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]task.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, status, due_date, created_at, updated_at FROM tasks ORDER BY position",
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var records []task.Record
	for rows.Next() {
		var (
			id, title, status    string
			due, created, update sql.NullString
		)
		if err := rows.Scan(&id, &title, &status, &due, &created, &update); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		parsed, err := task.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("snapshot row %s: %w", id, err)
		}
		record := task.Record{ID: id, Title: title}.WithStatus(parsed)
		if t, ok := parseStored(due); ok {
			record.DueDate = &t
		}
		record.CreatedAt, _ = parseStored(created)
		record.UpdatedAt, _ = parseStored(update)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return records, nil
}

// SaveSnapshot replaces the stored task list.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, records []task.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	for i, record := range records {
		var due any
		if record.DueDate != nil {
			due = formatStored(*record.DueDate)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (id, position, title, status, due_date, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			i,
			record.Title,
			record.Status.String(),
			due,
			nullableTime(record.CreatedAt),
			nullableTime(record.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert snapshot row %s: %w", record.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadOrder returns the saved rank per task id.
func (s *SQLiteStore) LoadOrder(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, rank FROM task_order")
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	defer rows.Close()

	order := make(map[string]int)
	for rows.Next() {
		var (
			id   string
			rank int
		)
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order[id] = rank
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order: %w", err)
	}
	return order, nil
}

// SaveOrder replaces the stored order overlay.
func (s *SQLiteStore) SaveOrder(ctx context.Context, order map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_order"); err != nil {
		return fmt.Errorf("clear order: %w", err)
	}
	for id, rank := range order {
		if _, err := tx.ExecContext(ctx, "INSERT INTO task_order (id, rank) VALUES (?, ?)", id, rank); err != nil {
			return fmt.Errorf("insert order row %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

// Clear removes every cached row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	for _, stmt := range []string{"DELETE FROM tasks", "DELETE FROM task_order"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	return nil
}

func formatStored(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatStored(t)
}

func parseStored(value sql.NullString) (time.Time, bool) {
	if !value.Valid || value.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// memoryStore is the Store used when on-disk caching is disabled.
type memoryStore struct{}

func (memoryStore) LoadSnapshot(context.Context) ([]task.Record, error) { return nil, nil }
func (memoryStore) SaveSnapshot(context.Context, []task.Record) error   { return nil }
func (memoryStore) LoadOrder(context.Context) (map[string]int, error)   { return map[string]int{}, nil }
func (memoryStore) SaveOrder(context.Context, map[string]int) error     { return nil }
func (memoryStore) Clear(context.Context) error                         { return nil }
