// Package history keeps a log of finished task runs in SQLite. It is a record for
// people to read, not a way to resume work.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("history: run not found")

// Run is one recorded task execution.
type Run struct {
	ID         string
	Name       string
	Affinity   string
	Blocking   bool
	State      string // running, completed, faulted or cancelled
	Error      string
	Handled    bool
	StartedAt  time.Time // zero when the task never ran
	FinishedAt time.Time
	Duration   time.Duration
}

// Run states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFaulted   = "faulted"
	StateCancelled = "cancelled"
)

// OutputLine is one output line captured for a run.
type OutputLine struct {
	Line      string
	Timestamp time.Time
}

// Filter narrows ListRuns.
type Filter struct {
	State string // empty for all
	Limit int    // 0 for no limit
}

// Store defines the persistence interface for run history.
type Store interface {
	RecordStart(ctx context.Context, run Run) error
	RecordFinish(ctx context.Context, run Run) error
	AppendOutput(ctx context.Context, runID, line string, at time.Time) error

	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, f Filter) ([]Run, error)
	Output(ctx context.Context, runID string) ([]OutputLine, error)
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the store at dbPath, creating parent directories if needed.
// Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite doesn't support _foreign_keys in the connection string
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. Each call gets its own
// database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:history-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps the foreign_keys pragma and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
