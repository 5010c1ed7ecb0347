package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func millis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}

// RecordStart inserts a running row. Recording the same run twice is a no-op.
func (s *SQLiteStore) RecordStart(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, affinity, blocking, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Name, run.Affinity, run.Blocking, StateRunning, millis(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to record start of %s: %w", run.ID, err)
	}
	return nil
}

// RecordFinish stores the terminal outcome. Runs that never started (cancelled
// before they ran) are inserted here.
func (s *SQLiteStore) RecordFinish(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, blocking, state, error, handled, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			error = excluded.error,
			handled = excluded.handled,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms
	`, run.ID, run.Name, run.Blocking, run.State, run.Error, run.Handled, millis(run.FinishedAt), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record finish of %s: %w", run.ID, err)
	}
	return nil
}

// AppendOutput stores one output line.
func (s *SQLiteStore) AppendOutput(ctx context.Context, runID, line string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_output (run_id, line, timestamp) VALUES (?, ?, ?)
	`, runID, line, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append output for %s: %w", runID, err)
	}
	return nil
}

const runColumns = `id, name, affinity, blocking, state, error, handled, started_at, finished_at, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r                 Run
		started, finished sql.NullInt64
		durationMillis    int64
	)
	err := row.Scan(&r.ID, &r.Name, &r.Affinity, &r.Blocking, &r.State, &r.Error, &r.Handled, &started, &finished, &durationMillis)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = fromMillis(started)
	r.FinishedAt = fromMillis(finished)
	r.Duration = time.Duration(durationMillis) * time.Millisecond
	return r, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + runColumns + ` FROM runs`)
	if f.State != "" {
		query.WriteString(` WHERE state = ?`)
		args = append(args, f.State)
	}
	query.WriteString(` ORDER BY COALESCE(started_at, finished_at) DESC, rowid DESC`)
	if f.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Output returns the captured lines of a run in order.
func (s *SQLiteStore) Output(ctx context.Context, runID string) ([]OutputLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line, timestamp FROM run_output WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query output: %w", err)
	}
	defer rows.Close()

	var lines []OutputLine
	for rows.Next() {
		var (
			l  OutputLine
			ms int64
		)
		if err := rows.Scan(&l.Line, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan output line: %w", err)
		}
		l.Timestamp = time.UnixMilli(ms)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating output: %w", err)
	}
	return lines, nil
}

// Prune deletes finished runs older than before, with their output.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE state != ? AND COALESCE(finished_at, started_at) < ?
	`, StateRunning, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}
