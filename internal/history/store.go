// Package history keeps an optional SQLite log of completed chain runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"omnitool/internal/bus"
	"omnitool/internal/domain"
	"omnitool/internal/jsonx"
)

// Run is one recorded chain execution.
type Run struct {
	ID              string              `json:"id"`
	Input           string              `json:"input"`
	Steps           []domain.ChainStep  `json:"steps"`
	Results         []domain.StepResult `json:"results"`
	TransportFailed bool                `json:"transport_failed"`
	FailedStep      int                 `json:"failed_step"` // -1 when every step succeeded
	Duration        time.Duration       `json:"duration"`
	CreatedAt       time.Time           `json:"created_at"`
}

// NewRun derives the summary fields of a Run from a finished execution.
func NewRun(input string, steps []domain.ChainStep, results []domain.StepResult, took time.Duration) Run {
	failed := -1
	for i, r := range results {
		if r.Failed() {
			failed = i
			break
		}
	}
	return Run{
		Input:           input,
		Steps:           steps,
		Results:         results,
		TransportFailed: len(results) < len(steps),
		FailedStep:      failed,
		Duration:        took,
	}
}

// Store persists runs in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file if needed and applies migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts run, assigning an ID and timestamp when unset.
func (s *Store) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	steps, err := jsonx.Marshal(run.Steps)
	if err != nil {
		return "", fmt.Errorf("encode steps: %w", err)
	}
	results, err := jsonx.Marshal(run.Results)
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chain_runs (id, input, steps, results, transport_failed, duration_ms, created_at, step_count, failed_step)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Input, string(steps), string(results), run.TransportFailed,
		run.Duration.Milliseconds(), run.CreatedAt.UnixMilli(), len(run.Steps), run.FailedStep,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, input, steps, results, transport_failed, duration_ms, created_at, failed_step`

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM chain_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run with id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM chain_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chain_runs`).Scan(&n)
	return n, err
}

// Prune deletes runs recorded before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chain_runs WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned run history", "deleted", n, "before", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run              Run
		steps, results   string
		durMs, createdMs int64
	)
	if err := sc.Scan(&run.ID, &run.Input, &steps, &results, &run.TransportFailed, &durMs, &createdMs, &run.FailedStep); err != nil {
		return Run{}, err
	}
	if err := jsonx.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return Run{}, fmt.Errorf("decode steps of run %s: %w", run.ID, err)
	}
	if err := jsonx.Unmarshal([]byte(results), &run.Results); err != nil {
		return Run{}, fmt.Errorf("decode results of run %s: %w", run.ID, err)
	}
	run.Duration = time.Duration(durMs) * time.Millisecond
	run.CreatedAt = time.UnixMilli(createdMs)
	return run, nil
}

// Attach records every completed chain run published on events.
// The returned function unsubscribes.
func (s *Store) Attach(events *bus.EventBus) func() {
	id := events.On(bus.EventRunCompleted, func(e bus.Event) {
		input, _ := e.Payload["input"].(string)
		steps, _ := e.Payload["steps"].([]domain.ChainStep)
		results, _ := e.Payload["results"].([]domain.StepResult)
		took, _ := e.Payload["duration"].(time.Duration)

		run := NewRun(input, steps, results, took)
		run.CreatedAt = e.Timestamp
		if _, err := s.Record(context.Background(), run); err != nil {
			s.logger.Warn("failed to record chain run", "err", err)
		}
	})
	return func() { events.Off(bus.EventRunCompleted, id) }
}
