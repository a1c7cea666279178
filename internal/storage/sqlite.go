package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrParse        = errors.New("parse error")
)

// RunStatus is the persisted outcome of one delivery run.
type RunStatus string

const (
	RunStatusDelivered        RunStatus = "delivered"
	RunStatusSendFailed       RunStatus = "send_failed"
	RunStatusSaveFailed       RunStatus = "save_failed"
	RunStatusLoadFailed       RunStatus = "load_failed"
	RunStatusCompleted        RunStatus = "completed"
	RunStatusNotStarted       RunStatus = "not_started"
	RunStatusAlreadyDelivered RunStatus = "already_delivered"
)

// RunRecord is one row of the delivery history.
type RunRecord struct {
	ID            string
	Policy        string
	Status        RunStatus
	FirstPosition int // -1 when no batch was selected
	QuestionCount int
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// SQLiteStorage keeps the delivery history in a SQLite database.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens the database at path with DefaultConfig and
// applies pending migrations.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	return OpenDatabase(context.Background(), DefaultConfig(path))
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// validateRun checks if the run record is complete enough to store
func validateRun(run *RunRecord) error {
	if run == nil {
		return fmt.Errorf("%w: run cannot be nil", ErrInvalidInput)
	}
	if run.ID == "" {
		return fmt.Errorf("%w: run ID cannot be empty", ErrInvalidInput)
	}
	if run.Status == "" {
		return fmt.Errorf("%w: run status cannot be empty", ErrInvalidInput)
	}
	if run.StartedAt.IsZero() || run.FinishedAt.IsZero() {
		return fmt.Errorf("%w: run timestamps must be set", ErrInvalidInput)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		return fmt.Errorf("%w: run finished before it started", ErrInvalidInput)
	}
	return nil
}

// RecordRun appends a run to the history.
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *RunRecord) error {
	if err := validateRun(run); err != nil {
		return err
	}

	query := `
		INSERT INTO delivery_runs (
			id, policy, status, first_position, question_count,
			error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Policy, string(run.Status), run.FirstPosition, run.QuestionCount,
		run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by its ID
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: run ID cannot be empty", ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, policy, status, first_position, question_count,
			error, started_at, finished_at
		FROM delivery_runs
		WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRecentRuns returns up to limit runs, newest first.
func (s *SQLiteStorage) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy, status, first_position, question_count,
			error, started_at, finished_at
		FROM delivery_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var run RunRecord
	var status string
	if err := row.Scan(
		&run.ID,
		&run.Policy,
		&status,
		&run.FirstPosition,
		&run.QuestionCount,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	return &run, nil
}
