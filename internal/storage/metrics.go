package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunStats summarizes the delivery history.
type RunStats struct {
	TotalRuns          int64               // Total number of recorded runs
	ByStatus           map[RunStatus]int64 // Run count per outcome
	QuestionsDelivered int64               // Questions in successfully delivered batches
	LastDeliveredAt    *time.Time          // Finish time of the newest delivered run
	CollectedAt        time.Time
}

// RunStats collects aggregate numbers over all recorded runs.
func (s *SQLiteStorage) RunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{
		ByStatus:    make(map[RunStatus]int64),
		CollectedAt: time.Now(),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM delivery_runs
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan run count: %w", err)
		}
		stats.ByStatus[RunStatus(status)] = count
		stats.TotalRuns += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(question_count), 0)
		FROM delivery_runs
		WHERE status = ?`, string(RunStatusDelivered)).Scan(&stats.QuestionsDelivered)
	if err != nil {
		return nil, fmt.Errorf("failed to sum delivered questions: %w", err)
	}

	var last time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT finished_at
		FROM delivery_runs
		WHERE status = ?
		ORDER BY finished_at DESC
		LIMIT 1`, string(RunStatusDelivered)).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get last delivery: %w", err)
	default:
		stats.LastDeliveredAt = &last
	}

	return stats, nil
}
