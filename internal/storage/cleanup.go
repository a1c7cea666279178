package storage

import (
	"context"
	"fmt"
	"time"
)

// PruneRuns removes history records that finished before the retention period
func (s *SQLiteStorage) PruneRuns(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention period must be positive", ErrInvalidInput)
	}

	cutoff := time.Now().Add(-retention).UTC()
	result, err := s.db.ExecContext(ctx, `DELETE FROM delivery_runs WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	return result.RowsAffected()
}
