package storage

import (
	"context"
	"time"
)

// Question is one row of the questions file. Its position in the loaded
// slice is its identity; there is no other key.
type Question struct {
	Question  string
	Topic     string
	Category  string
	Delivered bool

	// Extra holds columns this program does not interpret, keyed by header name.
	// They are written back unchanged.
	Extra map[string]string
}

// Storage defines the run history operations. The application holds its
// history behind this interface; SQLiteStorage implements it.
type Storage interface {
	RecordRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	RunStats(ctx context.Context) (*RunStats, error)
	PruneRuns(ctx context.Context, retention time.Duration) (int64, error)
	Close() error
}
