package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Config holds the history database configuration
type Config struct {
	Path            string        // Path to the SQLite database file
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	BusyTimeout     time.Duration // SQLite busy timeout
}

// DefaultConfig returns the configuration used for the run history at path.
// A single writer is enough: one run is in flight at a time.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: database path cannot be empty", ErrInvalidInput)
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("%w: max open connections must be positive", ErrInvalidInput)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("%w: max idle connections cannot be negative", ErrInvalidInput)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("%w: max idle connections cannot be greater than max open connections", ErrInvalidInput)
	}
	if c.ConnMaxLifetime <= 0 {
		return fmt.Errorf("%w: connection max lifetime must be positive", ErrInvalidInput)
	}
	if c.BusyTimeout <= 0 {
		return fmt.Errorf("%w: busy timeout must be positive", ErrInvalidInput)
	}
	return nil
}

// dsn builds the go-sqlite3 connection string.
func (c Config) dsn() string {
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		c.Path, c.BusyTimeout.Milliseconds())
}

// OpenDatabase opens the history database with the given configuration and
// applies pending migrations.
func OpenDatabase(ctx context.Context, cfg Config) (*SQLiteStorage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStorage{db: db, path: cfg.Path}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
