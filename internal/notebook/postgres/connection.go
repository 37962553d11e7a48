// Package postgres implements notebook.PersistentBackend against a
// PostgreSQL schema of four tables (notebooks, result_sets, records,
// pending_jobs), storing parameter/metadata/result maps as JSONB via
// experiment.Value's wire codec.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	postgresDriver  = "postgres"
	defaultCtxTimeout = 5 * time.Second
)

// Connection wraps *sql.DB the way internal/storage's Connection does,
// giving the backend a named health-check/close surface independent of the
// raw driver handle.
type Connection struct {
	*sql.DB
}

// ConnectionConfig configures the pool NewConnection opens.
type ConnectionConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewConnection opens a pooled connection and performs an immediate health
// check, mirroring internal/storage.NewConnection's construction shape.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	db, err := sql.Open(postgresDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("notebook/postgres: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultCtxTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("notebook/postgres: health check failed: %w", err)
	}

	return &Connection{db}, nil
}

// HealthCheck pings the database with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), defaultCtxTimeout)
		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the underlying connection pool. Safe to call more than once.
func (c *Connection) Close() error {
	return c.DB.Close()
}
