// Package sqladapter implements the SQL Adapter (C13): schema_discovery and
// sql_execute tools over database/sql, backed by Postgres (lib/pq) or
// embedded SQLite (modernc.org/sqlite) depending on the configured DSN.
// Connection-pool setup is grounded on internal/storage/cockroach.go's
// SetMaxOpenConns/SetConnMaxLifetime/ping-on-open sequence.
package sqladapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Config controls connection pooling and driver selection.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	MaxRows         int
}

// DefaultConfig returns pool settings scaled for a single-agent session
// rather than cockroach.go's multi-tenant server load.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		MaxRows:         500,
	}
}

// DB wraps a *sql.DB with the driver name needed to pick dialect-specific
// schema-introspection queries.
type DB struct {
	sql     *sql.DB
	driver  string
	maxRows int
}

// driverForDSN selects the registered database/sql driver name by DSN
// scheme: postgres:// or postgresql:// routes to lib/pq; anything else
// (a file path, ":memory:", or a file: URI) is treated as SQLite.
func driverForDSN(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// Open dials the database selected by cfg.DSN's scheme and pings it before
// returning, failing fast on misconfiguration rather than on first query.
func Open(cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqladapter: dsn is required")
	}
	driver := driverForDSN(cfg.DSN)

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqladapter: open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqladapter: ping database: %w", err)
	}

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 500
	}
	return &DB{sql: sqlDB, driver: driver, maxRows: maxRows}, nil
}

// NewWithDB wraps an already-open *sql.DB (a sqlmock connection in tests,
// or a pool the caller otherwise manages) without dialing or pinging.
func NewWithDB(sqlDB *sql.DB, driver string, maxRows int) *DB {
	if maxRows <= 0 {
		maxRows = 500
	}
	return &DB{sql: sqlDB, driver: driver, maxRows: maxRows}
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.sql.Close()
}
