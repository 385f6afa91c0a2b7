// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package database provides the DuckDB-backed event store. Events are
// persisted as daily parquet partitions on disk and queried through an
// in-memory DuckDB instance with read_parquet. Missing or unreadable
// partitions degrade to empty results with a warning rather than
// failing analytics queries.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/funnelgraph/internal/config"
	"github.com/tomtom215/funnelgraph/internal/logging"
)

// DB wraps an in-memory DuckDB connection used to query and write the
// parquet event partitions under dataDir.
type DB struct {
	conn    *sql.DB
	cfg     *config.DatabaseConfig
	dataDir string

	// Writes rewrite whole partition files; serialize them.
	writeMu sync.Mutex
}

// New opens an in-memory DuckDB instance tuned per cfg and ensures the
// partition root under dataDir exists.
func New(cfg *config.DatabaseConfig, dataDir string) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	if err := os.MkdirAll(eventsRoot(dataDir), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create events directory: %w", err)
	}

	// In-memory database; all persistent state lives in parquet files.
	// Auto-install/auto-load disabled to prevent hangs in restricted
	// network environments.
	connStr := fmt.Sprintf("?threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:    conn,
		cfg:     cfg,
		dataDir: dataDir,
	}

	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)

	if err := db.conn.Ping(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Info().
		Int("threads", numThreads).
		Str("max_memory", cfg.MaxMemory).
		Str("data_dir", dataDir).
		Msg("DuckDB initialized")

	return db, nil
}

// Conn returns the underlying SQL database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// ensureContext guarantees queries carry a deadline
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}

	return ctx, func() {}
}

// closeQuietly closes a resource and explicitly ignores any error
// Use this for cleanup in error paths where Close() errors are not actionable
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
