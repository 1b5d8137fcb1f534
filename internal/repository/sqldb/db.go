// Package sqldb implements the repository interfaces on top of database/sql.
//
// ONE PACKAGE, FOUR STORES:
// The same code talks to SQLite (modernc.org/sqlite, the default for local
// runs and tests), PostgreSQL (pgx), MySQL and SQL Server / Azure SQL
// (go-mssqldb). ParseDSN picks a Dialect from the connection string; the
// Dialect supplies the few bits of SQL that differ between them.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB   — a connection pool (NOT a single connection!)
//   - sql.Conn — one connection checked out of the pool
//   - sql.Tx   — a transaction on that connection
//
// Every logical operation (one registration, one login, one lookup, one
// table replacement) checks out its own sql.Conn and gives it back with a
// defer, so the connection is released on every exit path, errors included.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	// pgx registers itself with database/sql as "pgx"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/retry"
)

// Options tunes New.
type Options struct {
	// Retry is applied to connecting and checking out connections.
	Retry retry.Policy
	// Timeout bounds each logical operation, connection checkout included.
	// Zero means no limit beyond the caller's context.
	Timeout time.Duration
	Logger  *slog.Logger
}

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	retry   retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

// New opens the store named by dsn, verifies it is reachable and creates the
// users table if needed.
//
// CONNECTION POOL:
// sql.Open() does NOT actually open a connection — it just creates a pool manager.
// We Ping (with retries) to force an immediate connection and surface a bad
// DSN or an unreachable server here instead of on the first request.
func New(ctx context.Context, dsn string, opts Options) (*DB, error) {
	dialect, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, apperror.ValidationFailed("dsn", err.Error())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if dialect.Name() == "sqlite" && source != ":memory:" && !strings.HasPrefix(source, "file:") {
		// like `mkdir -p`; the driver creates the file but not its directory
		if err := os.MkdirAll(filepath.Dir(source), 0o755); err != nil {
			return nil, fmt.Errorf("sqldb: creating database directory: %w", err)
		}
	}

	conn, err := sql.Open(dialect.DriverName(), source)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening %s database: %w", dialect.Name(), err)
	}

	db := &DB{
		conn:    conn,
		dialect: dialect,
		retry:   opts.Retry,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}

	if err := db.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if dialect.Name() == "sqlite" {
		// WAL lets the lookup page read while an ingestion run is writing.
		// It is a property of the database file, so setting it once is enough.
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqldb: setting WAL mode: %w", err)
		}
	}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: running migrations: %w", err)
	}

	db.logger.Debug("store opened", slog.String("dialect", dialect.Name()))
	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect returns the dialect chosen from the connection string.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks the store is reachable, retrying per the configured policy.
// Failure is reported as apperror.ErrConnectivity.
func (db *DB) Ping(ctx context.Context) error {
	if db.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}
	err := retry.Do(ctx, db.retry, func(ctx context.Context) error {
		return db.conn.PingContext(ctx)
	})
	if err != nil {
		return apperror.Connectivity("relational store", err)
	}
	return nil
}

// migrate creates the users table. The three dataset tables are created by
// ReplaceTable on every ingestion run.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, db.dialect.CreateUsersTable()); err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}
	return nil
}

// withConn checks a dedicated connection out of the pool for the duration
// of fn and always returns it. fn receives the timeout-bounded context.
func (db *DB) withConn(ctx context.Context, fn func(ctx context.Context, c *sql.Conn) error) error {
	if db.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}

	var c *sql.Conn
	err := retry.Do(ctx, db.retry, func(ctx context.Context) error {
		var err error
		c, err = db.conn.Conn(ctx)
		return err
	})
	if err != nil {
		return apperror.Connectivity("relational store", err)
	}
	defer c.Close()

	return fn(ctx, c)
}

// q quotes an identifier for the current dialect.
func (db *DB) q(ident string) string {
	return db.dialect.Quote(ident)
}

// qualified returns alias.column with the column quoted.
func (db *DB) qualified(alias, column string) string {
	return alias + "." + db.q(column)
}

// placeholders returns n comma-separated bind markers starting at start.
func (db *DB) placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(db.dialect.Placeholder(start + i))
	}
	return b.String()
}
