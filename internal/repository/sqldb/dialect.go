package sqldb

import (
	"errors"
	"fmt"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/retail-analytics/internal/model"
)

// Dialect hides the SQL differences between the supported stores.
//
// Only the handful of things this application needs differ: identifier
// quoting, bind parameter syntax, column types, row-limit syntax, the users
// DDL, batch limits and how duplicate-key and missing-table errors look.
type Dialect interface {
	Name() string
	// DriverName is the database/sql driver registered for this dialect.
	DriverName() string
	Quote(ident string) string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	ColumnType(t model.ColumnType) string
	// Limit returns the clause appended after ORDER BY to keep at most the
	// number of rows bound to placeholder.
	Limit(placeholder string) string
	CreateUsersTable() string
	// MaxParams is the largest number of bind arguments in one statement.
	MaxParams() int
	// MaxRowsPerInsert caps the rows in one multi-row VALUES list; 0 means
	// no cap besides MaxParams.
	MaxRowsPerInsert() int
	IsUniqueViolation(err error) bool
	// IsUndefinedTable reports a query against a table that does not exist
	// yet, i.e. before the first ingestion run.
	IsUndefinedTable(err error) bool
}

// quoteWith wraps ident in open/close, doubling any embedded close rune.
func quoteWith(ident string, open, close string) string {
	return open + strings.ReplaceAll(ident, close, close+close) + close
}

// =========================================================================
// SQLITE
// =========================================================================

type sqliteDialect struct{}

func (sqliteDialect) Name() string              { return "sqlite" }
func (sqliteDialect) DriverName() string        { return "sqlite" }
func (sqliteDialect) Quote(ident string) string { return quoteWith(ident, `"`, `"`) }
func (sqliteDialect) Placeholder(int) string    { return "?" }
func (sqliteDialect) Limit(p string) string     { return "LIMIT " + p }
func (sqliteDialect) MaxParams() int            { return 32766 }
func (sqliteDialect) MaxRowsPerInsert() int     { return 0 }

func (sqliteDialect) ColumnType(t model.ColumnType) string {
	switch t {
	case model.TypeInteger:
		return "INTEGER"
	case model.TypeFloat:
		return "REAL"
	case model.TypeTimestamp:
		// modernc.org/sqlite scans TIMESTAMP columns back into time.Time
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) CreateUsersTable() string {
	return `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			password   TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func (sqliteDialect) IsUndefinedTable(err error) bool {
	// modernc reports it as a generic SQLITE_ERROR; only the text differs
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && strings.Contains(sqliteErr.Error(), "no such table")
}

// =========================================================================
// POSTGRES
// =========================================================================

type postgresDialect struct{}

func (postgresDialect) Name() string              { return "postgres" }
func (postgresDialect) DriverName() string        { return "pgx" }
func (postgresDialect) Quote(ident string) string { return quoteWith(ident, `"`, `"`) }
func (postgresDialect) Placeholder(n int) string  { return fmt.Sprintf("$%d", n) }
func (postgresDialect) Limit(p string) string     { return "LIMIT " + p }
func (postgresDialect) MaxParams() int            { return 65535 }
func (postgresDialect) MaxRowsPerInsert() int     { return 0 }

func (postgresDialect) ColumnType(t model.ColumnType) string {
	switch t {
	case model.TypeInteger:
		return "BIGINT"
	case model.TypeFloat:
		return "DOUBLE PRECISION"
	case model.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (postgresDialect) CreateUsersTable() string {
	return `
		CREATE TABLE IF NOT EXISTS users (
			id         VARCHAR(32) PRIMARY KEY,
			username   VARCHAR(64) NOT NULL UNIQUE,
			password   VARCHAR(255) NOT NULL,
			email      VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (postgresDialect) IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// =========================================================================
// MYSQL
// =========================================================================

type mysqlDialect struct{}

func (mysqlDialect) Name() string              { return "mysql" }
func (mysqlDialect) DriverName() string        { return "mysql" }
func (mysqlDialect) Quote(ident string) string { return quoteWith(ident, "`", "`") }
func (mysqlDialect) Placeholder(int) string    { return "?" }
func (mysqlDialect) Limit(p string) string     { return "LIMIT " + p }
func (mysqlDialect) MaxParams() int            { return 65535 }
func (mysqlDialect) MaxRowsPerInsert() int     { return 0 }

func (mysqlDialect) ColumnType(t model.ColumnType) string {
	switch t {
	case model.TypeInteger:
		return "BIGINT"
	case model.TypeFloat:
		return "DOUBLE"
	case model.TypeTimestamp:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func (mysqlDialect) CreateUsersTable() string {
	return "" +
		"CREATE TABLE IF NOT EXISTS users (" +
		"  id         VARCHAR(32) PRIMARY KEY," +
		"  username   VARCHAR(64) NOT NULL UNIQUE," +
		"  password   VARCHAR(255) NOT NULL," +
		"  email      VARCHAR(255) NOT NULL DEFAULT ''," +
		"  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP" +
		")"
}

func (mysqlDialect) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

func (mysqlDialect) IsUndefinedTable(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1146
}

// =========================================================================
// SQL SERVER (Azure SQL)
// =========================================================================

type sqlserverDialect struct{}

func (sqlserverDialect) Name() string              { return "sqlserver" }
func (sqlserverDialect) DriverName() string        { return "sqlserver" }
func (sqlserverDialect) Quote(ident string) string { return quoteWith(ident, "[", "]") }
func (sqlserverDialect) Placeholder(n int) string  { return fmt.Sprintf("@p%d", n) }
func (sqlserverDialect) Limit(p string) string {
	return "OFFSET 0 ROWS FETCH NEXT " + p + " ROWS ONLY"
}

// SQL Server accepts 2100 parameters per RPC request, but the driver sends
// statements through sp_executesql, whose @stmt and @params take two of
// them. A VALUES list holds at most 1000 rows.
func (sqlserverDialect) MaxParams() int        { return 2098 }
func (sqlserverDialect) MaxRowsPerInsert() int { return 1000 }

func (sqlserverDialect) ColumnType(t model.ColumnType) string {
	switch t {
	case model.TypeInteger:
		return "BIGINT"
	case model.TypeFloat:
		return "FLOAT"
	case model.TypeTimestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (sqlserverDialect) CreateUsersTable() string {
	return `
		IF OBJECT_ID(N'users', N'U') IS NULL
		CREATE TABLE users (
			id         NVARCHAR(32) PRIMARY KEY,
			username   NVARCHAR(64) NOT NULL UNIQUE,
			password   NVARCHAR(255) NOT NULL,
			email      NVARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()
		)`
}

// 2627: unique constraint violation, 2601: unique index violation.
func (sqlserverDialect) IsUniqueViolation(err error) bool {
	n := sqlserverErrorNumber(err)
	return n == 2627 || n == 2601
}

// 208: invalid object name.
func (sqlserverDialect) IsUndefinedTable(err error) bool {
	return sqlserverErrorNumber(err) == 208
}

func sqlserverErrorNumber(err error) int32 {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number
	}
	var msErrPtr *mssql.Error
	if errors.As(err, &msErrPtr) {
		return msErrPtr.Number
	}
	return 0
}
