package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/repository"
)

var _ repository.DatasetRepository = (*DB)(nil)

// ReplaceTable drops, recreates and refills one dataset table.
//
// All three steps run in a single transaction on a dedicated connection, so a
// failed load leaves the previous contents in place on stores with
// transactional DDL (sqlite, postgres, SQL Server). MySQL commits DDL
// implicitly; there a failure can leave the table empty.
//
// BATCHING:
// Rows go in as multi-row INSERT ... VALUES (...), (...) statements. The
// batch size is chunkSize, lowered if needed so one statement never exceeds
// the dialect's parameter or row limits.
func (db *DB) ReplaceTable(ctx context.Context, table *model.Table, chunkSize int) (repository.WriteStats, error) {
	var stats repository.WriteStats

	if table == nil || len(table.Columns) == 0 {
		return stats, apperror.ValidationFailed("columns", "table has no columns")
	}
	batch := db.batchSize(len(table.Columns), chunkSize)

	start := time.Now()
	err := db.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		tx, err := c.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqldb: beginning transaction for %s: %w", table.Name, err)
		}
		// Rollback after a successful Commit is a no-op returning ErrTxDone.
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+db.q(table.Name)); err != nil {
			return fmt.Errorf("sqldb: dropping %s: %w", table.Name, err)
		}
		if _, err := tx.ExecContext(ctx, db.createTableSQL(table)); err != nil {
			return fmt.Errorf("sqldb: creating %s: %w", table.Name, err)
		}

		for lo := 0; lo < len(table.Rows); lo += batch {
			hi := min(lo+batch, len(table.Rows))
			query, args := db.insertSQL(table, table.Rows[lo:hi])
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("sqldb: inserting rows %d-%d into %s: %w", lo, hi-1, table.Name, err)
			}
			stats.Batches++
			stats.Rows += hi - lo
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqldb: committing %s: %w", table.Name, err)
		}
		return nil
	})
	if err != nil {
		return repository.WriteStats{}, err
	}

	db.logger.Debug("table replaced",
		slog.String("table", table.Name),
		slog.Int("rows", stats.Rows),
		slog.Int("batches", stats.Batches),
		slog.Int("batch_size", batch),
		slog.Duration("duration", time.Since(start)),
	)
	return stats, nil
}

// batchSize returns the rows per INSERT for a table with ncols columns.
func (db *DB) batchSize(ncols, chunkSize int) int {
	n := chunkSize
	if n <= 0 {
		n = 1000
	}
	if m := db.dialect.MaxRowsPerInsert(); m > 0 && n > m {
		n = m
	}
	if m := db.dialect.MaxParams() / ncols; n > m {
		n = m
	}
	return max(n, 1)
}

func (db *DB) createTableSQL(table *model.Table) string {
	defs := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		defs[i] = db.q(c.Name) + " " + db.dialect.ColumnType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", db.q(table.Name), strings.Join(defs, ", "))
}

func (db *DB) insertSQL(table *model.Table, rows [][]any) (string, []any) {
	ncols := len(table.Columns)

	cols := make([]string, ncols)
	for i, c := range table.Columns {
		cols[i] = db.q(c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", db.q(table.Name), strings.Join(cols, ", "))

	args := make([]any, 0, len(rows)*ncols)
	for r, row := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		b.WriteString(db.placeholders(len(args)+1, ncols))
		b.WriteString(")")
		args = append(args, row...)
	}
	return b.String(), args
}

// CountOrphanTransactions counts transactions whose HSHD_NUM has no
// household row and whose PRODUCT_NUM has no product row.
func (db *DB) CountOrphanTransactions(ctx context.Context) (repository.OrphanCounts, error) {
	orphans := func(parent, key string) string {
		return fmt.Sprintf(
			"SELECT COUNT(*) FROM %s t WHERE NOT EXISTS (SELECT 1 FROM %s x WHERE %s = %s)",
			db.q(model.TableTransactions), db.q(parent),
			db.qualified("x", key), db.qualified("t", key),
		)
	}

	var counts repository.OrphanCounts
	err := db.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		if err := c.QueryRowContext(ctx, orphans(model.TableHouseholds, model.ColHouseholdNum)).Scan(&counts.Households); err != nil {
			return fmt.Errorf("sqldb: counting orphan households: %w", err)
		}
		if err := c.QueryRowContext(ctx, orphans(model.TableProducts, model.ColProductNum)).Scan(&counts.Products); err != nil {
			return fmt.Errorf("sqldb: counting orphan products: %w", err)
		}
		return nil
	})
	return counts, err
}
