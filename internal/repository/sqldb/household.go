package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/repository"
)

var _ repository.HouseholdRepository = (*DB)(nil)

// FetchHouseholdRecords returns every transaction of one household joined
// with its household and product rows.
//
// PARAMETERIZED QUERIES:
// The household number is ALWAYS passed as a bound argument, never formatted
// into the SQL text. Only identifiers (table and column names, which are
// constants here) are written into the statement, and those are quoted by
// the dialect.
//
// The join keys exist in more than one table (t.HSHD_NUM and h.HSHD_NUM,
// t.PRODUCT_NUM and p.PRODUCT_NUM). The result keeps the first occurrence of
// each column name, compared case-insensitively.
//
// Before the first ingestion run the tables do not exist; that reads as an
// empty result, like a household with no purchases.
func (db *DB) FetchHouseholdRecords(ctx context.Context, hshdNum int64) (*model.Result, error) {
	query := db.householdQuery()

	result := &model.Result{Columns: []string{}, Rows: [][]any{}}
	err := db.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, query, hshdNum)
		if db.dialect.IsUndefinedTable(err) {
			return nil // nothing ingested yet
		}
		if err != nil {
			return fmt.Errorf("sqldb: querying household %d: %w", hshdNum, err)
		}
		defer rows.Close()

		names, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("sqldb: reading columns: %w", err)
		}
		keep := firstOccurrences(names)
		for _, i := range keep {
			result.Columns = append(result.Columns, names[i])
		}

		for rows.Next() {
			values := make([]any, len(names))
			ptrs := make([]any, len(names))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return fmt.Errorf("sqldb: scanning household row: %w", err)
			}

			row := make([]any, len(keep))
			for j, i := range keep {
				row[j] = normalizeValue(values[i])
			}
			result.Rows = append(result.Rows, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (db *DB) householdQuery() string {
	t, h, p := "t", "h", "p"
	order := []string{
		db.qualified(t, model.ColHouseholdNum),
		db.qualified(t, model.ColBasketNum),
		db.qualified(t, model.ColPurchaseDate),
		db.qualified(t, model.ColProductNum),
		db.qualified(p, model.ColDepartment),
		db.qualified(p, model.ColCommodity),
	}
	return fmt.Sprintf(
		"SELECT %[1]s.*, %[2]s.*, %[3]s.* "+
			"FROM %[4]s %[1]s "+
			"JOIN %[5]s %[2]s ON %[7]s = %[8]s "+
			"JOIN %[6]s %[3]s ON %[9]s = %[10]s "+
			"WHERE %[7]s = %[11]s "+
			"ORDER BY %[12]s",
		t, h, p,
		db.q(model.TableTransactions), db.q(model.TableHouseholds), db.q(model.TableProducts),
		db.qualified(t, model.ColHouseholdNum), db.qualified(h, model.ColHouseholdNum),
		db.qualified(t, model.ColProductNum), db.qualified(p, model.ColProductNum),
		db.dialect.Placeholder(1),
		strings.Join(order, ", "),
	)
}

// firstOccurrences returns the indexes of names whose lower-cased form has
// not been seen earlier in the slice.
func firstOccurrences(names []string) []int {
	seen := make(map[string]bool, len(names))
	keep := make([]int, 0, len(names))
	for i, n := range names {
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		keep = append(keep, i)
	}
	return keep
}

// normalizeValue turns driver byte slices into strings so results encode as
// text in JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// TopDepartments counts products per department, largest first.
func (db *DB) TopDepartments(ctx context.Context, limit int) ([]model.DepartmentCount, error) {
	dept := db.q(model.ColDepartment)
	query := fmt.Sprintf(
		"SELECT %[1]s, COUNT(*) AS product_count FROM %[2]s GROUP BY %[1]s ORDER BY product_count DESC, %[1]s ASC %[3]s",
		dept, db.q(model.TableProducts), db.dialect.Limit(db.dialect.Placeholder(1)),
	)

	out := []model.DepartmentCount{}
	err := db.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, query, limit)
		if db.dialect.IsUndefinedTable(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sqldb: querying departments: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name sql.NullString
			var dc model.DepartmentCount
			if err := rows.Scan(&name, &dc.Count); err != nil {
				return fmt.Errorf("sqldb: scanning department row: %w", err)
			}
			dc.Department = strings.TrimSpace(name.String)
			out = append(out, dc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HouseholdCount returns the number of distinct household numbers loaded.
func (db *DB) HouseholdCount(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(
		"SELECT COUNT(DISTINCT %s) FROM %s",
		db.q(model.ColHouseholdNum), db.q(model.TableHouseholds),
	)

	var n int64
	err := db.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		err := c.QueryRowContext(ctx, query).Scan(&n)
		if db.dialect.IsUndefinedTable(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sqldb: counting households: %w", err)
		}
		return nil
	})
	return n, err
}
