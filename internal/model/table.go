// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

// Fixed table names written by an ingestion run.
const (
	TableHouseholds   = "households"
	TableProducts     = "products"
	TableTransactions = "transactions"
	TableUsers        = "users"
)

// Well-known column names after sanitization.
const (
	ColHouseholdNum = "HSHD_NUM"
	ColBasketNum    = "BASKET_NUM"
	ColPurchaseDate = "PURCHASE_DATE"
	ColProductNum   = "PRODUCT_NUM"
	ColDepartment   = "DEPARTMENT"
	ColCommodity    = "COMMODITY"
)

// ColumnType is the storage type inferred for a CSV column.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeFloat
	TypeTimestamp
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// Column is one typed column of a Table.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is a typed, in-memory dataset ready to be written to the store.
//
// Row values are one of: nil (SQL NULL), int64, float64, time.Time, string —
// matching Columns[i].Type. Every row has exactly len(Columns) values.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Result is a tabular query result: column labels plus rows of scanned values.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (r *Result) Len() int {
	return len(r.Rows)
}

// Value returns the value of the named column in row i, and whether the
// column exists.
func (r *Result) Value(i int, column string) (any, bool) {
	for j, c := range r.Columns {
		if c == column {
			return r.Rows[i][j], true
		}
	}
	return nil, false
}

// DepartmentCount is one bar of the "top departments" dashboard view.
type DepartmentCount struct {
	Department string `json:"department"`
	Count      int64  `json:"count"`
}
