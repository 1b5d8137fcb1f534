// Package repository declares the storage interfaces the service layer
// depends on. The only implementation lives in repository/sqldb; services
// and their tests see nothing but these interfaces.
package repository

import (
	"context"

	"github.com/sakif/retail-analytics/internal/model"
)

// UserRepository stores login records.
type UserRepository interface {
	// CreateUser inserts u and fills in ID and CreatedAt. A duplicate
	// username yields apperror.ErrConflict and leaves the store unchanged.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// WriteStats describes one completed table replacement.
type WriteStats struct {
	Rows    int
	Batches int
}

// OrphanCounts counts transactions whose household or product reference
// has no matching row.
type OrphanCounts struct {
	Households int64 `json:"households"`
	Products   int64 `json:"products"`
}

// DatasetRepository replaces whole tables.
type DatasetRepository interface {
	// ReplaceTable drops table.Name if present, recreates it from
	// table.Columns and inserts every row in batches of at most chunkSize.
	ReplaceTable(ctx context.Context, table *model.Table, chunkSize int) (WriteStats, error)
	CountOrphanTransactions(ctx context.Context) (OrphanCounts, error)
}

// HouseholdRepository answers the read-side queries.
type HouseholdRepository interface {
	// FetchHouseholdRecords joins transactions, households and products for
	// one household number. No rows is an empty result, not an error.
	FetchHouseholdRecords(ctx context.Context, hshdNum int64) (*model.Result, error)
	TopDepartments(ctx context.Context, limit int) ([]model.DepartmentCount, error)
	HouseholdCount(ctx context.Context) (int64, error)
}
