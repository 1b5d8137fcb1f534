package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/blob"
	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeDatasetRepo records every table it is asked to write.
type fakeDatasetRepo struct {
	tables  map[string]*model.Table
	chunks  map[string]int
	failOn  map[string]error
	orphans repository.OrphanCounts
	writes  []string
}

func newFakeDatasetRepo() *fakeDatasetRepo {
	return &fakeDatasetRepo{
		tables: make(map[string]*model.Table),
		chunks: make(map[string]int),
		failOn: make(map[string]error),
	}
}

func (f *fakeDatasetRepo) ReplaceTable(_ context.Context, t *model.Table, chunkSize int) (repository.WriteStats, error) {
	f.writes = append(f.writes, t.Name)
	if err := f.failOn[t.Name]; err != nil {
		return repository.WriteStats{}, err
	}
	f.tables[t.Name] = t
	f.chunks[t.Name] = chunkSize
	batches := (len(t.Rows) + chunkSize - 1) / chunkSize
	return repository.WriteStats{Rows: len(t.Rows), Batches: batches}, nil
}

func (f *fakeDatasetRepo) CountOrphanTransactions(context.Context) (repository.OrphanCounts, error) {
	return f.orphans, nil
}

const (
	householdsCSV   = "HSHD_NUM, L, AGE_RANGE\n100, Y, 35-44\n"
	productsCSV     = "PRODUCT_NUM, DEPARTMENT, COMMODITY\n55, GROCERY, SNACKS\n"
	transactionsCSV = "HSHD_NUM,BASKET_NUM,PURCHASE_DATE,PRODUCT_NUM\n100,1,2024-01-01,55\n"
)

func sources(households, transactions, products string) Sources {
	return Sources{
		Households:   Source{Reader: strings.NewReader(households)},
		Transactions: Source{Reader: strings.NewReader(transactions)},
		Products:     Source{Reader: strings.NewReader(products)},
	}
}

func newTestIngestService(repo *fakeDatasetRepo, opts IngestOptions) *IngestService {
	return NewIngestService(repo, nil, opts, discardLogger())
}

// =========================================================================
// LoadDatasets
// =========================================================================

func TestLoadDatasets(t *testing.T) {
	repo := newFakeDatasetRepo()
	svc := newTestIngestService(repo, IngestOptions{})

	res, err := svc.LoadDatasets(context.Background(), sources(householdsCSV, transactionsCSV, productsCSV))
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Tables, 3)
	require.NotNil(t, res.Orphans)

	hh := repo.tables[model.TableHouseholds]
	require.NotNil(t, hh)
	assert.Equal(t, []model.Column{
		{Name: "HSHD_NUM", Type: model.TypeInteger},
		{Name: "L", Type: model.TypeText},
		{Name: "AGE_RANGE", Type: model.TypeText},
	}, hh.Columns)
	assert.Equal(t, []any{int64(100), "Y", "35-44"}, hh.Rows[0])

	tx := repo.tables[model.TableTransactions]
	require.NotNil(t, tx)
	i := tx.ColumnIndex(model.ColPurchaseDate)
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, model.TypeTimestamp, tx.Columns[i].Type)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), tx.Rows[0][i])

	// default chunk size
	assert.Equal(t, 1000, repo.chunks[model.TableProducts])
}

func TestLoadDatasets_ValidatesBeforeWriting(t *testing.T) {
	cases := map[string]Sources{
		"missing products": {
			Households:   Source{Reader: strings.NewReader(householdsCSV)},
			Transactions: Source{Reader: strings.NewReader(transactionsCSV)},
		},
		"empty transactions":  sources(householdsCSV, "", productsCSV),
		"missing join key":    sources(householdsCSV, transactionsCSV, "DEPARTMENT,COMMODITY\nFOOD,PRODUCE\n"),
		"households w/o HSHD": sources("L\nY\n", transactionsCSV, productsCSV),
	}

	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newFakeDatasetRepo()
			svc := newTestIngestService(repo, IngestOptions{})

			_, err := svc.LoadDatasets(context.Background(), src)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, repo.writes, "nothing may be written when any input is invalid")
		})
	}
}

func TestLoadDatasets_RequiresQueryColumns(t *testing.T) {
	cases := []struct {
		table, column string
		src           Sources
	}{
		{model.TableTransactions, model.ColBasketNum, sources(householdsCSV,
			"HSHD_NUM,PURCHASE_DATE,PRODUCT_NUM\n100,2024-01-01,55\n", productsCSV)},
		{model.TableTransactions, model.ColPurchaseDate, sources(householdsCSV,
			"HSHD_NUM,BASKET_NUM,PRODUCT_NUM\n100,1,55\n", productsCSV)},
		{model.TableTransactions, model.ColProductNum, sources(householdsCSV,
			"HSHD_NUM,BASKET_NUM,PURCHASE_DATE\n100,1,2024-01-01\n", productsCSV)},
		{model.TableProducts, model.ColDepartment, sources(householdsCSV, transactionsCSV,
			"PRODUCT_NUM,COMMODITY\n55,SNACKS\n")},
		{model.TableProducts, model.ColCommodity, sources(householdsCSV, transactionsCSV,
			"PRODUCT_NUM,DEPARTMENT\n55,GROCERY\n")},
	}

	for _, tc := range cases {
		t.Run(tc.table+"/"+tc.column, func(t *testing.T) {
			repo := newFakeDatasetRepo()
			svc := newTestIngestService(repo, IngestOptions{})

			_, err := svc.LoadDatasets(context.Background(), tc.src)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.ErrorContains(t, err, tc.column)
			assert.Empty(t, repo.writes)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.table, appErr.Field)
		})
	}
}

func TestLoadDatasets_PurchaseAlias(t *testing.T) {
	repo := newFakeDatasetRepo()
	svc := newTestIngestService(repo, IngestOptions{})

	raw := "BASKET_NUM, HSHD_NUM, PURCHASE_, PRODUCT_NUM, SPEND\n24, 100, 17-AUG-18, 55, 1.5\n"
	res, err := svc.LoadDatasets(context.Background(), sources(householdsCSV, raw, productsCSV))
	require.NoError(t, err)
	require.True(t, res.OK())

	tx := repo.tables[model.TableTransactions]
	i := tx.ColumnIndex(model.ColPurchaseDate)
	require.GreaterOrEqual(t, i, 0, "PURCHASE_ should be renamed")
	assert.Equal(t, time.Date(2018, 8, 17, 0, 0, 0, 0, time.UTC), tx.Rows[0][i])
}

func TestLoadDatasets_DateFallbackWarns(t *testing.T) {
	repo := newFakeDatasetRepo()
	svc := newTestIngestService(repo, IngestOptions{})

	raw := "HSHD_NUM,BASKET_NUM,PURCHASE_DATE,PRODUCT_NUM\n100,1,2024-01-01,55\n100,2,someday,55\n"
	res, err := svc.LoadDatasets(context.Background(), sources(householdsCSV, raw, productsCSV))
	require.NoError(t, err)

	tx := repo.tables[model.TableTransactions]
	assert.Equal(t, model.TypeText, tx.Columns[tx.ColumnIndex(model.ColPurchaseDate)].Type)
	assert.Len(t, res.Tables[2].Warnings, 1)
}

func TestLoadDatasets_TransactionCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("HSHD_NUM,BASKET_NUM,PURCHASE_DATE,PRODUCT_NUM\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "100,%d,2024-01-01,55\n", i+1)
	}

	t.Run("capped", func(t *testing.T) {
		repo := newFakeDatasetRepo()
		svc := newTestIngestService(repo, IngestOptions{TransactionCap: 10, ChunkSize: 4})

		res, err := svc.LoadDatasets(context.Background(), sources(householdsCSV, b.String(), productsCSV))
		require.NoError(t, err)
		assert.Len(t, repo.tables[model.TableTransactions].Rows, 10)
		assert.Equal(t, 3, res.Tables[2].Batches)
	})

	t.Run("unlimited by default", func(t *testing.T) {
		repo := newFakeDatasetRepo()
		svc := newTestIngestService(repo, IngestOptions{})

		_, err := svc.LoadDatasets(context.Background(), sources(householdsCSV, b.String(), productsCSV))
		require.NoError(t, err)
		assert.Len(t, repo.tables[model.TableTransactions].Rows, 25)
	})
}

func TestLoadDatasets_TablesFailIndependently(t *testing.T) {
	repo := newFakeDatasetRepo()
	repo.failOn[model.TableProducts] = apperror.Connectivity("relational store", errors.New("connection reset"))
	svc := newTestIngestService(repo, IngestOptions{})

	res, err := svc.LoadDatasets(context.Background(), sources(householdsCSV, transactionsCSV, productsCSV))
	require.NoError(t, err)
	assert.False(t, res.OK())

	// the other two tables were still written
	assert.Contains(t, repo.tables, model.TableHouseholds)
	assert.Contains(t, repo.tables, model.TableTransactions)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, model.TableProducts, failed[0].Table)
	assert.ErrorIs(t, failed[0].Err, apperror.ErrConnectivity)
	assert.Nil(t, res.Orphans, "orphans are only counted after a complete load")
}

func TestLoadDatasets_FailedStatusHidesDriverText(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"driver error": {
			err:  errors.New(`near "SELEC": syntax error in INSERT INTO "products"`),
			want: "table write failed",
		},
		"connectivity": {
			err:  apperror.Connectivity("relational store", errors.New("dial tcp 10.0.0.5:1433: i/o timeout")),
			want: "relational store unavailable, please retry",
		},
		"validation": {
			err:  fmt.Errorf("sqldb: %w", apperror.ValidationFailed("columns", "table products has no columns")),
			want: "table products has no columns",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newFakeDatasetRepo()
			repo.failOn[model.TableProducts] = tc.err
			svc := newTestIngestService(repo, IngestOptions{})

			res, err := svc.LoadDatasets(context.Background(), sources(householdsCSV, transactionsCSV, productsCSV))
			require.NoError(t, err)

			failed := res.Failed()
			require.Len(t, failed, 1)
			assert.Equal(t, tc.want, failed[0].Error)
			assert.Same(t, tc.err, failed[0].Err)
		})
	}
}

func TestLoadDatasets_ReportsOrphans(t *testing.T) {
	repo := newFakeDatasetRepo()
	repo.orphans = repository.OrphanCounts{Households: 2}
	svc := newTestIngestService(repo, IngestOptions{})

	res, err := svc.LoadDatasets(context.Background(), sources(householdsCSV, transactionsCSV, productsCSV))
	require.NoError(t, err)
	require.NotNil(t, res.Orphans)
	assert.Equal(t, int64(2), res.Orphans.Households)
}

// =========================================================================
// LoadDir / Run
// =========================================================================

func writeDataset(t *testing.T, dir, prefix string) {
	t.Helper()
	files := map[string]string{
		prefix + "households.csv":   householdsCSV,
		prefix + "transactions.csv": transactionsCSV,
		prefix + "products.csv":     productsCSV,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "400_")

	repo := newFakeDatasetRepo()
	res, err := newTestIngestService(repo, IngestOptions{}).LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "400_products.csv", res.Tables[1].Source)
}

func TestLoadDir_MissingFile(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "400_")
	require.NoError(t, os.Remove(filepath.Join(dir, "400_products.csv")))

	repo := newFakeDatasetRepo()
	_, err := newTestIngestService(repo, IngestOptions{}).LoadDir(context.Background(), dir)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, repo.writes)
}

func TestLoadDir_AmbiguousFile(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "400_")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "5000_households.csv"), []byte(householdsCSV), 0o644))

	repo := newFakeDatasetRepo()
	_, err := newTestIngestService(repo, IngestOptions{}).LoadDir(context.Background(), dir)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, repo.writes)
}

func TestLoadDir_MissingDir(t *testing.T) {
	_, err := newTestIngestService(newFakeDatasetRepo(), IngestOptions{}).LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRun_StagesThenLoads(t *testing.T) {
	container := t.TempDir()
	writeDataset(t, container, "400_")
	staging := filepath.Join(t.TempDir(), "raw")

	repo := newFakeDatasetRepo()
	svc := NewIngestService(repo, blob.NewLocal(container), IngestOptions{
		Stage: blob.StageOptions{Dir: staging},
	}, discardLogger())

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.FileExists(t, filepath.Join(staging, "400_transactions.csv"))
}

func TestRun_NoBlobStore(t *testing.T) {
	_, err := newTestIngestService(newFakeDatasetRepo(), IngestOptions{}).Run(context.Background())
	require.ErrorIs(t, err, apperror.ErrValidation)
}
