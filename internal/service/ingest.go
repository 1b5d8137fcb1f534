package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/blob"
	"github.com/sakif/retail-analytics/internal/dataset"
	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/repository"
)

// columnAliases maps raw header names to the names the rest of the system
// expects. The 84.51 transaction export truncates PURCHASE_DATE.
var columnAliases = map[string]string{
	"PURCHASE_": model.ColPurchaseDate,
}

// requiredColumns are the columns each table must carry: the join keys plus
// everything the household lookup orders by and the dashboard groups by.
var requiredColumns = map[string][]string{
	model.TableHouseholds: {model.ColHouseholdNum},
	model.TableProducts:   {model.ColProductNum, model.ColDepartment, model.ColCommodity},
	model.TableTransactions: {
		model.ColHouseholdNum, model.ColBasketNum, model.ColPurchaseDate, model.ColProductNum,
	},
}

// Source is one CSV input of an ingestion run.
type Source struct {
	// Name identifies the input in logs and errors (file name or upload
	// field). Defaults to the table name.
	Name   string
	Reader io.Reader
}

// Sources are the three inputs of an ingestion run.
type Sources struct {
	Households   Source
	Transactions Source
	Products     Source
}

// TableStatus reports the outcome of one table replacement.
type TableStatus struct {
	Table    string         `json:"table"`
	Source   string         `json:"source"`
	OK       bool           `json:"ok"`
	Rows     int            `json:"rows"`
	Batches  int            `json:"batches"`
	Columns  []model.Column `json:"columns,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	// Error is safe to show to API clients; Err carries the full cause.
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	Err error `json:"-"`
}

// RunResult is the outcome of LoadDatasets.
type RunResult struct {
	RunID   string                   `json:"runId"`
	Tables  []TableStatus            `json:"tables"`
	Orphans *repository.OrphanCounts `json:"orphans,omitempty"`
}

// OK reports whether every table was written.
func (r *RunResult) OK() bool {
	for _, t := range r.Tables {
		if !t.OK {
			return false
		}
	}
	return len(r.Tables) > 0
}

// Failed returns the statuses of the tables that were not written.
func (r *RunResult) Failed() []TableStatus {
	var out []TableStatus
	for _, t := range r.Tables {
		if !t.OK {
			out = append(out, t)
		}
	}
	return out
}

// IngestOptions tunes IngestService.
type IngestOptions struct {
	// ChunkSize is the number of rows per INSERT batch.
	ChunkSize int
	// TransactionCap keeps only the first N transaction rows; 0 keeps all.
	TransactionCap int
	// Stage configures Run's download step. Dir is also where Run loads from.
	Stage blob.StageOptions
}

// IngestService replaces the three dataset tables from CSV input.
type IngestService struct {
	datasets repository.DatasetRepository
	blobs    blob.Store
	opts     IngestOptions
	logger   *slog.Logger
}

// NewIngestService wires an IngestService. blobs may be nil when only local
// files and uploads are loaded; Run then fails with a validation error.
func NewIngestService(datasets repository.DatasetRepository, blobs blob.Store, opts IngestOptions, logger *slog.Logger) *IngestService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.Stage.Logger == nil {
		opts.Stage.Logger = logger
	}
	return &IngestService{
		datasets: datasets,
		blobs:    blobs,
		opts:     opts,
		logger:   logger,
	}
}

// parsed is one validated, typed input ready to be written.
type parsed struct {
	source    string
	table     *model.Table
	fallbacks []string
	capped    int
}

// LoadDatasets parses all three sources and then replaces the tables.
//
// Every source is read, sanitized and validated BEFORE the first write: a
// missing or unparseable input is an apperror.ErrValidation and the store is
// not touched. After that each table is replaced on its own. A failed table
// is reported in its TableStatus and does not undo the tables already
// written ("last write wins per table").
func (s *IngestService) LoadDatasets(ctx context.Context, src Sources) (*RunResult, error) {
	inputs := []struct {
		table  string
		source Source
	}{
		{model.TableHouseholds, src.Households},
		{model.TableProducts, src.Products},
		{model.TableTransactions, src.Transactions},
	}

	prepared := make([]parsed, 0, len(inputs))
	for _, in := range inputs {
		p, err := s.prepare(in.table, in.source)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}

	result := &RunResult{RunID: xid.New().String()}
	log := s.logger.With(slog.String("run", result.RunID))

	for _, p := range prepared {
		for _, col := range p.fallbacks {
			log.Warn("date column loaded as text",
				slog.String("table", p.table.Name),
				slog.String("column", col),
			)
		}
		if p.capped > 0 {
			log.Info("transactions capped",
				slog.Int("kept", len(p.table.Rows)),
				slog.Int("dropped", p.capped),
			)
		}

		status := s.write(ctx, p)
		if status.OK {
			log.Info("table loaded",
				slog.String("table", status.Table),
				slog.Int("rows", status.Rows),
				slog.Int("chunks", status.Batches),
				slog.Duration("duration", status.Duration),
			)
		} else {
			log.Error("table load failed",
				slog.String("table", status.Table),
				slog.String("error", status.Err.Error()),
			)
		}
		result.Tables = append(result.Tables, status)
	}

	if result.OK() {
		s.checkOrphans(ctx, log, result)
	}
	return result, nil
}

func (s *IngestService) prepare(table string, src Source) (parsed, error) {
	name := src.Name
	if name == "" {
		name = table
	}
	if src.Reader == nil {
		return parsed{}, apperror.ValidationFailed(table, fmt.Sprintf("%s file is required", table))
	}

	frame, err := dataset.ReadCSV(src.Reader)
	if err != nil {
		return parsed{}, apperror.ValidationFailed(table, fmt.Sprintf("%s: %v", name, err))
	}
	frame = dataset.Sanitize(frame)
	for from, to := range columnAliases {
		frame.Rename(from, to)
	}

	for _, col := range requiredColumns[table] {
		if !slices.Contains(frame.Columns, col) {
			return parsed{}, apperror.ValidationFailed(table, fmt.Sprintf("%s: missing required column %s", name, col))
		}
	}

	p := parsed{source: name}
	var dateColumns []string
	if table == model.TableTransactions {
		dateColumns = []string{model.ColPurchaseDate}
		if limit := s.opts.TransactionCap; limit > 0 && frame.Len() > limit {
			p.capped = frame.Len() - limit
			frame = frame.Head(limit)
		}
	}

	p.table, p.fallbacks = dataset.Infer(table, frame, dateColumns...)
	return p, nil
}

func (s *IngestService) write(ctx context.Context, p parsed) TableStatus {
	status := TableStatus{
		Table:   p.table.Name,
		Source:  p.source,
		Columns: p.table.Columns,
	}
	for _, col := range p.fallbacks {
		status.Warnings = append(status.Warnings, fmt.Sprintf("column %s loaded as text: not every value is a date", col))
	}
	if p.capped > 0 {
		status.Warnings = append(status.Warnings, fmt.Sprintf("%d rows beyond the transaction cap were skipped", p.capped))
	}

	start := time.Now()
	stats, err := s.datasets.ReplaceTable(ctx, p.table, s.opts.ChunkSize)
	status.Duration = time.Since(start)
	if err != nil {
		status.Err = err
		status.Error = statusMessage(err)
		return status
	}

	status.OK = true
	status.Rows = stats.Rows
	status.Batches = stats.Batches
	return status
}

// statusMessage is the client-facing text for a failed table write. Only
// messages this module composes are passed through; driver errors can quote
// SQL or connection details and stay in the log (TableStatus.Err).
func statusMessage(err error) string {
	var appErr *apperror.AppError
	switch {
	case errors.Is(err, apperror.ErrConnectivity):
		return "relational store unavailable, please retry"
	case errors.As(err, &appErr):
		return appErr.Message
	default:
		return "table write failed"
	}
}

// checkOrphans counts transactions that reference missing households or
// products. Orphans are reported, never rejected.
func (s *IngestService) checkOrphans(ctx context.Context, log *slog.Logger, result *RunResult) {
	counts, err := s.datasets.CountOrphanTransactions(ctx)
	if err != nil {
		log.Warn("orphan check failed", slog.String("error", err.Error()))
		return
	}
	result.Orphans = &counts
	if counts.Households > 0 || counts.Products > 0 {
		log.Warn("transactions reference missing rows",
			slog.Int64("missing_households", counts.Households),
			slog.Int64("missing_products", counts.Products),
		)
	}
}

// LoadDir finds the three CSV files under dir and loads them.
//
// A file matches a table when its name is <table>.csv or ends in
// _<table>.csv (case-insensitive), e.g. 400_households.csv. A table with no
// matching file, or with more than one, fails the whole run before anything
// is written.
func (s *IngestService) LoadDir(ctx context.Context, dir string) (*RunResult, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.ValidationFailed("dir", fmt.Sprintf("staging directory %s does not exist", dir))
		}
		return nil, fmt.Errorf("service/ingest: scanning %s: %w", dir, err)
	}
	return s.loadFiles(ctx, paths)
}

// Run downloads the raw files from blob storage into the staging directory
// and loads them.
func (s *IngestService) Run(ctx context.Context) (*RunResult, error) {
	paths, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadFiles(ctx, paths)
}

// Fetch stages the blob container into the staging directory and returns
// the files written.
func (s *IngestService) Fetch(ctx context.Context) ([]string, error) {
	if s.blobs == nil {
		return nil, apperror.ValidationFailed("blob.connection", "blob storage is not configured")
	}
	paths, err := blob.Stage(ctx, s.blobs, s.opts.Stage)
	if err != nil {
		return nil, fmt.Errorf("service/ingest: staging blobs: %w", err)
	}
	s.logger.Info("blobs staged", slog.Int("files", len(paths)), slog.String("dir", s.opts.Stage.Dir))
	return paths, nil
}

// StagingDir is where Fetch writes and where the CLI loads from by default.
func (s *IngestService) StagingDir() string {
	return s.opts.Stage.Dir
}

func (s *IngestService) loadFiles(ctx context.Context, paths []string) (*RunResult, error) {
	found, err := discover(paths)
	if err != nil {
		return nil, err
	}

	files := make(map[string]*os.File, len(found))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for table, path := range found {
		f, err := os.Open(path)
		if err != nil {
			return nil, apperror.ValidationFailed(table, fmt.Sprintf("opening %s: %v", path, err))
		}
		files[table] = f
	}

	return s.LoadDatasets(ctx, Sources{
		Households:   Source{Name: filepath.Base(found[model.TableHouseholds]), Reader: files[model.TableHouseholds]},
		Transactions: Source{Name: filepath.Base(found[model.TableTransactions]), Reader: files[model.TableTransactions]},
		Products:     Source{Name: filepath.Base(found[model.TableProducts]), Reader: files[model.TableProducts]},
	})
}

// discover assigns each table exactly one path.
func discover(paths []string) (map[string]string, error) {
	matches := make(map[string][]string)
	for _, p := range paths {
		base := strings.ToLower(filepath.Base(p))
		for _, table := range []string{model.TableHouseholds, model.TableTransactions, model.TableProducts} {
			if base == table+".csv" || strings.HasSuffix(base, "_"+table+".csv") {
				matches[table] = append(matches[table], p)
			}
		}
	}

	found := make(map[string]string, 3)
	for _, table := range []string{model.TableHouseholds, model.TableTransactions, model.TableProducts} {
		switch m := matches[table]; len(m) {
		case 0:
			return nil, apperror.ValidationFailed(table, fmt.Sprintf("no *_%s.csv file found", table))
		case 1:
			found[table] = m[0]
		default:
			return nil, apperror.ValidationFailed(table, fmt.Sprintf("more than one %s file found: %s", table, strings.Join(m, ", ")))
		}
	}
	return found, nil
}
