package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/auth"
	"github.com/sakif/retail-analytics/internal/service"
)

// maxUploadBytes bounds one dataset upload (all three files together).
const maxUploadBytes = 512 << 20

// Ingester is the part of service.IngestService the upload handler uses.
type Ingester interface {
	LoadDatasets(ctx context.Context, src service.Sources) (*service.RunResult, error)
}

// DatasetHandler accepts CSV uploads and replaces the dataset tables.
type DatasetHandler struct {
	ingest Ingester
	logger *slog.Logger
}

func NewDatasetHandler(ingest Ingester, logger *slog.Logger) *DatasetHandler {
	return &DatasetHandler{ingest: ingest, logger: logger}
}

// HandleUpload loads an uploaded dataset.
//
// HTTP: POST /api/datasets (multipart/form-data)
// Fields: households, transactions, products (one CSV file each, all required).
//
// 200 when every table was replaced. When a table write fails the other
// tables keep their new contents and the response is 500 with the per-table
// statuses, so the caller can see exactly what was loaded.
func (h *DatasetHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	// files above 32 MiB spill to temp files; RemoveAll cleans them up
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("body", "expected a multipart form with households, transactions and products files"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var src service.Sources
	fields := []struct {
		name string
		dst  *service.Source
	}{
		{"households", &src.Households},
		{"transactions", &src.Transactions},
		{"products", &src.Products},
	}
	for _, fd := range fields {
		field := fd.name
		f, hdr, err := r.FormFile(field)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				writeError(w, h.logger, apperror.ValidationFailed(field, fmt.Sprintf("%s file is required", field)))
				return
			}
			writeError(w, h.logger, apperror.ValidationFailed(field, fmt.Sprintf("reading %s upload: %v", field, err)))
			return
		}
		defer func(f multipart.File) { f.Close() }(f)
		*fd.dst = service.Source{Name: hdr.Filename, Reader: f}
	}

	res, err := h.ingest.LoadDatasets(r.Context(), src)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	attrs := []any{slog.String("run", res.RunID), slog.Bool("ok", res.OK())}
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		attrs = append(attrs, slog.String("user", sess.Username))
	}
	h.logger.Info("dataset uploaded", attrs...)

	status := http.StatusOK
	if !res.OK() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}
