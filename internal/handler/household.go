package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/auth"
	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/service"
)

// HouseholdQueries is the part of service.HouseholdService the handlers use.
type HouseholdQueries interface {
	Lookup(ctx context.Context, raw string) (*model.Result, error)
	Dashboard(ctx context.Context, limit int) (*service.Dashboard, error)
}

// HouseholdHandler serves the household lookup and the dashboard.
type HouseholdHandler struct {
	households HouseholdQueries
	logger     *slog.Logger
}

func NewHouseholdHandler(households HouseholdQueries, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{households: households, logger: logger}
}

// HouseholdResponse is the lookup payload.
type HouseholdResponse struct {
	HouseholdNum string `json:"hshdNum"`
	Count        int    `json:"count"`
	*model.Result
}

// HandleLookup returns every purchase of one household.
//
// HTTP: GET /api/households/{hshdNum}
// A household with no purchases is 200 with zero rows, not 404.
func (h *HouseholdHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "hshdNum")

	res, err := h.households.Lookup(r.Context(), raw)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		h.logger.Info("household lookup",
			slog.String("user", sess.Username),
			slog.String("hshdNum", raw),
			slog.Int("rows", res.Len()),
		)
	}
	writeJSON(w, http.StatusOK, HouseholdResponse{HouseholdNum: raw, Count: res.Len(), Result: res})
}

// HandleDashboard returns the aggregate view.
//
// HTTP: GET /api/dashboard?limit=10
func (h *HouseholdHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("limit", "limit must be an integer"))
			return
		}
		limit = n
	}

	d, err := h.households.Dashboard(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
