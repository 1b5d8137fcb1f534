package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger reports whether the relational store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth returns 200 when the store answers and 503 otherwise.
//
// HTTP: GET /healthz
func HandleHealth(store Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logger.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
