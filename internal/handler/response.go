package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so the API has one
// success shape (the payload as JSON) and one error shape:
//
//	{"error": "validation_error", "message": "household number is required", "field": "hshdNum"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/retail-analytics/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable type, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input, for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be written BEFORE the body: once Encode writes,
// later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// The service layer knows nothing about HTTP; this is the one place where
// apperror categories become status codes. errors.Is walks the whole chain,
// so an AppError wrapped by fmt.Errorf("...: %w") still maps correctly.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"
		message := appErr.Message

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		case errors.Is(err, apperror.ErrConnectivity):
			// the cause may carry hosts or credentials; log it, don't send it
			logger.Error("backend unavailable", slog.String("error", err.Error()))
			status = http.StatusServiceUnavailable
			errorType = "unavailable"
			message = "a backing service is unavailable, please retry"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: message,
			Field:   appErr.Field,
		})
		return
	}

	// Unknown error: log the details, return a generic 500. Raw messages can
	// contain SQL, file paths or connection strings.
	logger.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON request body into dst, rejecting bodies over
// 1 MiB and unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}
