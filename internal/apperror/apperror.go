// Package apperror defines the typed failures surfaced by the service layer.
//
// Every failure the core can produce falls into one bucket:
//
//	ErrValidation   → missing/malformed input (empty household number, missing CSV)
//	ErrConflict     → a write violated a store constraint (duplicate username)
//	ErrConnectivity → blob storage or the relational store could not be reached
//	ErrUnauthorized → credentials did not match
//	ErrNotFound / ErrForbidden → lookups and permissions
//
// Callers match with errors.Is against the sentinels; handlers map them to HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConnectivity = errors.New("connectivity")
)

type AppError struct {
	Err     error  // sentinel category
	Cause   error  // Optional: underlying driver/SDK error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports an integrity violation: the write was rejected and the
// store is unchanged.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for failed logins. The message is deliberately the
// same for "no such user" and "wrong password".
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Connectivity wraps an I/O failure against an external system (blob storage,
// relational store) after retries are exhausted.
func Connectivity(system string, cause error) *AppError {
	msg := fmt.Sprintf("%s unavailable", system)
	if cause != nil {
		msg = fmt.Sprintf("%s unavailable: %v", system, cause)
	}
	return &AppError{
		Err:     ErrConnectivity,
		Cause:   cause,
		Message: msg,
	}
}
