package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"newsroom/api/internal/ingest"
	"newsroom/api/internal/maintenance"
	"newsroom/api/internal/store"
)

// DomainError is the app-edge error shape: an HTTP status plus a stable code
// callers can switch on. Internals never leak through it.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates service errors, including the sentinel errors of the
// pipeline, store, and maintenance cycle, into their HTTP representation.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, ingest.ErrAlreadyRunning) {
		return http.StatusConflict, "PIPELINE_RUNNING", "Pipeline is already running", nil
	}
	if errors.Is(err, ingest.ErrNoOrigins) {
		return http.StatusUnprocessableEntity, "NO_ORIGINS", "No origins configured", nil
	}
	if errors.Is(err, maintenance.ErrCycleRunning) {
		return http.StatusConflict, "MAINTENANCE_RUNNING", "Maintenance cycle is already running", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
