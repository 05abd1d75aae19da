package app

import (
	"errors"
	"fmt"
	"net/http"

	"flowboard/api/internal/session"
	"flowboard/api/internal/store"
)

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

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func errBadRequest(message string) *DomainError {
	return domainError(http.StatusBadRequest, "BAD_REQUEST", message, nil)
}

func errUnauthorized(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// mapError translates store sentinels and domain errors into the HTTP
// error taxonomy.
func mapError(err error) (int, string, string, any) {
	var domain *DomainError
	switch {
	case errors.As(err, &domain):
		return domain.Status, domain.Code, domain.Message, domain.Details
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrInvalidPosition):
		return http.StatusBadRequest, "BAD_REQUEST", "position must be a non-negative integer", nil
	case errors.Is(err, store.ErrCrossBoardMove):
		return http.StatusBadRequest, "BAD_REQUEST", "destination list belongs to another board", nil
	case errors.Is(err, store.ErrLastOwner):
		return http.StatusBadRequest, "BAD_REQUEST", "cannot remove the only owner", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "CONFLICT", "Already exists", nil
	case errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil
	default:
		return http.StatusInternalServerError, "SERVER_ERROR", "Internal error", nil
	}
}
