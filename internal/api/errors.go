package api

import (
	"errors"
	"net/http"

	"github.com/veldt/genforge/internal/api/shared"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/service"
	"github.com/veldt/genforge/internal/service/auth"
	"github.com/veldt/genforge/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return http.StatusUnauthorized

	// Credit errors
	case errors.Is(err, service.ErrInsufficientCredits):
		return http.StatusPaymentRequired

	// Not found errors
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Lifecycle conflicts
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, store.ErrStatusConflict):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest

	// Upstream compute failures
	case errors.Is(err, service.ErrSubmissionFailed),
		errors.Is(err, service.ErrProcessingFailed):
		return http.StatusBadGateway

	case errors.Is(err, service.ErrPollTimeout):
		return http.StatusGatewayTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, service.ErrInsufficientCredits):
		return "Insufficient credits"

	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, store.ErrAccountNotFound):
		return "Credit account not found"

	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, store.ErrStatusConflict):
		return "Task is not in a state that allows this operation"

	case errors.Is(err, service.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return "Invalid request data"

	case errors.Is(err, service.ErrSubmissionFailed):
		return "Generation job could not be started"

	case errors.Is(err, service.ErrProcessingFailed):
		return "Generation job failed"

	case errors.Is(err, service.ErrPollTimeout):
		return "Generation job is still running"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes an error response using the status and safe
// message derived from the error type. A non-empty messageOverride
// replaces the derived message; the full error goes to the logs only.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, messageOverride string) {
	statusCode := MapErrorToStatusCode(err)

	message := messageOverride
	if message == "" {
		message = GetSafeErrorMessage(err)
	}

	shared.RespondWithErrorAndLog(w, r, statusCode, message, err)
}
