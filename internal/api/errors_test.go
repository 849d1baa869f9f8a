package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/service"
	"github.com/veldt/genforge/internal/service/auth"
	"github.com/veldt/genforge/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"insufficient credits", service.ErrInsufficientCredits, http.StatusPaymentRequired},
		{"task not found", service.ErrNotFound, http.StatusNotFound},
		{"account not found", ledger.ErrAccountNotFound, http.StatusNotFound},
		{"store not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"invalid state", service.ErrInvalidState, http.StatusConflict},
		{"status conflict", store.ErrStatusConflict, http.StatusConflict},
		{"validation", service.ErrValidation, http.StatusBadRequest},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"submission failed", service.ErrSubmissionFailed, http.StatusBadGateway},
		{"processing failed", service.ErrProcessingFailed, http.StatusBadGateway},
		{"poll timeout", service.ErrPollTimeout, http.StatusGatewayTimeout},
		{"unknown error", errors.New("mystery"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))

			// Wrapped errors map the same way
			assert.Equal(t, tc.want, MapErrorToStatusCode(fmt.Errorf("wrapped: %w", tc.err)))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Insufficient credits", GetSafeErrorMessage(service.ErrInsufficientCredits))
	assert.Equal(t, "Task not found", GetSafeErrorMessage(service.ErrNotFound))

	// Internal details never leak through
	internal := errors.New("pq: connection refused on 10.0.0.5")
	msg := GetSafeErrorMessage(internal)
	assert.Equal(t, "An unexpected error occurred", msg)
	assert.NotContains(t, msg, "10.0.0.5")

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}
