package service

import (
	"errors"
	"fmt"

	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/store"
)

// Business error taxonomy of the lifecycle engine. Validation and
// credit errors are pure (no partial side effects). Submission and
// processing errors are surfaced only after the refund-then-fail
// sequence has run internally.
var (
	// ErrValidation indicates a malformed request, rejected before any
	// persistence or charge.
	ErrValidation = errors.New("request validation failed")

	// ErrInsufficientCredits indicates the balance was too low at debit
	// time. The task remains pending and nothing was charged.
	// Aliased from the ledger so the error is surfaced to callers
	// unchanged.
	ErrInsufficientCredits = ledger.ErrInsufficientCredits

	// ErrInvalidState indicates an operation attempted against a task
	// not in the required status for that operation. Task and ledger
	// are left untouched.
	ErrInvalidState = errors.New("task not in required status")

	// ErrNotFound indicates an unknown task identifier.
	ErrNotFound = errors.New("task not found")

	// ErrSubmissionFailed indicates the external job failed to start
	// after the charge. The charge has been refunded and the task moved
	// to failed before this error is returned.
	ErrSubmissionFailed = errors.New("job submission failed")

	// ErrProcessingFailed indicates the external job failed mid-flight.
	// The charge has been refunded and the task moved to failed.
	ErrProcessingFailed = errors.New("job processing failed")

	// ErrPollTimeout indicates the polling budget was exhausted without
	// a terminal status. Deliberately non-terminal: the task stays
	// processing and the charge is retained so a late result can still
	// be applied.
	ErrPollTimeout = errors.New("polling budget exhausted")
)

// TaskServiceError wraps infrastructure errors from the task service
// with context. Business conditions use the sentinels above; this type
// is reserved for storage and adapter connectivity failures.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "start_processing")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// It maps known store and ledger sentinels to the business taxonomy and
// returns those directly without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrInsufficientCredits),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrSubmissionFailed),
		errors.Is(err, ErrProcessingFailed),
		errors.Is(err, ErrPollTimeout):
		return err
	case errors.Is(err, store.ErrTaskNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrStatusConflict):
		return ErrInvalidState
	}

	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
