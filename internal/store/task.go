package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/domain"
)

// TaskFilter narrows the result set of FindByUser.
type TaskFilter struct {
	// Status restricts results to a single status when non-empty.
	Status domain.TaskStatus

	// Limit caps the number of returned tasks. Zero means no limit.
	Limit int

	// Offset skips the first N matching tasks for pagination.
	Offset int
}

// TaskStore defines the interface for generation task persistence.
// All conditional transitions are atomic compare-and-set writes against
// the persisted status: concurrent attempts on the same task resolve to
// exactly one winner, the rest observing ErrStatusConflict.
// Version: 1.0
type TaskStore interface {
	// Create saves a new task to the store.
	// It handles domain validation internally.
	Create(ctx context.Context, task *domain.GenerationTask) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// FindByUser retrieves the tasks owned by a user, newest first.
	// Returns an empty slice if no tasks match the filter.
	FindByUser(ctx context.Context, userID uuid.UUID, filter TaskFilter) ([]*domain.GenerationTask, error)

	// GetNextPending retrieves the oldest claimable pending task,
	// skipping tasks whose deferral window has not passed yet.
	// Returns ErrTaskNotFound if no claimable pending task exists.
	GetNextPending(ctx context.Context) (*domain.GenerationTask, error)

	// ClaimPending transitions a task from pending to processing and
	// records the processing start time, as a single conditional write.
	// Returns ErrStatusConflict if the task is no longer pending and
	// ErrTaskNotFound if it does not exist.
	ClaimPending(ctx context.Context, id uuid.UUID, startedAt time.Time) (*domain.GenerationTask, error)

	// ReleaseToPending reverts a claimed task from processing back to
	// pending, clearing the start time and any recorded charge. Used to
	// unwind a claim whose debit could not be covered. A non-nil
	// deferUntil hides the task from GetNextPending until that time, so
	// a task that cannot start yet does not starve the tasks behind it.
	ReleaseToPending(ctx context.Context, id uuid.UUID, deferUntil *time.Time) error

	// RecordCharge sets the charged amount on a processing task.
	// The charged amount is written at most once per task.
	RecordCharge(ctx context.Context, id uuid.UUID, amount int64) error

	// SetExternalJob records the external compute job identifier
	// returned by a successful submission.
	SetExternalJob(ctx context.Context, id uuid.UUID, jobID string) error

	// MarkCompleted transitions a processing task to completed,
	// recording the result payload and completion timestamp.
	// Returns ErrStatusConflict if the task is not processing.
	MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage, completedAt time.Time) (*domain.GenerationTask, error)

	// MarkFailed transitions a processing task to failed, recording the
	// error detail and completion timestamp.
	// Returns ErrStatusConflict if the task is not processing.
	MarkFailed(ctx context.Context, id uuid.UUID, errorDetail string, completedAt time.Time) (*domain.GenerationTask, error)

	// MarkCancelled transitions a pending task to cancelled.
	// Returns ErrStatusConflict if the task is not pending.
	MarkCancelled(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// FindProcessingOlderThan retrieves processing tasks whose
	// processing start is older than the given age. Used by the
	// reconciliation sweep to re-poll abandoned tasks.
	FindProcessingOlderThan(ctx context.Context, age time.Duration) ([]*domain.GenerationTask, error)

	// DeleteTerminalOlderThan removes terminal tasks completed before
	// the given age. Housekeeping only; never touches live tasks.
	DeleteTerminalOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
