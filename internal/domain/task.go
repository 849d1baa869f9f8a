package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a generation task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Common validation errors for GenerationTask
var (
	ErrEmptyTaskID     = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID = errors.New("task user ID cannot be empty")
	ErrNilTaskRequest  = errors.New("task request cannot be nil")
)

// GenerationTask is one unit of paid, externally executed work tracked
// by the engine. The task record is exclusively owned by the task store;
// the engine holds only transient copies during an operation.
type GenerationTask struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"user_id"`
	Request       *GenerationRequest `json:"request"`
	Status        TaskStatus         `json:"status"`
	ChargedAmount *int64             `json:"charged_amount,omitempty"`
	ExternalJobID *string            `json:"external_job_id,omitempty"`
	Result        json.RawMessage    `json:"result,omitempty"`
	ErrorDetail   string             `json:"error_detail,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

// NewGenerationTask creates a new task in the pending state for the
// given request. It generates a new UUID for the task ID and sets the
// creation timestamp. Returns an error if validation fails.
func NewGenerationTask(request *GenerationRequest) (*GenerationTask, error) {
	if request == nil {
		return nil, ErrNilTaskRequest
	}

	task := &GenerationTask{
		ID:        uuid.New(),
		UserID:    request.UserID,
		Request:   request,
		Status:    TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the GenerationTask has valid data.
// Returns an error if any field fails validation.
func (t *GenerationTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}

	if t.Request == nil {
		return ErrNilTaskRequest
	}

	if !IsValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return t.Request.Validate()
}

// IsTerminal reports whether the task is in a state from which no
// further transition is legal.
func (t *GenerationTask) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// ProcessingDuration returns the time between processing start and
// completion, or zero if either timestamp is unset.
func (t *GenerationTask) ProcessingDuration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// IsValidTaskStatus checks if the given status is a valid TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// legalTransitions is the directed edge set of the task lifecycle graph.
// PENDING -> PROCESSING | CANCELLED; PROCESSING -> COMPLETED | FAILED.
var legalTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing, TaskStatusCancelled},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed},
}

// CanTransition reports whether from -> to is an edge of the lifecycle
// graph. Terminal states have no outgoing edges.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
