package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/domain"
)

// EventType identifies a lifecycle transition.
type EventType string

// Lifecycle event types, one per transition.
const (
	EventTaskCreated    EventType = "task-created"
	EventTaskProcessing EventType = "task-processing"
	EventTaskCompleted  EventType = "task-completed"
	EventTaskFailed     EventType = "task-failed"
)

// TaskEvent describes one lifecycle transition of a generation task.
// Events are fire-and-forget: a publish failure never rolls back the
// transition that produced the event.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates which transition occurred
	Type EventType `json:"type"`

	// TaskID identifies the task that transitioned
	TaskID uuid.UUID `json:"task_id"`

	// UserID is the task's owner
	UserID uuid.UUID `json:"user_id"`

	// WorkType is the task's work type tag
	WorkType domain.WorkType `json:"work_type"`

	// Outputs carries the result payload on task-completed events
	Outputs json.RawMessage `json:"outputs,omitempty"`

	// ErrorDetail carries the failure description on task-failed events
	ErrorDetail string `json:"error_detail,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskEvent creates a lifecycle event for the given task.
func NewTaskEvent(eventType EventType, task *domain.GenerationTask) *TaskEvent {
	evt := &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    task.ID,
		UserID:    task.UserID,
		WorkType:  task.Request.Type,
		CreatedAt: time.Now().UTC(),
	}

	switch eventType {
	case EventTaskCompleted:
		evt.Outputs = task.Result
	case EventTaskFailed:
		evt.ErrorDetail = task.ErrorDetail
	}

	return evt
}

// Handler defines an interface for components that consume lifecycle
// events. Handlers are responsible for processing events and taking
// appropriate actions.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// Publisher defines an interface for components that publish lifecycle
// events. The engine depends on it only as a sink.
type Publisher interface {
	// Publish delivers the given event to downstream consumers.
	// Returns an error if delivery failed; callers treat publication as
	// fire-and-forget and never roll back on it.
	Publish(ctx context.Context, event *TaskEvent) error
}
