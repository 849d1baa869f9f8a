package generation

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/domain"
)

// JobState is the external compute service's view of a submitted job.
type JobState string

// Possible job states reported by an adapter.
const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether the state is final from the adapter's side.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// JobSpec is the work handed to an adapter on submission.
type JobSpec struct {
	// TaskID is the engine's task identifier, passed through for
	// correlation in the external service's logs.
	TaskID uuid.UUID

	// UserID is the owner of the work.
	UserID uuid.UUID

	// Type selects the kind of generation to perform.
	Type domain.WorkType

	// Params is the parameter payload, opaque to the engine.
	Params json.RawMessage
}

// JobStatus is a point-in-time snapshot of a submitted job.
type JobStatus struct {
	State       JobState
	Progress    int // 0-100, best effort
	ErrorDetail string
}

// JobResult is the final output of a completed job.
type JobResult struct {
	Success     bool
	Outputs     json.RawMessage
	ErrorDetail string
}

// ComputeAdapter is the contract an external long-running compute
// service is driven through. The engine depends only on this contract;
// the concrete service, its authentication, and its wire protocol are
// the adapter's concern.
// Version: 1.0
type ComputeAdapter interface {
	// Submit starts the work described by spec and returns the external
	// job identifier. Returns ErrSubmissionFailed if the job could not
	// be started.
	Submit(ctx context.Context, spec JobSpec) (string, error)

	// CheckStatus reports the current state of a submitted job.
	// Returns ErrJobNotFound for an unknown job identifier.
	CheckStatus(ctx context.Context, jobID string) (JobStatus, error)

	// GetResults returns the final results of a job. The result's
	// Success flag is false when the job itself failed; an error return
	// means the results call could not be performed at all.
	GetResults(ctx context.Context, jobID string) (JobResult, error)

	// Cancel requests cancellation of a not-yet-completed job.
	// Returns true if the job was cancelled, false if it had already
	// reached a terminal state.
	Cancel(ctx context.Context, jobID string) (bool, error)
}
