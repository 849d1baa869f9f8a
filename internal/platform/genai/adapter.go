package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/config"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/generation"
	"google.golang.org/genai"
)

// jobParams is the parameter payload accepted for both work types.
type jobParams struct {
	Prompt string `json:"prompt"`
}

// job tracks one submitted generation through its lifecycle.
type job struct {
	state  generation.JobState
	result *generation.JobResult
	cancel context.CancelFunc
}

// GeminiAdapter implements the generation.ComputeAdapter interface using
// Google's Gemini API as the compute backend.
type GeminiAdapter struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains compute-specific configuration
	config config.ComputeConfig

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string

	mu   sync.RWMutex
	jobs map[string]*job
}

// NewGeminiAdapter creates a new instance of GeminiAdapter with the provided dependencies.
//
// Parameters:
//   - ctx: Context for the operation, which can be used for cancellation
//   - logger: A structured logger for operation logging
//   - config: Compute configuration containing API key, model name, and retry settings
//
// Returns:
//   - A properly initialized GeminiAdapter or an error if initialization fails
func NewGeminiAdapter(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.ComputeConfig,
) (*GeminiAdapter, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	// Validate configuration
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &GeminiAdapter{
		logger: logger.With(slog.String("component", "gemini_adapter")),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
		jobs:   make(map[string]*job),
	}, nil
}

// Ensure GeminiAdapter implements generation.ComputeAdapter interface
var _ generation.ComputeAdapter = (*GeminiAdapter)(nil)

// Submit implements generation.ComputeAdapter.Submit
// It validates the job parameters, registers a job record, and starts
// the generation in a background goroutine. The returned identifier
// addresses the job in later CheckStatus, GetResults, and Cancel calls.
// The generation outlives the submission context; cancelling it does not
// stop a job that was already accepted.
func (a *GeminiAdapter) Submit(ctx context.Context, spec generation.JobSpec) (string, error) {
	switch spec.Type {
	case domain.WorkTypeImageGeneration, domain.WorkTypeTextGeneration:
	default:
		return "", fmt.Errorf("%w: %s", generation.ErrUnsupportedWorkType, spec.Type)
	}

	var params jobParams
	if err := json.Unmarshal(spec.Params, &params); err != nil {
		return "", fmt.Errorf("%w: malformed params: %v", generation.ErrSubmissionFailed, err)
	}
	if params.Prompt == "" {
		return "", fmt.Errorf("%w: params missing prompt", generation.ErrSubmissionFailed)
	}

	jobID := uuid.NewString()

	// The job runs detached from the submission context; the supervisor
	// observes it through CheckStatus.
	jobCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.jobs[jobID] = &job{
		state:  generation.JobStatePending,
		cancel: cancel,
	}
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "submitted generation job",
		slog.String("job_id", jobID),
		slog.String("task_id", spec.TaskID.String()),
		slog.String("work_type", string(spec.Type)))

	go a.run(jobCtx, jobID, spec.Type, params.Prompt)

	return jobID, nil
}

// CheckStatus implements generation.ComputeAdapter.CheckStatus
// Returns generation.ErrJobNotFound for an unknown job identifier.
func (a *GeminiAdapter) CheckStatus(
	ctx context.Context,
	jobID string,
) (generation.JobStatus, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	j, ok := a.jobs[jobID]
	if !ok {
		return generation.JobStatus{}, fmt.Errorf("%w: %s", generation.ErrJobNotFound, jobID)
	}

	status := generation.JobStatus{State: j.state}
	switch j.state {
	case generation.JobStateRunning:
		status.Progress = 50
	case generation.JobStateSucceeded, generation.JobStateFailed:
		status.Progress = 100
		if j.result != nil {
			status.ErrorDetail = j.result.ErrorDetail
		}
	}

	return status, nil
}

// GetResults implements generation.ComputeAdapter.GetResults
// Returns an error if the job is unknown or has not reached a terminal
// state yet; a failed job returns a result with Success false.
func (a *GeminiAdapter) GetResults(
	ctx context.Context,
	jobID string,
) (generation.JobResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	j, ok := a.jobs[jobID]
	if !ok {
		return generation.JobResult{}, fmt.Errorf("%w: %s", generation.ErrJobNotFound, jobID)
	}

	if !j.state.Terminal() || j.result == nil {
		return generation.JobResult{}, fmt.Errorf(
			"job %s has no results yet (state %s)", jobID, j.state)
	}

	return *j.result, nil
}

// Cancel implements generation.ComputeAdapter.Cancel
// Returns true if the job was cancelled, false if it had already reached
// a terminal state.
func (a *GeminiAdapter) Cancel(ctx context.Context, jobID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	j, ok := a.jobs[jobID]
	if !ok {
		return false, fmt.Errorf("%w: %s", generation.ErrJobNotFound, jobID)
	}

	if j.state.Terminal() {
		return false, nil
	}

	j.cancel()
	j.state = generation.JobStateFailed
	j.result = &generation.JobResult{
		Success:     false,
		ErrorDetail: "job cancelled",
	}

	a.logger.InfoContext(ctx, "cancelled generation job", slog.String("job_id", jobID))
	return true, nil
}

// setRunning marks a job running unless it was cancelled first.
func (a *GeminiAdapter) setRunning(jobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	j, ok := a.jobs[jobID]
	if !ok || j.state.Terminal() {
		return false
	}
	j.state = generation.JobStateRunning
	return true
}

// finish records a job's terminal result, unless Cancel got there first.
func (a *GeminiAdapter) finish(jobID string, result generation.JobResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	j, ok := a.jobs[jobID]
	if !ok || j.state.Terminal() {
		return
	}

	if result.Success {
		j.state = generation.JobStateSucceeded
	} else {
		j.state = generation.JobStateFailed
	}
	j.result = &result
}
