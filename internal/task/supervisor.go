package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/generation"
	"github.com/veldt/genforge/internal/service"
)

// Lifecycle is the subset of the task service the supervisor and
// dispatcher need to advance tasks.
type Lifecycle interface {
	// StartProcessing claims a pending task, charges it, and submits it.
	StartProcessing(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error)

	// CompleteTask records a result on a processing task.
	CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) (*domain.GenerationTask, error)

	// FailTask fails a processing task, refunding its charge.
	FailTask(ctx context.Context, taskID uuid.UUID, errorDetail string) (*domain.GenerationTask, error)

	// NextPendingTask retrieves the oldest unclaimed pending task.
	NextPendingTask(ctx context.Context) (*domain.GenerationTask, error)
}

// SupervisorConfig holds the polling budget. PollInterval times
// MaxAttempts is the total time a caller waits before ErrPollTimeout.
type SupervisorConfig struct {
	// PollInterval is the fixed delay between status checks.
	PollInterval time.Duration

	// MaxAttempts bounds the number of status checks per Await call.
	MaxAttempts int
}

// DefaultSupervisorConfig returns a SupervisorConfig with reasonable
// defaults: a ten-second interval and sixty attempts, a ten-minute
// budget.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		PollInterval: 10 * time.Second,
		MaxAttempts:  60,
	}
}

// PollingSupervisor repeatedly checks a submitted job's status and
// turns the adapter's terminal report into a lifecycle transition.
type PollingSupervisor struct {
	lifecycle Lifecycle
	adapters  *generation.Registry
	config    SupervisorConfig
	logger    *slog.Logger
}

// NewPollingSupervisor creates a new PollingSupervisor.
func NewPollingSupervisor(
	lifecycle Lifecycle,
	adapters *generation.Registry,
	config SupervisorConfig,
	logger *slog.Logger,
) *PollingSupervisor {
	if config.PollInterval <= 0 {
		config.PollInterval = 10 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 60
	}

	return &PollingSupervisor{
		lifecycle: lifecycle,
		adapters:  adapters,
		config:    config,
		logger:    logger.With("component", "polling_supervisor"),
	}
}

// Await polls the task's external job until it reaches a terminal
// state or the attempt budget runs out.
//
// A terminal adapter failure calls FailTask (refunding the charge); a
// completed job fetches results and calls CompleteTask, or FailTask if
// the results report failure. In both cases the transitioned task is
// returned. An exhausted budget returns ErrPollTimeout WITHOUT touching
// the persisted task: the task stays processing and the charge is
// retained, so a result arriving after the caller gave up can still be
// applied by a later poll. Cancelling ctx stops polling the same way,
// without changing task state.
func (s *PollingSupervisor) Await(
	ctx context.Context,
	task *domain.GenerationTask,
) (*domain.GenerationTask, error) {
	if task.ExternalJobID == nil {
		return nil, fmt.Errorf("task %s has no external job to poll", task.ID)
	}
	jobID := *task.ExternalJobID

	log := s.logger.With(
		"task_id", task.ID,
		"external_job_id", jobID,
	)

	adapter, err := s.adapters.Resolve(task.Request.Type)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			// Cancellation stops the poll but does not by itself change
			// task status; the caller decides whether to fail or cancel.
			log.Info("polling cancelled", "attempt", attempt)
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := adapter.CheckStatus(ctx, jobID)
		if err != nil {
			// A status-check transport error consumes an attempt but is
			// not a job failure.
			log.Warn("status check failed",
				"error", err,
				"attempt", attempt,
				"max_attempts", s.config.MaxAttempts)
			continue
		}

		log.Debug("polled job status",
			"state", status.State,
			"progress", status.Progress,
			"attempt", attempt)

		switch status.State {
		case generation.JobStateFailed:
			detail := status.ErrorDetail
			if detail == "" {
				detail = "external job failed"
			}
			return s.lifecycle.FailTask(ctx, task.ID, detail)

		case generation.JobStateSucceeded:
			return s.collectResults(ctx, log, adapter, task, jobID)

		default:
			// Still pending or running; keep polling.
		}
	}

	log.Warn("polling budget exhausted, task left processing",
		"max_attempts", s.config.MaxAttempts,
		"poll_interval", s.config.PollInterval)
	return nil, service.ErrPollTimeout
}

// collectResults fetches the final job outputs and completes or fails
// the task accordingly.
func (s *PollingSupervisor) collectResults(
	ctx context.Context,
	log *slog.Logger,
	adapter generation.ComputeAdapter,
	task *domain.GenerationTask,
	jobID string,
) (*domain.GenerationTask, error) {
	result, err := adapter.GetResults(ctx, jobID)
	if err != nil {
		log.Error("failed to fetch job results", "error", err)
		return s.lifecycle.FailTask(ctx, task.ID, fmt.Sprintf("results fetch failed: %v", err))
	}

	if !result.Success {
		detail := result.ErrorDetail
		if detail == "" {
			detail = "external job reported failure"
		}
		return s.lifecycle.FailTask(ctx, task.ID, detail)
	}

	return s.lifecycle.CompleteTask(ctx, task.ID, result.Outputs)
}
