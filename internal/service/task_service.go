package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/events"
	"github.com/veldt/genforge/internal/generation"
	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/store"
)

// TaskService owns the generation task state machine. All transitions
// go through it; callers never write task status or ledger entries
// directly.
// Version: 1.0
type TaskService interface {
	// CreateTask validates the request, computes its projected cost,
	// and persists a new pending task. Validation is a pure check with
	// zero side effects: a malformed request fails with ErrValidation
	// before any persistence. Publishes task-created.
	CreateTask(ctx context.Context, request *domain.GenerationRequest) (*domain.GenerationTask, error)

	// StartProcessing claims a pending task, debits its cost, and
	// submits it to the external compute adapter. Exactly one of any
	// number of concurrent calls on the same task succeeds; the rest
	// observe ErrInvalidState without debiting. The debit and the charge
	// record commit atomically. If the debit fails with
	// ErrInsufficientCredits the task returns to pending with a short
	// deferral and the error surfaces unchanged. If submission fails
	// the charge is refunded and the task moves to failed before
	// ErrSubmissionFailed is returned. Publishes task-processing on
	// success.
	StartProcessing(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error)

	// CompleteTask records the result and completion timestamp on a
	// processing task and transitions it to completed. The charge is
	// retained. Publishes task-completed.
	CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) (*domain.GenerationTask, error)

	// FailTask transitions a processing task to failed, refunding the
	// charge exactly once. Safe to retry: a second call for the same
	// task does not refund again. Publishes task-failed.
	FailTask(ctx context.Context, taskID uuid.UUID, errorDetail string) (*domain.GenerationTask, error)

	// CancelTask transitions a pending task to cancelled. Nothing was
	// charged, so the ledger is not touched. A task already processing
	// fails with ErrInvalidState.
	CancelTask(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error)

	// GetTask retrieves a task by its ID.
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error)

	// ListTasks retrieves a user's tasks, newest first.
	ListTasks(ctx context.Context, userID uuid.UUID, filter store.TaskFilter) ([]*domain.GenerationTask, error)

	// NextPendingTask retrieves the oldest unclaimed pending task, for
	// work-pulling supervisors. Returns ErrNotFound when none exists.
	NextPendingTask(ctx context.Context) (*domain.GenerationTask, error)
}

// TxRunner executes fn inside a database transaction, committing on a
// nil return and rolling back otherwise. Production wires this to
// store.RunInTransaction; tests substitute a passthrough.
type TxRunner func(ctx context.Context, fn store.TxFn) error

// insufficientCreditsBackoff is how long an unfunded task stays
// invisible to claim scans after a debit is rejected, so the tasks
// queued behind it keep flowing.
const insufficientCreditsBackoff = 30 * time.Second

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	taskStore  store.TaskStore
	ledger     ledger.CreditLedger
	adapters   *generation.Registry
	publisher  events.Publisher
	costPolicy CostPolicy
	runTx      TxRunner
	logger     *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	taskStore store.TaskStore,
	creditLedger ledger.CreditLedger,
	adapters *generation.Registry,
	publisher events.Publisher,
	costPolicy CostPolicy,
	runTx TxRunner,
	logger *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "taskStore cannot be nil"}
	}
	if creditLedger == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "creditLedger cannot be nil"}
	}
	if adapters == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "adapters cannot be nil"}
	}
	if publisher == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "publisher cannot be nil"}
	}
	if costPolicy == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "costPolicy cannot be nil"}
	}
	if runTx == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "runTx cannot be nil"}
	}
	if logger == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "logger cannot be nil"}
	}

	return &taskServiceImpl{
		taskStore:  taskStore,
		ledger:     creditLedger,
		adapters:   adapters,
		publisher:  publisher,
		costPolicy: costPolicy,
		runTx:      runTx,
		logger:     logger.With("component", "task_service"),
	}, nil
}

func (s *taskServiceImpl) CreateTask(
	ctx context.Context,
	request *domain.GenerationRequest,
) (*domain.GenerationTask, error) {
	if request == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", ErrValidation)
	}

	// Pure validation before any persistence.
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Unregistered work types fail here, at creation, not at first
	// submission.
	if _, err := s.adapters.Resolve(request.Type); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	task, err := domain.NewGenerationTask(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	projectedCost := s.costPolicy.Cost(request)

	if err := s.taskStore.Create(ctx, task); err != nil {
		return nil, NewTaskServiceError("create_task", "failed to persist task", err)
	}

	s.logger.Info("task created",
		"task_id", task.ID,
		"user_id", task.UserID,
		"work_type", request.Type,
		"projected_cost", projectedCost)

	s.publish(ctx, events.NewTaskEvent(events.EventTaskCreated, task))

	return task, nil
}

func (s *taskServiceImpl) StartProcessing(
	ctx context.Context,
	taskID uuid.UUID,
) (*domain.GenerationTask, error) {
	log := s.logger.With("task_id", taskID)

	// The compare-and-set claim closes the double-start race: exactly
	// one concurrent caller wins the PENDING -> PROCESSING transition
	// and proceeds to charge; losers see ErrInvalidState.
	task, err := s.taskStore.ClaimPending(ctx, taskID, time.Now().UTC())
	if err != nil {
		return nil, NewTaskServiceError("start_processing", "failed to claim task", err)
	}

	adapter, err := s.adapters.Resolve(task.Request.Type)
	if err != nil {
		// Registry misconfiguration. Return the task to pending so a
		// correctly configured process can pick it up.
		s.releaseClaim(ctx, log, taskID, nil)
		return nil, NewTaskServiceError("start_processing", "failed to resolve adapter", err)
	}

	cost := s.costPolicy.Cost(task.Request)

	// Debit and charge record commit or roll back together, so a crash
	// can never leave a debited entry with no charge on the task.
	var entry *domain.LedgerEntry
	err = s.runTx(ctx, func(txCtx context.Context, tx *sql.Tx) error {
		var txErr error
		entry, txErr = s.ledger.WithTx(tx).Debit(txCtx, task.UserID, cost, domain.ReasonTaskCharge, &taskID)
		if txErr != nil {
			return txErr
		}
		return s.taskStore.WithTx(tx).RecordCharge(txCtx, taskID, cost)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			// Defer the release so the tasks queued behind this one are
			// not starved while the user stays unfunded.
			deferUntil := time.Now().UTC().Add(insufficientCreditsBackoff)
			s.releaseClaim(ctx, log, taskID, &deferUntil)
			log.Info("start rejected, insufficient credits",
				"user_id", task.UserID,
				"cost", cost)
			return nil, ErrInsufficientCredits
		}
		// The rollback already undid any debit; the task just goes back
		// to pending.
		s.releaseClaim(ctx, log, taskID, nil)
		return nil, NewTaskServiceError("start_processing", "failed to charge credits", err)
	}

	log.Info("credits charged",
		"user_id", task.UserID,
		"cost", cost,
		"balance_after", entry.BalanceAfter)

	jobID, err := adapter.Submit(ctx, generation.JobSpec{
		TaskID: task.ID,
		UserID: task.UserID,
		Type:   task.Request.Type,
		Params: task.Request.Params,
	})
	if err != nil {
		// Submission failed after the charge: refund, then fail the
		// task. The caller never has to remember to refund.
		log.Error("job submission failed", "error", err)
		s.refundCharge(ctx, log, task.UserID, cost, taskID)

		detail := fmt.Sprintf("submission failed: %v", err)
		failed, markErr := s.taskStore.MarkFailed(ctx, taskID, detail, time.Now().UTC())
		if markErr != nil {
			log.Error("failed to mark task failed after submission error", "error", markErr)
		} else {
			s.publish(ctx, events.NewTaskEvent(events.EventTaskFailed, failed))
		}

		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	if err := s.taskStore.SetExternalJob(ctx, taskID, jobID); err != nil {
		// The job is running and paid for; losing the job id would
		// strand it, so surface the storage failure loudly.
		log.Error("failed to record external job ID",
			"error", err,
			"external_job_id", jobID)
		return nil, NewTaskServiceError("start_processing", "failed to record external job ID", err)
	}

	task, err = s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("start_processing", "failed to reload task", err)
	}

	log.Info("task processing",
		"external_job_id", jobID,
		"charged_amount", cost)

	s.publish(ctx, events.NewTaskEvent(events.EventTaskProcessing, task))

	return task, nil
}

func (s *taskServiceImpl) CompleteTask(
	ctx context.Context,
	taskID uuid.UUID,
	result json.RawMessage,
) (*domain.GenerationTask, error) {
	task, err := s.taskStore.MarkCompleted(ctx, taskID, result, time.Now().UTC())
	if err != nil {
		return nil, NewTaskServiceError("complete_task", "failed to mark task completed", err)
	}

	s.logger.Info("task completed",
		"task_id", task.ID,
		"user_id", task.UserID,
		"processing_duration", task.ProcessingDuration())

	s.publish(ctx, events.NewTaskEvent(events.EventTaskCompleted, task))

	return task, nil
}

func (s *taskServiceImpl) FailTask(
	ctx context.Context,
	taskID uuid.UUID,
	errorDetail string,
) (*domain.GenerationTask, error) {
	log := s.logger.With("task_id", taskID)

	task, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("fail_task", "failed to load task", err)
	}

	if task.Status != domain.TaskStatusProcessing {
		return nil, ErrInvalidState
	}

	// Refund before the status write. A crash between the two leaves
	// the task processing with the refund applied; the retried
	// FailTask then finds the duplicate refund, skips it, and finishes
	// the transition. Refund-after-write would risk keeping money for
	// work that did not happen.
	if task.ChargedAmount != nil {
		if _, err := s.ledger.Refund(ctx, task.UserID, *task.ChargedAmount, taskID); err != nil {
			if errors.Is(err, ledger.ErrDuplicateRefund) {
				log.Info("refund already applied, continuing")
			} else {
				return nil, NewTaskServiceError("fail_task", "failed to refund charge", err)
			}
		}
	}

	task, err = s.taskStore.MarkFailed(ctx, taskID, errorDetail, time.Now().UTC())
	if err != nil {
		return nil, NewTaskServiceError("fail_task", "failed to mark task failed", err)
	}

	log.Info("task failed",
		"user_id", task.UserID,
		"error_detail", errorDetail)

	s.publish(ctx, events.NewTaskEvent(events.EventTaskFailed, task))

	return task, nil
}

func (s *taskServiceImpl) CancelTask(
	ctx context.Context,
	taskID uuid.UUID,
) (*domain.GenerationTask, error) {
	task, err := s.taskStore.MarkCancelled(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("cancel_task", "failed to cancel task", err)
	}

	s.logger.Info("task cancelled",
		"task_id", task.ID,
		"user_id", task.UserID)

	return task, nil
}

func (s *taskServiceImpl) GetTask(
	ctx context.Context,
	taskID uuid.UUID,
) (*domain.GenerationTask, error) {
	task, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("get_task", "failed to load task", err)
	}
	return task, nil
}

func (s *taskServiceImpl) ListTasks(
	ctx context.Context,
	userID uuid.UUID,
	filter store.TaskFilter,
) ([]*domain.GenerationTask, error) {
	tasks, err := s.taskStore.FindByUser(ctx, userID, filter)
	if err != nil {
		return nil, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

func (s *taskServiceImpl) NextPendingTask(ctx context.Context) (*domain.GenerationTask, error) {
	task, err := s.taskStore.GetNextPending(ctx)
	if err != nil {
		return nil, NewTaskServiceError("next_pending_task", "failed to get next pending task", err)
	}
	return task, nil
}

// publish delivers a lifecycle event, fire-and-forget. Publish failures
// are logged but never roll back the transition that produced them.
func (s *taskServiceImpl) publish(ctx context.Context, event *events.TaskEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish lifecycle event",
			"error", err,
			"event_type", event.Type,
			"task_id", event.TaskID)
	}
}

// releaseClaim returns a claimed task to pending, logging on failure.
// A non-nil deferUntil keeps the task out of claim scans until then.
func (s *taskServiceImpl) releaseClaim(ctx context.Context, log *slog.Logger, taskID uuid.UUID, deferUntil *time.Time) {
	if err := s.taskStore.ReleaseToPending(ctx, taskID, deferUntil); err != nil {
		log.Error("failed to release claimed task back to pending", "error", err)
	}
}

// refundCharge refunds a charge, treating a duplicate refund as
// already-done.
func (s *taskServiceImpl) refundCharge(
	ctx context.Context,
	log *slog.Logger,
	userID uuid.UUID,
	amount int64,
	taskID uuid.UUID,
) {
	if _, err := s.ledger.Refund(ctx, userID, amount, taskID); err != nil {
		if errors.Is(err, ledger.ErrDuplicateRefund) {
			log.Info("refund already applied")
			return
		}
		log.Error("failed to refund charge", "error", err, "amount", amount)
	}
}
