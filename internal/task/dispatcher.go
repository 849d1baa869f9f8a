package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/service"
	"github.com/veldt/genforge/internal/store"
)

// StaleScanner exposes the maintenance queries the reconciliation sweep
// needs: finding processing tasks older than a given age, and deleting
// terminal tasks past the retention window.
type StaleScanner interface {
	FindProcessingOlderThan(ctx context.Context, age time.Duration) ([]*domain.GenerationTask, error)
	DeleteTerminalOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// DispatcherConfig holds configuration for the dispatcher
type DispatcherConfig struct {
	// WorkerCount determines how many concurrent workers pull and
	// process pending tasks
	WorkerCount int

	// IdleInterval is how long a worker sleeps when no pending task is
	// available
	IdleInterval time.Duration

	// ReconcileGrace defines how long a task may sit in processing
	// before the reconciliation sweep re-polls it
	ReconcileGrace time.Duration

	// ReconcileInterval defines how often the reconciliation sweep runs.
	// If zero, defaults to 5 minutes
	ReconcileInterval time.Duration

	// Retention defines how long terminal tasks are kept before the
	// sweep deletes them. Zero disables deletion
	Retention time.Duration
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount:       2,
		IdleInterval:      2 * time.Second,
		ReconcileGrace:    30 * time.Minute,
		ReconcileInterval: 5 * time.Minute,
		Retention:         30 * 24 * time.Hour,
	}
}

// Dispatcher owns the background processing of pending tasks: a pool of
// workers pulls unclaimed pending tasks, starts them, and supervises
// their polling; a reconciliation monitor re-polls processing tasks
// that were abandoned past the grace period (e.g. after a crash or a
// caller that gave up on a timeout), so charged tasks are eventually
// completed or refunded.
type Dispatcher struct {
	lifecycle  Lifecycle
	supervisor *PollingSupervisor
	scanner    StaleScanner
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     DispatcherConfig
	logger     *slog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	lifecycle Lifecycle,
	supervisor *PollingSupervisor,
	scanner StaleScanner,
	config DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.IdleInterval <= 0 {
		config.IdleInterval = 2 * time.Second
	}
	if config.ReconcileInterval == 0 {
		config.ReconcileInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		lifecycle:  lifecycle,
		supervisor: supervisor,
		scanner:    scanner,
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With("component", "dispatcher"),
	}
}

// Start launches the worker pool and the reconciliation monitor.
func (d *Dispatcher) Start() {
	for i := 0; i < d.config.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.wg.Add(1)
	go d.reconcileMonitor()
}

// Stop cancels all workers and waits for them to drain. Cancelling a
// worker mid-poll does not change any task's persisted status; the
// reconciliation monitor of the next process picks the task up again.
func (d *Dispatcher) Stop() {
	d.cancelFunc()
	d.wg.Wait()
}

// worker pulls pending tasks and drives them to a terminal state.
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	log := d.logger.With("worker_id", id)
	log.Debug("starting worker")

	for {
		select {
		case <-d.ctx.Done():
			log.Debug("stopping worker")
			return
		default:
		}

		pending, err := d.lifecycle.NextPendingTask(d.ctx)
		if err != nil {
			if !errors.Is(err, service.ErrNotFound) && !errors.Is(err, store.ErrTaskNotFound) {
				log.Error("failed to fetch next pending task", "error", err)
			}
			d.idle()
			continue
		}

		d.processTask(log, pending)
	}
}

// processTask starts a single pending task and supervises it.
func (d *Dispatcher) processTask(log *slog.Logger, pending *domain.GenerationTask) {
	log = log.With("task_id", pending.ID, "work_type", pending.Request.Type)

	started, err := d.lifecycle.StartProcessing(d.ctx, pending.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidState):
			// Another worker claimed it first.
			log.Debug("task already claimed")
		case errors.Is(err, service.ErrInsufficientCredits):
			// The service deferred the task, so the next pull sees
			// whatever is queued behind it.
			log.Info("task deferred, insufficient credits")
		case errors.Is(err, service.ErrSubmissionFailed):
			// Already refunded and failed by the service.
			log.Warn("task failed at submission", "error", err)
		default:
			log.Error("failed to start task", "error", err)
			d.idle()
		}
		return
	}

	log.Info("supervising task", "external_job_id", *started.ExternalJobID)

	if _, err := d.supervisor.Await(d.ctx, started); err != nil {
		switch {
		case errors.Is(err, service.ErrPollTimeout):
			// Deliberately left processing; the reconcile monitor will
			// re-poll it after the grace period.
			log.Warn("polling budget exhausted, leaving task for reconciliation")
		case errors.Is(err, context.Canceled):
			log.Info("supervision cancelled during shutdown")
		default:
			log.Error("task supervision failed", "error", err)
		}
	}
}

// idle sleeps for the idle interval or until shutdown.
func (d *Dispatcher) idle() {
	select {
	case <-d.ctx.Done():
	case <-time.After(d.config.IdleInterval):
	}
}

// pruneTerminal deletes terminal tasks older than the retention window.
func (d *Dispatcher) pruneTerminal() {
	if d.config.Retention <= 0 {
		return
	}

	deleted, err := d.scanner.DeleteTerminalOlderThan(d.ctx, d.config.Retention)
	if err != nil {
		d.logger.Error("failed to prune terminal tasks", "error", err)
		return
	}
	if deleted > 0 {
		d.logger.Info("pruned terminal tasks", "count", deleted)
	}
}

// reconcileMonitor periodically re-polls tasks stuck in processing
// longer than the grace period. A stale task that never got an external
// job (a crash between claim and submit) is failed outright, which
// refunds its charge.
func (d *Dispatcher) reconcileMonitor() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.pruneTerminal()

			stale, err := d.scanner.FindProcessingOlderThan(d.ctx, d.config.ReconcileGrace)
			if err != nil {
				d.logger.Error("failed to scan for stale processing tasks", "error", err)
				continue
			}

			if len(stale) == 0 {
				continue
			}

			d.logger.Info("reconciling stale processing tasks", "count", len(stale))

			for _, t := range stale {
				if t.ExternalJobID == nil {
					if _, err := d.lifecycle.FailTask(d.ctx, t.ID, "no external job recorded"); err != nil {
						d.logger.Error("failed to fail orphaned task",
							"task_id", t.ID,
							"error", err)
					}
					continue
				}

				if _, err := d.supervisor.Await(d.ctx, t); err != nil {
					if errors.Is(err, service.ErrPollTimeout) {
						d.logger.Warn("stale task still not terminal", "task_id", t.ID)
					} else if !errors.Is(err, context.Canceled) {
						d.logger.Error("failed to reconcile stale task",
							"task_id", t.ID,
							"error", err)
					}
				}
			}
		}
	}
}
