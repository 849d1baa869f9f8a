package postgres

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
	"github.com/veldt/genforge/internal/platform/logger"
	"github.com/veldt/genforge/internal/store"
)

// taskColumns is the column list shared by every task query so scans
// stay aligned with selects.
const taskColumns = `id, user_id, request, status, charged_amount, external_job_id,
		result, error_detail, created_at, started_at, completed_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend. Status transitions
// are conditional UPDATEs keyed on the current status, so concurrent
// transition attempts resolve to exactly one winner.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create
// It saves a new task to the database, handling domain validation.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	requestJSON, err := json.Marshal(task.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal task request: %w", err)
	}

	query := `
		INSERT INTO tasks (id, user_id, request, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		requestJSON,
		task.Status,
		task.CreatedAt,
	)

	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("user_id", task.UserID.String()))
		return MapError(err)
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", task.UserID.String()),
		slog.String("work_type", string(task.Request.Type)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	return task, nil
}

// FindByUser implements store.TaskStore.FindByUser
// It retrieves the tasks owned by a user, newest first.
func (s *PostgresTaskStore) FindByUser(
	ctx context.Context,
	userID uuid.UUID,
	filter store.TaskFilter,
) ([]*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []interface{}{userID}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by user",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	tasks, err := collectTasks(rows)
	if err != nil {
		log.Error("failed to scan task rows",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, err
	}

	return tasks, nil
}

// GetNextPending implements store.TaskStore.GetNextPending
// Deferred tasks stay invisible until their deferral passes, so the
// oldest unstartable task cannot pin the head of the queue.
// Returns store.ErrTaskNotFound if no claimable pending task exists.
func (s *PostgresTaskStore) GetNextPending(ctx context.Context) (*domain.GenerationTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1
		  AND (deferred_until IS NULL OR deferred_until <= NOW())
		ORDER BY created_at ASC
		LIMIT 1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, domain.TaskStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, err
	}

	return task, nil
}

// ClaimPending implements store.TaskStore.ClaimPending
// The pending check and the transition to processing are a single
// conditional UPDATE, so of any number of concurrent claims on the same
// task exactly one succeeds.
func (s *PostgresTaskStore) ClaimPending(
	ctx context.Context,
	id uuid.UUID,
	startedAt time.Time,
) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(
		ctx,
		query,
		domain.TaskStatusProcessing,
		startedAt,
		id,
		domain.TaskStatusPending,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedUpdate(ctx, id, domain.TaskStatusPending)
		}
		log.Error("failed to claim pending task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	log.Debug("claimed pending task", slog.String("task_id", id.String()))
	return task, nil
}

// ReleaseToPending implements store.TaskStore.ReleaseToPending
// It reverts a claimed task to pending, clearing the start time and any
// recorded charge. A non-nil deferUntil hides the task from claim scans
// until that time.
func (s *PostgresTaskStore) ReleaseToPending(ctx context.Context, id uuid.UUID, deferUntil *time.Time) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, started_at = NULL, charged_amount = NULL, deferred_until = $2
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		domain.TaskStatusPending,
		deferUntil,
		id,
		domain.TaskStatusProcessing,
	)
	if err != nil {
		log.Error("failed to release task to pending",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return err
	}

	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return s.classifyMissedUpdate(ctx, id, domain.TaskStatusProcessing)
	}

	log.Debug("released task to pending", slog.String("task_id", id.String()))
	return nil
}

// RecordCharge implements store.TaskStore.RecordCharge
// The charged amount is written at most once per task; a second write
// finds the column non-null and reports a conflict.
func (s *PostgresTaskStore) RecordCharge(ctx context.Context, id uuid.UUID, amount int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET charged_amount = $1
		WHERE id = $2 AND status = $3 AND charged_amount IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, amount, id, domain.TaskStatusProcessing)
	if err != nil {
		log.Error("failed to record charge",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return err
	}

	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return s.classifyMissedUpdate(ctx, id, domain.TaskStatusProcessing)
	}

	log.Debug("recorded charge",
		slog.String("task_id", id.String()),
		slog.Int64("amount", amount))
	return nil
}

// SetExternalJob implements store.TaskStore.SetExternalJob
func (s *PostgresTaskStore) SetExternalJob(ctx context.Context, id uuid.UUID, jobID string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET external_job_id = $1
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, jobID, id, domain.TaskStatusProcessing)
	if err != nil {
		log.Error("failed to set external job",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return err
	}

	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return s.classifyMissedUpdate(ctx, id, domain.TaskStatusProcessing)
	}

	return nil
}

// MarkCompleted implements store.TaskStore.MarkCompleted
// Returns store.ErrStatusConflict if the task is not processing.
func (s *PostgresTaskStore) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	result json.RawMessage,
	completedAt time.Time,
) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, result = $2, completed_at = $3
		WHERE id = $4 AND status = $5
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(
		ctx,
		query,
		domain.TaskStatusCompleted,
		[]byte(result),
		completedAt,
		id,
		domain.TaskStatusProcessing,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedUpdate(ctx, id, domain.TaskStatusProcessing)
		}
		log.Error("failed to mark task completed",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	log.Info("task completed",
		slog.String("task_id", id.String()),
		slog.Duration("processing_duration", task.ProcessingDuration()))
	return task, nil
}

// MarkFailed implements store.TaskStore.MarkFailed
// Returns store.ErrStatusConflict if the task is not processing.
func (s *PostgresTaskStore) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	errorDetail string,
	completedAt time.Time,
) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, error_detail = $2, completed_at = $3
		WHERE id = $4 AND status = $5
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(
		ctx,
		query,
		domain.TaskStatusFailed,
		errorDetail,
		completedAt,
		id,
		domain.TaskStatusProcessing,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedUpdate(ctx, id, domain.TaskStatusProcessing)
		}
		log.Error("failed to mark task failed",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	log.Info("task failed",
		slog.String("task_id", id.String()),
		slog.String("error_detail", errorDetail))
	return task, nil
}

// MarkCancelled implements store.TaskStore.MarkCancelled
// Only pending tasks can be cancelled; a processing or terminal task
// reports a conflict.
func (s *PostgresTaskStore) MarkCancelled(
	ctx context.Context,
	id uuid.UUID,
) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(
		ctx,
		query,
		domain.TaskStatusCancelled,
		time.Now().UTC(),
		id,
		domain.TaskStatusPending,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedUpdate(ctx, id, domain.TaskStatusPending)
		}
		log.Error("failed to mark task cancelled",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	log.Info("task cancelled", slog.String("task_id", id.String()))
	return task, nil
}

// FindProcessingOlderThan implements store.TaskStore.FindProcessingOlderThan
func (s *PostgresTaskStore) FindProcessingOlderThan(
	ctx context.Context,
	age time.Duration,
) ([]*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1 AND started_at < $2
		ORDER BY started_at ASC
	`

	cutoff := time.Now().UTC().Add(-age)

	rows, err := s.db.QueryContext(ctx, query, domain.TaskStatusProcessing, cutoff)
	if err != nil {
		log.Error("failed to query stale processing tasks",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	return collectTasks(rows)
}

// DeleteTerminalOlderThan implements store.TaskStore.DeleteTerminalOlderThan
func (s *PostgresTaskStore) DeleteTerminalOlderThan(
	ctx context.Context,
	age time.Duration,
) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		DELETE FROM tasks
		WHERE status IN ($1, $2, $3) AND completed_at < $4
	`

	cutoff := time.Now().UTC().Add(-age)

	result, err := s.db.ExecContext(
		ctx,
		query,
		domain.TaskStatusCompleted,
		domain.TaskStatusFailed,
		domain.TaskStatusCancelled,
		cutoff,
	)
	if err != nil {
		log.Error("failed to delete terminal tasks",
			slog.String("error", err.Error()))
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		log.Info("deleted terminal tasks", slog.Int64("count", deleted))
	}
	return deleted, nil
}

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// classifyMissedUpdate turns a zero-row conditional UPDATE into the
// right error: the task either does not exist, or exists in a status the
// transition does not accept.
func (s *PostgresTaskStore) classifyMissedUpdate(
	ctx context.Context,
	id uuid.UUID,
	wanted domain.TaskStatus,
) error {
	var current domain.TaskStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, id).
		Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrTaskNotFound
		}
		return err
	}
	return fmt.Errorf("%w: task is %s, wanted %s", store.ErrStatusConflict, current, wanted)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask maps one task row onto a domain.GenerationTask.
func scanTask(row rowScanner) (*domain.GenerationTask, error) {
	var (
		task          domain.GenerationTask
		status        string
		requestJSON   []byte
		chargedAmount sql.NullInt64
		externalJobID sql.NullString
		result        []byte
		errorDetail   sql.NullString
		startedAt     sql.NullTime
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&requestJSON,
		&status,
		&chargedAmount,
		&externalJobID,
		&result,
		&errorDetail,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	var request domain.GenerationRequest
	if err := json.Unmarshal(requestJSON, &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task request: %w", err)
	}
	task.Request = &request

	task.Status = domain.TaskStatus(status)
	if chargedAmount.Valid {
		task.ChargedAmount = &chargedAmount.Int64
	}
	if externalJobID.Valid {
		task.ExternalJobID = &externalJobID.String
	}
	if len(result) > 0 {
		task.Result = json.RawMessage(result)
	}
	task.ErrorDetail = errorDetail.String
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}

	return &task, nil
}

// collectTasks drains rows into a slice, returning an empty slice when
// nothing matched.
func collectTasks(rows *sql.Rows) ([]*domain.GenerationTask, error) {
	var tasks []*domain.GenerationTask

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if tasks == nil {
		tasks = []*domain.GenerationTask{}
	}
	return tasks, nil
}
