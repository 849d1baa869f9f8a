package task

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/generation"
	"github.com/veldt/genforge/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// mockLifecycle is a configurable fake of the Lifecycle interface.
// Calls are recorded so tests can assert which transitions ran.
type mockLifecycle struct {
	mu sync.Mutex

	StartProcessingFn func(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error)
	CompleteTaskFn    func(ctx context.Context, taskID uuid.UUID, result json.RawMessage) (*domain.GenerationTask, error)
	FailTaskFn        func(ctx context.Context, taskID uuid.UUID, errorDetail string) (*domain.GenerationTask, error)
	NextPendingTaskFn func(ctx context.Context) (*domain.GenerationTask, error)

	completed []uuid.UUID
	failed    []uuid.UUID
}

func (m *mockLifecycle) StartProcessing(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error) {
	return m.StartProcessingFn(ctx, taskID)
}

func (m *mockLifecycle) CompleteTask(
	ctx context.Context,
	taskID uuid.UUID,
	result json.RawMessage,
) (*domain.GenerationTask, error) {
	m.mu.Lock()
	m.completed = append(m.completed, taskID)
	m.mu.Unlock()
	return m.CompleteTaskFn(ctx, taskID, result)
}

func (m *mockLifecycle) FailTask(
	ctx context.Context,
	taskID uuid.UUID,
	errorDetail string,
) (*domain.GenerationTask, error) {
	m.mu.Lock()
	m.failed = append(m.failed, taskID)
	m.mu.Unlock()
	return m.FailTaskFn(ctx, taskID, errorDetail)
}

func (m *mockLifecycle) NextPendingTask(ctx context.Context) (*domain.GenerationTask, error) {
	if m.NextPendingTaskFn == nil {
		return nil, service.ErrNotFound
	}
	return m.NextPendingTaskFn(ctx)
}

func (m *mockLifecycle) completedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed)
}

func (m *mockLifecycle) failedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failed)
}

// mockAdapter is a configurable fake of the generation.ComputeAdapter
// interface.
type mockAdapter struct {
	SubmitFn      func(ctx context.Context, spec generation.JobSpec) (string, error)
	CheckStatusFn func(ctx context.Context, jobID string) (generation.JobStatus, error)
	GetResultsFn  func(ctx context.Context, jobID string) (generation.JobResult, error)
	CancelFn      func(ctx context.Context, jobID string) (bool, error)
}

func (m *mockAdapter) Submit(ctx context.Context, spec generation.JobSpec) (string, error) {
	return m.SubmitFn(ctx, spec)
}

func (m *mockAdapter) CheckStatus(ctx context.Context, jobID string) (generation.JobStatus, error) {
	return m.CheckStatusFn(ctx, jobID)
}

func (m *mockAdapter) GetResults(ctx context.Context, jobID string) (generation.JobResult, error) {
	return m.GetResultsFn(ctx, jobID)
}

func (m *mockAdapter) Cancel(ctx context.Context, jobID string) (bool, error) {
	return m.CancelFn(ctx, jobID)
}

// mockScanner is a configurable fake of the StaleScanner interface.
type mockScanner struct {
	FindProcessingOlderThanFn func(ctx context.Context, age time.Duration) ([]*domain.GenerationTask, error)
	DeleteTerminalOlderThanFn func(ctx context.Context, age time.Duration) (int64, error)
}

func (m *mockScanner) FindProcessingOlderThan(
	ctx context.Context,
	age time.Duration,
) ([]*domain.GenerationTask, error) {
	if m.FindProcessingOlderThanFn == nil {
		return nil, nil
	}
	return m.FindProcessingOlderThanFn(ctx, age)
}

func (m *mockScanner) DeleteTerminalOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if m.DeleteTerminalOlderThanFn == nil {
		return 0, nil
	}
	return m.DeleteTerminalOlderThanFn(ctx, age)
}

func newTestRegistry(t *testing.T, adapter generation.ComputeAdapter) *generation.Registry {
	t.Helper()
	registry := generation.NewRegistry()
	require.NoError(t, registry.Register(domain.WorkTypeImageGeneration, adapter))
	return registry
}

func processingTask(t *testing.T, jobID string) *domain.GenerationTask {
	t.Helper()
	req, err := domain.NewGenerationRequest(
		uuid.New(),
		domain.WorkTypeImageGeneration,
		json.RawMessage(`{"prompt":"a mountain pass"}`),
		domain.CostParams{Width: 512, Height: 512},
	)
	require.NoError(t, err)

	task, err := domain.NewGenerationTask(req)
	require.NoError(t, err)

	task.Status = domain.TaskStatusProcessing
	started := time.Now().UTC()
	task.StartedAt = &started
	if jobID != "" {
		task.ExternalJobID = &jobID
	}
	return task
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
