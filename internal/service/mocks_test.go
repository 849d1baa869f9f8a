package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/events"
	"github.com/veldt/genforge/internal/generation"
	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/store"
)

// MockTaskStore mocks the store.TaskStore interface
type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	args := m.Called(ctx, id)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskStore) FindByUser(
	ctx context.Context,
	userID uuid.UUID,
	filter store.TaskFilter,
) ([]*domain.GenerationTask, error) {
	args := m.Called(ctx, userID, filter)
	tasks, _ := args.Get(0).([]*domain.GenerationTask)
	return tasks, args.Error(1)
}

func (m *MockTaskStore) GetNextPending(ctx context.Context) (*domain.GenerationTask, error) {
	args := m.Called(ctx)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskStore) ClaimPending(
	ctx context.Context,
	id uuid.UUID,
	startedAt time.Time,
) (*domain.GenerationTask, error) {
	args := m.Called(ctx, id, startedAt)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskStore) ReleaseToPending(ctx context.Context, id uuid.UUID, deferUntil *time.Time) error {
	args := m.Called(ctx, id, deferUntil)
	return args.Error(0)
}

func (m *MockTaskStore) RecordCharge(ctx context.Context, id uuid.UUID, amount int64) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockTaskStore) SetExternalJob(ctx context.Context, id uuid.UUID, jobID string) error {
	args := m.Called(ctx, id, jobID)
	return args.Error(0)
}

func (m *MockTaskStore) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	result json.RawMessage,
	completedAt time.Time,
) (*domain.GenerationTask, error) {
	args := m.Called(ctx, id, result, completedAt)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskStore) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	errorDetail string,
	completedAt time.Time,
) (*domain.GenerationTask, error) {
	args := m.Called(ctx, id, errorDetail, completedAt)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskStore) MarkCancelled(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	args := m.Called(ctx, id)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskStore) FindProcessingOlderThan(
	ctx context.Context,
	age time.Duration,
) ([]*domain.GenerationTask, error) {
	args := m.Called(ctx, age)
	tasks, _ := args.Get(0).([]*domain.GenerationTask)
	return tasks, args.Error(1)
}

func (m *MockTaskStore) DeleteTerminalOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	args := m.Called(ctx, age)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return m
}

// MockCreditLedger mocks the ledger.CreditLedger interface
type MockCreditLedger struct {
	mock.Mock
}

func (m *MockCreditLedger) CheckBalance(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	args := m.Called(ctx, userID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockCreditLedger) Debit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason domain.EntryReason,
	taskID *uuid.UUID,
) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, userID, amount, reason, taskID)
	entry, _ := args.Get(0).(*domain.LedgerEntry)
	return entry, args.Error(1)
}

func (m *MockCreditLedger) Credit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason domain.EntryReason,
	taskID *uuid.UUID,
) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, userID, amount, reason, taskID)
	entry, _ := args.Get(0).(*domain.LedgerEntry)
	return entry, args.Error(1)
}

func (m *MockCreditLedger) Refund(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	taskID uuid.UUID,
) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, userID, amount, taskID)
	entry, _ := args.Get(0).(*domain.LedgerEntry)
	return entry, args.Error(1)
}

func (m *MockCreditLedger) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCreditLedger) WithTx(tx *sql.Tx) ledger.CreditLedger {
	return m
}

// MockComputeAdapter mocks the generation.ComputeAdapter interface
type MockComputeAdapter struct {
	mock.Mock
}

func (m *MockComputeAdapter) Submit(ctx context.Context, spec generation.JobSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockComputeAdapter) CheckStatus(ctx context.Context, jobID string) (generation.JobStatus, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(generation.JobStatus), args.Error(1)
}

func (m *MockComputeAdapter) GetResults(ctx context.Context, jobID string) (generation.JobResult, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(generation.JobResult), args.Error(1)
}

func (m *MockComputeAdapter) Cancel(ctx context.Context, jobID string) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

// MockPublisher mocks the events.Publisher interface
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event *events.TaskEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// fixedCostPolicy prices every request at the same amount.
type fixedCostPolicy struct {
	amount int64
}

func (p fixedCostPolicy) Cost(*domain.GenerationRequest) int64 {
	return p.amount
}
