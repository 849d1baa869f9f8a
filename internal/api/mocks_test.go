package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/veldt/genforge/internal/api/shared"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/store"
)

// MockTaskService mocks the service.TaskService interface
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) CreateTask(
	ctx context.Context,
	request *domain.GenerationRequest,
) (*domain.GenerationTask, error) {
	args := m.Called(ctx, request)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskService) StartProcessing(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error) {
	args := m.Called(ctx, taskID)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskService) CompleteTask(
	ctx context.Context,
	taskID uuid.UUID,
	result json.RawMessage,
) (*domain.GenerationTask, error) {
	args := m.Called(ctx, taskID, result)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskService) FailTask(
	ctx context.Context,
	taskID uuid.UUID,
	errorDetail string,
) (*domain.GenerationTask, error) {
	args := m.Called(ctx, taskID, errorDetail)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskService) CancelTask(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error) {
	args := m.Called(ctx, taskID)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskService) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error) {
	args := m.Called(ctx, taskID)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
}

func (m *MockTaskService) ListTasks(
	ctx context.Context,
	userID uuid.UUID,
	filter store.TaskFilter,
) ([]*domain.GenerationTask, error) {
	args := m.Called(ctx, userID, filter)
	tasks, _ := args.Get(0).([]*domain.GenerationTask)
	return tasks, args.Error(1)
}

func (m *MockTaskService) NextPendingTask(ctx context.Context) (*domain.GenerationTask, error) {
	args := m.Called(ctx)
	task, _ := args.Get(0).(*domain.GenerationTask)
	return task, args.Error(1)
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

// MockLedgerStore mocks the store.LedgerStore interface
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) CreateAccount(ctx context.Context, account *domain.CreditAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockLedgerStore) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.CreditAccount, error) {
	args := m.Called(ctx, userID)
	account, _ := args.Get(0).(*domain.CreditAccount)
	return account, args.Error(1)
}

func (m *MockLedgerStore) Debit(
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

func (m *MockLedgerStore) Credit(
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

func (m *MockLedgerStore) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerStore) EntriesForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, taskID)
	entries, _ := args.Get(0).([]*domain.LedgerEntry)
	return entries, args.Error(1)
}

func (m *MockLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	args := m.Called(tx)
	return args.Get(0).(store.LedgerStore)
}

// Test helpers

func testHandlerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// authenticate stamps the user ID into the request context the way the
// auth middleware does.
func authenticate(r *http.Request, userID uuid.UUID) *http.Request {
	ctx := context.WithValue(r.Context(), shared.UserIDContextKey, userID)
	return r.WithContext(ctx)
}

// serveTask routes the request through a chi router so URL parameters
// resolve like they do in production.
func serveTask(handler *TaskHandler, r *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Route("/api/tasks", func(router chi.Router) {
		router.Post("/", handler.CreateTask)
		router.Get("/", handler.ListTasks)
		router.Get("/{id}", handler.GetTask)
		router.Post("/{id}/start", handler.StartTask)
		router.Post("/{id}/cancel", handler.CancelTask)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func apiTask(t *testing.T, userID uuid.UUID, status domain.TaskStatus) *domain.GenerationTask {
	t.Helper()
	req, err := domain.NewGenerationRequest(
		userID,
		domain.WorkTypeImageGeneration,
		json.RawMessage(`{"prompt":"a castle"}`),
		domain.CostParams{Width: 512, Height: 512},
	)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	task, err := domain.NewGenerationTask(req)
	if err != nil {
		t.Fatalf("failed to build task: %v", err)
	}
	task.Status = status
	return task
}
