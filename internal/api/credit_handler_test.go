package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/service"
	"github.com/veldt/genforge/internal/store"
)

func TestCreditHandler_GetBalance(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	t.Run("returns balance", func(t *testing.T) {
		t.Parallel()
		creditLedger := &MockCreditLedger{}
		handler := NewCreditHandler(creditLedger, &MockLedgerStore{}, &MockTaskService{}, 100, testHandlerLogger())

		creditLedger.On("GetBalance", mock.Anything, userID).Return(int64(250), nil)

		req := authenticate(httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil), userID)
		w := httptest.NewRecorder()
		handler.GetBalance(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp BalanceResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, userID.String(), resp.UserID)
		assert.Equal(t, int64(250), resp.Balance)
	})

	t.Run("unknown account", func(t *testing.T) {
		t.Parallel()
		creditLedger := &MockCreditLedger{}
		handler := NewCreditHandler(creditLedger, &MockLedgerStore{}, &MockTaskService{}, 100, testHandlerLogger())

		creditLedger.On("GetBalance", mock.Anything, userID).Return(int64(0), ledger.ErrAccountNotFound)

		req := authenticate(httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil), userID)
		w := httptest.NewRecorder()
		handler.GetBalance(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing authentication", func(t *testing.T) {
		t.Parallel()
		handler := NewCreditHandler(&MockCreditLedger{}, &MockLedgerStore{}, &MockTaskService{}, 100, testHandlerLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
		w := httptest.NewRecorder()
		handler.GetBalance(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCreditHandler_CreateAccount(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	t.Run("opens with the starting balance", func(t *testing.T) {
		t.Parallel()
		accounts := &MockLedgerStore{}
		handler := NewCreditHandler(&MockCreditLedger{}, accounts, &MockTaskService{}, 100, testHandlerLogger())

		accounts.On("CreateAccount", mock.Anything, mock.MatchedBy(func(account *domain.CreditAccount) bool {
			return account.UserID == userID && account.Balance == 100
		})).Return(nil)

		req := authenticate(httptest.NewRequest(http.MethodPost, "/api/credits/account", nil), userID)
		w := httptest.NewRecorder()
		handler.CreateAccount(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp BalanceResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(100), resp.Balance)
		accounts.AssertExpectations(t)
	})

	t.Run("second open conflicts", func(t *testing.T) {
		t.Parallel()
		accounts := &MockLedgerStore{}
		handler := NewCreditHandler(&MockCreditLedger{}, accounts, &MockTaskService{}, 100, testHandlerLogger())

		accounts.On("CreateAccount", mock.Anything, mock.Anything).Return(store.ErrDuplicate)

		req := authenticate(httptest.NewRequest(http.MethodPost, "/api/credits/account", nil), userID)
		w := httptest.NewRecorder()
		handler.CreateAccount(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

// serveTaskLedger routes the request through the credits route shape so
// the path parameter is resolved.
func serveTaskLedger(handler *CreditHandler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/credits/tasks/{id}", handler.TaskLedger)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreditHandler_TaskLedger(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	t.Run("returns charge and refund entries", func(t *testing.T) {
		t.Parallel()
		accounts := &MockLedgerStore{}
		tasks := &MockTaskService{}
		handler := NewCreditHandler(&MockCreditLedger{}, accounts, tasks, 100, testHandlerLogger())

		owned := apiTask(t, userID, domain.TaskStatusCompleted)
		taskID := owned.ID

		charge, err := domain.NewLedgerEntry(
			userID, &taskID, domain.EntryTypeDebit, domain.ReasonTaskCharge, 25, 75)
		require.NoError(t, err)
		refund, err := domain.NewLedgerEntry(
			userID, &taskID, domain.EntryTypeCredit, domain.ReasonRefund, 25, 100)
		require.NoError(t, err)

		tasks.On("GetTask", mock.Anything, taskID).Return(owned, nil)
		accounts.On("EntriesForTask", mock.Anything, taskID).
			Return([]*domain.LedgerEntry{charge, refund}, nil)

		req := authenticate(
			httptest.NewRequest(http.MethodGet, "/api/credits/tasks/"+taskID.String(), nil),
			userID,
		)
		w := serveTaskLedger(handler, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp LedgerEntryListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Entries, 2)
		assert.Equal(t, "task_charge", resp.Entries[0].Reason)
		assert.Equal(t, "refund", resp.Entries[1].Reason)
		assert.Equal(t, int64(75), resp.Entries[0].BalanceAfter)
	})

	t.Run("uncharged task yields an empty list", func(t *testing.T) {
		t.Parallel()
		accounts := &MockLedgerStore{}
		tasks := &MockTaskService{}
		handler := NewCreditHandler(&MockCreditLedger{}, accounts, tasks, 100, testHandlerLogger())

		owned := apiTask(t, userID, domain.TaskStatusPending)
		taskID := owned.ID

		tasks.On("GetTask", mock.Anything, taskID).Return(owned, nil)
		accounts.On("EntriesForTask", mock.Anything, taskID).
			Return([]*domain.LedgerEntry{}, nil)

		req := authenticate(
			httptest.NewRequest(http.MethodGet, "/api/credits/tasks/"+taskID.String(), nil),
			userID,
		)
		w := serveTaskLedger(handler, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp LedgerEntryListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Entries)
	})

	t.Run("unknown task is not found", func(t *testing.T) {
		t.Parallel()
		accounts := &MockLedgerStore{}
		tasks := &MockTaskService{}
		handler := NewCreditHandler(&MockCreditLedger{}, accounts, tasks, 100, testHandlerLogger())
		taskID := uuid.New()

		tasks.On("GetTask", mock.Anything, taskID).Return(nil, service.ErrNotFound)

		req := authenticate(
			httptest.NewRequest(http.MethodGet, "/api/credits/tasks/"+taskID.String(), nil),
			userID,
		)
		w := serveTaskLedger(handler, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		accounts.AssertNotCalled(t, "EntriesForTask", mock.Anything, mock.Anything)
	})

	t.Run("another user's task is not found", func(t *testing.T) {
		t.Parallel()
		accounts := &MockLedgerStore{}
		tasks := &MockTaskService{}
		handler := NewCreditHandler(&MockCreditLedger{}, accounts, tasks, 100, testHandlerLogger())

		foreign := apiTask(t, uuid.New(), domain.TaskStatusCompleted)
		taskID := foreign.ID

		tasks.On("GetTask", mock.Anything, taskID).Return(foreign, nil)

		req := authenticate(
			httptest.NewRequest(http.MethodGet, "/api/credits/tasks/"+taskID.String(), nil),
			userID,
		)
		w := serveTaskLedger(handler, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		accounts.AssertNotCalled(t, "EntriesForTask", mock.Anything, mock.Anything)
	})

	t.Run("malformed task id", func(t *testing.T) {
		t.Parallel()
		handler := NewCreditHandler(&MockCreditLedger{}, &MockLedgerStore{}, &MockTaskService{}, 100, testHandlerLogger())

		req := authenticate(
			httptest.NewRequest(http.MethodGet, "/api/credits/tasks/not-a-uuid", nil),
			userID,
		)
		w := serveTaskLedger(handler, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
