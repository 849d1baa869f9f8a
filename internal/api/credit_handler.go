package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/veldt/genforge/internal/api/shared"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/platform/logger"
	"github.com/veldt/genforge/internal/service"
	"github.com/veldt/genforge/internal/store"
)

// CreditHandler handles credit account HTTP requests
type CreditHandler struct {
	ledger         ledger.CreditLedger
	accounts       store.LedgerStore
	tasks          service.TaskService
	initialBalance int64
	logger         *slog.Logger
}

// NewCreditHandler creates a new CreditHandler
func NewCreditHandler(
	creditLedger ledger.CreditLedger,
	accounts store.LedgerStore,
	tasks service.TaskService,
	initialBalance int64,
	logger *slog.Logger,
) *CreditHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CreditHandler")
	}

	return &CreditHandler{
		ledger:         creditLedger,
		accounts:       accounts,
		tasks:          tasks,
		initialBalance: initialBalance,
		logger:         logger.With(slog.String("component", "credit_handler")),
	}
}

// CreateAccount handles POST /api/credits/account requests.
// It opens a credit account for the authenticated user with the
// configured starting balance. Opening an account twice is a conflict.
func (h *CreditHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	account, err := domain.NewCreditAccount(userID, h.initialBalance)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.accounts.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			shared.RespondWithError(w, r, http.StatusConflict, "Credit account already exists")
			return
		}
		HandleAPIError(w, r, err, "Failed to create credit account")
		return
	}

	log.Info("credit account opened",
		slog.String("user_id", userID.String()),
		slog.Int64("balance", account.Balance))

	shared.RespondWithJSON(w, r, http.StatusCreated, BalanceResponse{
		UserID:  userID.String(),
		Balance: account.Balance,
	})
}

// TaskLedger handles GET /api/credits/tasks/{id} requests.
// It returns the ledger entries tied to one of the caller's tasks: the
// charge, and the refund if one was applied.
func (h *CreditHandler) TaskLedger(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// Another user's task is invisible, not forbidden.
	if task.UserID != userID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	entries, err := h.accounts.EntriesForTask(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to fetch ledger entries")
		return
	}

	response := LedgerEntryListResponse{Entries: []LedgerEntryResponse{}}
	for _, entry := range entries {
		response.Entries = append(response.Entries, entryToResponse(entry))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// GetBalance handles GET /api/credits/balance requests.
// The balance is advisory: it can change between this read and a later
// charge, which is why charging re-checks atomically.
func (h *CreditHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BalanceResponse{
		UserID:  userID.String(),
		Balance: balance,
	})
}
