package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/store"
)

// Common sentinel errors for the credit ledger
var (
	// ErrInsufficientCredits indicates the balance was too low at debit
	// time. The balance is left unchanged.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDuplicateRefund indicates a refund for the same task reference
	// was already applied. The balance is left unchanged.
	ErrDuplicateRefund = errors.New("duplicate refund for task")

	// ErrAccountNotFound indicates the user has no credit account.
	ErrAccountNotFound = errors.New("credit account not found")
)

// LedgerError wraps errors from the credit ledger with context.
type LedgerError struct {
	// Operation is the operation that failed (e.g., "debit", "refund")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for LedgerError.
func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credit ledger %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("credit ledger %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *LedgerError) Unwrap() error {
	return e.Err
}

// newLedgerError maps store-level sentinels to ledger-level ones and
// wraps everything else.
func newLedgerError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return ErrInsufficientCredits
	case errors.Is(err, store.ErrDuplicateRefund):
		return ErrDuplicateRefund
	case errors.Is(err, store.ErrAccountNotFound):
		return ErrAccountNotFound
	}

	return &LedgerError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// CreditLedger provides per-user balance operations.
// Version: 1.0
type CreditLedger interface {
	// CheckBalance reports whether the user's balance covers amount.
	// Read-only and advisory: callers must not treat a true result as a
	// reservation. The atomic Debit is the authoritative gate.
	CheckBalance(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)

	// Debit atomically verifies sufficiency and decrements the balance.
	// Fails with ErrInsufficientCredits, leaving the balance unchanged.
	Debit(ctx context.Context, userID uuid.UUID, amount int64, reason domain.EntryReason, taskID *uuid.UUID) (*domain.LedgerEntry, error)

	// Credit atomically increments the balance. Used for grants.
	Credit(ctx context.Context, userID uuid.UUID, amount int64, reason domain.EntryReason, taskID *uuid.UUID) (*domain.LedgerEntry, error)

	// Refund credits back a task's charge, tagged with the task
	// reference. Idempotent per task: a second refund for the same task
	// fails with ErrDuplicateRefund without changing the balance.
	Refund(ctx context.Context, userID uuid.UUID, amount int64, taskID uuid.UUID) (*domain.LedgerEntry, error)

	// GetBalance retrieves the user's current balance.
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)

	// WithTx returns a ledger whose writes run inside the given
	// transaction, so a debit can commit or roll back together with
	// other stores' writes.
	WithTx(tx *sql.Tx) CreditLedger
}

// creditLedgerImpl implements the CreditLedger interface over a
// LedgerStore.
type creditLedgerImpl struct {
	ledgerStore store.LedgerStore
	logger      *slog.Logger
}

// NewCreditLedger creates a new CreditLedger.
// It returns an error if any of the required dependencies are nil.
func NewCreditLedger(ledgerStore store.LedgerStore, logger *slog.Logger) (CreditLedger, error) {
	if ledgerStore == nil {
		return nil, &LedgerError{
			Operation: "create_ledger",
			Message:   "ledgerStore cannot be nil",
		}
	}
	if logger == nil {
		return nil, &LedgerError{
			Operation: "create_ledger",
			Message:   "logger cannot be nil",
		}
	}

	return &creditLedgerImpl{
		ledgerStore: ledgerStore,
		logger:      logger.With("component", "credit_ledger"),
	}, nil
}

func (l *creditLedgerImpl) CheckBalance(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	balance, err := l.ledgerStore.GetBalance(ctx, userID)
	if err != nil {
		return false, newLedgerError("check_balance", "failed to get balance", err)
	}
	return balance >= amount, nil
}

func (l *creditLedgerImpl) Debit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason domain.EntryReason,
	taskID *uuid.UUID,
) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrNegativeAmount
	}

	entry, err := l.ledgerStore.Debit(ctx, userID, amount, reason, taskID)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			l.logger.Info("debit rejected, insufficient credits",
				"user_id", userID,
				"amount", amount)
		} else {
			l.logger.Error("debit failed",
				"error", err,
				"user_id", userID,
				"amount", amount)
		}
		return nil, newLedgerError("debit", "failed to debit account", err)
	}

	l.logger.Info("account debited",
		"user_id", userID,
		"amount", amount,
		"reason", reason,
		"balance_after", entry.BalanceAfter)
	return entry, nil
}

func (l *creditLedgerImpl) Credit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason domain.EntryReason,
	taskID *uuid.UUID,
) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrNegativeAmount
	}

	entry, err := l.ledgerStore.Credit(ctx, userID, amount, reason, taskID)
	if err != nil {
		l.logger.Error("credit failed",
			"error", err,
			"user_id", userID,
			"amount", amount,
			"reason", reason)
		return nil, newLedgerError("credit", "failed to credit account", err)
	}

	l.logger.Info("account credited",
		"user_id", userID,
		"amount", amount,
		"reason", reason,
		"balance_after", entry.BalanceAfter)
	return entry, nil
}

func (l *creditLedgerImpl) Refund(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	taskID uuid.UUID,
) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrNegativeAmount
	}
	if taskID == uuid.Nil {
		return nil, domain.ErrMissingTaskRef
	}

	entry, err := l.ledgerStore.Credit(ctx, userID, amount, domain.ReasonRefund, &taskID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRefund) {
			l.logger.Warn("duplicate refund rejected",
				"user_id", userID,
				"task_id", taskID)
		} else {
			l.logger.Error("refund failed",
				"error", err,
				"user_id", userID,
				"task_id", taskID,
				"amount", amount)
		}
		return nil, newLedgerError("refund", "failed to refund charge", err)
	}

	l.logger.Info("charge refunded",
		"user_id", userID,
		"task_id", taskID,
		"amount", amount,
		"balance_after", entry.BalanceAfter)
	return entry, nil
}

func (l *creditLedgerImpl) WithTx(tx *sql.Tx) CreditLedger {
	return &creditLedgerImpl{
		ledgerStore: l.ledgerStore.WithTx(tx),
		logger:      l.logger,
	}
}

func (l *creditLedgerImpl) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	balance, err := l.ledgerStore.GetBalance(ctx, userID)
	if err != nil {
		return 0, newLedgerError("get_balance", "failed to get balance", err)
	}
	return balance, nil
}
