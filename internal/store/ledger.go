package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/domain"
)

// LedgerStore defines the interface for credit account and ledger
// persistence. Debit performs the sufficiency check and the decrement as
// one atomic unit per account, so concurrent debits against the same
// account cannot both succeed when only one could be covered.
// Version: 1.0
type LedgerStore interface {
	// CreateAccount saves a new credit account.
	// Returns ErrDuplicate if the user already has an account.
	CreateAccount(ctx context.Context, account *domain.CreditAccount) error

	// GetAccount retrieves a user's credit account.
	// Returns ErrAccountNotFound if no account exists.
	GetAccount(ctx context.Context, userID uuid.UUID) (*domain.CreditAccount, error)

	// Debit atomically verifies balance >= amount and decrements,
	// appending a debit ledger entry. Fails with ErrInsufficientFunds if
	// the balance cannot cover the amount, leaving it unchanged.
	Debit(ctx context.Context, userID uuid.UUID, amount int64, reason domain.EntryReason, taskID *uuid.UUID) (*domain.LedgerEntry, error)

	// Credit atomically increments the balance, appending a credit
	// ledger entry. A refund credit is idempotent per task reference:
	// a second refund for the same task fails with ErrDuplicateRefund.
	Credit(ctx context.Context, userID uuid.UUID, amount int64, reason domain.EntryReason, taskID *uuid.UUID) (*domain.LedgerEntry, error)

	// GetBalance retrieves the current balance for a user.
	// Returns ErrAccountNotFound if no account exists.
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)

	// EntriesForTask retrieves the ledger entries tagged with the given
	// task reference, oldest first.
	EntriesForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.LedgerEntry, error)

	// WithTx returns a new LedgerStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LedgerStore
}
