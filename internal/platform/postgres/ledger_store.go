package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/platform/logger"
	"github.com/veldt/genforge/internal/store"
)

// PostgresLedgerStore implements the store.LedgerStore interface
// using a PostgreSQL database as the storage backend. The sufficiency
// check and the balance decrement of a debit are one conditional UPDATE,
// so concurrent debits against the same account serialize on the row and
// never drive the balance negative. Refund idempotency rides on a partial
// unique index over refund entries per task reference.
type PostgresLedgerStore struct {
	db     store.DBTX
	pool   *sql.DB
	logger *slog.Logger
}

// NewPostgresLedgerStore creates a new PostgreSQL implementation of the LedgerStore interface.
// It accepts the database pool, which it also uses to open the internal
// transactions that keep a balance update and its ledger entry atomic.
// If logger is nil, a default logger will be used.
func NewPostgresLedgerStore(db *sql.DB, logger *slog.Logger) *PostgresLedgerStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresLedgerStore{
		db:     db,
		pool:   db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

// Ensure PostgresLedgerStore implements store.LedgerStore interface
var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// CreateAccount implements store.LedgerStore.CreateAccount
// Returns store.ErrDuplicate if the user already has an account.
func (s *PostgresLedgerStore) CreateAccount(
	ctx context.Context,
	account *domain.CreditAccount,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO credit_accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		account.UserID,
		account.Balance,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create credit account",
			slog.String("error", err.Error()),
			slog.String("user_id", account.UserID.String()))
		return MapError(err)
	}

	log.Info("credit account created",
		slog.String("user_id", account.UserID.String()),
		slog.Int64("balance", account.Balance))
	return nil
}

// GetAccount implements store.LedgerStore.GetAccount
// Returns store.ErrAccountNotFound if no account exists.
func (s *PostgresLedgerStore) GetAccount(
	ctx context.Context,
	userID uuid.UUID,
) (*domain.CreditAccount, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM credit_accounts
		WHERE user_id = $1
	`

	var account domain.CreditAccount
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&account.UserID,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("credit account not found", slog.String("user_id", userID.String()))
			return nil, store.ErrAccountNotFound
		}
		log.Error("failed to get credit account",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, err
	}

	return &account, nil
}

// Debit implements store.LedgerStore.Debit
// The balance check and decrement are one conditional UPDATE inside a
// transaction with the entry insert. Fails with store.ErrInsufficientFunds
// if the balance cannot cover the amount, leaving it unchanged.
func (s *PostgresLedgerStore) Debit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason domain.EntryReason,
	taskID *uuid.UUID,
) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrNegativeAmount)
	}

	if s.pool == nil {
		return s.debitOn(ctx, s.db, userID, amount, reason, taskID)
	}

	var entry *domain.LedgerEntry
	err := store.RunInTransaction(ctx, s.pool, func(ctx context.Context, tx *sql.Tx) error {
		var txErr error
		entry, txErr = s.debitOn(ctx, tx, userID, amount, reason, taskID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PostgresLedgerStore) debitOn(
	ctx context.Context,
	db store.DBTX,
	userID uuid.UUID,
	amount int64,
	reason domain.EntryReason,
	taskID *uuid.UUID,
) (*domain.LedgerEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE credit_accounts
		SET balance = balance - $1, updated_at = $2
		WHERE user_id = $3 AND balance >= $1
		RETURNING balance
	`

	var newBalance int64
	err := db.QueryRowContext(ctx, query, amount, time.Now().UTC(), userID).
		Scan(&newBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedDebit(ctx, db, userID, amount)
		}
		log.Error("failed to debit account",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, err
	}

	entry, err := domain.NewLedgerEntry(
		userID,
		taskID,
		domain.EntryTypeDebit,
		reason,
		amount,
		newBalance,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if err := s.insertEntry(ctx, db, entry); err != nil {
		return nil, err
	}

	log.Info("account debited",
		slog.String("user_id", userID.String()),
		slog.Int64("amount", amount),
		slog.Int64("balance_after", newBalance),
		slog.String("reason", string(reason)))
	return entry, nil
}

// Credit implements store.LedgerStore.Credit
// A refund credit is idempotent per task reference: a second refund for
// the same task fails with store.ErrDuplicateRefund and the transaction
// rollback leaves the balance untouched.
func (s *PostgresLedgerStore) Credit(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	reason domain.EntryReason,
	taskID *uuid.UUID,
) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrNegativeAmount)
	}

	if s.pool == nil {
		return s.creditOn(ctx, s.db, userID, amount, reason, taskID)
	}

	var entry *domain.LedgerEntry
	err := store.RunInTransaction(ctx, s.pool, func(ctx context.Context, tx *sql.Tx) error {
		var txErr error
		entry, txErr = s.creditOn(ctx, tx, userID, amount, reason, taskID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PostgresLedgerStore) creditOn(
	ctx context.Context,
	db store.DBTX,
	userID uuid.UUID,
	amount int64,
	reason domain.EntryReason,
	taskID *uuid.UUID,
) (*domain.LedgerEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE credit_accounts
		SET balance = balance + $1, updated_at = $2
		WHERE user_id = $3
		RETURNING balance
	`

	var newBalance int64
	err := db.QueryRowContext(ctx, query, amount, time.Now().UTC(), userID).
		Scan(&newBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		log.Error("failed to credit account",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, err
	}

	entry, err := domain.NewLedgerEntry(
		userID,
		taskID,
		domain.EntryTypeCredit,
		reason,
		amount,
		newBalance,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if err := s.insertEntry(ctx, db, entry); err != nil {
		if errors.Is(err, store.ErrDuplicateRefund) && taskID != nil {
			log.Debug("duplicate refund rejected",
				slog.String("user_id", userID.String()),
				slog.String("task_id", taskID.String()))
		}
		return nil, err
	}

	log.Info("account credited",
		slog.String("user_id", userID.String()),
		slog.Int64("amount", amount),
		slog.Int64("balance_after", newBalance),
		slog.String("reason", string(reason)))
	return entry, nil
}

// GetBalance implements store.LedgerStore.GetBalance
// Returns store.ErrAccountNotFound if no account exists.
func (s *PostgresLedgerStore) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT balance FROM credit_accounts WHERE user_id = $1`,
		userID,
	).Scan(&balance)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrAccountNotFound
		}
		return 0, err
	}

	return balance, nil
}

// EntriesForTask implements store.LedgerStore.EntriesForTask
func (s *PostgresLedgerStore) EntriesForTask(
	ctx context.Context,
	taskID uuid.UUID,
) ([]*domain.LedgerEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, task_id, entry_type, reason, amount, balance_after, created_at
		FROM ledger_entries
		WHERE task_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		log.Error("failed to query ledger entries for task",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var (
			entry     domain.LedgerEntry
			entryType string
			reason    string
			taskRef   uuid.NullUUID
		)

		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&taskRef,
			&entryType,
			&reason,
			&entry.Amount,
			&entry.BalanceAfter,
			&entry.CreatedAt,
		)
		if err != nil {
			log.Error("failed to scan ledger entry row",
				slog.String("error", err.Error()))
			return nil, err
		}

		entry.EntryType = domain.EntryType(entryType)
		entry.Reason = domain.EntryReason(reason)
		if taskRef.Valid {
			id := taskRef.UUID
			entry.TaskID = &id
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []*domain.LedgerEntry{}
	}
	return entries, nil
}

// WithTx implements store.LedgerStore.WithTx
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &PostgresLedgerStore{
		db:     tx,
		logger: s.logger,
	}
}

// insertEntry appends one ledger row, mapping constraint violations.
func (s *PostgresLedgerStore) insertEntry(
	ctx context.Context,
	db store.DBTX,
	entry *domain.LedgerEntry,
) error {
	query := `
		INSERT INTO ledger_entries
			(id, user_id, task_id, entry_type, reason, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		entry.TaskID,
		entry.EntryType,
		entry.Reason,
		entry.Amount,
		entry.BalanceAfter,
		entry.CreatedAt,
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// classifyMissedDebit turns a zero-row conditional debit into the right
// error: the account either does not exist, or its balance cannot cover
// the amount.
func (s *PostgresLedgerStore) classifyMissedDebit(
	ctx context.Context,
	db store.DBTX,
	userID uuid.UUID,
	amount int64,
) error {
	var balance int64
	err := db.QueryRowContext(
		ctx,
		`SELECT balance FROM credit_accounts WHERE user_id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrAccountNotFound
		}
		return err
	}
	return fmt.Errorf(
		"%w: balance %d cannot cover %d",
		store.ErrInsufficientFunds,
		balance,
		amount,
	)
}
