package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntryType represents the accounting side of a ledger entry.
type EntryType string

// Possible ledger entry types
const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// EntryReason is the business reason attached to a ledger entry.
type EntryReason string

// Recognized entry reasons
const (
	ReasonTaskCharge EntryReason = "task_charge"
	ReasonRefund     EntryReason = "refund"
	ReasonGrant      EntryReason = "grant"
)

// Common validation errors for credit entities
var (
	ErrEmptyAccountUserID = errors.New("account user ID cannot be empty")
	ErrInvalidEntryType   = errors.New("invalid ledger entry type")
	ErrInvalidEntryReason = errors.New("invalid ledger entry reason")
	ErrMissingTaskRef     = errors.New("entry reason requires a task reference")
)

// CreditAccount is a user's prepaid balance. The balance is never
// negative; the store enforces this atomically at debit time.
type CreditAccount struct {
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCreditAccount creates an account with the given opening balance.
func NewCreditAccount(userID uuid.UUID, balance int64) (*CreditAccount, error) {
	if userID == uuid.Nil {
		return nil, ErrEmptyAccountUserID
	}
	if balance < 0 {
		return nil, ErrNegativeBalance
	}

	now := time.Now().UTC()
	return &CreditAccount{
		UserID:    userID,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// LedgerEntry is a single row in the credit ledger. Task charges and
// refunds carry the originating task reference so duplicate refunds for
// the same task can be detected and rejected.
type LedgerEntry struct {
	ID           uuid.UUID   `json:"id"`
	UserID       uuid.UUID   `json:"user_id"`
	TaskID       *uuid.UUID  `json:"task_id,omitempty"`
	EntryType    EntryType   `json:"entry_type"`
	Reason       EntryReason `json:"reason"`
	Amount       int64       `json:"amount"`
	BalanceAfter int64       `json:"balance_after"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewLedgerEntry creates a validated ledger entry. Amount is always
// positive; the entry type carries the direction.
func NewLedgerEntry(
	userID uuid.UUID,
	taskID *uuid.UUID,
	entryType EntryType,
	reason EntryReason,
	amount int64,
	balanceAfter int64,
) (*LedgerEntry, error) {
	entry := &LedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		TaskID:       taskID,
		EntryType:    entryType,
		Reason:       reason,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		CreatedAt:    time.Now().UTC(),
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return entry, nil
}

// Validate checks if the LedgerEntry has valid data.
func (e *LedgerEntry) Validate() error {
	if e.UserID == uuid.Nil {
		return ErrEmptyAccountUserID
	}

	switch e.EntryType {
	case EntryTypeDebit, EntryTypeCredit:
	default:
		return ErrInvalidEntryType
	}

	switch e.Reason {
	case ReasonTaskCharge, ReasonRefund:
		if e.TaskID == nil || *e.TaskID == uuid.Nil {
			return ErrMissingTaskRef
		}
	case ReasonGrant:
	default:
		return ErrInvalidEntryReason
	}

	if e.Amount <= 0 {
		return ErrNegativeAmount
	}

	if e.BalanceAfter < 0 {
		return ErrNegativeBalance
	}

	return nil
}
