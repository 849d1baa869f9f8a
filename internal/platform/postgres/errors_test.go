package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/veldt/genforge/internal/store"
)

func pgError(code, constraint string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		ConstraintName: constraint,
		Message:        "constraint violated",
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	t.Run("nil passes through", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, MapError(nil))
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		t.Parallel()
		err := MapError(sql.ErrNoRows)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("wrapped no rows maps to not found", func(t *testing.T) {
		t.Parallel()
		err := MapError(fmt.Errorf("query task: %w", sql.ErrNoRows))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unique violation maps to duplicate", func(t *testing.T) {
		t.Parallel()
		err := MapError(pgError(uniqueViolationCode, "credit_accounts_pkey"))
		assert.ErrorIs(t, err, store.ErrDuplicate)
		assert.NotErrorIs(t, err, store.ErrDuplicateRefund)
	})

	t.Run("refund index violation maps to duplicate refund", func(t *testing.T) {
		t.Parallel()
		err := MapError(pgError(uniqueViolationCode, refundUniqueConstraint))
		assert.ErrorIs(t, err, store.ErrDuplicateRefund)
	})

	t.Run("foreign key violation maps to invalid entity", func(t *testing.T) {
		t.Parallel()
		err := MapError(pgError(foreignKeyViolationCode, "ledger_entries_user_id_fkey"))
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.Contains(t, err.Error(), "ledger_entries_user_id_fkey")
	})

	t.Run("check violation maps to invalid entity", func(t *testing.T) {
		t.Parallel()
		err := MapError(pgError(checkViolationCode, "credit_accounts_balance_check"))
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("unknown errors pass through unchanged", func(t *testing.T) {
		t.Parallel()
		original := errors.New("connection reset")
		assert.Equal(t, original, MapError(original))

		serialization := pgError("40001", "")
		mapped := MapError(serialization)
		assert.ErrorIs(t, mapped, serialization)
	})
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	unique := pgError(uniqueViolationCode, "tasks_pkey")
	refund := pgError(uniqueViolationCode, refundUniqueConstraint)
	fk := pgError(foreignKeyViolationCode, "ledger_entries_task_id_fkey")

	assert.True(t, IsUniqueViolation(unique))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", unique)))
	assert.False(t, IsUniqueViolation(fk))
	assert.False(t, IsUniqueViolation(errors.New("plain")))

	assert.True(t, IsRefundConflict(refund))
	assert.False(t, IsRefundConflict(unique))

	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(unique))
}
