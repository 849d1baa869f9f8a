// Package ledger provides the credit ledger service: per-user balance
// queries, atomic debits, and task-tagged credits with idempotent
// refunds. It is the authoritative gate for whether paid work may
// proceed; balance checks are advisory only.
package ledger
