// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store package. It handles the
// details of query execution, conditional status transitions, atomic balance
// arithmetic, and mapping between domain entities and database records.
package postgres
