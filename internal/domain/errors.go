package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTaskStatus is returned when a task status is not one of
	// the recognized values.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTransition is returned when a status change is not an
	// edge of the task lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownWorkType is returned when a request carries a work type
	// the engine does not recognize.
	ErrUnknownWorkType = errors.New("unknown work type")

	// ErrNegativeAmount is returned when a ledger operation is attempted
	// with a zero or negative amount.
	ErrNegativeAmount = errors.New("amount must be positive")

	// ErrNegativeBalance is returned when an account would be left with
	// a negative balance.
	ErrNegativeBalance = errors.New("balance cannot be negative")
)
