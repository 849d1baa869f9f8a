package api

import (
	"encoding/json"
	"time"

	"github.com/veldt/genforge/internal/domain"
)

// Common request/response structures

// CreateTaskRequest defines the payload for the task creation endpoint.
type CreateTaskRequest struct {
	// Type selects the kind of generation work.
	Type string `json:"type" validate:"required,oneof=image_generation text_generation"`

	// Params is the generation parameter payload, passed through to the
	// compute adapter unchanged.
	Params json.RawMessage `json:"params" validate:"required"`

	// CostParams is the cost-relevant subset of the parameters.
	CostParams CostParamsDTO `json:"cost_params"`
}

// CostParamsDTO mirrors domain.CostParams on the wire.
type CostParamsDTO struct {
	Width      int `json:"width"      validate:"gte=0"`
	Height     int `json:"height"     validate:"gte=0"`
	Steps      int `json:"steps"      validate:"gte=0"`
	Iterations int `json:"iterations" validate:"gte=0"`
}

// TaskResponse represents the response data for a generation task.
type TaskResponse struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	ChargedAmount *int64          `json:"charged_amount,omitempty"`
	ExternalJobID *string         `json:"external_job_id,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorDetail   string          `json:"error_detail,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// TaskListResponse wraps a page of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// BalanceResponse represents the response data for a credit balance query.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// LedgerEntryResponse represents a single credit ledger entry.
type LedgerEntryResponse struct {
	ID           string    `json:"id"`
	TaskID       *string   `json:"task_id,omitempty"`
	EntryType    string    `json:"entry_type"`
	Reason       string    `json:"reason"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// LedgerEntryListResponse wraps the ledger entries of a task.
type LedgerEntryListResponse struct {
	Entries []LedgerEntryResponse `json:"entries"`
}

// entryToResponse converts a domain.LedgerEntry to a LedgerEntryResponse
func entryToResponse(entry *domain.LedgerEntry) LedgerEntryResponse {
	var taskID *string
	if entry.TaskID != nil {
		id := entry.TaskID.String()
		taskID = &id
	}

	return LedgerEntryResponse{
		ID:           entry.ID.String(),
		TaskID:       taskID,
		EntryType:    string(entry.EntryType),
		Reason:       string(entry.Reason),
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		CreatedAt:    entry.CreatedAt,
	}
}

// taskToResponse converts a domain.GenerationTask to a TaskResponse
func taskToResponse(task *domain.GenerationTask) TaskResponse {
	return TaskResponse{
		ID:            task.ID.String(),
		UserID:        task.UserID.String(),
		Type:          string(task.Request.Type),
		Status:        string(task.Status),
		ChargedAmount: task.ChargedAmount,
		ExternalJobID: task.ExternalJobID,
		Result:        task.Result,
		ErrorDetail:   task.ErrorDetail,
		CreatedAt:     task.CreatedAt,
		StartedAt:     task.StartedAt,
		CompletedAt:   task.CompletedAt,
	}
}
