package domain

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// WorkType discriminates the kind of generation work a request asks for.
type WorkType string

// Recognized work types.
const (
	WorkTypeImageGeneration WorkType = "image_generation"
	WorkTypeTextGeneration  WorkType = "text_generation"
)

// Common validation errors for GenerationRequest
var (
	ErrEmptyRequestUserID   = errors.New("request user ID cannot be empty")
	ErrEmptyRequestParams   = errors.New("request parameters cannot be empty")
	ErrCostParamsOutOfRange = errors.New("cost parameters out of range")
)

// Cost parameter bounds. Requests outside these ranges are rejected
// before any persistence.
const (
	MaxDimension  = 4096
	MaxSteps      = 200
	MaxIterations = 10
)

// CostParams is the cost-relevant subset of a request's parameters.
// The engine reads it only inside cost calculation.
type CostParams struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	Steps      int `json:"steps"`
	Iterations int `json:"iterations"`
}

// GenerationRequest describes one unit of paid work to be performed by
// an external compute service. It is immutable once attached to a task:
// the engine never mutates a request after NewGenerationRequest returns.
type GenerationRequest struct {
	UserID     uuid.UUID       `json:"user_id"`
	Type       WorkType        `json:"type"`
	Params     json.RawMessage `json:"params"`
	CostParams CostParams      `json:"cost_params"`
}

// NewGenerationRequest creates a validated GenerationRequest.
// Returns an error if validation fails; validation has no side effects.
func NewGenerationRequest(
	userID uuid.UUID,
	workType WorkType,
	params json.RawMessage,
	costParams CostParams,
) (*GenerationRequest, error) {
	req := &GenerationRequest{
		UserID:     userID,
		Type:       workType,
		Params:     params,
		CostParams: costParams,
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// Validate checks if the GenerationRequest has valid data.
// Returns an error if any field fails validation.
func (r *GenerationRequest) Validate() error {
	if r.UserID == uuid.Nil {
		return ErrEmptyRequestUserID
	}

	if !IsValidWorkType(r.Type) {
		return ErrUnknownWorkType
	}

	if len(r.Params) == 0 {
		return ErrEmptyRequestParams
	}

	cp := r.CostParams
	if cp.Width < 0 || cp.Width > MaxDimension ||
		cp.Height < 0 || cp.Height > MaxDimension {
		return ErrCostParamsOutOfRange
	}
	if cp.Steps < 0 || cp.Steps > MaxSteps {
		return ErrCostParamsOutOfRange
	}
	if cp.Iterations < 0 || cp.Iterations > MaxIterations {
		return ErrCostParamsOutOfRange
	}

	return nil
}

// IsValidWorkType checks if the given work type is recognized.
func IsValidWorkType(t WorkType) bool {
	switch t {
	case WorkTypeImageGeneration, WorkTypeTextGeneration:
		return true
	default:
		return false
	}
}
