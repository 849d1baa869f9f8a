package generation

import (
	"fmt"

	"github.com/veldt/genforge/internal/domain"
)

// Registry maps work types to compute adapters. It is built once at
// process start and passed by injection; it is not safe for concurrent
// registration after startup, and Resolve is read-only thereafter.
type Registry struct {
	adapters map[domain.WorkType]ComputeAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.WorkType]ComputeAdapter),
	}
}

// Register binds an adapter to a work type. Registering an unrecognized
// work type or overwriting an existing binding is a configuration error.
func (r *Registry) Register(workType domain.WorkType, adapter ComputeAdapter) error {
	if !domain.IsValidWorkType(workType) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownWorkType, workType)
	}
	if adapter == nil {
		return fmt.Errorf("%w: nil adapter for %q", ErrInvalidConfig, workType)
	}
	if _, exists := r.adapters[workType]; exists {
		return fmt.Errorf("%w: adapter already registered for %q", ErrInvalidConfig, workType)
	}

	r.adapters[workType] = adapter
	return nil
}

// Resolve returns the adapter bound to the work type.
// Returns ErrUnsupportedWorkType if no adapter is registered.
func (r *Registry) Resolve(workType domain.WorkType) (ComputeAdapter, error) {
	adapter, ok := r.adapters[workType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedWorkType, workType)
	}
	return adapter, nil
}

// WorkTypes returns the registered work types, for startup logging.
func (r *Registry) WorkTypes() []domain.WorkType {
	types := make([]domain.WorkType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}
