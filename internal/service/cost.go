package service

import (
	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/config"
	"github.com/veldt/genforge/internal/domain"
)

// CostPolicy computes the projected credit cost of a generation
// request. Implementations must be deterministic: the same request and
// user always yield the same cost, so the amount charged at processing
// start equals the amount projected at creation.
type CostPolicy interface {
	// Cost returns the credit cost for the given request.
	Cost(request *domain.GenerationRequest) int64
}

// DiscountFunc returns a per-user price multiplier in (0, 1].
// A nil function means no discount.
type DiscountFunc func(userID uuid.UUID) float64

// StandardCostPolicy prices a request as a per-work-type base cost plus
// scaled costs from the cost-relevant parameters: output area in
// megapixels, iteration steps in blocks of ten, and repeat count.
type StandardCostPolicy struct {
	cfg      config.CostConfig
	discount DiscountFunc
}

// NewStandardCostPolicy creates the standard cost policy from
// configuration. discount may be nil.
func NewStandardCostPolicy(cfg config.CostConfig, discount DiscountFunc) *StandardCostPolicy {
	return &StandardCostPolicy{
		cfg:      cfg,
		discount: discount,
	}
}

// Cost implements CostPolicy.
func (p *StandardCostPolicy) Cost(request *domain.GenerationRequest) int64 {
	var base int64
	switch request.Type {
	case domain.WorkTypeImageGeneration:
		base = p.cfg.ImageBaseCost
	case domain.WorkTypeTextGeneration:
		base = p.cfg.TextBaseCost
	default:
		base = p.cfg.ImageBaseCost
	}

	cp := request.CostParams

	// Megapixels rounded up, so 512x512 counts as one.
	pixels := int64(cp.Width) * int64(cp.Height)
	megapixels := (pixels + 999_999) / 1_000_000

	// Steps priced in blocks of ten, rounded up.
	stepBlocks := (int64(cp.Steps) + 9) / 10

	cost := base +
		megapixels*p.cfg.PerMegapixel +
		stepBlocks*p.cfg.PerTenSteps +
		int64(cp.Iterations)*p.cfg.PerIteration

	if p.discount != nil {
		factor := p.discount(request.UserID)
		if factor > 0 && factor < 1 {
			cost = int64(float64(cost) * factor)
		}
	}

	// Paid work never costs less than one credit.
	if cost < 1 {
		cost = 1
	}

	return cost
}

// Ensure StandardCostPolicy implements CostPolicy
var _ CostPolicy = (*StandardCostPolicy)(nil)
