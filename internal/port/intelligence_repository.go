package port

import (
	"context"

	"billscope/internal/domain"
)

// PricingIntelligenceRepository accumulates de-identified cross-bill pricing statistics.
type PricingIntelligenceRepository interface {
	Record(ctx context.Context, obs domain.PricingObservation) error
}
