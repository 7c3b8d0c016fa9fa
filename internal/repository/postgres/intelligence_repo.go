package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"billscope/internal/domain"
	"billscope/internal/port"
)

type intelligenceRepo struct {
	db *sqlx.DB
}

// NewIntelligenceRepo creates a new PostgreSQL-backed PricingIntelligenceRepository.
func NewIntelligenceRepo(db *sqlx.DB) port.PricingIntelligenceRepository {
	return &intelligenceRepo{db: db}
}

// Record folds one observation into its aggregate row. The running average
// is updated incrementally from the previous sample size.
func (r *intelligenceRepo) Record(ctx context.Context, obs domain.PricingObservation) error {
	providerType := obs.ProviderType
	if providerType == "" {
		providerType = domain.ProviderOther
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO pricing_intelligence (
		description_hash, category, region, code, provider_type, sample_size,
		billed_min, billed_max, billed_avg, benchmark_rate, adjusted_rate,
		suggested_min, suggested_max, first_seen, last_seen
	) VALUES ($1, $2, $3, $4, $5, 1, $6, $6, $6, $7, $8, $9, $10, $11, $11)
	ON CONFLICT (description_hash, category, region) DO UPDATE SET
		code           = COALESCE(EXCLUDED.code, pricing_intelligence.code),
		provider_type  = EXCLUDED.provider_type,
		sample_size    = pricing_intelligence.sample_size + 1,
		billed_min     = LEAST(pricing_intelligence.billed_min, EXCLUDED.billed_min),
		billed_max     = GREATEST(pricing_intelligence.billed_max, EXCLUDED.billed_max),
		billed_avg     = (pricing_intelligence.billed_avg * pricing_intelligence.sample_size + EXCLUDED.billed_avg)
		                 / (pricing_intelligence.sample_size + 1),
		benchmark_rate = COALESCE(EXCLUDED.benchmark_rate, pricing_intelligence.benchmark_rate),
		adjusted_rate  = COALESCE(EXCLUDED.adjusted_rate, pricing_intelligence.adjusted_rate),
		suggested_min  = EXCLUDED.suggested_min,
		suggested_max  = EXCLUDED.suggested_max,
		last_seen      = EXCLUDED.last_seen`,
		obs.DescriptionHash, string(obs.Category), obs.Region, obs.Code, string(providerType),
		obs.BilledAmount, obs.BenchmarkRate, obs.AdjustedRate,
		obs.SuggestedLow, obs.SuggestedHigh, obs.ObservedAt)
	if err != nil {
		return fmt.Errorf("intelligenceRepo.Record: %w", err)
	}
	return nil
}
