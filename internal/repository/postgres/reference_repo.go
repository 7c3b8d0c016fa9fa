package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"billscope/internal/port"
)

type referenceRepo struct {
	db *sqlx.DB
}

// NewReferenceRepo creates a new PostgreSQL-backed ReferenceDataRepository.
func NewReferenceRepo(db *sqlx.DB) port.ReferenceDataRepository {
	return &referenceRepo{db: db}
}

func (r *referenceRepo) LoadBenchmarkRates(ctx context.Context) ([]port.BenchmarkRateEntry, error) {
	var entries []port.BenchmarkRateEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT code, rate, description FROM benchmark_rates ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("referenceRepo.LoadBenchmarkRates: %w", err)
	}
	return entries, nil
}

// LoadCategoryRanges returns ranges in match order.
func (r *referenceRepo) LoadCategoryRanges(ctx context.Context) ([]port.CategoryRangeEntry, error) {
	var entries []port.CategoryRangeEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT category, range_start, range_end, avg_rate, typical_min, typical_max
		 FROM benchmark_category_ranges
		 ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("referenceRepo.LoadCategoryRanges: %w", err)
	}
	return entries, nil
}

// LoadRegionalFactors returns factors in lookup order.
func (r *referenceRepo) LoadRegionalFactors(ctx context.Context) ([]port.RegionalFactorEntry, error) {
	var entries []port.RegionalFactorEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT label, metro, state, factor, description
		 FROM regional_factors
		 ORDER BY sort_order, label`)
	if err != nil {
		return nil, fmt.Errorf("referenceRepo.LoadRegionalFactors: %w", err)
	}
	return entries, nil
}
