package port

import "context"

// BenchmarkRateEntry is a national benchmark payment amount for a reference code.
type BenchmarkRateEntry struct {
	Code        string  `db:"code"`
	Rate        float64 `db:"rate"`
	Description string  `db:"description"`
}

// CategoryRangeEntry maps a numeric code range onto a service category estimate.
type CategoryRangeEntry struct {
	Category   string  `db:"category"`
	RangeStart int     `db:"range_start"`
	RangeEnd   int     `db:"range_end"`
	AvgRate    float64 `db:"avg_rate"`
	TypicalMin float64 `db:"typical_min"`
	TypicalMax float64 `db:"typical_max"`
}

// RegionalFactorEntry is a metro-level cost-of-living adjustment.
type RegionalFactorEntry struct {
	Label       string  `db:"label"`
	Metro       string  `db:"metro"`
	State       string  `db:"state"`
	Factor      float64 `db:"factor"`
	Description string  `db:"description"`
}

// ReferenceDataRepository loads the static pricing tables.
type ReferenceDataRepository interface {
	LoadBenchmarkRates(ctx context.Context) ([]BenchmarkRateEntry, error)
	LoadCategoryRanges(ctx context.Context) ([]CategoryRangeEntry, error)
	LoadRegionalFactors(ctx context.Context) ([]RegionalFactorEntry, error)
}
