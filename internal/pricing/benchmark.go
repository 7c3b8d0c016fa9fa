package pricing

import (
	"regexp"
	"strconv"

	"billscope/internal/domain"
	"billscope/internal/port"
)

// codePattern is the accepted reference code format.
var codePattern = regexp.MustCompile(`^\d{5}$`)

// ValidCode reports whether code has the fixed five-digit reference format.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// CategoryRange maps a numeric code range onto a category-level rate estimate.
type CategoryRange struct {
	Category   domain.ServiceCategory
	Start      int
	End        int
	AvgRate    float64
	TypicalMin float64
	TypicalMax float64
}

// RateResolution is the outcome of resolving a code against the benchmark table.
type RateResolution struct {
	Rate        *float64
	Source      domain.PricingSource
	Category    domain.ServiceCategory // set when the code fell in a category range
	Description string
}

// BenchmarkTable provides in-memory lookups of national benchmark rates with
// a numeric-range category fallback. It is immutable after construction and
// safe for concurrent access.
type BenchmarkTable struct {
	byCode map[string]port.BenchmarkRateEntry
	ranges []CategoryRange
}

// NewBenchmarkTable builds a BenchmarkTable from reference rows loaded at startup.
// Ranges are checked in the order given.
func NewBenchmarkTable(rates []port.BenchmarkRateEntry, ranges []port.CategoryRangeEntry) *BenchmarkTable {
	m := make(map[string]port.BenchmarkRateEntry, len(rates))
	for i := range rates {
		m[rates[i].Code] = rates[i]
	}
	rs := make([]CategoryRange, 0, len(ranges))
	for _, r := range ranges {
		rs = append(rs, CategoryRange{
			Category:   domain.ServiceCategory(r.Category),
			Start:      r.RangeStart,
			End:        r.RangeEnd,
			AvgRate:    r.AvgRate,
			TypicalMin: r.TypicalMin,
			TypicalMax: r.TypicalMax,
		})
	}
	return &BenchmarkTable{byCode: m, ranges: rs}
}

// Len returns the number of exact benchmark codes.
func (t *BenchmarkTable) Len() int {
	return len(t.byCode)
}

// Resolve runs the fallback chain: exact code, then code range, then unknown.
func (t *BenchmarkTable) Resolve(code string) RateResolution {
	if code == "" {
		return RateResolution{Source: domain.SourceUnknown}
	}
	if e, ok := t.byCode[code]; ok {
		cat, _ := t.CategoryForCode(code)
		return RateResolution{
			Rate:        ptr(e.Rate),
			Source:      domain.SourceBenchmarkSchedule,
			Category:    cat,
			Description: e.Description,
		}
	}
	if r, ok := t.rangeFor(code); ok {
		return RateResolution{
			Rate:     ptr(r.AvgRate),
			Source:   domain.SourceCategoryEstimate,
			Category: r.Category,
		}
	}
	return RateResolution{Source: domain.SourceUnknown}
}

// CategoryForCode classifies a code by numeric range.
func (t *BenchmarkTable) CategoryForCode(code string) (domain.ServiceCategory, bool) {
	r, ok := t.rangeFor(code)
	if !ok {
		return "", false
	}
	return r.Category, true
}

func (t *BenchmarkTable) rangeFor(code string) (CategoryRange, bool) {
	n, err := strconv.Atoi(code)
	if err != nil {
		return CategoryRange{}, false
	}
	for _, r := range t.ranges {
		if n >= r.Start && n <= r.End {
			return r, true
		}
	}
	return CategoryRange{}, false
}
