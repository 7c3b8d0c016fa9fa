package pricing

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"billscope/internal/domain"
	"billscope/internal/port"
)

// NationalAverage is the region used when a location hint matches nothing.
var NationalAverage = domain.Region{
	Label:       "National Average",
	Metro:       "Unknown",
	State:       "Unknown",
	Factor:      1.0,
	Description: "Using national average (no regional data available)",
}

const regionCacheSize = 1024

// RegionTable resolves location hints to cost-of-living factors. Exact label
// matches win, then a case-insensitive substring match on label or metro, or
// an exact state match, in table order. Fuzzy results are memoized.
type RegionTable struct {
	byLabel map[string]domain.Region
	ordered []domain.Region
	cache   *lru.Cache[string, domain.Region]
}

// NewRegionTable builds a RegionTable from reference rows in table order.
func NewRegionTable(entries []port.RegionalFactorEntry) *RegionTable {
	byLabel := make(map[string]domain.Region, len(entries))
	ordered := make([]domain.Region, 0, len(entries))
	for _, e := range entries {
		r := domain.Region{
			Label:       e.Label,
			Metro:       e.Metro,
			State:       e.State,
			Factor:      e.Factor,
			Description: e.Description,
		}
		byLabel[e.Label] = r
		ordered = append(ordered, r)
	}
	// Size is a positive constant, so New cannot fail.
	cache, _ := lru.New[string, domain.Region](regionCacheSize)
	return &RegionTable{byLabel: byLabel, ordered: ordered, cache: cache}
}

// Len returns the number of known metros.
func (t *RegionTable) Len() int {
	return len(t.ordered)
}

// Resolve returns the region for a free-form location hint.
func (t *RegionTable) Resolve(hint string) domain.Region {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return NationalAverage
	}
	if r, ok := t.byLabel[hint]; ok {
		return r
	}
	needle := strings.ToLower(hint)
	if r, ok := t.cache.Get(needle); ok {
		return r
	}
	r := t.fuzzy(needle)
	t.cache.Add(needle, r)
	return r
}

func (t *RegionTable) fuzzy(needle string) domain.Region {
	for _, r := range t.ordered {
		if strings.Contains(strings.ToLower(r.Label), needle) ||
			strings.Contains(strings.ToLower(r.Metro), needle) ||
			strings.ToLower(r.State) == needle {
			return r
		}
	}
	return NationalAverage
}

// broadRegions groups states into the coarse areas used by de-identified aggregates.
var broadRegions = map[string]string{
	"MT": "Mountain West", "ID": "Mountain West", "WY": "Mountain West", "CO": "Mountain West", "UT": "Mountain West", "NV": "Mountain West",
	"NY": "Northeast Metro", "NJ": "Northeast Metro", "MA": "Northeast Metro", "CT": "Northeast Metro", "PA": "Northeast Metro", "DC": "Northeast Metro",
	"CA": "West Coast", "WA": "West Coast", "OR": "West Coast",
	"TX": "Southwest", "OK": "Southwest", "AZ": "Southwest", "NM": "Southwest",
	"IL": "Midwest", "OH": "Midwest", "MI": "Midwest", "IN": "Midwest", "MN": "Midwest", "WI": "Midwest", "MO": "Midwest",
	"FL": "Southeast", "GA": "Southeast", "TN": "Southeast", "NC": "Southeast", "SC": "Southeast", "MS": "Southeast", "AL": "Southeast", "AR": "Southeast",
}

// GeneralizeRegion maps a resolved region onto a broad area so aggregates
// never carry a metro-level location.
func GeneralizeRegion(r domain.Region) string {
	if area, ok := broadRegions[strings.ToUpper(r.State)]; ok {
		return area
	}
	return "Other US"
}
