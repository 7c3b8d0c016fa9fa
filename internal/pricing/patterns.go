package pricing

import (
	"regexp"

	"billscope/internal/domain"
)

// DiscountPattern is the prompt-pay negotiation norm for a service category.
type DiscountPattern struct {
	TypicalRange string
	PromptPayMin float64
	PromptPayMax float64
	Reasoning    string
}

var discountPatterns = map[domain.ServiceCategory]DiscountPattern{
	domain.CategoryLab:         {"30-50%", 0.50, 0.70, "Lab work typically carries high markups and providers are flexible"},
	domain.CategoryImaging:     {"20-35%", 0.65, 0.80, "Imaging centers often offer cash pricing programs"},
	domain.CategoryOfficeVisit: {"10-20%", 0.80, 0.90, "Office visits are less negotiable but worth asking about"},
	domain.CategoryProcedure:   {"15-30%", 0.70, 0.85, "Pricing varies with procedure complexity"},
	domain.CategoryMedication:  {"10-25%", 0.75, 0.90, "Generic medications may have cash programs"},
	domain.CategoryEmergency:   {"5-15%", 0.85, 0.95, "Emergency services are difficult to negotiate"},
	domain.CategorySurgery:     {"10-25%", 0.75, 0.90, "Complex procedures vary widely"},
	domain.CategoryTherapy:     {"15-25%", 0.75, 0.85, "Therapy practices often offer cash rates"},
	domain.CategoryOther:       {"20-40%", 0.60, 0.80, "Generic guidance for uncategorized services"},
}

// PatternFor returns the discount pattern for a category, falling back to other.
func PatternFor(c domain.ServiceCategory) DiscountPattern {
	if p, ok := discountPatterns[c]; ok {
		return p
	}
	return discountPatterns[domain.CategoryOther]
}

type keywordRule struct {
	category domain.ServiceCategory
	re       *regexp.Regexp
}

// keywordRules are checked in order; the first match wins.
var keywordRules = []keywordRule{
	{domain.CategoryEmergency, regexp.MustCompile(`(?i)emergency|\ber\b|urgent`)},
	{domain.CategoryLab, regexp.MustCompile(`(?i)blood|\blab|test|panel|urinalysis`)},
	{domain.CategoryImaging, regexp.MustCompile(`(?i)x-ray|xray|\bct\b|\bmri\b|ultrasound|scan`)},
	{domain.CategorySurgery, regexp.MustCompile(`(?i)surgery|surgical|operation`)},
	{domain.CategoryTherapy, regexp.MustCompile(`(?i)therapy|rehabilitation|\bpt\b|\bot\b`)},
	{domain.CategoryOfficeVisit, regexp.MustCompile(`(?i)office|visit|consultation|exam`)},
	{domain.CategoryMedication, regexp.MustCompile(`(?i)medication|drug|injection|infusion`)},
	{domain.CategoryProcedure, regexp.MustCompile(`(?i)procedure|biopsy`)},
}

// GuessCategory classifies an item that arrived without a usable category.
// A code is classified by numeric range only; otherwise the description is
// matched against keyword rules.
func GuessCategory(description, code string, table *BenchmarkTable) domain.ServiceCategory {
	if code != "" {
		if table != nil {
			if c, ok := table.CategoryForCode(code); ok {
				return c
			}
		}
		return domain.CategoryOther
	}
	for _, r := range keywordRules {
		if r.re.MatchString(description) {
			return r.category
		}
	}
	return domain.CategoryOther
}
