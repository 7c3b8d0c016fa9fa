package pricing

import (
	"fmt"

	"billscope/internal/domain"
)

// Fair pricing multipliers over the regionally adjusted benchmark rate.
const (
	fairLowMultiplier  = 1.4
	fairHighMultiplier = 2.0

	benchmarkWalkawayMultiplier = 1.2
	billedWalkawayMultiplier    = 0.95
)

// Verdict thresholds as multiples of fairHigh.
const (
	highThreshold     = 1.5
	veryHighThreshold = 2.5
)

// ratioEpsilon absorbs float noise when comparing ratios at display precision.
const ratioEpsilon = 1e-9

// Totals are the declared bill totals used for the patient-share calculation.
type Totals struct {
	InsurancePaid         *float64
	PatientResponsibility *float64
}

// Input is everything the engine needs to price a bill.
type Input struct {
	LineItems    []domain.LineItem
	LocationHint string
	Totals       Totals
}

// Result is the priced bill.
type Result struct {
	LineItems []domain.LineItem
	Summary   domain.Summary
	Region    domain.Region
}

// Engine prices line items against the benchmark and regional tables. It does
// no I/O and is safe for concurrent use.
type Engine struct {
	benchmarks *BenchmarkTable
	regions    *RegionTable
}

// NewEngine creates a pricing Engine over immutable reference tables.
func NewEngine(benchmarks *BenchmarkTable, regions *RegionTable) *Engine {
	return &Engine{benchmarks: benchmarks, regions: regions}
}

// Analyze prices every line item and computes the bill summary.
func (e *Engine) Analyze(in Input) Result {
	region := e.regions.Resolve(in.LocationHint)
	items := make([]domain.LineItem, 0, len(in.LineItems))
	for i := range in.LineItems {
		items = append(items, e.PriceItem(in.LineItems[i], region))
	}
	return Result{
		LineItems: items,
		Summary:   Summarize(items, in.Totals),
		Region:    region,
	}
}

// PriceItem computes reference pricing, verdict, confidence tier and
// negotiation guidance for a single line item.
func (e *Engine) PriceItem(item domain.LineItem, region domain.Region) domain.LineItem {
	out := item
	if out.Quantity < 1 {
		out.Quantity = 1
	}
	if out.BilledAmount < 0 {
		out.BilledAmount = 0
	}

	code := ""
	if out.HasCode() {
		code = *out.Code
	}
	if out.Category == "" || !out.Category.Valid() {
		out.Category = GuessCategory(out.Description, code, e.benchmarks)
	}
	pattern := PatternFor(out.Category)
	res := e.benchmarks.Resolve(code)

	out.ReferencePricing = referencePricing(out.BilledAmount, res, region, pattern)
	tier, factors := confidenceTier(res, out.Category, code != "")
	out.Analysis = assess(out.BilledAmount, out.ReferencePricing, region)
	out.Analysis.ConfidenceTier = tier
	out.Analysis.ConfidenceFactors = factors
	out.NegotiationGuidance = guidance(out.BilledAmount, out.Category, out.ReferencePricing, pattern, tier)
	return out
}

func referencePricing(billed float64, res RateResolution, region domain.Region, pattern DiscountPattern) domain.ReferencePricing {
	if res.Rate == nil {
		return domain.ReferencePricing{
			FairPriceRange: domain.PriceRange{
				Low:  round2(billed * pattern.PromptPayMin),
				High: round2(billed * pattern.PromptPayMax),
			},
			Source: domain.SourceUnknown,
		}
	}
	adjusted := round2(*res.Rate * region.Factor)
	return domain.ReferencePricing{
		BenchmarkRate:    ptr(*res.Rate),
		RegionalAdjusted: ptr(adjusted),
		FairPriceRange: domain.PriceRange{
			Low:  round2(adjusted * fairLowMultiplier),
			High: round2(adjusted * fairHighMultiplier),
		},
		Source: res.Source,
	}
}

func confidenceTier(res RateResolution, category domain.ServiceCategory, hasCode bool) (domain.ConfidenceTier, []string) {
	switch {
	case res.Source == domain.SourceBenchmarkSchedule && hasCode:
		return domain.TierHigh, []string{
			"Benchmark rate available",
			"Reference code present",
			"Published national fee schedule data",
		}
	case res.Source == domain.SourceCategoryEstimate || category != domain.CategoryOther:
		var factors []string
		if res.Source == domain.SourceCategoryEstimate {
			factors = append(factors, "Benchmark rate estimated from code range")
		}
		if category != domain.CategoryOther {
			factors = append(factors, fmt.Sprintf("Service category identified: %s", category))
		}
		factors = append(factors, "Category pricing norms available")
		return domain.TierMedium, factors
	default:
		return domain.TierLow, []string{
			"Limited data available",
			"Generic discount guidance",
		}
	}
}

func assess(billed float64, rp domain.ReferencePricing, region domain.Region) domain.ItemAnalysis {
	if rp.BenchmarkRate != nil && *rp.BenchmarkRate > 0 {
		ratio := billed / *rp.BenchmarkRate
		shown := round1(ratio)
		// billed <= fairHigh*k is equivalent to ratio <= 2*factor*k.
		pivot := fairHighMultiplier * region.Factor
		a := domain.ItemAnalysis{RatioToBenchmark: ptr(round2(ratio))}
		switch {
		case shown <= pivot+ratioEpsilon:
			a.Assessment = domain.AssessmentFair
			a.Reasoning = fmt.Sprintf("This charge is within the fair market range (%.1fx the benchmark rate)", shown)
			if high := rp.FairPriceRange.High; high > 0 && billed > high {
				a.Reasoning = fmt.Sprintf("This charge is slightly above the fair market high of $%.2f (%.1fx the benchmark rate)", high, shown)
			}
		case shown <= pivot*highThreshold+ratioEpsilon:
			a.Assessment = domain.AssessmentHigh
			a.Reasoning = fmt.Sprintf("This charge is higher than typical (%.1fx the benchmark rate)", shown)
		case shown <= pivot*veryHighThreshold+ratioEpsilon:
			a.Assessment = domain.AssessmentVeryHigh
			a.Reasoning = fmt.Sprintf("This charge is significantly higher than typical (%.1fx the benchmark rate)", shown)
		default:
			a.Assessment = domain.AssessmentExtreme
			a.Reasoning = fmt.Sprintf("This charge is extremely high (%.1fx the benchmark rate)", shown)
		}
		return a
	}

	if billed <= 0 || rp.FairPriceRange.Low <= 0 {
		return domain.ItemAnalysis{
			Assessment: domain.AssessmentUnknown,
			Reasoning:  "Unable to assess without reference pricing",
		}
	}
	mid := (rp.FairPriceRange.Low + rp.FairPriceRange.High) / 2
	switch {
	case billed <= mid:
		return domain.ItemAnalysis{Assessment: domain.AssessmentFair, Reasoning: "This charge appears reasonable for this service category"}
	case billed <= mid*highThreshold:
		return domain.ItemAnalysis{Assessment: domain.AssessmentHigh, Reasoning: "This charge is on the higher end for this service category"}
	default:
		return domain.ItemAnalysis{Assessment: domain.AssessmentVeryHigh, Reasoning: "This charge is significantly higher than usual for this service category"}
	}
}

func guidance(billed float64, category domain.ServiceCategory, rp domain.ReferencePricing, pattern DiscountPattern, tier domain.ConfidenceTier) domain.NegotiationGuidance {
	g := domain.NegotiationGuidance{DiscountRange: pattern.TypicalRange}
	fair := rp.FairPriceRange

	switch {
	case tier == domain.TierHigh && rp.BenchmarkRate != nil:
		g.Opening = fair.Low
		g.Acceptable = domain.PriceRange{Low: fair.Low, High: fair.High}
		g.Walkaway = round2(fair.High * benchmarkWalkawayMultiplier)
		g.Strategy = "Start from benchmark-based pricing and reference the published national rate"
		g.Leverage = []string{
			fmt.Sprintf("The national benchmark rate for this service is $%.2f", *rp.BenchmarkRate),
			"Offering immediate payment",
		}
	case tier == domain.TierMedium && fair.Low > 0:
		g.Opening = fair.Low
		g.Acceptable = domain.PriceRange{Low: fair.Low, High: fair.High}
		g.Walkaway = round2(fair.High * benchmarkWalkawayMultiplier)
		g.Strategy = "Ask about prompt-pay discounts. " + pattern.Reasoning
		g.Leverage = []string{
			"Willing to pay in full today",
			fmt.Sprintf("Providers commonly discount %s charges by %s", categoryLabel(category), pattern.TypicalRange),
		}
	default:
		low := round2(billed * pattern.PromptPayMin)
		high := round2(billed * pattern.PromptPayMax)
		g.Opening = low
		g.Acceptable = domain.PriceRange{Low: low, High: high}
		g.Walkaway = round2(billed * billedWalkawayMultiplier)
		g.Strategy = "Ask if a prompt-pay discount is available. " + pattern.Reasoning
		g.Leverage = []string{
			"Offering immediate payment",
			fmt.Sprintf("Typical discounts for this category: %s", pattern.TypicalRange),
		}
	}
	enforceOrdering(&g)
	return g
}

// enforceOrdering keeps opening <= acceptable.low <= acceptable.high <= walkaway.
func enforceOrdering(g *domain.NegotiationGuidance) {
	if g.Acceptable.Low > g.Acceptable.High {
		g.Acceptable.Low, g.Acceptable.High = g.Acceptable.High, g.Acceptable.Low
	}
	if g.Opening > g.Acceptable.Low {
		g.Opening = g.Acceptable.Low
	}
	if g.Walkaway < g.Acceptable.High {
		g.Walkaway = g.Acceptable.High
	}
}

var categoryLabels = map[domain.ServiceCategory]string{
	domain.CategoryLab:         "lab",
	domain.CategoryImaging:     "imaging",
	domain.CategoryOfficeVisit: "office visit",
	domain.CategoryProcedure:   "procedure",
	domain.CategoryMedication:  "medication",
	domain.CategoryEmergency:   "emergency",
	domain.CategorySurgery:     "surgery",
	domain.CategoryTherapy:     "therapy",
	domain.CategoryOther:       "other",
}

func categoryLabel(c domain.ServiceCategory) string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}
