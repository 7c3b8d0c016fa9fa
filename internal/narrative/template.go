package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"billscope/internal/domain"
	"billscope/internal/port"
	"billscope/internal/pricing"
)

// GenericDiscountRange is the prompt-pay discount quoted when no item-level
// analysis is used.
const GenericDiscountRange = "20-40%"

// TemplateNarrator builds a narrative from the billed amount and category
// prompt-pay multipliers without calling a model.
type TemplateNarrator struct {
	now func() time.Time
}

// NewTemplateNarrator creates a TemplateNarrator.
func NewTemplateNarrator() *TemplateNarrator {
	return &TemplateNarrator{now: time.Now}
}

type categoryTotal struct {
	category domain.ServiceCategory
	billed   float64
}

// Explain never fails.
func (t *TemplateNarrator) Explain(_ context.Context, bill port.PricedBill) (*domain.Narrative, error) {
	totals := categoryTotals(bill.LineItems)
	billed := bill.Summary.TotalBilled
	if billed <= 0 {
		for _, c := range totals {
			billed += c.billed
		}
	}

	var low, high float64
	if len(totals) == 0 {
		p := pricing.PatternFor(domain.CategoryOther)
		low, high = billed*p.PromptPayMin, billed*p.PromptPayMax
	}
	for _, c := range totals {
		p := pricing.PatternFor(c.category)
		low += c.billed * p.PromptPayMin
		high += c.billed * p.PromptPayMax
	}

	return &domain.Narrative{
		Explanation:       templateExplanation(billed, low, high, len(bill.LineItems)),
		NegotiationScript: GenericScript(billed, low),
		KeyInsights:       templateInsights(totals),
		OverallConfidence: bill.Summary.OverallConfidence,
		Source:            domain.NarrativeFromTemplate,
		GeneratedAt:       t.now().UTC(),
	}, nil
}

// GenericScript is the phone script used when no model narrative is available.
func GenericScript(billed, offer float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi, I received a bill for $%.2f and I'd like to discuss payment options.\n\n", billed)
	fmt.Fprintf(&b, "I'm prepared to pay in full today if we can agree on a prompt pay discount. "+
		"Many providers offer %s discounts for immediate payment.\n\n", GenericDiscountRange)
	if offer > 0 {
		fmt.Fprintf(&b, "Would you be able to accept $%.2f if I pay today?\n\n", offer)
	}
	b.WriteString("If that isn't possible, what prompt pay or financial assistance options do you have available?\n\n")
	b.WriteString("Thank you for your help.")
	return b.String()
}

func templateExplanation(billed, low, high float64, items int) string {
	noun := "charges"
	if items == 1 {
		noun = "charge"
	}
	return fmt.Sprintf("Your bill totals $%.2f across %d %s. "+
		"Many providers accept less when a bill is paid promptly, and based on typical prompt pay discounts "+
		"for these services you may be able to ask for something closer to $%.2f-$%.2f.\n\n"+
		"This estimate is based on general discount patterns rather than a detailed price comparison, "+
		"so treat it as a starting point for the conversation. Asking never hurts.",
		billed, items, noun, low, high)
}

func templateInsights(totals []categoryTotal) []string {
	insights := make([]string, 0, maxInsights)
	for _, c := range totals {
		if len(insights) == maxInsights-1 {
			break
		}
		p := pricing.PatternFor(c.category)
		insights = append(insights, fmt.Sprintf("%s charges total $%.2f and typically see %s prompt pay discounts.",
			label(c.category), c.billed, p.TypicalRange))
	}
	return append(insights, fmt.Sprintf("Many providers offer %s off for immediate payment, so it is worth asking before you pay.",
		GenericDiscountRange))
}

// categoryTotals sums billed amounts per category in first-seen order.
func categoryTotals(items []domain.LineItem) []categoryTotal {
	var out []categoryTotal
	index := make(map[domain.ServiceCategory]int)
	for i := range items {
		c := items[i].Category
		if !c.Valid() {
			c = domain.CategoryOther
		}
		amount := items[i].BilledAmount * float64(max(items[i].Quantity, 1))
		if j, ok := index[c]; ok {
			out[j].billed += amount
			continue
		}
		index[c] = len(out)
		out = append(out, categoryTotal{category: c, billed: amount})
	}
	return out
}

func label(c domain.ServiceCategory) string {
	s := strings.ReplaceAll(string(c), "_", " ")
	if s == "" {
		return "Other"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
