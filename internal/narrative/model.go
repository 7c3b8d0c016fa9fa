// Package narrative turns a priced bill into a plain-language explanation and
// a negotiation script.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"billscope/internal/domain"
	"billscope/internal/llm"
	"billscope/internal/port"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 3000
	maxPromptItems   = 40
	maxInsights      = 5
)

const systemPrompt = `You are a friendly medical billing advocate helping a patient understand their bill.
Return ONLY a single valid JSON object. No markdown, no code fences, no commentary.`

// ModelNarrator writes the narrative with a language model.
type ModelNarrator struct {
	completer port.Completer
	timeout   time.Duration
	now       func() time.Time
}

// NewModelNarrator creates a ModelNarrator. A zero timeout uses 30s.
func NewModelNarrator(completer port.Completer, timeout time.Duration) *ModelNarrator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ModelNarrator{completer: completer, timeout: timeout, now: time.Now}
}

type modelOutput struct {
	Explanation       string   `json:"explanation"`
	NegotiationScript string   `json:"negotiationScript"`
	KeyInsights       []string `json:"keyInsights"`
}

// Explain asks the model for an explanation, a script and key insights.
func (m *ModelNarrator) Explain(ctx context.Context, bill port.PricedBill) (*domain.Narrative, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.completer.Complete(ctx, port.CompletionRequest{
		System:     systemPrompt,
		Prompt:     BuildNarrativePrompt(bill),
		MaxTokens:  defaultMaxTokens,
		JSONOutput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("narrative.ModelNarrator.Explain: %w", err)
	}

	payload, ok := llm.ExtractJSON(resp.Text)
	if !ok {
		return nil, fmt.Errorf("narrative.ModelNarrator.Explain: %w: no JSON object in response", domain.ErrNarrativeFailed)
	}
	var out modelOutput
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("narrative.ModelNarrator.Explain: %w: %v", domain.ErrNarrativeFailed, err)
	}
	out.Explanation = strings.TrimSpace(out.Explanation)
	out.NegotiationScript = strings.TrimSpace(out.NegotiationScript)
	if out.Explanation == "" || out.NegotiationScript == "" {
		return nil, fmt.Errorf("narrative.ModelNarrator.Explain: %w: empty explanation or script", domain.ErrNarrativeFailed)
	}

	insights := make([]string, 0, maxInsights)
	for _, s := range out.KeyInsights {
		if s = strings.TrimSpace(s); s != "" {
			insights = append(insights, s)
		}
		if len(insights) == maxInsights {
			break
		}
	}

	return &domain.Narrative{
		Explanation:       out.Explanation,
		NegotiationScript: out.NegotiationScript,
		KeyInsights:       insights,
		OverallConfidence: bill.Summary.OverallConfidence,
		Source:            domain.NarrativeFromModel,
		GeneratedAt:       m.now().UTC(),
	}, nil
}

// BuildNarrativePrompt renders the priced bill into the narrative prompt.
func BuildNarrativePrompt(bill port.PricedBill) string {
	s := bill.Summary
	var b strings.Builder

	b.WriteString("BILL SUMMARY:\n")
	fmt.Fprintf(&b, "Provider: %s\n", orDefault(s.ProviderName, "Healthcare provider"))
	fmt.Fprintf(&b, "Location: %s\n", orDefault(bill.Region.Label, "Unknown"))
	fmt.Fprintf(&b, "Total Billed: $%.2f\n", s.TotalBilled)
	fmt.Fprintf(&b, "Patient Responsibility: $%.2f\n", s.PatientResponsibility)
	fmt.Fprintf(&b, "Estimated Fair Price: $%.2f\n", s.TotalEstimatedFair)
	fmt.Fprintf(&b, "Potential Savings: $%.2f (%.0f%%)\n", s.PotentialSavings, s.SavingsPercentage)
	fmt.Fprintf(&b, "Overall Confidence: %s\n", s.OverallConfidence)

	b.WriteString("\nLINE ITEMS:\n")
	for i := range bill.LineItems {
		if i == maxPromptItems {
			fmt.Fprintf(&b, "- ... %d more items\n", len(bill.LineItems)-maxPromptItems)
			break
		}
		writeItem(&b, &bill.LineItems[i])
	}

	b.WriteString("\nREGIONAL CONTEXT:\n")
	b.WriteString(orDefault(bill.Region.Description, "National average pricing"))

	b.WriteString(`

Return JSON with exactly this shape:
{
  "explanation": "2-3 friendly paragraphs. Explain what the bill is for, which charges stand out and what opportunities exist. Say 'you may be able to ask for', never 'you should demand'. Acknowledge the provider may already have applied discounts. Use the dollar figures above.",
  "negotiationScript": "A word-for-word phone script with these sections separated by blank lines: Opening, Situation, Offer (a specific dollar amount), Justification (reference rates and prompt payment), If They Say No, Closing.",
  "keyInsights": ["3-5 complete sentences, each with a specific dollar figure or fact"]
}

TONE:
- empowering and opportunity focused
- "this bill may not include a discount yet", never "they are overcharging you"
- providers generally want to help patients pay
- high confidence: be specific about reference rates and savings
- medium confidence: use ranges and acknowledge uncertainty
- low confidence: focus on the fact that asking never hurts

DO NOT:
- accuse the provider of wrongdoing
- guarantee outcomes
- make legal claims
- suggest withholding payment`)
	return b.String()
}

func writeItem(b *strings.Builder, item *domain.LineItem) {
	fmt.Fprintf(b, "- %s\n", item.Description)
	fmt.Fprintf(b, "  Billed: $%.2f x %d\n", item.BilledAmount, item.Quantity)
	fmt.Fprintf(b, "  Category: %s\n", item.Category)
	if rate := item.ReferencePricing.RegionalAdjusted; rate != nil {
		fmt.Fprintf(b, "  Reference rate: $%.2f\n", *rate)
	} else {
		b.WriteString("  Reference rate: not available\n")
	}
	fmt.Fprintf(b, "  Assessment: %s\n", item.Analysis.Assessment)
	fmt.Fprintf(b, "  Confidence: %s\n", tierLabel(item.Analysis.ConfidenceTier))
	g := item.NegotiationGuidance
	fmt.Fprintf(b, "  Suggested opening: $%.2f (acceptable $%.2f-$%.2f)\n", g.Opening, g.Acceptable.Low, g.Acceptable.High)
	fmt.Fprintf(b, "  Typical discount range: %s\n", g.DiscountRange)
}

func tierLabel(t domain.ConfidenceTier) string {
	switch t {
	case domain.TierHigh:
		return "High"
	case domain.TierMedium:
		return "Medium"
	default:
		return "Low"
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
