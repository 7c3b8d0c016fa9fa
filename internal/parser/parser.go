// Package parser turns raw bill text into itemized charges with a language
// model, validating the model output before anything downstream sees it.
package parser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"billscope/internal/domain"
	"billscope/internal/llm"
	"billscope/internal/port"
	"billscope/internal/pricing"
)

const (
	defaultRetries   = 2
	defaultBackoff   = time.Second
	defaultMaxTokens = 4000
	totalTolerance   = 1.0
)

// identifierPatterns match text that looks like a personal identifier.
var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)patient name:`),
	regexp.MustCompile(`(?i:name:) [A-Z][a-z]+ [A-Z][a-z]+`),
	regexp.MustCompile(`(?i)dob:`),
	regexp.MustCompile(`(?i)date of birth:`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`(?i)mr#`),
	regexp.MustCompile(`(?i)medical record`),
	regexp.MustCompile(`(?i)chart number`),
}

// ContainsIdentifier reports whether text matches a personal identifier pattern.
func ContainsIdentifier(text string) bool {
	for _, re := range identifierPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Option configures a Parser.
type Option func(*Parser)

// WithRetries sets how many extra attempts follow a validation failure.
func WithRetries(n int) Option {
	return func(p *Parser) { p.retries = n }
}

// WithBackoff sets the base delay; attempt n waits base*2^n.
func WithBackoff(base time.Duration) Option {
	return func(p *Parser) { p.backoff = base }
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(p *Parser) { p.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// WithBenchmarks lets category guessing use the benchmark code ranges.
func WithBenchmarks(t *pricing.BenchmarkTable) Option {
	return func(p *Parser) { p.benchmarks = t }
}

// Parser implements port.BillParser on top of a port.Completer.
type Parser struct {
	completer  port.Completer
	benchmarks *pricing.BenchmarkTable
	retries    int
	backoff    time.Duration
	sleep      SleepFunc
	logger     *zap.Logger
}

// New creates a Parser.
func New(completer port.Completer, opts ...Option) *Parser {
	p := &Parser{
		completer: completer,
		retries:   defaultRetries,
		backoff:   defaultBackoff,
		sleep:     sleepContext,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retries < 0 {
		p.retries = 0
	}
	return p
}

// Parse extracts line items, provider, dates and totals from raw bill text.
// Output that fails validation is retried with exponential backoff; any
// other completion error is returned immediately.
func (p *Parser) Parse(ctx context.Context, rawText string, hints port.ParseHints) (*port.ParsedBill, error) {
	req := port.CompletionRequest{
		System:     systemPrompt,
		Prompt:     BuildBillPrompt(rawText, hints),
		MaxTokens:  defaultMaxTokens,
		JSONOutput: true,
	}

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			delay := p.backoff * time.Duration(1<<(attempt-1))
			p.logger.Warn("parser.Parse: retrying after invalid output",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := p.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("parser.Parse: %w", err)
			}
		}

		resp, err := p.completer.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("parser.Parse: %w", err)
		}

		bill, err := p.build(resp.Text)
		if err == nil {
			bill.ModelUsed = resp.Model
			bill.Attempts = attempt + 1
			return bill, nil
		}
		if !errors.Is(err, domain.ErrParseValidationFailed) {
			return nil, fmt.Errorf("parser.Parse: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("parser.Parse: %d attempts: %w", p.retries+1, lastErr)
}

func (p *Parser) build(text string) (*port.ParsedBill, error) {
	payload, ok := llm.ExtractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in %d character response", domain.ErrParseValidationFailed, len(text))
	}
	raw, err := decodeBill(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParseValidationFailed, err)
	}

	bill := &port.ParsedBill{}
	if raw.Provider != nil {
		bill.Provider.Name = strings.TrimSpace(deref(raw.Provider.Name))
		bill.Provider.Type = domain.NormalizeProviderType(strings.ToLower(strings.TrimSpace(deref(raw.Provider.Type))))
	} else {
		bill.Provider.Type = domain.ProviderOther
	}
	if raw.Dates != nil {
		bill.BillDate = strings.TrimSpace(deref(raw.Dates.BillDate))
		bill.ServiceDate = strings.TrimSpace(deref(raw.Dates.ServiceDate))
	}
	if raw.Totals != nil {
		bill.Totals = port.ParsedTotals{
			TotalBilled:           raw.Totals.TotalBilled,
			InsurancePaid:         raw.Totals.InsurancePaid,
			PatientResponsibility: raw.Totals.PatientResponsibility,
		}
	}

	for i, ri := range raw.LineItems {
		item, reason := p.lineItem(ri)
		if reason != "" {
			bill.Warnings = append(bill.Warnings, domain.Warning{
				Kind:      domain.WarningItemDropped,
				Message:   fmt.Sprintf("line item %d dropped: %s", i+1, reason),
				ItemIndex: intPtr(i),
			})
			continue
		}
		if ContainsIdentifier(item.Description) {
			item.Flagged = true
			bill.Warnings = append(bill.Warnings, domain.Warning{
				Kind:      domain.WarningIdentifierLeak,
				Message:   fmt.Sprintf("line item %d: %v", len(bill.LineItems)+1, domain.ErrParseIdentifierLeak),
				ItemIndex: intPtr(len(bill.LineItems)),
			})
		}
		bill.LineItems = append(bill.LineItems, item)
	}
	if len(raw.LineItems) > 0 && len(bill.LineItems) == 0 {
		return nil, fmt.Errorf("%w: all %d line items invalid", domain.ErrParseValidationFailed, len(raw.LineItems))
	}

	if w, ok := totalMismatch(bill.LineItems, bill.Totals.TotalBilled); ok {
		bill.Warnings = append(bill.Warnings, w)
	}
	return bill, nil
}

// lineItem normalizes one raw item. A non-empty reason means the item is unusable.
func (p *Parser) lineItem(ri rawLineItem) (domain.LineItem, string) {
	desc := strings.TrimSpace(deref(ri.Description))
	if desc == "" {
		return domain.LineItem{}, "missing description"
	}
	if ri.BilledAmount == nil {
		return domain.LineItem{}, "missing billed amount"
	}
	if *ri.BilledAmount < 0 {
		return domain.LineItem{}, "negative billed amount"
	}

	item := domain.LineItem{
		Description:  desc,
		Quantity:     1,
		BilledAmount: math.Round(*ri.BilledAmount*100) / 100,
	}
	if ri.Quantity != nil && *ri.Quantity >= 1 {
		item.Quantity = int(math.Round(*ri.Quantity))
	}

	code := ri.code()
	if pricing.ValidCode(code) {
		item.Code = &code
	} else {
		code = ""
	}

	category := domain.ServiceCategory(normalizeCategory(deref(ri.Category)))
	if !category.Valid() {
		category = pricing.GuessCategory(desc, code, p.benchmarks)
	}
	item.Category = category
	return item, ""
}

func totalMismatch(items []domain.LineItem, declared *float64) (domain.Warning, bool) {
	if declared == nil || *declared <= 0 || len(items) == 0 {
		return domain.Warning{}, false
	}
	var sum float64
	for i := range items {
		sum += items[i].BilledAmount * float64(items[i].Quantity)
	}
	if math.Abs(sum-*declared) <= totalTolerance {
		return domain.Warning{}, false
	}
	return domain.Warning{
		Kind:    domain.WarningTotalMismatch,
		Message: fmt.Sprintf("line items sum to $%.2f but the bill total is $%.2f", sum, *declared),
	}, true
}

func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intPtr(i int) *int {
	return &i
}
