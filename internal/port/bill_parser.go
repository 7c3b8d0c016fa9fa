package port

import (
	"context"

	"billscope/internal/domain"
)

// ParsedProvider is the billing provider as read off the bill.
type ParsedProvider struct {
	Name string
	Type domain.ProviderType
}

// ParsedTotals are the declared totals printed on the bill.
type ParsedTotals struct {
	TotalBilled           *float64
	InsurancePaid         *float64
	PatientResponsibility *float64
}

// ParsedBill is the validated output of structured extraction. Line items
// carry only description, code, category, quantity and billed amount.
type ParsedBill struct {
	Provider    ParsedProvider
	BillDate    string
	ServiceDate string
	LineItems   []domain.LineItem
	Totals      ParsedTotals
	Warnings    []domain.Warning
	ModelUsed   string
	Attempts    int
}

// BillParser turns raw bill text into itemized charges.
type BillParser interface {
	Parse(ctx context.Context, rawText string, hints ParseHints) (*ParsedBill, error)
}
