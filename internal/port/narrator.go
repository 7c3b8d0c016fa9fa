package port

import (
	"context"

	"billscope/internal/domain"
)

// PricedBill is the input to narrative generation.
type PricedBill struct {
	LineItems []domain.LineItem
	Summary   domain.Summary
	Region    domain.Region
}

// Narrator produces a consumer-facing explanation and negotiation script.
type Narrator interface {
	Explain(ctx context.Context, bill PricedBill) (*domain.Narrative, error)
}
