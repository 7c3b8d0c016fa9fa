package narrative

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"billscope/internal/domain"
	"billscope/internal/port"
)

// FallbackNarrator tries the primary narrator and falls back to the
// secondary one on any error. A nil primary always uses the fallback.
type FallbackNarrator struct {
	primary  port.Narrator
	fallback port.Narrator
	logger   *zap.Logger
}

// NewFallbackNarrator creates a FallbackNarrator.
func NewFallbackNarrator(primary, fallback port.Narrator, logger *zap.Logger) *FallbackNarrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackNarrator{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackNarrator) Explain(ctx context.Context, bill port.PricedBill) (*domain.Narrative, error) {
	if f.primary != nil {
		n, err := f.primary.Explain(ctx, bill)
		if err == nil && n != nil {
			return n, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: empty narrative", domain.ErrNarrativeFailed)
		}
		f.logger.Warn("narrative.FallbackNarrator.Explain: primary narrator failed, using fallback",
			zap.Error(err),
			zap.Int("line_items", len(bill.LineItems)))
	}

	n, err := f.fallback.Explain(ctx, bill)
	if err != nil {
		return nil, fmt.Errorf("narrative.FallbackNarrator.Explain: %w: %v", domain.ErrNarrativeFailed, err)
	}
	return n, nil
}
