package service

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"billscope/internal/domain"
	"billscope/internal/port"
	"billscope/internal/pricing"
)

// IntelligenceRecorder feeds completed analyses into the de-identified
// cross-bill pricing aggregate. Observations carry no user, bill, date or
// provider identity, and flagged items are never recorded.
type IntelligenceRecorder struct {
	repo   port.PricingIntelligenceRepository
	key    []byte
	logger *zap.Logger
	now    func() time.Time
}

// NewIntelligenceRecorder creates an IntelligenceRecorder. hashKey keys the
// description hash and must be at most 64 bytes.
func NewIntelligenceRecorder(repo port.PricingIntelligenceRepository, hashKey string, logger *zap.Logger) *IntelligenceRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntelligenceRecorder{repo: repo, key: []byte(hashKey), logger: logger, now: time.Now}
}

// Record writes one observation per unflagged line item. Failures are logged
// and never returned; it reports how many observations were stored.
func (r *IntelligenceRecorder) Record(ctx context.Context, bill *domain.BillAnalysis) int {
	region := pricing.GeneralizeRegion(bill.Region)
	observedAt := r.now().UTC()

	recorded := 0
	for i := range bill.LineItems {
		item := &bill.LineItems[i]
		if item.Flagged {
			continue
		}
		hash, err := HashDescription(r.key, item.Description)
		if err != nil {
			r.logger.Error("service.IntelligenceRecorder.Record: hashing description", zap.Error(err))
			return recorded
		}
		obs := domain.PricingObservation{
			DescriptionHash: hash,
			Code:            item.Code,
			Category:        item.Category,
			Region:          region,
			ProviderType:    bill.Summary.ProviderType,
			BilledAmount:    item.BilledAmount,
			BenchmarkRate:   item.ReferencePricing.BenchmarkRate,
			AdjustedRate:    item.ReferencePricing.RegionalAdjusted,
			SuggestedLow:    item.NegotiationGuidance.Acceptable.Low,
			SuggestedHigh:   item.NegotiationGuidance.Acceptable.High,
			ObservedAt:      observedAt,
		}
		if err := r.repo.Record(ctx, obs); err != nil {
			r.logger.Warn("service.IntelligenceRecorder.Record: storing observation",
				zap.String("category", string(item.Category)),
				zap.Error(err))
			continue
		}
		recorded++
	}
	return recorded
}

// HashDescription returns the keyed BLAKE2b-256 hash of a normalized description.
func HashDescription(key []byte, description string) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(description)), " ")
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil)), nil
}
