package pricing

import (
	"math"

	"billscope/internal/domain"
)

const (
	highConfidenceShare   = 0.70
	mediumConfidenceShare = 0.50
)

var tierWeights = map[domain.ConfidenceTier]int{
	domain.TierHigh:   100,
	domain.TierMedium: 60,
	domain.TierLow:    30,
}

// Summarize computes bill-wide totals over priced line items. Provider and
// date fields are left for the caller to fill.
func Summarize(items []domain.LineItem, totals Totals) domain.Summary {
	var s domain.Summary
	s.LineItemCount = len(items)

	var billed, fair float64
	weighted := 0
	for i := range items {
		qty := float64(max(items[i].Quantity, 1))
		billed += items[i].BilledAmount * qty
		fair += items[i].NegotiationGuidance.Opening * qty

		tier := items[i].Analysis.ConfidenceTier
		switch tier {
		case domain.TierHigh:
			s.ConfidenceDistribution.High++
		case domain.TierMedium:
			s.ConfidenceDistribution.Medium++
		default:
			tier = domain.TierLow
			s.ConfidenceDistribution.Low++
		}
		weighted += tierWeights[tier]
	}

	s.TotalBilled = round2(billed)
	s.TotalEstimatedFair = round2(fair)
	if totals.InsurancePaid != nil && *totals.InsurancePaid > 0 {
		s.InsurancePaid = round2(*totals.InsurancePaid)
	}
	s.PatientResponsibility = patientResponsibility(s.TotalBilled, s.InsurancePaid, totals.PatientResponsibility)

	if s.TotalBilled > 0 {
		s.FairPatientShare = round2(s.PatientResponsibility * (fair / billed))
	}
	if savings := s.PatientResponsibility - s.FairPatientShare; savings > 0 {
		s.PotentialSavings = round2(savings)
	}
	if s.PatientResponsibility > 0 {
		pct := s.PotentialSavings / s.PatientResponsibility * 100
		s.SavingsPercentage = round1(min(max(pct, 0), 100))
	}

	s.OverallConfidence = overallConfidence(s.ConfidenceDistribution, len(items))
	if len(items) > 0 {
		s.ConfidenceScore = int(math.Round(float64(weighted) / float64(len(items))))
	}
	return s
}

// patientResponsibility prefers the declared figure; an absent or zero value
// falls back to billed minus insurance, floored at zero.
func patientResponsibility(totalBilled, insurance float64, declared *float64) float64 {
	if declared != nil && *declared > 0 {
		return round2(*declared)
	}
	return round2(max(totalBilled-insurance, 0))
}

func overallConfidence(d domain.ConfidenceDistribution, n int) domain.ConfidenceLevel {
	if n == 0 {
		return domain.ConfidenceLow
	}
	total := float64(n)
	switch {
	case float64(d.High)/total >= highConfidenceShare:
		return domain.ConfidenceHigh
	case float64(d.High+d.Medium)/total >= mediumConfidenceShare:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
