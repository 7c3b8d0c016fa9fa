package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"billscope/internal/domain"
)

// MockPricingIntelligenceRepo is a mock implementation of port.PricingIntelligenceRepository.
type MockPricingIntelligenceRepo struct {
	mock.Mock
}

func (m *MockPricingIntelligenceRepo) Record(ctx context.Context, obs domain.PricingObservation) error {
	args := m.Called(ctx, obs)
	return args.Error(0)
}
