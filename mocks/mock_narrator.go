package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"billscope/internal/domain"
	"billscope/internal/port"
)

// MockNarrator is a mock implementation of port.Narrator.
type MockNarrator struct {
	mock.Mock
}

func (m *MockNarrator) Explain(ctx context.Context, bill port.PricedBill) (*domain.Narrative, error) {
	args := m.Called(ctx, bill)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Narrative), args.Error(1)
}
