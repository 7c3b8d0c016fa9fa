package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"billscope/internal/domain"
)

// MockBillRepo is a mock implementation of port.BillRepository.
type MockBillRepo struct {
	mock.Mock
}

func (m *MockBillRepo) Create(ctx context.Context, bill *domain.BillAnalysis) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *MockBillRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BillAnalysis, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillAnalysis), args.Error(1)
}

func (m *MockBillRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.BillAnalysis, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BillAnalysis), args.Error(1)
}

func (m *MockBillRepo) Save(ctx context.Context, bill *domain.BillAnalysis, expected domain.ProcessingState) error {
	args := m.Called(ctx, bill, expected)
	return args.Error(0)
}

func (m *MockBillRepo) UpdateFeedback(ctx context.Context, id uuid.UUID, feedback *domain.Feedback) error {
	args := m.Called(ctx, id, feedback)
	return args.Error(0)
}

func (m *MockBillRepo) UpdateInteraction(ctx context.Context, id uuid.UUID, interaction domain.Interaction) error {
	args := m.Called(ctx, id, interaction)
	return args.Error(0)
}

func (m *MockBillRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockBillRepo) ClearExpiredText(ctx context.Context, now time.Time, limit int) (int64, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).(int64), args.Error(1)
}
