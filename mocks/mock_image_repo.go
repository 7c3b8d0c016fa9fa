package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"billscope/internal/domain"
)

// MockImageRepo is a mock implementation of port.ImageRepository.
type MockImageRepo struct {
	mock.Mock
}

func (m *MockImageRepo) Create(ctx context.Context, img *domain.ImageRef) error {
	args := m.Called(ctx, img)
	return args.Error(0)
}

func (m *MockImageRepo) GetByBillID(ctx context.Context, billID uuid.UUID) (*domain.ImageRef, error) {
	args := m.Called(ctx, billID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ImageRef), args.Error(1)
}

func (m *MockImageRepo) ClaimDueForDeletion(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.ImageRef, error) {
	args := m.Called(ctx, now, lease, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ImageRef), args.Error(1)
}

func (m *MockImageRepo) MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}
