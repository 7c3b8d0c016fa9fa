package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"billscope/internal/port"
)

// MockReferenceDataRepo is a mock implementation of port.ReferenceDataRepository.
type MockReferenceDataRepo struct {
	mock.Mock
}

func (m *MockReferenceDataRepo) LoadBenchmarkRates(ctx context.Context) ([]port.BenchmarkRateEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]port.BenchmarkRateEntry), args.Error(1)
}

func (m *MockReferenceDataRepo) LoadCategoryRanges(ctx context.Context) ([]port.CategoryRangeEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]port.CategoryRangeEntry), args.Error(1)
}

func (m *MockReferenceDataRepo) LoadRegionalFactors(ctx context.Context) ([]port.RegionalFactorEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]port.RegionalFactorEntry), args.Error(1)
}
