package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"billscope/internal/domain"
	"billscope/internal/service"
)

// MockAnalysisService is a mock implementation of service.AnalysisService.
type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) Analyze(ctx context.Context, input service.AnalyzeInput) (*service.AnalyzeResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnalyzeResult), args.Error(1)
}

func (m *MockAnalysisService) Get(ctx context.Context, billID, userID uuid.UUID) (*domain.BillAnalysis, error) {
	args := m.Called(ctx, billID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillAnalysis), args.Error(1)
}

func (m *MockAnalysisService) List(ctx context.Context, userID uuid.UUID, limit int) (*service.ListResult, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult), args.Error(1)
}

func (m *MockAnalysisService) SubmitFeedback(ctx context.Context, billID, userID uuid.UUID, input service.FeedbackInput) (*domain.BillAnalysis, error) {
	args := m.Called(ctx, billID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillAnalysis), args.Error(1)
}

func (m *MockAnalysisService) RecordInteraction(ctx context.Context, billID, userID uuid.UUID, input service.InteractionInput) (*domain.BillAnalysis, error) {
	args := m.Called(ctx, billID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillAnalysis), args.Error(1)
}

func (m *MockAnalysisService) Delete(ctx context.Context, billID, userID uuid.UUID) error {
	args := m.Called(ctx, billID, userID)
	return args.Error(0)
}
