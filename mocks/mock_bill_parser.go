package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"billscope/internal/port"
)

// MockBillParser is a mock implementation of port.BillParser.
type MockBillParser struct {
	mock.Mock
}

func (m *MockBillParser) Parse(ctx context.Context, rawText string, hints port.ParseHints) (*port.ParsedBill, error) {
	args := m.Called(ctx, rawText, hints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.ParsedBill), args.Error(1)
}
