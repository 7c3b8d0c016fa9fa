package parser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"billscope/internal/domain"
	"billscope/internal/parser"
	"billscope/internal/port"
	"billscope/mocks"
)

const validResponse = `{
  "provider": {"name": "Riverside Medical Center", "type": "hospital"},
  "dates": {"billDate": "2026-03-14", "serviceDate": "2026-03-02"},
  "lineItems": [
    {"description": "Office visit, established patient", "cptCode": "99213", "quantity": 1, "billedAmount": 185, "category": "office_visit"},
    {"description": "Complete Blood Count (CBC)", "cptCode": "85025", "quantity": 2, "billedAmount": 31.25, "category": "lab"}
  ],
  "totals": {"totalBilled": 247.50, "insurancePaid": 100, "patientResponsibility": 147.50}
}`

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newParser(mc *mocks.MockCompleter, rec *sleepRecorder) *parser.Parser {
	return parser.New(mc, parser.WithSleep(rec.sleep))
}

func reply(text string) *port.CompletionResponse {
	return &port.CompletionResponse{Text: text, Model: "test-model"}
}

func TestParser_Parse_Success(t *testing.T) {
	mc := new(mocks.MockCompleter)
	rec := &sleepRecorder{}
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(req port.CompletionRequest) bool {
		return req.JSONOutput && req.System != ""
	})).Return(reply(validResponse), nil).Once()

	bill, err := newParser(mc, rec).Parse(context.Background(), "bill text", port.ParseHints{})

	require.NoError(t, err)
	assert.Equal(t, "Riverside Medical Center", bill.Provider.Name)
	assert.Equal(t, domain.ProviderHospital, bill.Provider.Type)
	assert.Equal(t, "2026-03-14", bill.BillDate)
	assert.Equal(t, "2026-03-02", bill.ServiceDate)
	require.Len(t, bill.LineItems, 2)
	assert.Equal(t, "99213", *bill.LineItems[0].Code)
	assert.Equal(t, domain.CategoryOfficeVisit, bill.LineItems[0].Category)
	assert.Equal(t, 2, bill.LineItems[1].Quantity)
	assert.Equal(t, 31.25, bill.LineItems[1].BilledAmount)
	assert.Equal(t, 147.50, *bill.Totals.PatientResponsibility)
	assert.Empty(t, bill.Warnings)
	assert.Equal(t, "test-model", bill.ModelUsed)
	assert.Equal(t, 1, bill.Attempts)
	assert.Empty(t, rec.delays)
	mc.AssertExpectations(t)
}

func TestParser_Parse_FencedResponse(t *testing.T) {
	mc := new(mocks.MockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).
		Return(reply("Here is the data:\n```json\n"+validResponse+"\n```"), nil).Once()

	bill, err := newParser(mc, &sleepRecorder{}).Parse(context.Background(), "bill text", port.ParseHints{})

	require.NoError(t, err)
	assert.Len(t, bill.LineItems, 2)
}

func TestParser_Parse_MalformedTwiceThenValid(t *testing.T) {
	mc := new(mocks.MockCompleter)
	rec := &sleepRecorder{}
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply("I could not read this bill."), nil).Once()
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply(`{"lineItems": "none"}`), nil).Once()
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply(validResponse), nil).Once()

	bill, err := newParser(mc, rec).Parse(context.Background(), "bill text", port.ParseHints{})

	require.NoError(t, err)
	assert.Equal(t, 3, bill.Attempts)
	assert.Len(t, bill.LineItems, 2)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
	mc.AssertNumberOfCalls(t, "Complete", 3)
}

func TestParser_Parse_MalformedExhaustsRetries(t *testing.T) {
	mc := new(mocks.MockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply("{not json"), nil)

	_, err := newParser(mc, &sleepRecorder{}).Parse(context.Background(), "bill text", port.ParseHints{})

	assert.ErrorIs(t, err, domain.ErrParseValidationFailed)
	mc.AssertNumberOfCalls(t, "Complete", 3)
}

func TestParser_Parse_CompleterErrorNotRetried(t *testing.T) {
	mc := new(mocks.MockCompleter)
	providerErr := errors.New("upstream unavailable")
	mc.On("Complete", mock.Anything, mock.Anything).Return(nil, providerErr)

	_, err := newParser(mc, &sleepRecorder{}).Parse(context.Background(), "bill text", port.ParseHints{})

	assert.ErrorIs(t, err, providerErr)
	mc.AssertNumberOfCalls(t, "Complete", 1)
}

func TestParser_Parse_SleepCancelled(t *testing.T) {
	mc := new(mocks.MockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply("nope"), nil)
	p := parser.New(mc, parser.WithSleep(func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}))

	_, err := p.Parse(context.Background(), "bill text", port.ParseHints{})

	assert.ErrorIs(t, err, context.Canceled)
	mc.AssertNumberOfCalls(t, "Complete", 1)
}

func TestParser_Parse_ZeroRetries(t *testing.T) {
	mc := new(mocks.MockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply("nope"), nil)

	_, err := parser.New(mc, parser.WithRetries(0)).Parse(context.Background(), "bill text", port.ParseHints{})

	assert.ErrorIs(t, err, domain.ErrParseValidationFailed)
	mc.AssertNumberOfCalls(t, "Complete", 1)
}

func TestParser_Parse_FlagsIdentifiers(t *testing.T) {
	mc := new(mocks.MockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply(`{
	  "lineItems": [
	    {"description": "Lab panel for Patient Name: Jane Doe", "billedAmount": 40, "category": "lab"},
	    {"description": "X-ray", "billedAmount": 120, "category": "imaging"}
	  ]
	}`), nil)

	bill, err := newParser(mc, &sleepRecorder{}).Parse(context.Background(), "bill text", port.ParseHints{})

	require.NoError(t, err)
	require.Len(t, bill.LineItems, 2)
	assert.True(t, bill.LineItems[0].Flagged)
	assert.False(t, bill.LineItems[1].Flagged)
	require.Len(t, bill.Warnings, 1)
	assert.Equal(t, domain.WarningIdentifierLeak, bill.Warnings[0].Kind)
	assert.Equal(t, 0, *bill.Warnings[0].ItemIndex)
	assert.Equal(t, domain.ProviderOther, bill.Provider.Type)
}

func TestParser_Parse_TotalMismatch(t *testing.T) {
	tests := []struct {
		name     string
		total    string
		wantWarn bool
	}{
		{"within tolerance", "100.80", false},
		{"beyond tolerance", "150.00", true},
		{"no declared total", "null", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := new(mocks.MockCompleter)
			mc.On("Complete", mock.Anything, mock.Anything).Return(reply(`{
			  "lineItems": [{"description": "Office visit", "billedAmount": 50, "quantity": 2}],
			  "totals": {"totalBilled": `+tt.total+`}
			}`), nil)

			bill, err := newParser(mc, &sleepRecorder{}).Parse(context.Background(), "bill text", port.ParseHints{})

			require.NoError(t, err)
			if tt.wantWarn {
				require.Len(t, bill.Warnings, 1)
				assert.Equal(t, domain.WarningTotalMismatch, bill.Warnings[0].Kind)
			} else {
				assert.Empty(t, bill.Warnings)
			}
		})
	}
}

func TestParser_Parse_NormalizesItems(t *testing.T) {
	mc := new(mocks.MockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply(`{
	  "provider": {"name": "  City Clinic ", "type": "Clinic"},
	  "lineItems": [
	    {"description": "Office visit", "cptCode": 99213, "quantity": null, "billedAmount": 120.456, "category": "Office Visit"},
	    {"description": "Chest x-ray", "cptCode": "7104", "billedAmount": 300, "category": "radiology"},
	    {"description": null, "billedAmount": 10},
	    {"description": "Refund", "billedAmount": -25}
	  ]
	}`), nil)

	bill, err := newParser(mc, &sleepRecorder{}).Parse(context.Background(), "bill text", port.ParseHints{})

	require.NoError(t, err)
	assert.Equal(t, "City Clinic", bill.Provider.Name)
	assert.Equal(t, domain.ProviderClinic, bill.Provider.Type)
	require.Len(t, bill.LineItems, 2)

	visit := bill.LineItems[0]
	assert.Equal(t, "99213", *visit.Code)
	assert.Equal(t, 1, visit.Quantity)
	assert.Equal(t, 120.46, visit.BilledAmount)
	assert.Equal(t, domain.CategoryOfficeVisit, visit.Category)

	xray := bill.LineItems[1]
	assert.Nil(t, xray.Code)
	assert.Equal(t, domain.CategoryImaging, xray.Category)

	require.Len(t, bill.Warnings, 2)
	for _, w := range bill.Warnings {
		assert.Equal(t, domain.WarningItemDropped, w.Kind)
	}
	assert.Equal(t, 2, *bill.Warnings[0].ItemIndex)
	assert.Equal(t, 3, *bill.Warnings[1].ItemIndex)
}

func TestParser_Parse_AllItemsInvalidIsRetried(t *testing.T) {
	mc := new(mocks.MockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).
		Return(reply(`{"lineItems": [{"description": "", "billedAmount": 5}]}`), nil).Once()
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply(validResponse), nil).Once()

	bill, err := newParser(mc, &sleepRecorder{}).Parse(context.Background(), "bill text", port.ParseHints{})

	require.NoError(t, err)
	assert.Equal(t, 2, bill.Attempts)
}

func TestParser_Parse_EmptyBill(t *testing.T) {
	mc := new(mocks.MockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return(reply(`{"lineItems": []}`), nil)

	bill, err := newParser(mc, &sleepRecorder{}).Parse(context.Background(), "bill text", port.ParseHints{})

	require.NoError(t, err)
	assert.Empty(t, bill.LineItems)
}
