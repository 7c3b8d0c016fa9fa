package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"billscope/internal/config"
	"billscope/internal/domain"
	"billscope/internal/narrative"
	"billscope/internal/port"
	"billscope/internal/pricing"
	"billscope/internal/service"
	"billscope/mocks"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pngContent() []byte {
	header := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	return append(header, bytes.Repeat([]byte{0x00}, 100)...)
}

func strPtr(s string) *string { return &s }
func fPtr(v float64) *float64 { return &v }

type fixture struct {
	bills     *mocks.MockBillRepo
	images    *mocks.MockImageRepo
	storage   *mocks.MockObjectStorage
	extractor *mocks.MockTextExtractor
	parser    *mocks.MockBillParser
	narrator  *mocks.MockNarrator
	intel     *mocks.MockPricingIntelligenceRepo
	svc       service.AnalysisService

	savedStates   []domain.ProcessingState
	expectedPrior []domain.ProcessingState
	lastSaved     domain.BillAnalysis
}

func newFixture(t *testing.T, narrator port.Narrator) *fixture {
	t.Helper()
	f := &fixture{
		bills:     new(mocks.MockBillRepo),
		images:    new(mocks.MockImageRepo),
		storage:   new(mocks.MockObjectStorage),
		extractor: new(mocks.MockTextExtractor),
		parser:    new(mocks.MockBillParser),
		narrator:  new(mocks.MockNarrator),
		intel:     new(mocks.MockPricingIntelligenceRepo),
	}
	if narrator == nil {
		narrator = f.narrator
	}
	engine := pricing.NewEngine(
		pricing.NewBenchmarkTable([]port.BenchmarkRateEntry{{Code: "99213", Rate: 115, Description: "Office visit"}}, nil),
		pricing.NewRegionTable(nil),
	)
	f.svc = service.NewAnalysisService(service.AnalysisDeps{
		Bills:        f.bills,
		Images:       f.images,
		Storage:      f.storage,
		Extractor:    f.extractor,
		Parser:       f.parser,
		Engine:       engine,
		Narrator:     narrator,
		Intelligence: service.NewIntelligenceRecorder(f.intel, "test-key", nil),
		Bucket:       "bills-bucket",
		Pipeline: config.PipelineConfig{
			MaxFileSizeMB:     1,
			ExtractionTimeout: time.Second,
			ParseTimeout:      time.Second,
			DefaultListLimit:  20,
		},
		Now: func() time.Time { return testNow },
	})
	return f
}

// expectHappyStorage wires upload, image row and bill row creation.
func (f *fixture) expectHappyStorage() {
	f.storage.On("Upload", mock.Anything, mock.AnythingOfType("port.UploadInput")).
		Return(&port.UploadOutput{Location: "s3://bills-bucket/x"}, nil)
	f.images.On("Create", mock.Anything, mock.AnythingOfType("*domain.ImageRef")).Return(nil)
	f.bills.On("Create", mock.Anything, mock.AnythingOfType("*domain.BillAnalysis")).Return(nil)
	f.bills.On("Save", mock.Anything, mock.AnythingOfType("*domain.BillAnalysis"), mock.AnythingOfType("domain.ProcessingState")).
		Run(func(args mock.Arguments) {
			b := args.Get(1).(*domain.BillAnalysis)
			f.savedStates = append(f.savedStates, b.State)
			f.expectedPrior = append(f.expectedPrior, args.Get(2).(domain.ProcessingState))
			f.lastSaved = *b
		}).Return(nil)
}

func extraction() *port.TextExtraction {
	return &port.TextExtraction{
		RawText:    "CITY CLINIC 99213 Office visit $580.00",
		Confidence: 0.96,
		Quality:    domain.QualityExcellent,
		WordCount:  6,
		Hints:      port.ParseHints{Codes: []string{"99213"}},
	}
}

func parsedBill() *port.ParsedBill {
	return &port.ParsedBill{
		Provider: port.ParsedProvider{Name: "City Clinic", Type: domain.ProviderClinic},
		BillDate: "2026-02-20",
		LineItems: []domain.LineItem{{
			Description:  "Office visit",
			Code:         strPtr("99213"),
			Category:     domain.CategoryOfficeVisit,
			Quantity:     1,
			BilledAmount: 580,
		}},
		Totals:    port.ParsedTotals{TotalBilled: fPtr(580)},
		ModelUsed: "test-model",
		Attempts:  1,
	}
}

func analyzeInput(userID uuid.UUID) service.AnalyzeInput {
	return service.AnalyzeInput{
		UserID:       userID,
		ImageBytes:   pngContent(),
		FileName:     "bill.png",
		LocationHint: "Dallas",
	}
}

func TestAnalysisService_Analyze_Success(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	f.expectHappyStorage()
	f.extractor.On("ExtractText", mock.Anything, port.ImageInput{Bytes: pngContent(), ContentType: "image/png"}).
		Return(extraction(), nil)
	f.parser.On("Parse", mock.Anything, extraction().RawText, extraction().Hints).Return(parsedBill(), nil)
	f.narrator.On("Explain", mock.Anything, mock.AnythingOfType("port.PricedBill")).
		Return(&domain.Narrative{Explanation: "ok", NegotiationScript: "script", Source: domain.NarrativeFromModel}, nil)
	f.intel.On("Record", mock.Anything, mock.AnythingOfType("domain.PricingObservation")).Return(nil)

	result, err := f.svc.Analyze(context.Background(), analyzeInput(userID))

	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, result.State)
	assert.Equal(t, 580.0, result.Summary.TotalBilled)
	assert.Equal(t, "City Clinic", result.Summary.ProviderName)
	assert.Equal(t, []domain.ProcessingState{
		domain.StateExtractingText, domain.StateParsing, domain.StateAnalyzing,
		domain.StateGeneratingExplanation, domain.StateComplete,
	}, f.savedStates)
	assert.Equal(t, []domain.ProcessingState{
		domain.StateUploading, domain.StateExtractingText, domain.StateParsing,
		domain.StateAnalyzing, domain.StateGeneratingExplanation,
	}, f.expectedPrior)

	saved := f.lastSaved
	require.Len(t, saved.LineItems, 1)
	assert.Equal(t, domain.AssessmentVeryHigh, saved.LineItems[0].Analysis.Assessment)
	assert.Equal(t, "test-model", saved.ParserModel)
	require.NotNil(t, saved.Text.Text)
	assert.Equal(t, testNow.Add(domain.TextRetention), *saved.Text.RetentionExpiresAt)
	assert.Equal(t, testNow.Add(domain.ImageRetention), saved.Image.ScheduledDeletionAt)
	assert.NotNil(t, saved.Narrative)

	upload := f.storage.Calls[0].Arguments.Get(1).(port.UploadInput)
	assert.Equal(t, "bills-bucket", upload.Bucket)
	assert.True(t, strings.HasPrefix(upload.Key, "bills/"+userID.String()+"/"+result.BillID.String()+"/"))
	assert.True(t, strings.HasSuffix(upload.Key, ".png"))
	assert.Equal(t, "image/png", upload.ContentType)

	f.intel.AssertNumberOfCalls(t, "Record", 1)
	f.storage.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisService_Analyze_ClientTextSkipsOCR(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyStorage()
	f.parser.On("Parse", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("port.ParseHints")).
		Return(parsedBill(), nil)
	f.narrator.On("Explain", mock.Anything, mock.Anything).
		Return(&domain.Narrative{Source: domain.NarrativeFromModel}, nil)
	f.intel.On("Record", mock.Anything, mock.Anything).Return(nil)

	input := analyzeInput(uuid.New())
	input.ExtractedText = "  99213 Office visit $580.00 at City Clinic on 02/20/2026 for an established patient  "
	result, err := f.svc.Analyze(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, result.State)
	assert.True(t, f.lastSaved.Text.ClientProvided)
	assert.Equal(t, 0.95, f.lastSaved.Text.Confidence)
	f.extractor.AssertNotCalled(t, "ExtractText", mock.Anything, mock.Anything)
}

func TestAnalysisService_Analyze_ExtractionTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyStorage()
	f.extractor.On("ExtractText", mock.Anything, mock.Anything).Return(nil, domain.ErrExtractionTimeout)

	input := analyzeInput(uuid.New())
	input.TraceID = "trace-123"
	result, err := f.svc.Analyze(context.Background(), input)

	require.Error(t, err)
	var stageErr *domain.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, domain.StageTextExtraction, stageErr.Stage)
	assert.Equal(t, "trace-123", stageErr.TraceID)
	assert.ErrorIs(t, err, domain.ErrExtractionTimeout)

	require.NotNil(t, result)
	assert.Equal(t, domain.StateError, result.State)
	assert.Equal(t, domain.StateError, f.lastSaved.State)
	require.NotNil(t, f.lastSaved.Processing.Error)
	assert.Equal(t, "analysis failed at text_extraction", f.lastSaved.Processing.Error.Message)
	assert.Equal(t, domain.StateExtractingText, f.expectedPrior[len(f.expectedPrior)-1])

	f.parser.AssertNotCalled(t, "Parse", mock.Anything, mock.Anything, mock.Anything)
	f.storage.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisService_Analyze_NoTextDetected(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyStorage()
	f.extractor.On("ExtractText", mock.Anything, mock.Anything).Return(nil, domain.ErrNoTextDetected)

	result, err := f.svc.Analyze(context.Background(), analyzeInput(uuid.New()))

	assert.ErrorIs(t, err, domain.ErrNoTextDetected)
	assert.Equal(t, domain.StateError, result.State)
}

func TestAnalysisService_Analyze_ParseFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyStorage()
	f.extractor.On("ExtractText", mock.Anything, mock.Anything).Return(extraction(), nil)
	f.parser.On("Parse", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrParseValidationFailed)

	result, err := f.svc.Analyze(context.Background(), analyzeInput(uuid.New()))

	var stageErr *domain.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, domain.StageParsing, stageErr.Stage)
	assert.Equal(t, domain.StateError, result.State)
	f.narrator.AssertNotCalled(t, "Explain", mock.Anything, mock.Anything)
	f.intel.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestAnalysisService_Analyze_NarrativeFailsUsesTemplate(t *testing.T) {
	primary := new(mocks.MockNarrator)
	primary.On("Explain", mock.Anything, mock.Anything).Return(nil, errors.New("model unavailable"))
	f := newFixture(t, narrative.NewFallbackNarrator(primary, narrative.NewTemplateNarrator(), nil))
	f.expectHappyStorage()
	f.extractor.On("ExtractText", mock.Anything, mock.Anything).Return(extraction(), nil)
	f.parser.On("Parse", mock.Anything, mock.Anything, mock.Anything).Return(parsedBill(), nil)
	f.intel.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := f.svc.Analyze(context.Background(), analyzeInput(uuid.New()))

	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, result.State)
	require.NotNil(t, f.lastSaved.Narrative)
	assert.Equal(t, domain.NarrativeFromTemplate, f.lastSaved.Narrative.Source)
	assert.Contains(t, f.lastSaved.Narrative.NegotiationScript, "$580.00")
	assert.Contains(t, f.lastSaved.Narrative.NegotiationScript, "20-40%")
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, domain.WarningNarrative, result.Warnings[len(result.Warnings)-1].Kind)
}

func TestAnalysisService_Analyze_NarratorErrorStillCompletes(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyStorage()
	f.extractor.On("ExtractText", mock.Anything, mock.Anything).Return(extraction(), nil)
	f.parser.On("Parse", mock.Anything, mock.Anything, mock.Anything).Return(parsedBill(), nil)
	f.narrator.On("Explain", mock.Anything, mock.Anything).Return(nil, domain.ErrNarrativeFailed)
	f.intel.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := f.svc.Analyze(context.Background(), analyzeInput(uuid.New()))

	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, result.State)
	assert.Nil(t, f.lastSaved.Narrative)
}

func TestAnalysisService_Analyze_UploadFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("s3 down"))

	result, err := f.svc.Analyze(context.Background(), analyzeInput(uuid.New()))

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	f.images.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.bills.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAnalysisService_Analyze_ImageRowFailureRemovesObject(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.images.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.storage.On("Delete", mock.Anything, "bills-bucket", mock.AnythingOfType("string")).Return(nil)

	result, err := f.svc.Analyze(context.Background(), analyzeInput(uuid.New()))

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	f.storage.AssertNumberOfCalls(t, "Delete", 1)
	f.bills.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAnalysisService_Analyze_BillRowFailureDiscardsImage(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.images.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.bills.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.storage.On("Delete", mock.Anything, "bills-bucket", mock.AnythingOfType("string")).Return(nil)
	f.images.On("MarkDeleted", mock.Anything, mock.AnythingOfType("uuid.UUID"), testNow).Return(true, nil)

	_, err := f.svc.Analyze(context.Background(), analyzeInput(uuid.New()))

	assert.Error(t, err)
	f.storage.AssertNumberOfCalls(t, "Delete", 1)
	f.images.AssertNumberOfCalls(t, "MarkDeleted", 1)
}

func TestAnalysisService_Analyze_RejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name  string
		input service.AnalyzeInput
		want  error
	}{
		{"empty", service.AnalyzeInput{}, domain.ErrEmptyFile},
		{"too large", service.AnalyzeInput{ImageBytes: append(pngContent(), make([]byte, 2<<20)...)}, domain.ErrFileTooLarge},
		{"not an image", service.AnalyzeInput{ImageBytes: []byte("plain text, not a bill image")}, domain.ErrUnsupportedFileType},
		{"bad extension", service.AnalyzeInput{ImageBytes: pngContent(), FileName: "bill.exe"}, domain.ErrUnsupportedFileType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			_, err := f.svc.Analyze(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.want)
			f.storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
		})
	}
}

func completeBill(userID uuid.UUID) *domain.BillAnalysis {
	return &domain.BillAnalysis{
		ID:      uuid.New(),
		UserID:  userID,
		State:   domain.StateComplete,
		Summary: domain.Summary{TotalBilled: 400},
	}
}

func TestAnalysisService_Get_Forbidden(t *testing.T) {
	f := newFixture(t, nil)
	bill := completeBill(uuid.New())
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)

	_, err := f.svc.Get(context.Background(), bill.ID, uuid.New())

	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAnalysisService_Get_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	f.bills.On("GetByID", mock.Anything, id).Return(nil, domain.ErrNotFound)

	_, err := f.svc.Get(context.Background(), id, uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalysisService_Get_RedactsExpiredText(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	bill := completeBill(userID)
	expired := testNow.Add(-time.Minute)
	bill.Text = domain.ExtractedText{Text: strPtr("raw bill text"), RetentionExpiresAt: &expired}
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)

	got, err := f.svc.Get(context.Background(), bill.ID, userID)

	require.NoError(t, err)
	assert.Nil(t, got.Text.Text)
}

func TestAnalysisService_List_TotalSavings(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	won := completeBill(userID)
	won.Feedback = &domain.Feedback{Attempted: true, Successful: true, FinalAmount: fPtr(300)}
	lost := completeBill(userID)
	lost.Feedback = &domain.Feedback{Attempted: true, Successful: false, FinalAmount: fPtr(100)}
	failed := &domain.BillAnalysis{ID: uuid.New(), UserID: userID, State: domain.StateError}
	f.bills.On("ListByUser", mock.Anything, userID, 20).
		Return([]domain.BillAnalysis{*won, *lost, *failed}, nil)

	res, err := f.svc.List(context.Background(), userID, 0)

	require.NoError(t, err)
	assert.Len(t, res.Analyses, 3)
	assert.Equal(t, 100.0, res.TotalSavings)
}

func TestAnalysisService_List_CapsLimit(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	f.bills.On("ListByUser", mock.Anything, userID, 100).Return(nil, nil)

	res, err := f.svc.List(context.Background(), userID, 5000)

	require.NoError(t, err)
	assert.Empty(t, res.Analyses)
	assert.NotNil(t, res.Analyses)
}

func TestAnalysisService_SubmitFeedback_Success(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	bill := completeBill(userID)
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)
	f.bills.On("UpdateFeedback", mock.Anything, bill.ID, mock.AnythingOfType("*domain.Feedback")).Return(nil)

	got, err := f.svc.SubmitFeedback(context.Background(), bill.ID, userID, service.FeedbackInput{
		Attempted: true, Successful: true, FinalAmount: fPtr(300), Notes: " paid same day ",
	})

	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, 25.0, *got.Feedback.DiscountAchieved)
	assert.Equal(t, "paid same day", got.Feedback.Notes)
	assert.Equal(t, testNow, got.Feedback.SubmittedAt)
}

func TestAnalysisService_SubmitFeedback_Rejections(t *testing.T) {
	userID := uuid.New()
	tests := []struct {
		name  string
		bill  func() *domain.BillAnalysis
		input service.FeedbackInput
		want  error
	}{
		{
			name:  "not complete",
			bill:  func() *domain.BillAnalysis { b := completeBill(userID); b.State = domain.StateParsing; return b },
			input: service.FeedbackInput{Attempted: true},
			want:  domain.ErrAnalysisNotComplete,
		},
		{
			name: "already submitted",
			bill: func() *domain.BillAnalysis {
				b := completeBill(userID)
				b.Feedback = &domain.Feedback{Attempted: true}
				return b
			},
			input: service.FeedbackInput{Attempted: true},
			want:  domain.ErrInvalidFeedback,
		},
		{
			name:  "success without attempt",
			bill:  func() *domain.BillAnalysis { return completeBill(userID) },
			input: service.FeedbackInput{Successful: true},
			want:  domain.ErrInvalidFeedback,
		},
		{
			name:  "negative amount",
			bill:  func() *domain.BillAnalysis { return completeBill(userID) },
			input: service.FeedbackInput{Attempted: true, FinalAmount: fPtr(-1)},
			want:  domain.ErrInvalidFeedback,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			bill := tt.bill()
			f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)

			_, err := f.svc.SubmitFeedback(context.Background(), bill.ID, userID, tt.input)

			assert.ErrorIs(t, err, tt.want)
			f.bills.AssertNotCalled(t, "UpdateFeedback", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAnalysisService_RecordInteraction(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	bill := completeBill(userID)
	bill.Interaction.ScriptCopied = true
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)
	f.bills.On("UpdateInteraction", mock.Anything, bill.ID, mock.AnythingOfType("domain.Interaction")).Return(nil)

	got, err := f.svc.RecordInteraction(context.Background(), bill.ID, userID, service.InteractionInput{Viewed: true})

	require.NoError(t, err)
	assert.True(t, got.Interaction.Viewed)
	assert.Equal(t, testNow, *got.Interaction.ViewedAt)
	assert.True(t, got.Interaction.ScriptCopied)
	assert.False(t, got.Interaction.ProviderCalled)
}

func TestAnalysisService_RecordInteraction_NoChangeSkipsWrite(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	bill := completeBill(userID)
	bill.Interaction.ScriptCopied = true
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)

	_, err := f.svc.RecordInteraction(context.Background(), bill.ID, userID, service.InteractionInput{ScriptCopied: true})

	require.NoError(t, err)
	f.bills.AssertNotCalled(t, "UpdateInteraction", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisService_Delete_RemovesImageThenRecord(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	bill := completeBill(userID)
	bill.Image = domain.NewImageRef(bill.ID, "bills-bucket", "bills/key.png", "image/png", 10, testNow)
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)
	f.storage.On("Delete", mock.Anything, "bills-bucket", "bills/key.png").Return(nil)
	f.images.On("MarkDeleted", mock.Anything, bill.Image.ID, testNow).Return(true, nil)
	f.bills.On("Delete", mock.Anything, bill.ID).Return(nil)

	err := f.svc.Delete(context.Background(), bill.ID, userID)

	require.NoError(t, err)
	f.storage.AssertExpectations(t)
	f.images.AssertExpectations(t)
	f.bills.AssertExpectations(t)
}

func TestAnalysisService_Delete_ImageAlreadySwept(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	bill := completeBill(userID)
	bill.Image = domain.NewImageRef(bill.ID, "bills-bucket", "bills/key.png", "image/png", 10, testNow)
	bill.Image.Deleted = true
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)
	f.bills.On("Delete", mock.Anything, bill.ID).Return(nil)

	err := f.svc.Delete(context.Background(), bill.ID, userID)

	require.NoError(t, err)
	f.storage.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisService_Delete_StorageFailureKeepsRecord(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	bill := completeBill(userID)
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)
	img := domain.NewImageRef(bill.ID, "bills-bucket", "bills/key.png", "image/png", 10, testNow)
	f.images.On("GetByBillID", mock.Anything, bill.ID).Return(img, nil)
	f.storage.On("Delete", mock.Anything, "bills-bucket", "bills/key.png").Return(errors.New("s3 down"))

	err := f.svc.Delete(context.Background(), bill.ID, userID)

	assert.Error(t, err)
	f.bills.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestAnalysisService_Delete_RejectsRunningPipeline(t *testing.T) {
	states := []domain.ProcessingState{
		domain.StateUploading,
		domain.StateExtractingText,
		domain.StateParsing,
		domain.StateAnalyzing,
		domain.StateGeneratingExplanation,
	}
	for _, state := range states {
		t.Run(string(state), func(t *testing.T) {
			f := newFixture(t, nil)
			userID := uuid.New()
			bill := completeBill(userID)
			bill.State = state
			f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)

			err := f.svc.Delete(context.Background(), bill.ID, userID)

			assert.ErrorIs(t, err, domain.ErrAnalysisInProgress)
			f.storage.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
			f.bills.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		})
	}
}

func TestAnalysisService_Delete_FailedAnalysisAllowed(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()
	bill := completeBill(userID)
	bill.State = domain.StateError
	bill.Image = domain.NewImageRef(bill.ID, "bills-bucket", "bills/key.png", "image/png", 10, testNow)
	bill.Image.Deleted = true
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)
	f.bills.On("Delete", mock.Anything, bill.ID).Return(nil)

	err := f.svc.Delete(context.Background(), bill.ID, userID)

	require.NoError(t, err)
	f.bills.AssertExpectations(t)
}

func TestAnalysisService_Delete_Forbidden(t *testing.T) {
	f := newFixture(t, nil)
	bill := completeBill(uuid.New())
	f.bills.On("GetByID", mock.Anything, bill.ID).Return(bill, nil)

	err := f.svc.Delete(context.Background(), bill.ID, uuid.New())

	assert.ErrorIs(t, err, domain.ErrForbidden)
}
