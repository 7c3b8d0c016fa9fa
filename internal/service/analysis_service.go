package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"billscope/internal/config"
	"billscope/internal/domain"
	"billscope/internal/metrics"
	"billscope/internal/ocr"
	"billscope/internal/port"
	"billscope/internal/pricing"
)

const (
	maxListLimit       = 100
	persistenceTimeout = 10 * time.Second
)

// AnalyzeInput is the DTO for a bill analysis request.
type AnalyzeInput struct {
	UserID       uuid.UUID
	ImageBytes   []byte
	ContentType  string
	FileName     string
	LocationHint string
	// ExtractedText, when set, is used instead of running OCR on the image.
	ExtractedText string
	// TraceID correlates a failure with operator logs. Generated when empty.
	TraceID string
}

// AnalyzeResult is the outcome of a pipeline run. A failed run still returns
// a result in StateError alongside a *domain.StageError.
type AnalyzeResult struct {
	BillID     uuid.UUID              `json:"bill_id"`
	State      domain.ProcessingState `json:"state"`
	Summary    domain.Summary         `json:"summary"`
	DurationMs int64                  `json:"duration_ms"`
	Warnings   []domain.Warning       `json:"warnings"`
}

// FeedbackInput is the DTO for a negotiation outcome report.
type FeedbackInput struct {
	Attempted   bool     `json:"attempted"`
	Successful  bool     `json:"successful"`
	FinalAmount *float64 `json:"final_amount"`
	Notes       string   `json:"notes" binding:"max=2000"`
}

// InteractionInput reports what the owner did with an analysis. Flags only
// ever turn on.
type InteractionInput struct {
	Viewed         bool `json:"viewed"`
	ScriptCopied   bool `json:"script_copied"`
	ProviderCalled bool `json:"provider_called"`
}

// ListResult is a page of analyses plus savings realized across them.
type ListResult struct {
	Analyses     []domain.BillAnalysis `json:"analyses"`
	TotalSavings float64               `json:"total_savings"`
}

// AnalysisService defines the bill analysis contract.
type AnalysisService interface {
	Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeResult, error)
	Get(ctx context.Context, billID, userID uuid.UUID) (*domain.BillAnalysis, error)
	List(ctx context.Context, userID uuid.UUID, limit int) (*ListResult, error)
	SubmitFeedback(ctx context.Context, billID, userID uuid.UUID, input FeedbackInput) (*domain.BillAnalysis, error)
	RecordInteraction(ctx context.Context, billID, userID uuid.UUID, input InteractionInput) (*domain.BillAnalysis, error)
	Delete(ctx context.Context, billID, userID uuid.UUID) error
}

// AnalysisDeps are the collaborators of the analysis service. Intelligence
// may be nil to disable the pricing aggregate.
type AnalysisDeps struct {
	Bills        port.BillRepository
	Images       port.ImageRepository
	Storage      port.ObjectStorage
	Extractor    port.TextExtractor
	Parser       port.BillParser
	Engine       *pricing.Engine
	Narrator     port.Narrator
	Intelligence *IntelligenceRecorder
	Bucket       string
	Pipeline     config.PipelineConfig
	Logger       *zap.Logger
	Now          func() time.Time
}

type analysisService struct {
	bills        port.BillRepository
	images       port.ImageRepository
	storage      port.ObjectStorage
	extractor    port.TextExtractor
	parser       port.BillParser
	engine       *pricing.Engine
	narrator     port.Narrator
	intelligence *IntelligenceRecorder
	bucket       string
	cfg          config.PipelineConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewAnalysisService creates a new AnalysisService implementation.
func NewAnalysisService(deps AnalysisDeps) AnalysisService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &analysisService{
		bills:        deps.Bills,
		images:       deps.Images,
		storage:      deps.Storage,
		extractor:    deps.Extractor,
		parser:       deps.Parser,
		engine:       deps.Engine,
		narrator:     deps.Narrator,
		intelligence: deps.Intelligence,
		bucket:       deps.Bucket,
		cfg:          deps.Pipeline,
		logger:       logger,
		now:          now,
	}
}

func (s *analysisService) Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeResult, error) {
	contentType, fileType, err := s.validateFile(input)
	if err != nil {
		return nil, err
	}

	billID := uuid.New()
	traceID := input.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	log := s.logger.With(zap.String("bill_id", billID.String()), zap.String("trace_id", traceID))

	img, err := s.uploadImage(ctx, log, billID, input, contentType, fileType)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	bill := &domain.BillAnalysis{
		ID:           billID,
		UserID:       input.UserID,
		State:        domain.StateUploading,
		LocationHint: strings.TrimSpace(input.LocationHint),
		Image:        img,
		LineItems:    []domain.LineItem{},
		Warnings:     []domain.Warning{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.bills.Create(ctx, bill); err != nil {
		log.Error("service.Analyze: creating bill record", zap.Error(err))
		s.discardImage(ctx, log, img)
		return nil, fmt.Errorf("service.Analyze: creating bill record: %w", err)
	}

	r := &pipelineRun{svc: s, bill: bill, traceID: traceID, log: log}
	return r.run(ctx, input)
}

// validateFile checks size and sniffs the content type from the bytes.
func (s *analysisService) validateFile(input AnalyzeInput) (string, domain.FileType, error) {
	if len(input.ImageBytes) == 0 {
		return "", "", domain.ErrEmptyFile
	}
	if limit := s.cfg.MaxFileSizeMB * 1024 * 1024; limit > 0 && int64(len(input.ImageBytes)) > limit {
		return "", "", domain.ErrFileTooLarge
	}
	if input.FileName != "" {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input.FileName), "."))
		if _, ok := domain.AllowedExtensions[ext]; ext != "" && !ok {
			return "", "", domain.ErrUnsupportedFileType
		}
	}
	detected := http.DetectContentType(input.ImageBytes[:min(len(input.ImageBytes), 512)])
	if i := strings.Index(detected, ";"); i >= 0 {
		detected = detected[:i]
	}
	fileType, ok := domain.AllowedContentTypes[detected]
	if !ok {
		return "", "", domain.ErrUnsupportedFileType
	}
	return detected, fileType, nil
}

// uploadImage stores the image and its retention row as one unit. If the
// row cannot be written the object is removed again.
func (s *analysisService) uploadImage(ctx context.Context, log *zap.Logger, billID uuid.UUID, input AnalyzeInput, contentType string, fileType domain.FileType) (*domain.ImageRef, error) {
	start := time.Now()
	key := fmt.Sprintf("bills/%s/%s/%s.%s", input.UserID, billID, uuid.New(), fileType)

	uploadCtx, cancel := withTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()
	_, err := s.storage.Upload(uploadCtx, port.UploadInput{
		Bucket:      s.bucket,
		Key:         key,
		Body:        bytes.NewReader(input.ImageBytes),
		ContentType: contentType,
		Size:        int64(len(input.ImageBytes)),
	})
	if err != nil {
		log.Error("service.Analyze: storage upload failed", zap.Error(err))
		metrics.StageFailures.WithLabelValues(string(domain.StageUpload)).Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	img := domain.NewImageRef(billID, s.bucket, key, contentType, int64(len(input.ImageBytes)), s.now())
	if err := s.images.Create(ctx, img); err != nil {
		log.Error("service.Analyze: recording image retention failed, removing object", zap.Error(err))
		s.deleteObject(ctx, log, img)
		metrics.StageFailures.WithLabelValues(string(domain.StageUpload)).Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	metrics.ObserveStage(string(domain.StageUpload), time.Since(start))
	return img, nil
}

// discardImage removes an image whose bill record never came to exist.
func (s *analysisService) discardImage(ctx context.Context, log *zap.Logger, img *domain.ImageRef) {
	if !s.deleteObject(ctx, log, img) {
		return
	}
	if _, err := s.images.MarkDeleted(context.WithoutCancel(ctx), img.ID, s.now().UTC()); err != nil {
		log.Warn("service.Analyze: marking discarded image deleted", zap.Error(err))
	}
}

func (s *analysisService) deleteObject(ctx context.Context, log *zap.Logger, img *domain.ImageRef) bool {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistenceTimeout)
	defer cancel()
	if err := s.storage.Delete(delCtx, img.Bucket, img.StorageKey); err != nil {
		log.Error("service.Analyze: compensating storage delete failed; sweeper will retry at deadline",
			zap.String("key", img.StorageKey), zap.Error(err))
		return false
	}
	return true
}

// pipelineRun carries one bill through extraction, parsing, pricing and
// narrative. It owns the bill for the duration of the run.
type pipelineRun struct {
	svc     *analysisService
	bill    *domain.BillAnalysis
	traceID string
	log     *zap.Logger
}

func (r *pipelineRun) run(ctx context.Context, input AnalyzeInput) (*AnalyzeResult, error) {
	s := r.svc
	started := s.now().UTC()
	r.bill.Processing.StartedAt = &started

	if err := r.advance(ctx, domain.StateExtractingText); err != nil {
		return r.fail(ctx, domain.StagePersistence, err)
	}

	extraction, err := r.extract(ctx, input)
	if err != nil {
		return r.fail(ctx, domain.StageTextExtraction, err)
	}
	r.storeText(extraction, input.ExtractedText != "")
	if err := r.advance(ctx, domain.StateParsing); err != nil {
		return r.fail(ctx, domain.StagePersistence, err)
	}

	parsed, err := r.parse(ctx, extraction)
	if err != nil {
		return r.fail(ctx, domain.StageParsing, err)
	}
	r.bill.ParserModel = parsed.ModelUsed
	r.bill.Warnings = append(r.bill.Warnings, parsed.Warnings...)
	if err := r.advance(ctx, domain.StateAnalyzing); err != nil {
		return r.fail(ctx, domain.StagePersistence, err)
	}

	r.price(parsed)
	if err := r.advance(ctx, domain.StateGeneratingExplanation); err != nil {
		return r.fail(ctx, domain.StagePersistence, err)
	}

	r.explain(ctx)
	completed := s.now().UTC()
	r.bill.Processing.CompletedAt = &completed
	r.bill.Processing.DurationMs = completed.Sub(started).Milliseconds()
	if err := r.advance(ctx, domain.StateComplete); err != nil {
		return r.fail(ctx, domain.StagePersistence, err)
	}

	metrics.PipelineResults.WithLabelValues(string(domain.StateComplete)).Inc()
	r.log.Info("service.Analyze: analysis complete",
		zap.Int("line_items", len(r.bill.LineItems)),
		zap.Int64("duration_ms", r.bill.Processing.DurationMs),
		zap.String("confidence", string(r.bill.Summary.OverallConfidence)))

	if s.intelligence != nil {
		s.intelligence.Record(context.WithoutCancel(ctx), r.bill)
	}
	return r.result(), nil
}

// advance moves the bill to next and persists it, guarded on the prior state.
func (r *pipelineRun) advance(ctx context.Context, next domain.ProcessingState) error {
	prev := r.bill.State
	if err := r.bill.Transition(next); err != nil {
		return err
	}
	r.bill.UpdatedAt = r.svc.now().UTC()
	if err := r.svc.bills.Save(ctx, r.bill, prev); err != nil {
		r.bill.State = prev
		return fmt.Errorf("saving %s: %w", next, err)
	}
	return nil
}

func (r *pipelineRun) extract(ctx context.Context, input AnalyzeInput) (*port.TextExtraction, error) {
	if text := strings.TrimSpace(input.ExtractedText); text != "" {
		return ocr.FromClientText(r.svc.limitText(text)), nil
	}

	start := time.Now()
	extractCtx, cancel := withTimeout(ctx, r.svc.cfg.ExtractionTimeout)
	defer cancel()
	out, err := r.svc.extractor.ExtractText(extractCtx, port.ImageInput{
		Bytes:       input.ImageBytes,
		ContentType: r.bill.Image.ContentType,
	})
	metrics.ObserveStage(string(domain.StageTextExtraction), time.Since(start))
	if err != nil {
		if errors.Is(extractCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrExtractionTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrExtractionTimeout, err)
		}
		return nil, err
	}
	out.RawText = r.svc.limitText(out.RawText)
	return out, nil
}

func (r *pipelineRun) storeText(ext *port.TextExtraction, clientProvided bool) {
	at := r.svc.now().UTC()
	expires := at.Add(domain.TextRetention)
	text := ext.RawText
	r.bill.Text = domain.ExtractedText{
		Text:               &text,
		Confidence:         ext.Confidence,
		Quality:            ext.Quality,
		WordCount:          ext.WordCount,
		ClientProvided:     clientProvided,
		ExtractedAt:        &at,
		RetentionExpiresAt: &expires,
	}
	for _, issue := range ext.Issues {
		r.bill.AddWarning(domain.WarningOCRQuality, issue, nil)
	}
}

func (r *pipelineRun) parse(ctx context.Context, ext *port.TextExtraction) (*port.ParsedBill, error) {
	start := time.Now()
	parseCtx, cancel := withTimeout(ctx, r.svc.cfg.ParseTimeout)
	defer cancel()
	parsed, err := r.svc.parser.Parse(parseCtx, ext.RawText, ext.Hints)
	metrics.ObserveStage(string(domain.StageParsing), time.Since(start))
	if err != nil {
		return nil, err
	}
	if parsed.Attempts > 1 {
		r.log.Info("service.Analyze: structured extraction needed retries", zap.Int("attempts", parsed.Attempts))
	}
	return parsed, nil
}

func (r *pipelineRun) price(parsed *port.ParsedBill) {
	start := time.Now()
	res := r.svc.engine.Analyze(pricing.Input{
		LineItems:    parsed.LineItems,
		LocationHint: r.bill.LocationHint,
		Totals: pricing.Totals{
			InsurancePaid:         parsed.Totals.InsurancePaid,
			PatientResponsibility: parsed.Totals.PatientResponsibility,
		},
	})
	res.Summary.ProviderName = parsed.Provider.Name
	res.Summary.ProviderType = parsed.Provider.Type
	res.Summary.BillDate = parsed.BillDate
	res.Summary.ServiceDate = parsed.ServiceDate

	r.bill.LineItems = res.LineItems
	r.bill.Summary = res.Summary
	r.bill.Region = res.Region
	metrics.ObserveStage(string(domain.StagePricing), time.Since(start))
}

// explain never fails the bill. Without any narrative the analysis still
// completes with a warning.
func (r *pipelineRun) explain(ctx context.Context) {
	start := time.Now()
	n, err := r.svc.narrator.Explain(ctx, port.PricedBill{
		LineItems: r.bill.LineItems,
		Summary:   r.bill.Summary,
		Region:    r.bill.Region,
	})
	metrics.ObserveStage(string(domain.StageNarrative), time.Since(start))
	if err != nil || n == nil {
		r.log.Error("service.Analyze: narrative unavailable", zap.Error(err))
		metrics.NarrativeFallbacks.Inc()
		r.bill.AddWarning(domain.WarningNarrative, domain.ErrNarrativeFailed.Error(), nil)
		return
	}
	if n.Source == domain.NarrativeFromTemplate {
		metrics.NarrativeFallbacks.Inc()
		r.bill.AddWarning(domain.WarningNarrative, "explanation generated from a generic template", nil)
	}
	r.bill.Narrative = n
}

// fail moves the bill into the error state and returns a well-formed result.
func (r *pipelineRun) fail(ctx context.Context, stage domain.PipelineStage, cause error) (*AnalyzeResult, error) {
	stageErr := domain.NewStageError(stage, r.traceID, cause)
	r.log.Error("service.Analyze: pipeline failed",
		zap.String("stage", string(stage)),
		zap.String("state", string(r.bill.State)),
		zap.Error(cause))
	metrics.StageFailures.WithLabelValues(string(stage)).Inc()
	metrics.PipelineResults.WithLabelValues(string(domain.StateError)).Inc()

	prev := r.bill.State
	if err := r.bill.Fail(stage, r.traceID, stageErr.UserMessage(), r.svc.now()); err != nil {
		r.log.Error("service.Analyze: cannot enter error state", zap.Error(err))
		return r.result(), stageErr
	}
	r.bill.UpdatedAt = r.svc.now().UTC()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistenceTimeout)
	defer cancel()
	if err := r.svc.bills.Save(saveCtx, r.bill, prev); err != nil {
		r.log.Error("service.Analyze: persisting error state", zap.Error(err))
	}
	return r.result(), stageErr
}

func (r *pipelineRun) result() *AnalyzeResult {
	return &AnalyzeResult{
		BillID:     r.bill.ID,
		State:      r.bill.State,
		Summary:    r.bill.Summary,
		DurationMs: r.bill.Processing.DurationMs,
		Warnings:   r.bill.Warnings,
	}
}

// limitText caps raw text at the configured size on a rune boundary.
func (s *analysisService) limitText(text string) string {
	limit := s.cfg.MaxExtractedTextKB * 1024
	if limit <= 0 || len(text) <= limit {
		return text
	}
	text = text[:limit]
	for len(text) > 0 && !utf8.ValidString(text) {
		text = text[:len(text)-1]
	}
	return text
}

func (s *analysisService) Get(ctx context.Context, billID, userID uuid.UUID) (*domain.BillAnalysis, error) {
	bill, err := s.owned(ctx, billID, userID)
	if err != nil {
		return nil, err
	}
	bill.RedactExpiredText(s.now())
	return bill, nil
}

func (s *analysisService) List(ctx context.Context, userID uuid.UUID, limit int) (*ListResult, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultListLimit
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	bills, err := s.bills.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var savings float64
	for i := range bills {
		bills[i].RedactExpiredText(now)
		if bills[i].State == domain.StateComplete {
			savings += bills[i].RealizedSavings()
		}
	}
	if bills == nil {
		bills = []domain.BillAnalysis{}
	}
	return &ListResult{Analyses: bills, TotalSavings: math.Round(savings*100) / 100}, nil
}

func (s *analysisService) SubmitFeedback(ctx context.Context, billID, userID uuid.UUID, input FeedbackInput) (*domain.BillAnalysis, error) {
	bill, err := s.owned(ctx, billID, userID)
	if err != nil {
		return nil, err
	}
	if bill.State != domain.StateComplete {
		return nil, domain.ErrAnalysisNotComplete
	}
	if bill.Feedback != nil {
		return nil, fmt.Errorf("%w: feedback already submitted", domain.ErrInvalidFeedback)
	}
	if input.Successful && !input.Attempted {
		return nil, fmt.Errorf("%w: a successful negotiation must have been attempted", domain.ErrInvalidFeedback)
	}
	if input.FinalAmount != nil && *input.FinalAmount < 0 {
		return nil, fmt.Errorf("%w: final amount must not be negative", domain.ErrInvalidFeedback)
	}

	fb := &domain.Feedback{
		Attempted:   input.Attempted,
		Successful:  input.Successful,
		FinalAmount: input.FinalAmount,
		Notes:       strings.TrimSpace(input.Notes),
		SubmittedAt: s.now().UTC(),
	}
	if input.Successful && input.FinalAmount != nil && bill.Summary.TotalBilled > 0 {
		pct := (bill.Summary.TotalBilled - *input.FinalAmount) / bill.Summary.TotalBilled * 100
		pct = math.Round(pct*10) / 10
		fb.DiscountAchieved = &pct
	}

	if err := s.bills.UpdateFeedback(ctx, bill.ID, fb); err != nil {
		return nil, err
	}
	bill.Feedback = fb
	bill.RedactExpiredText(s.now())
	s.logger.Info("service.SubmitFeedback: feedback recorded",
		zap.String("bill_id", bill.ID.String()),
		zap.Bool("successful", fb.Successful))
	return bill, nil
}

func (s *analysisService) RecordInteraction(ctx context.Context, billID, userID uuid.UUID, input InteractionInput) (*domain.BillAnalysis, error) {
	bill, err := s.owned(ctx, billID, userID)
	if err != nil {
		return nil, err
	}

	in := bill.Interaction
	if input.Viewed && !in.Viewed {
		at := s.now().UTC()
		in.Viewed = true
		in.ViewedAt = &at
	}
	in.ScriptCopied = in.ScriptCopied || input.ScriptCopied
	in.ProviderCalled = in.ProviderCalled || input.ProviderCalled

	if in != bill.Interaction {
		if err := s.bills.UpdateInteraction(ctx, bill.ID, in); err != nil {
			return nil, err
		}
		bill.Interaction = in
	}
	bill.RedactExpiredText(s.now())
	return bill, nil
}

func (s *analysisService) Delete(ctx context.Context, billID, userID uuid.UUID) error {
	bill, err := s.owned(ctx, billID, userID)
	if err != nil {
		return err
	}
	// A running pipeline still owns the record.
	if !bill.State.IsTerminal() {
		return fmt.Errorf("service.Delete: %w (state %s)", domain.ErrAnalysisInProgress, bill.State)
	}

	img := bill.Image
	if img == nil {
		img, err = s.images.GetByBillID(ctx, bill.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if img != nil && !img.Deleted {
		if err := s.storage.Delete(ctx, img.Bucket, img.StorageKey); err != nil {
			s.logger.Error("service.Delete: storage delete failed",
				zap.String("bill_id", bill.ID.String()), zap.Error(err))
			return fmt.Errorf("service.Delete: deleting image: %w", err)
		}
		if _, err := s.images.MarkDeleted(ctx, img.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("service.Delete: marking image deleted: %w", err)
		}
	}

	if err := s.bills.Delete(ctx, bill.ID); err != nil {
		return err
	}
	s.logger.Info("service.Delete: analysis deleted", zap.String("bill_id", bill.ID.String()))
	return nil
}

// owned loads a bill and checks that userID owns it.
func (s *analysisService) owned(ctx context.Context, billID, userID uuid.UUID) (*domain.BillAnalysis, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return bill, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
