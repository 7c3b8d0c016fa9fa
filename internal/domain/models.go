package domain

import (
	"time"

	"github.com/google/uuid"
)

// Retention windows mandated for bill artifacts.
const (
	ImageRetention = 24 * time.Hour
	TextRetention  = 7 * 24 * time.Hour
)

// ImageRef points at the uploaded bill image in object storage together with
// its deletion schedule. It is persisted separately from the analysis so the
// deletion deadline exists before any other processing starts.
type ImageRef struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	BillID              uuid.UUID  `db:"bill_id" json:"-"`
	Bucket              string     `db:"bucket" json:"-"`
	StorageKey          string     `db:"storage_key" json:"-"`
	ContentType         string     `db:"content_type" json:"content_type"`
	SizeBytes           int64      `db:"size_bytes" json:"size_bytes"`
	UploadedAt          time.Time  `db:"uploaded_at" json:"uploaded_at"`
	ScheduledDeletionAt time.Time  `db:"scheduled_deletion_at" json:"scheduled_deletion_at"`
	Deleted             bool       `db:"deleted" json:"deleted"`
	DeletedAt           *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// NewImageRef builds an ImageRef whose deletion deadline is fixed at upload time.
func NewImageRef(billID uuid.UUID, bucket, key, contentType string, size int64, uploadedAt time.Time) *ImageRef {
	uploadedAt = uploadedAt.UTC()
	return &ImageRef{
		ID:                  uuid.New(),
		BillID:              billID,
		Bucket:              bucket,
		StorageKey:          key,
		ContentType:         contentType,
		SizeBytes:           size,
		UploadedAt:          uploadedAt,
		ScheduledDeletionAt: uploadedAt.Add(ImageRetention),
	}
}

// DueForDeletion reports whether the image must be removed at now.
func (r *ImageRef) DueForDeletion(now time.Time) bool {
	return !r.Deleted && !now.Before(r.ScheduledDeletionAt)
}

// ExtractedText holds raw OCR output and its retention deadline.
type ExtractedText struct {
	Text               *string           `json:"text,omitempty"`
	Confidence         float64           `json:"confidence"`
	Quality            ExtractionQuality `json:"quality,omitempty"`
	WordCount          int               `json:"word_count"`
	ClientProvided     bool              `json:"client_provided"`
	ExtractedAt        *time.Time        `json:"extracted_at,omitempty"`
	RetentionExpiresAt *time.Time        `json:"retention_expires_at,omitempty"`
}

// Expired reports whether the raw text is past its retention deadline.
func (t *ExtractedText) Expired(now time.Time) bool {
	return t.RetentionExpiresAt != nil && !now.Before(*t.RetentionExpiresAt)
}

// PriceRange is an inclusive dollar range.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ReferencePricing is the benchmark-derived price context for a line item.
type ReferencePricing struct {
	BenchmarkRate    *float64      `json:"benchmark_rate"`
	RegionalAdjusted *float64      `json:"regional_adjusted"`
	FairPriceRange   PriceRange    `json:"fair_price_range"`
	Source           PricingSource `json:"source"`
}

// ItemAnalysis is the verdict and confidence for a line item.
type ItemAnalysis struct {
	Assessment        Assessment     `json:"assessment"`
	Reasoning         string         `json:"reasoning"`
	RatioToBenchmark  *float64       `json:"ratio_to_benchmark"`
	ConfidenceTier    ConfidenceTier `json:"confidence_tier"`
	ConfidenceFactors []string       `json:"confidence_factors"`
}

// NegotiationGuidance is the suggested negotiation envelope for a line item.
type NegotiationGuidance struct {
	Opening       float64    `json:"opening"`
	Acceptable    PriceRange `json:"acceptable"`
	Walkaway      float64    `json:"walkaway"`
	DiscountRange string     `json:"discount_range"`
	Strategy      string     `json:"strategy"`
	Leverage      []string   `json:"leverage"`
}

// LineItem is a single charge on a bill. It is owned by its BillAnalysis.
type LineItem struct {
	Description         string              `json:"description"`
	Code                *string             `json:"code"`
	Category            ServiceCategory     `json:"category"`
	Quantity            int                 `json:"quantity"`
	BilledAmount        float64             `json:"billed_amount"`
	Flagged             bool                `json:"flagged,omitempty"`
	ReferencePricing    ReferencePricing    `json:"reference_pricing"`
	Analysis            ItemAnalysis        `json:"analysis"`
	NegotiationGuidance NegotiationGuidance `json:"negotiation_guidance"`
}

// HasCode reports whether the item carries a reference code.
func (li *LineItem) HasCode() bool {
	return li.Code != nil && *li.Code != ""
}

// ConfidenceDistribution counts line items per confidence tier.
type ConfidenceDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Summary holds bill-wide totals.
type Summary struct {
	ProviderName           string                 `json:"provider_name,omitempty"`
	ProviderType           ProviderType           `json:"provider_type,omitempty"`
	BillDate               string                 `json:"bill_date,omitempty"`
	ServiceDate            string                 `json:"service_date,omitempty"`
	TotalBilled            float64                `json:"total_billed"`
	InsurancePaid          float64                `json:"insurance_paid"`
	PatientResponsibility  float64                `json:"patient_responsibility"`
	TotalEstimatedFair     float64                `json:"total_estimated_fair"`
	FairPatientShare       float64                `json:"fair_patient_share"`
	PotentialSavings       float64                `json:"potential_savings"`
	SavingsPercentage      float64                `json:"savings_percentage"`
	OverallConfidence      ConfidenceLevel        `json:"overall_confidence"`
	ConfidenceScore        int                    `json:"confidence_score"`
	ConfidenceDistribution ConfidenceDistribution `json:"confidence_distribution"`
	LineItemCount          int                    `json:"line_item_count"`
}

// Region is the resolved cost-of-living adjustment for the bill's location.
type Region struct {
	Label       string  `json:"label"`
	Metro       string  `json:"metro"`
	State       string  `json:"state"`
	Factor      float64 `json:"factor"`
	Description string  `json:"description"`
}

// Narrative is the consumer-facing explanation of the analysis.
type Narrative struct {
	Explanation       string          `json:"explanation"`
	NegotiationScript string          `json:"negotiation_script"`
	KeyInsights       []string        `json:"key_insights"`
	OverallConfidence ConfidenceLevel `json:"overall_confidence"`
	Source            NarrativeSource `json:"source"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// Warning is a non-fatal finding surfaced on the analysis.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Message   string      `json:"message"`
	ItemIndex *int        `json:"item_index,omitempty"`
}

// Feedback is the owner's post-hoc report on a negotiation attempt.
type Feedback struct {
	Attempted        bool      `json:"attempted"`
	Successful       bool      `json:"successful"`
	FinalAmount      *float64  `json:"final_amount,omitempty"`
	DiscountAchieved *float64  `json:"discount_achieved,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// Interaction tracks how the owner used the analysis.
type Interaction struct {
	Viewed         bool       `json:"viewed"`
	ViewedAt       *time.Time `json:"viewed_at,omitempty"`
	ScriptCopied   bool       `json:"script_copied"`
	ProviderCalled bool       `json:"provider_called"`
}

// ProcessingError is the structured failure payload stored on an errored analysis.
type ProcessingError struct {
	Message    string        `json:"message"`
	Stage      PipelineStage `json:"stage"`
	TraceID    string        `json:"trace_id"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Processing records pipeline timing and failure detail.
type Processing struct {
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
	Error       *ProcessingError `json:"error,omitempty"`
}

// BillAnalysis is the root aggregate for one uploaded bill.
type BillAnalysis struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	State        ProcessingState `json:"processing_state"`
	LocationHint string          `json:"location_hint,omitempty"`
	Image        *ImageRef       `json:"image,omitempty"`
	Text         ExtractedText   `json:"extracted_text"`
	LineItems    []LineItem      `json:"line_items"`
	Summary      Summary         `json:"summary"`
	Region       Region          `json:"region"`
	Narrative    *Narrative      `json:"narrative,omitempty"`
	Warnings     []Warning       `json:"warnings"`
	Feedback     *Feedback       `json:"feedback,omitempty"`
	Interaction  Interaction     `json:"interaction"`
	Processing   Processing      `json:"processing"`
	ParserModel  string          `json:"parser_model,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Transition moves the analysis to next if the state machine allows it.
func (b *BillAnalysis) Transition(next ProcessingState) error {
	if err := b.State.ValidateTransition(next); err != nil {
		return err
	}
	b.State = next
	return nil
}

// Fail moves the analysis into the error state with a structured payload.
func (b *BillAnalysis) Fail(stage PipelineStage, traceID, message string, now time.Time) error {
	if err := b.Transition(StateError); err != nil {
		return err
	}
	now = now.UTC()
	b.Processing.CompletedAt = &now
	if b.Processing.StartedAt != nil {
		b.Processing.DurationMs = now.Sub(*b.Processing.StartedAt).Milliseconds()
	}
	b.Processing.Error = &ProcessingError{
		Message:    message,
		Stage:      stage,
		TraceID:    traceID,
		OccurredAt: now,
	}
	return nil
}

// RedactExpiredText drops raw text whose retention deadline has passed.
// It reports whether anything was removed.
func (b *BillAnalysis) RedactExpiredText(now time.Time) bool {
	if b.Text.Text == nil || !b.Text.Expired(now) {
		return false
	}
	b.Text.Text = nil
	return true
}

// AddWarning appends a non-fatal finding.
func (b *BillAnalysis) AddWarning(kind WarningKind, message string, itemIndex *int) {
	b.Warnings = append(b.Warnings, Warning{Kind: kind, Message: message, ItemIndex: itemIndex})
}

// RealizedSavings is the amount saved per the owner's feedback, or zero.
func (b *BillAnalysis) RealizedSavings() float64 {
	if b.Feedback == nil || !b.Feedback.Successful || b.Feedback.FinalAmount == nil {
		return 0
	}
	saved := b.Summary.TotalBilled - *b.Feedback.FinalAmount
	if saved < 0 {
		return 0
	}
	return saved
}

// PricingObservation is one de-identified line item data point for the
// cross-bill pricing aggregate. It carries no user, bill or provider identity.
type PricingObservation struct {
	DescriptionHash string
	Code            *string
	Category        ServiceCategory
	Region          string
	ProviderType    ProviderType
	BilledAmount    float64
	BenchmarkRate   *float64
	AdjustedRate    *float64
	SuggestedLow    float64
	SuggestedHigh   float64
	ObservedAt      time.Time
}
