package domain

// FileType represents the allowed bill image types for upload.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeJPG  FileType = "jpg"
	FileTypePNG  FileType = "png"
	FileTypeWEBP FileType = "webp"
)

// AllowedContentTypes maps MIME content types to FileType.
var AllowedContentTypes = map[string]FileType{
	"application/pdf": FileTypePDF,
	"image/jpeg":      FileTypeJPG,
	"image/png":       FileTypePNG,
	"image/webp":      FileTypeWEBP,
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"jpg":  FileTypeJPG,
	"jpeg": FileTypeJPG,
	"png":  FileTypePNG,
	"webp": FileTypeWEBP,
}

// ServiceCategory is the closed set of line item categories.
type ServiceCategory string

const (
	CategoryLab         ServiceCategory = "lab"
	CategoryImaging     ServiceCategory = "imaging"
	CategoryOfficeVisit ServiceCategory = "office_visit"
	CategoryProcedure   ServiceCategory = "procedure"
	CategoryMedication  ServiceCategory = "medication"
	CategoryEmergency   ServiceCategory = "emergency"
	CategorySurgery     ServiceCategory = "surgery"
	CategoryTherapy     ServiceCategory = "therapy"
	CategoryOther       ServiceCategory = "other"
)

// AllCategories lists every ServiceCategory in display order.
var AllCategories = []ServiceCategory{
	CategoryLab, CategoryImaging, CategoryOfficeVisit, CategoryProcedure, CategoryMedication,
	CategoryEmergency, CategorySurgery, CategoryTherapy, CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c ServiceCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ProviderType classifies the billing provider.
type ProviderType string

const (
	ProviderHospital      ProviderType = "hospital"
	ProviderClinic        ProviderType = "clinic"
	ProviderLab           ProviderType = "lab"
	ProviderImagingCenter ProviderType = "imaging_center"
	ProviderPharmacy      ProviderType = "pharmacy"
	ProviderTherapy       ProviderType = "therapy"
	ProviderOther         ProviderType = "other"
)

// NormalizeProviderType maps free-form model output onto a ProviderType.
func NormalizeProviderType(s string) ProviderType {
	switch ProviderType(s) {
	case ProviderHospital, ProviderClinic, ProviderLab, ProviderImagingCenter,
		ProviderPharmacy, ProviderTherapy:
		return ProviderType(s)
	default:
		return ProviderOther
	}
}

// PricingSource tags where a line item's benchmark rate came from.
type PricingSource string

const (
	SourceBenchmarkSchedule PricingSource = "benchmark_schedule"
	SourceCategoryEstimate  PricingSource = "category_estimate"
	SourceUnknown           PricingSource = "unknown"
)

// Assessment is the pricing verdict for a line item.
type Assessment string

const (
	AssessmentFair     Assessment = "fair"
	AssessmentHigh     Assessment = "high"
	AssessmentVeryHigh Assessment = "very_high"
	AssessmentExtreme  Assessment = "extreme"
	AssessmentUnknown  Assessment = "unknown"
)

// ConfidenceTier ranks how much reference data backs a price assessment.
// Tier 1 is the strongest.
type ConfidenceTier int

const (
	TierHigh   ConfidenceTier = 1
	TierMedium ConfidenceTier = 2
	TierLow    ConfidenceTier = 3
)

// ConfidenceLevel is the bill-wide confidence label.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ExtractionQuality buckets OCR confidence.
type ExtractionQuality string

const (
	QualityExcellent ExtractionQuality = "excellent"
	QualityGood      ExtractionQuality = "good"
	QualityPoor      ExtractionQuality = "poor"
)

// QualityFromConfidence buckets an OCR confidence score in [0,1].
func QualityFromConfidence(confidence float64) ExtractionQuality {
	switch {
	case confidence >= 0.90:
		return QualityExcellent
	case confidence >= 0.70:
		return QualityGood
	default:
		return QualityPoor
	}
}

// NarrativeSource records which narrator produced the explanation.
type NarrativeSource string

const (
	NarrativeFromModel    NarrativeSource = "model"
	NarrativeFromTemplate NarrativeSource = "template"
)

// WarningKind classifies non-fatal findings recorded on an analysis.
type WarningKind string

const (
	WarningIdentifierLeak WarningKind = "identifier_leak"
	WarningTotalMismatch  WarningKind = "total_mismatch"
	WarningOCRQuality     WarningKind = "ocr_quality"
	WarningItemDropped    WarningKind = "item_dropped"
	WarningNarrative      WarningKind = "narrative_fallback"
)
