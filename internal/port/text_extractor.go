package port

import (
	"context"

	"billscope/internal/domain"
)

// ImageInput is the bill image handed to a text extractor.
type ImageInput struct {
	Bytes       []byte
	ContentType string
}

// ParseHints are cheap regex findings from raw text that steer structured extraction.
type ParseHints struct {
	Amounts []string
	Dates   []string
	Codes   []string
}

// TextExtraction is the result of OCR on a bill image.
type TextExtraction struct {
	RawText    string
	Confidence float64
	Quality    domain.ExtractionQuality
	WordCount  int
	Issues     []string
	Hints      ParseHints
}

// TextExtractor wraps an OCR service. Implementations return
// domain.ErrExtractionTimeout, domain.ErrExtractionFailed or
// domain.ErrNoTextDetected (possibly wrapped) on failure.
type TextExtractor interface {
	ExtractText(ctx context.Context, input ImageInput) (*TextExtraction, error)
}
