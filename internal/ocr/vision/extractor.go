// Package vision implements port.TextExtractor with the Google Cloud Vision REST API.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"billscope/internal/domain"
	"billscope/internal/ocr"
	"billscope/internal/port"
)

const (
	featureDocumentText = "DOCUMENT_TEXT_DETECTION"
	defaultTimeout      = 30 * time.Second
	maxPDFPages         = 5
)

// Extractor runs document text detection on bill images and PDFs.
type Extractor struct {
	svc     *visionapi.Service
	timeout time.Duration
	logger  *zap.Logger
}

// Config configures the Vision extractor.
type Config struct {
	APIKey string
	// Endpoint overrides the API base URL (for testing).
	Endpoint string
	Timeout  time.Duration
}

// NewExtractor creates a Vision-backed text extractor.
func NewExtractor(ctx context.Context, cfg Config, logger *zap.Logger) (*Extractor, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := visionapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision.NewExtractor: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{svc: svc, timeout: timeout, logger: logger}, nil
}

// ExtractText returns the document text and mean word confidence.
func (e *Extractor) ExtractText(ctx context.Context, input port.ImageInput) (*port.TextExtraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	var (
		annotations []*visionapi.AnnotateImageResponse
		err         error
	)
	if input.ContentType == "application/pdf" {
		annotations, err = e.annotateFile(ctx, input)
	} else {
		annotations, err = e.annotateImage(ctx, input)
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", domain.ErrExtractionTimeout, e.timeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	var texts []string
	var confSum float64
	var confCount int
	for _, a := range annotations {
		if a == nil {
			continue
		}
		if a.Error != nil && a.Error.Code != 0 {
			return nil, fmt.Errorf("%w: vision status %d: %s", domain.ErrExtractionFailed, a.Error.Code, a.Error.Message)
		}
		if a.FullTextAnnotation == nil || a.FullTextAnnotation.Text == "" {
			continue
		}
		texts = append(texts, a.FullTextAnnotation.Text)
		sum, n := wordConfidence(a.FullTextAnnotation)
		confSum += sum
		confCount += n
	}

	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return nil, domain.ErrNoTextDetected
	}
	confidence := 0.0
	if confCount > 0 {
		confidence = confSum / float64(confCount)
	}

	result := ocr.Inspect(text, confidence)
	e.logger.Debug("vision.Extractor.ExtractText: completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("confidence", confidence),
		zap.String("quality", string(result.Quality)),
		zap.Int("chars", len(text)))
	return result, nil
}

func (e *Extractor) annotateImage(ctx context.Context, input port.ImageInput) ([]*visionapi.AnnotateImageResponse, error) {
	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image:    &visionapi.Image{Content: base64.StdEncoding.EncodeToString(input.Bytes)},
			Features: []*visionapi.Feature{{Type: featureDocumentText}},
		}},
	}
	resp, err := e.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Responses, nil
}

func (e *Extractor) annotateFile(ctx context.Context, input port.ImageInput) ([]*visionapi.AnnotateImageResponse, error) {
	pages := make([]int64, 0, maxPDFPages)
	for i := int64(1); i <= maxPDFPages; i++ {
		pages = append(pages, i)
	}
	req := &visionapi.BatchAnnotateFilesRequest{
		Requests: []*visionapi.AnnotateFileRequest{{
			InputConfig: &visionapi.InputConfig{
				Content:  base64.StdEncoding.EncodeToString(input.Bytes),
				MimeType: input.ContentType,
			},
			Features: []*visionapi.Feature{{Type: featureDocumentText}},
			Pages:    pages,
		}},
	}
	resp, err := e.svc.Files.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	var out []*visionapi.AnnotateImageResponse
	for _, fr := range resp.Responses {
		if fr == nil {
			continue
		}
		if fr.Error != nil && fr.Error.Code != 0 {
			return nil, fmt.Errorf("vision status %d: %s", fr.Error.Code, fr.Error.Message)
		}
		out = append(out, fr.Responses...)
	}
	return out, nil
}

// wordConfidence sums per-word confidences across every page.
func wordConfidence(t *visionapi.TextAnnotation) (float64, int) {
	var sum float64
	var n int
	for _, page := range t.Pages {
		for _, block := range page.Blocks {
			for _, para := range block.Paragraphs {
				for _, word := range para.Words {
					if word.Confidence > 0 {
						sum += word.Confidence
						n++
					}
				}
			}
		}
	}
	return sum, n
}
