// Package ocr holds provider-independent checks over extracted bill text.
package ocr

import (
	"regexp"
	"strings"

	"billscope/internal/domain"
	"billscope/internal/port"
)

// ClientTextConfidence is the confidence assigned to text supplied by the
// caller instead of produced by OCR.
const ClientTextConfidence = 0.95

const (
	minUsefulLength = 50
	maxHintsPerKind = 50
)

// Quality issue messages.
const (
	IssueShortText  = "Very short text extracted, may be incomplete"
	IssueNoNumbers  = "No numbers detected, may not be a bill"
	IssueNoCurrency = "No currency symbols detected"
	IssueLowQuality = "Low OCR confidence, extracted values may contain errors"
)

var (
	digitPattern    = regexp.MustCompile(`\d`)
	currencyPattern = regexp.MustCompile(`\$|USD`)
	amountPattern   = regexp.MustCompile(`\$\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)
	datePattern     = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	codePattern     = regexp.MustCompile(`\b\d{5}\b`)
)

// Issues lists quality problems with raw text. None of them abort the pipeline.
func Issues(text string, quality domain.ExtractionQuality) []string {
	var issues []string
	if quality == domain.QualityPoor {
		issues = append(issues, IssueLowQuality)
	}
	if len(strings.TrimSpace(text)) < minUsefulLength {
		issues = append(issues, IssueShortText)
	}
	if !digitPattern.MatchString(text) {
		issues = append(issues, IssueNoNumbers)
	}
	if !currencyPattern.MatchString(text) {
		issues = append(issues, IssueNoCurrency)
	}
	return issues
}

// Hints pulls dollar amounts, dates and five-digit reference codes out of
// raw text. Codes below 10000 are treated as noise such as zip fragments.
func Hints(text string) port.ParseHints {
	var codes []string
	for _, c := range unique(codePattern.FindAllString(text, -1)) {
		if c >= "10000" {
			codes = append(codes, c)
		}
	}
	return port.ParseHints{
		Amounts: unique(amountPattern.FindAllString(text, -1)),
		Dates:   unique(datePattern.FindAllString(text, -1)),
		Codes:   codes,
	}
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Inspect builds a TextExtraction for text with the given confidence.
func Inspect(text string, confidence float64) *port.TextExtraction {
	quality := domain.QualityFromConfidence(confidence)
	return &port.TextExtraction{
		RawText:    text,
		Confidence: confidence,
		Quality:    quality,
		WordCount:  WordCount(text),
		Issues:     Issues(text, quality),
		Hints:      Hints(text),
	}
}

// FromClientText wraps caller-supplied text so it can skip OCR.
func FromClientText(text string) *port.TextExtraction {
	return Inspect(strings.TrimSpace(text), ClientTextConfidence)
}

func unique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == maxHintsPerKind {
			break
		}
	}
	return out
}
