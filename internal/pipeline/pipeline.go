// Package pipeline orchestrates extraction and detection for a single
// document. It holds no durable state and never touches internal/store —
// BatchManager persists whatever Result it returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/redactqc/redactqc/internal/detector"
	"github.com/redactqc/redactqc/internal/extractor"
)

// ErrInternal wraps a failure that is neither an extraction failure nor a
// caller cancellation.
var ErrInternal = errors.New("pipeline: internal error")

type Status string

const (
	StatusOk        Status = "ok"
	StatusCancelled Status = "cancelled"
	StatusErr       Status = "err"
)

// Finding is a detector.Finding located on a specific page.
type Finding struct {
	PageNumber     int
	PIIType        string
	Confidence     float64
	CharOffset     int
	CharLength     int
	ContextSnippet string
}

// Result is what ProcessDocument returns. A Cancelled result carries no
// Findings and a zero PageCount — no storage writes happen inside this
// package regardless.
type Result struct {
	Status    Status
	PageCount int
	Findings  []Finding
	Err       error
}

// pageExtractor is the subset of *extractor.Extractor the pipeline needs,
// narrowed so tests can substitute a fake without touching a real PDF.
type pageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]extractor.PageText, error)
}

// piiDetector is the subset of *detector.Detector the pipeline needs.
type piiDetector interface {
	Detect(text string, threshold float64) []detector.Finding
}

// Pipeline pairs an Extractor and a Detector. Both are safe for concurrent
// use across multiple ProcessDocument calls.
type Pipeline struct {
	extractor pageExtractor
	detector  piiDetector
}

func New(ex pageExtractor, det piiDetector) *Pipeline {
	return &Pipeline{extractor: ex, detector: det}
}

// ProcessDocument extracts and detects PII across every page of filepath,
// checking ctx for cancellation between pages. Extracted page text never
// outlives this call; only findings and page counts are returned.
func (p *Pipeline) ProcessDocument(ctx context.Context, filepath string, confidenceThreshold float64) Result {
	pages, err := p.extractor.ExtractPages(ctx, filepath)
	if err != nil {
		if errors.Is(err, extractor.ErrExtractFail) {
			return Result{Status: StatusErr, Err: err}
		}
		return Result{Status: StatusErr, Err: fmt.Errorf("%w: %v", ErrInternal, err)}
	}

	var findings []Finding
	for _, pg := range pages {
		pageFindings := p.detector.Detect(pg.Text, confidenceThreshold)
		for _, f := range pageFindings {
			findings = append(findings, Finding{
				PageNumber:     pg.PageNumber,
				PIIType:        f.PIIType,
				Confidence:     f.Confidence,
				CharOffset:     f.CharOffset,
				CharLength:     f.CharLength,
				ContextSnippet: f.ContextSnippet,
			})
		}

		if err := ctx.Err(); err != nil {
			return Result{Status: StatusCancelled}
		}
	}

	return Result{Status: StatusOk, PageCount: len(pages), Findings: findings}
}
