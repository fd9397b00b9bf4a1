// Package pipeline chains document reading, reference extraction, and
// database validation into one run over a source document. Construct a
// Pipeline once per process; WithSink derives per-run variants without
// re-wiring the database stack.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/extract"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/internal/pdftext"
	"github.com/refcheck/refcheck/internal/report"
	"github.com/refcheck/refcheck/internal/validate"
)

// Extraction is everything the extraction stages produced for one document,
// before any database is consulted.
type Extraction struct {
	Source     string                  `json:"source"`
	Section    model.ReferencesSection `json:"section"`
	Strategy   model.StrategyName      `json:"strategy"`
	Segments   []model.CitationSegment `json:"segments"`
	References []model.Reference       `json:"references"`
}

// Pipeline runs a document end to end.
type Pipeline struct {
	patterns *extract.Patterns
	checker  *validate.Checker
}

// New builds a pipeline. Nil patterns fall back to the built-in defaults.
func New(patterns *extract.Patterns, checker *validate.Checker) *Pipeline {
	if patterns == nil {
		patterns = extract.DefaultPatterns()
	}
	return &Pipeline{patterns: patterns, checker: checker}
}

// WithSink returns a pipeline whose validation publishes progress to s. The
// receiver is unchanged; limiter and cache state stay shared.
func (p *Pipeline) WithSink(s validate.Sink) *Pipeline {
	return &Pipeline{patterns: p.patterns, checker: p.checker.WithSink(s)}
}

// Extract runs the extraction stages over already-loaded document text.
// source names the document in logs and run records.
func (p *Pipeline) Extract(source, text string) (*Extraction, error) {
	log := zap.L().With(zap.String("source", source))

	sec, err := extract.FindReferencesSection(text, p.patterns)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: references section located",
		zap.String("confidence", string(sec.Confidence)),
		zap.Int("length", sec.Len()))

	segments := extract.SegmentReferences(extract.SectionText(text, sec), p.patterns)
	strategy := model.StrategyWholeSection
	if len(segments) > 0 {
		strategy = segments[0].Strategy
	}
	refs := extract.ParseReferences(segments, p.patterns)

	low := 0
	for _, r := range refs {
		if r.Confidence.LowConfidence {
			low++
		}
	}
	log.Info("pipeline: references extracted",
		zap.String("strategy", string(strategy)),
		zap.Int("segments", len(segments)),
		zap.Int("references", len(refs)),
		zap.Int("low_confidence", low))

	return &Extraction{
		Source:     source,
		Section:    sec,
		Strategy:   strategy,
		Segments:   segments,
		References: refs,
	}, nil
}

// ExtractFile reads the document at path and runs the extraction stages.
func (p *Pipeline) ExtractFile(path string) (*Extraction, error) {
	text, err := pdftext.ReadSource(path)
	if err != nil {
		return nil, err
	}
	return p.Extract(filepath.Base(path), text)
}

// Run checks already-loaded document text end to end and stamps a run
// record. Lookup failures and cancellation surface on the per-reference
// results, not as a returned error; only extraction failures and an empty
// database registry abort the run.
func (p *Pipeline) Run(ctx context.Context, source, text string) (*report.Run, error) {
	start := time.Now()

	ex, err := p.Extract(source, text)
	if err != nil {
		return nil, err
	}

	results, stats, err := p.checker.Check(ctx, ex.References)
	if err != nil {
		return nil, err
	}

	run := report.NewRun(source, results)
	zap.L().Info("pipeline: run complete",
		zap.String("source", source),
		zap.String("run_id", run.ID),
		zap.Int("references", stats.Total),
		zap.Int("verified", stats.Verified),
		zap.Int("likely_hallucinated", stats.LikelyHallucinated),
		zap.Int("retracted", stats.Retracted),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return run, nil
}

// RunFile reads the document at path and checks it end to end.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*report.Run, error) {
	text, err := pdftext.ReadSource(path)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, filepath.Base(path), text)
}
