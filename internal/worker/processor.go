// Package worker runs the document processing pipeline: claim a job,
// extract text, redact PII, analyze, persist the result.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lumio-app/lumio/internal/analysis"
	"github.com/lumio-app/lumio/internal/extract"
	"github.com/lumio-app/lumio/internal/pii"
	"github.com/lumio-app/lumio/internal/queue"
	"github.com/lumio-app/lumio/internal/results"
)

// ErrJobDeleted signals that the job's state vanished mid-flight,
// which means a caller deleted it. The attempt is discarded, not
// retried.
var ErrJobDeleted = errors.New("job deleted during processing")

// DocumentJob is the payload enqueued for an uploaded document.
type DocumentJob struct {
	ID       string              `json:"id"`
	Filename string              `json:"filename"`
	MimeType string              `json:"mimeType"`
	FilePath string              `json:"filePath"`
	Targets  []analysis.Platform `json:"targets,omitempty"`
}

// Progress checkpoints reported while a job moves through the
// pipeline. The final 100 is written by queue.Complete.
const (
	progressValidated  = 10
	progressExtracting = 20
	progressExtracted  = 60
	progressAnalyzed   = 90
)

// Processor executes one document job end to end.
type Processor struct {
	extractor *extract.Extractor
	analyzer  *analysis.Analyzer
	results   *results.Store
	queue     *queue.Queue
	logger    *slog.Logger
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(extractor *extract.Extractor, analyzer *analysis.Analyzer, store *results.Store, q *queue.Queue, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		extractor: extractor,
		analyzer:  analyzer,
		results:   store,
		queue:     q,
		logger:    logger.With("component", "processor"),
	}
}

// Process runs the pipeline for a claimed job. Any returned error other
// than ErrJobDeleted counts as a failed attempt.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	start := time.Now()

	var doc DocumentJob
	if err := json.Unmarshal(job.Payload, &doc); err != nil {
		return fmt.Errorf("invalid job payload: %w", err)
	}
	// The staged upload is consumed by this attempt either way.
	defer os.Remove(doc.FilePath)

	logger := p.logger.With("job_id", doc.ID, "filename", doc.Filename, "attempt", job.Attempt)
	logger.Info("processing document")

	if err := p.checkpoint(ctx, doc.ID, progressValidated); err != nil {
		return err
	}

	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read staged upload: %w", err)
	}

	if err := p.checkpoint(ctx, doc.ID, progressExtracting); err != nil {
		return err
	}

	extracted, err := p.extractor.Extract(ctx, data, doc.MimeType)
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}

	if err := p.checkpoint(ctx, doc.ID, progressExtracted); err != nil {
		return err
	}

	text, piiFound := pii.Scan(extracted.Text)
	if piiFound {
		logger.Info("PII redacted from extracted text")
	}

	analyzed, err := p.analyzer.Analyze(ctx, text, doc.Targets)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if err := p.checkpoint(ctx, doc.ID, progressAnalyzed); err != nil {
		return err
	}

	result := &results.JobResult{
		ID:            doc.ID,
		Filename:      doc.Filename,
		ExtractedText: text,
		Analysis:      analyzed,
		Meta: results.Meta{
			Engine:           extracted.Engine,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			PIIDetected:      piiFound,
			Partial:          extracted.Partial,
			PagesProcessed:   extracted.PagesProcessed,
			PagesTotal:       extracted.PagesTotal,
		},
		CompletedAt: time.Now().UTC(),
	}
	if err := p.results.Save(ctx, result); err != nil {
		return fmt.Errorf("failed to persist result: %w", err)
	}

	logger.Info("document processed",
		"engine", extracted.Engine,
		"pages", fmt.Sprintf("%d/%d", extracted.PagesProcessed, extracted.PagesTotal),
		"pii", piiFound,
		"duration", time.Since(start))
	return nil
}

// checkpoint records progress and detects mid-flight deletion. The job
// hash disappearing means a caller cancelled the job.
func (p *Processor) checkpoint(ctx context.Context, id string, pct int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.queue.Progress(ctx, id, pct)
	if errors.Is(err, queue.ErrJobNotFound) {
		return ErrJobDeleted
	}
	return err
}
