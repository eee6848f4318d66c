// Package extract turns uploaded documents (PDF or image) into plain text.
//
// PDFs are tried text-layer first; documents without a usable text layer
// are rasterized page by page and pushed through a two-tier OCR chain:
// AI-vision OCR with a bounded retry, then local tesseract with image
// preprocessing. A single page failing OCR is logged and skipped so noisy
// scans still yield as much text as possible.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lumio-app/lumio/internal/providers"
)

// Engine identifies which extraction path produced the text.
type Engine string

const (
	EngineTextLayer Engine = "text-layer"
	EngineAIOCR     Engine = "ai-ocr"
	EngineLocalOCR  Engine = "local-ocr"
)

// Result is the output of an extraction run.
type Result struct {
	Text           string
	Engine         Engine
	PagesTotal     int
	PagesProcessed int
	Partial        bool
}

// Config configures an Extractor. Zero values take defaults.
type Config struct {
	Client providers.AIClient
	Logger *slog.Logger

	// MaxPages caps how many PDF pages are rasterized for OCR (default 10).
	MaxPages int
	// TextLayerThreshold is the minimum character count for a PDF text
	// layer to be treated as authoritative (default 50).
	TextLayerThreshold int
	// RenderDPI controls rasterization quality (default 144, i.e. 2x).
	RenderDPI int
	// OCRAttempts bounds AI OCR retries per page (default 2).
	OCRAttempts uint
	// OCRRetryDelay is the backoff base for AI OCR retries (default 1s).
	OCRRetryDelay time.Duration
	// TesseractBin overrides the tesseract binary path (default "tesseract").
	TesseractBin string
}

// Extractor runs the extraction engine chain.
type Extractor struct {
	client       providers.AIClient
	logger       *slog.Logger
	maxPages     int
	textLayerMin int
	renderDPI    int
	ocrAttempts  uint
	ocrDelay     time.Duration
	tesseractBin string

	// render produces a PNG for one PDF page. Tests swap it out; the
	// default shells out to pdftoppm.
	render func(ctx context.Context, pdfPath string, pageNum int) ([]byte, error)
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.TextLayerThreshold <= 0 {
		cfg.TextLayerThreshold = 50
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 144
	}
	if cfg.OCRAttempts == 0 {
		cfg.OCRAttempts = 2
	}
	if cfg.OCRRetryDelay == 0 {
		cfg.OCRRetryDelay = 1 * time.Second
	}
	if cfg.TesseractBin == "" {
		cfg.TesseractBin = "tesseract"
	}
	e := &Extractor{
		client:       cfg.Client,
		logger:       logger.With("component", "extract"),
		maxPages:     cfg.MaxPages,
		textLayerMin: cfg.TextLayerThreshold,
		renderDPI:    cfg.RenderDPI,
		ocrAttempts:  cfg.OCRAttempts,
		ocrDelay:     cfg.OCRRetryDelay,
		tesseractBin: cfg.TesseractBin,
	}
	e.render = e.renderPage
	return e
}

// Extract produces plain text from file bytes. mimeType decides the path:
// application/pdf goes through the text-layer/rasterize chain, image types
// go straight to OCR.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	if mimeType == "application/pdf" {
		return e.extractPDF(ctx, data)
	}
	return e.extractImage(ctx, data, mimeType)
}

// extractImage OCRs a single image as a one-page document.
func (e *Extractor) extractImage(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	text, engine, err := e.ocrPage(ctx, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("image OCR failed: %w", err)
	}
	return &Result{
		Text:           text,
		Engine:         engine,
		PagesTotal:     1,
		PagesProcessed: 1,
	}, nil
}

// extractPDF tries the text layer first, then rasterizes up to maxPages
// pages and OCRs each one.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (*Result, error) {
	pagesTotal, err := pageCount(data)
	if err != nil {
		return nil, fmt.Errorf("unreadable PDF: %w", err)
	}

	if text, err := textLayer(data); err != nil {
		e.logger.Debug("text layer extraction failed, falling back to OCR", "error", err)
	} else if len(strings.TrimSpace(text)) > e.textLayerMin {
		e.logger.Info("PDF text layer used",
			"pages", pagesTotal, "text_len", len(text))
		return &Result{
			Text:           text,
			Engine:         EngineTextLayer,
			PagesTotal:     pagesTotal,
			PagesProcessed: pagesTotal,
		}, nil
	}

	e.logger.Info("PDF has no usable text layer, rasterizing for OCR", "pages", pagesTotal)

	pdfFile, err := os.CreateTemp("", "lumio-raster-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to stage PDF for rasterization: %w", err)
	}
	defer os.Remove(pdfFile.Name())
	if _, err := pdfFile.Write(data); err != nil {
		pdfFile.Close()
		return nil, fmt.Errorf("failed to stage PDF for rasterization: %w", err)
	}
	pdfFile.Close()

	maxPages := pagesTotal
	if maxPages > e.maxPages {
		maxPages = e.maxPages
	}

	var texts []string
	var engine Engine
	processed := 0

	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		image, err := e.render(ctx, pdfFile.Name(), pageNum)
		if err != nil {
			e.logger.Warn("failed to render PDF page", "page", pageNum, "error", err)
			continue
		}
		processed++

		text, pageEngine, err := e.ocrPage(ctx, image, "image/png")
		if err != nil {
			e.logger.Warn("page OCR failed, skipping page", "page", pageNum, "error", err)
			continue
		}
		if engine == "" {
			engine = pageEngine
		}
		if strings.TrimSpace(text) != "" {
			texts = append(texts, text)
		}
	}

	if engine == "" {
		engine = EngineLocalOCR
	}

	return &Result{
		Text:           strings.Join(texts, "\n\n"),
		Engine:         engine,
		PagesTotal:     pagesTotal,
		PagesProcessed: processed,
		Partial:        processed < pagesTotal,
	}, nil
}

// ocrPage runs the two-tier OCR chain for one page image.
func (e *Extractor) ocrPage(ctx context.Context, image []byte, mimeType string) (string, Engine, error) {
	if e.client != nil {
		ocr, err := e.aiOCR(ctx, image, mimeType)
		if err == nil {
			e.logger.Debug("AI OCR completed", "confidence", ocr.Confidence)
			return ocr.Text, EngineAIOCR, nil
		}
		e.logger.Warn("AI OCR failed, falling back to local OCR", "error", err)
	}

	ocr, err := e.localOCR(ctx, image)
	if err != nil {
		return "", "", err
	}
	e.logger.Debug("local OCR completed", "confidence", ocr.Confidence)
	return ocr.Text, EngineLocalOCR, nil
}
