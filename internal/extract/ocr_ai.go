package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avast/retry-go/v4"

	"github.com/lumio-app/lumio/internal/aijson"
)

const ocrPrompt = `Extract ALL text from this image. This may be a scanned document, photo of a document, or a page of a PDF.

Respond with ONLY a JSON object in this exact format, no markdown fences, no commentary:
{
  "text": "the full extracted text with original line breaks preserved",
  "lines": ["each", "line", "as", "a", "separate", "string"],
  "confidence": 0.95
}

Rules:
- Preserve the reading order of the original document.
- Keep paragraph breaks as blank lines in "text".
- "confidence" is your estimate from 0 to 1 of how accurately you read the text.
- If the image contains no readable text, return {"text": "", "lines": [], "confidence": 1}.`

// ocrResult is the parsed output of one OCR pass over a page image.
type ocrResult struct {
	Text       string   `json:"text"`
	Lines      []string `json:"lines"`
	Confidence float64  `json:"confidence"`
}

// aiOCR sends a page image to the vision model and parses the strict
// JSON response. An unparsable response counts as a provider failure so
// the caller falls back to local OCR.
func (e *Extractor) aiOCR(ctx context.Context, image []byte, mimeType string) (*ocrResult, error) {
	return retry.DoWithData(
		func() (*ocrResult, error) {
			raw, err := e.client.Vision(ctx, ocrPrompt, image, mimeType)
			if err != nil {
				return nil, err
			}
			return parseOCRResponse(raw)
		},
		retry.Context(ctx),
		retry.Attempts(e.ocrAttempts),
		retry.Delay(e.ocrDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func parseOCRResponse(raw string) (*ocrResult, error) {
	obj, err := aijson.SalvageObject(raw)
	if err != nil {
		return nil, fmt.Errorf("OCR response contained no JSON object: %w", err)
	}
	var result ocrResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, fmt.Errorf("failed to parse OCR response: %w", err)
	}
	return &result, nil
}
