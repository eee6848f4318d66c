// Package providers contains clients for external AI services.
//
// The pipeline talks to a single AI backend through the AIClient interface:
// a vision call for OCR and a text call for content analysis. Engines own
// prompt construction and response parsing; clients own transport, auth,
// rate limiting and timeouts.
package providers

import (
	"context"
	"time"
)

// AIClient is implemented by AI backends (Gemini, or any OpenAI-compatible
// endpoint). Both calls return the model's raw text output; callers parse it.
type AIClient interface {
	// Vision sends a prompt plus an inline image and returns the raw response.
	Vision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)

	// Complete sends a text-only prompt and returns the raw response.
	Complete(ctx context.Context, prompt string) (string, error)

	// Name returns the client identifier (e.g. "gemini").
	Name() string
}

// ClientConfig holds configuration common to AI clients.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int     // transport-level retries inside the SDK
	RateLimit  float64 // requests per second
}
