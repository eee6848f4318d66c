package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	GeminiName = "gemini"

	// Gemini's OpenAI-compatible endpoint. Any compatible backend works
	// via the BaseURL override.
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	geminiDefaultModel   = "gemini-1.5-flash"
)

// GeminiClient implements AIClient against Gemini's OpenAI-compatible API
// using the official OpenAI SDK.
type GeminiClient struct {
	model       string
	rateLimiter *RateLimiter
	client      openai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(cfg ClientConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	)

	return &GeminiClient{
		model:       cfg.Model,
		rateLimiter: NewRateLimiter(cfg.RateLimit),
		client:      client,
	}
}

// Name returns the provider identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

// Vision sends a prompt with an inline base64 image and returns the raw
// model output.
func (c *GeminiClient) Vision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	return firstChoice(resp)
}

// Complete sends a text-only prompt and returns the raw model output.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	return firstChoice(resp)
}

func firstChoice(resp *openai.ChatCompletion) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
