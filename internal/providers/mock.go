package providers

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scriptable AIClient for tests. Responses are returned in
// order; when the script is exhausted the last entry repeats.
type MockClient struct {
	mu sync.Mutex

	// VisionResponses and CompleteResponses are consumed in order.
	VisionResponses   []MockResponse
	CompleteResponses []MockResponse

	visionCalls   int
	completeCalls int
}

// MockResponse is a single scripted reply.
type MockResponse struct {
	Text string
	Err  error
}

// NewMockClient creates a mock that errors on every call until scripted.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Name() string { return "mock" }

// Vision returns the next scripted vision response.
func (m *MockClient) Vision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visionCalls++
	return next(m.VisionResponses, m.visionCalls)
}

// Complete returns the next scripted completion response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	return next(m.CompleteResponses, m.completeCalls)
}

// VisionCalls returns how many vision calls were made.
func (m *MockClient) VisionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visionCalls
}

// CompleteCalls returns how many completion calls were made.
func (m *MockClient) CompleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCalls
}

func next(script []MockResponse, call int) (string, error) {
	if len(script) == 0 {
		return "", fmt.Errorf("mock: no scripted response")
	}
	idx := call - 1
	if idx >= len(script) {
		idx = len(script) - 1
	}
	r := script[idx]
	return r.Text, r.Err
}
