// Package results persists finished job output in Redis with a TTL so
// callers can poll for it after the job completes.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumio-app/lumio/internal/analysis"
	"github.com/lumio-app/lumio/internal/extract"
)

// ErrNotFound is returned when no result exists for a job ID, either
// because the job is unknown or the result's TTL expired.
var ErrNotFound = errors.New("result not found")

const keyPrefix = "lumio:result:"

// DefaultTTL matches the job state TTL so a job and its result
// disappear together.
const DefaultTTL = 24 * time.Hour

// Meta carries processing details alongside the document output.
type Meta struct {
	Engine           extract.Engine `json:"engine"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
	PIIDetected      bool           `json:"piiDetected"`
	Partial          bool           `json:"partial"`
	PagesProcessed   int            `json:"pagesProcessed"`
	PagesTotal       int            `json:"pagesTotal"`
}

// JobResult is the finished output of a document job.
type JobResult struct {
	ID            string           `json:"id"`
	Filename      string           `json:"filename"`
	ExtractedText string           `json:"extractedText"`
	Analysis      *analysis.Result `json:"analysis"`
	Meta          Meta             `json:"meta"`
	CompletedAt   time.Time        `json:"completedAt"`
}

// Store reads and writes job results.
type Store struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// New creates a Store. ttl <= 0 takes DefaultTTL.
func New(client *redis.Client, logger *slog.Logger, ttl time.Duration) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client: client,
		logger: logger.With("component", "results"),
		ttl:    ttl,
	}
}

func key(id string) string { return keyPrefix + id }

// Save persists a job result under its TTL.
func (s *Store) Save(ctx context.Context, result *JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := s.client.Set(ctx, key(result.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist result: %w", err)
	}
	s.logger.Info("result persisted", "job_id", result.ID, "ttl", s.ttl)
	return nil
}

// Get loads a job result.
func (s *Store) Get(ctx context.Context, id string) (*JobResult, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	var result JobResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &result, nil
}

// Delete removes a stored result. Unknown IDs are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}
