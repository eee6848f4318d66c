// Package cache provides a best-effort, TTL-bound cache for expensive
// analysis results, keyed by a content fingerprint of the input text. A
// backend outage degrades to always-miss and never fails the caller.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lumio:cache:"

// DefaultTTL bounds cached entries when the caller passes no TTL.
const DefaultTTL = 24 * time.Hour

// Store is a Redis-backed fingerprint cache.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a cache store on an existing Redis client.
func New(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger.With("component", "cache")}
}

// Fingerprint returns the cache key for a piece of text: a SHA-256 of the
// exact input. Identical extracted text from different source files shares
// an entry, which is an intentional dedup optimization.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for text, or (nil, false) on miss or error.
func (s *Store) Get(ctx context.Context, text string) ([]byte, bool) {
	key := keyPrefix + Fingerprint(text)
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return val, true
}

// Set stores a value under the fingerprint of text. Errors are logged and
// swallowed.
func (s *Store) Set(ctx context.Context, text string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := keyPrefix + Fingerprint(text)
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn("cache set failed", "key", key, "error", err)
	}
}
