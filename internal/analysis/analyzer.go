package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/lumio-app/lumio/internal/providers"
)

// Default retry budgets for the AI path, with exponential backoff.
const (
	defaultAnalysisAttempts = 3
	defaultHashtagAttempts  = 2
	defaultRetryBaseDelay   = 1 * time.Second
	hashtagCacheTTL         = 1 * time.Hour
)

// Cache is the subset of the cache store the analyzer needs. Values are
// JSON-encoded; a nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, text string) ([]byte, bool)
	Set(ctx context.Context, text string, value []byte, ttl time.Duration)
}

// Analyzer runs the AI-then-heuristic analysis chain with caching.
type Analyzer struct {
	client      providers.AIClient
	cache       Cache
	logger      *slog.Logger
	attempts    uint
	baseDelay   time.Duration
	analysisTTL time.Duration
}

// Config configures an Analyzer. Zero values take defaults.
type Config struct {
	Client      providers.AIClient
	Cache       Cache
	Logger      *slog.Logger
	Attempts    uint
	BaseDelay   time.Duration
	AnalysisTTL time.Duration
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = defaultAnalysisAttempts
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = defaultRetryBaseDelay
	}
	if cfg.AnalysisTTL == 0 {
		cfg.AnalysisTTL = 24 * time.Hour
	}
	return &Analyzer{
		client:      cfg.Client,
		cache:       cfg.Cache,
		logger:      logger.With("component", "analysis"),
		attempts:    cfg.Attempts,
		baseDelay:   cfg.BaseDelay,
		analysisTTL: cfg.AnalysisTTL,
	}
}

// Analyze returns the content analysis for text, filtered to the requested
// target platforms. The cached value is always the unfiltered analysis so
// callers with different targets share an entry.
func (a *Analyzer) Analyze(ctx context.Context, text string, targets []Platform) (*Result, error) {
	if len(targets) == 0 {
		targets = AllPlatforms
	}

	if a.cache != nil {
		if data, ok := a.cache.Get(ctx, text); ok {
			var result Result
			if err := json.Unmarshal(data, &result); err == nil {
				result.CacheHit = true
				result.FilterTargets(targets)
				a.logger.Debug("analysis served from cache", "text_len", len(text))
				return &result, nil
			}
			a.logger.Warn("discarding undecodable cache entry")
		}
	}

	result := a.compute(ctx, text)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			a.cache.Set(ctx, text, data, a.analysisTTL)
		}
	}

	result.FilterTargets(targets)
	return result, nil
}

// compute runs the AI path with bounded retries and falls back to the
// heuristic engine. It always returns a complete result.
func (a *Analyzer) compute(ctx context.Context, text string) *Result {
	if a.client != nil {
		result, err := retry.DoWithData(
			func() (*Result, error) { return aiAnalyze(ctx, a.client, text) },
			retry.Context(ctx),
			retry.Attempts(a.attempts),
			retry.Delay(a.baseDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err == nil {
			a.logger.Debug("AI analysis completed", "provider", a.client.Name())
			return result
		}
		a.logger.Warn("AI analysis failed, using heuristic analysis", "error", err)
	}
	return BasicAnalysis(text)
}

// Hashtags runs the hashtag-only operation: AI with a smaller retry budget,
// heuristic frequency ranking as fallback, cached for one hour under a
// prefixed fingerprint so it never collides with full analyses.
func (a *Analyzer) Hashtags(ctx context.Context, text string) ([]Hashtag, error) {
	cacheKey := "hashtags:" + text

	if a.cache != nil {
		if data, ok := a.cache.Get(ctx, cacheKey); ok {
			var tags []Hashtag
			if err := json.Unmarshal(data, &tags); err == nil {
				return tags, nil
			}
		}
	}

	var tags []Hashtag
	if a.client != nil {
		got, err := retry.DoWithData(
			func() ([]Hashtag, error) { return aiHashtags(ctx, a.client, text) },
			retry.Context(ctx),
			retry.Attempts(defaultHashtagAttempts),
			retry.Delay(a.baseDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err == nil {
			tags = got
		} else {
			a.logger.Warn("AI hashtag generation failed, using frequency ranking", "error", err)
		}
	}
	if tags == nil {
		tags = HashtagsWithRationale(text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.cache != nil {
		if data, err := json.Marshal(tags); err == nil {
			a.cache.Set(ctx, cacheKey, data, hashtagCacheTTL)
		}
	}
	return tags, nil
}
