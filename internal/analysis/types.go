// Package analysis turns plain text into structured social-media content
// analysis. The primary engine asks the AI backend for the full analysis as
// strict JSON; the heuristic engine computes everything locally and is used
// when the AI path exhausts its retries or returns unusable output.
package analysis

// Platform identifies a rewrite target.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
)

// AllPlatforms is the default target set.
var AllPlatforms = []Platform{PlatformTwitter, PlatformInstagram, PlatformLinkedIn}

// Sentiment is a polarity label with a score in [-1, 1].
type Sentiment struct {
	Label string  `json:"label"` // "positive", "neutral", "negative"
	Score float64 `json:"score"`
}

// Hashtag is a ranked hashtag suggestion.
type Hashtag struct {
	Tag       string  `json:"tag"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale,omitempty"`
}

// ImprovedText holds platform-specific rewrites. Unrequested platforms are
// emptied before the result is returned.
type ImprovedText struct {
	Twitter   string `json:"twitter"`
	Instagram string `json:"instagram"`
	LinkedIn  string `json:"linkedin"`
}

// Result is the complete content analysis for a piece of text.
type Result struct {
	WordCount        int          `json:"wordCount"`
	ReadingGrade     float64      `json:"readingGrade"`
	Sentiment        Sentiment    `json:"sentiment"`
	Hashtags         []Hashtag    `json:"hashtags"`
	EmojiSuggestions []string     `json:"emojiSuggestions"`
	EngagementScore  float64      `json:"engagementScore"`
	EngagementTips   []string     `json:"engagementTips"`
	ImprovedText     ImprovedText `json:"improvedText"`

	// CacheHit is true when the result was served from the analysis cache.
	// Not persisted with the cached value itself.
	CacheHit bool `json:"-"`
}

// FilterTargets blanks out rewrites for platforms the caller did not request.
func (r *Result) FilterTargets(targets []Platform) {
	want := make(map[Platform]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	if !want[PlatformTwitter] {
		r.ImprovedText.Twitter = ""
	}
	if !want[PlatformInstagram] {
		r.ImprovedText.Instagram = ""
	}
	if !want[PlatformLinkedIn] {
		r.ImprovedText.LinkedIn = ""
	}
}
