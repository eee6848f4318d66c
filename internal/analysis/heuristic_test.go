package analysis

import (
	"strings"
	"testing"
)

func TestWordCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"two  words", 2},
		{"line\nbreaks\tcount too", 4},
	}
	for _, tt := range tests {
		if got := WordCount(tt.text); got != tt.want {
			t.Errorf("WordCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestFleschKincaid(t *testing.T) {
	grade, score := FleschKincaid("")
	if grade != 0 || score != 0 {
		t.Errorf("empty text should score zero, got grade=%v score=%v", grade, score)
	}

	simpleGrade, simpleScore := FleschKincaid("The cat sat. The dog ran. We all had fun.")
	complexGrade, complexScore := FleschKincaid(
		"Organizational transformation necessitates comprehensive stakeholder alignment " +
			"across multidimensional operational infrastructures and hierarchical governance.")

	if simpleGrade >= complexGrade {
		t.Errorf("simple text should grade lower: %v vs %v", simpleGrade, complexGrade)
	}
	if simpleScore <= complexScore {
		t.Errorf("simple text should read easier: %v vs %v", simpleScore, complexScore)
	}
	if simpleGrade < 0 || complexScore < 0 || complexScore > 100 {
		t.Error("scores must be clamped")
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		label string
	}{
		{"positive", "This is amazing and wonderful, best launch", "positive"},
		{"negative", "terrible awful broken mess", "negative"},
		{"neutral", "The meeting is at three on Thursday", "neutral"},
		{"empty", "", "neutral"},
		{"mixed cancels out", strings.Repeat("word ", 200) + "good bad", "neutral"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeSentiment(tt.text)
			if got.Label != tt.label {
				t.Errorf("got %q (score %v), want %q", got.Label, got.Score, tt.label)
			}
			if got.Score < -1 || got.Score > 1 {
				t.Errorf("score out of range: %v", got.Score)
			}
		})
	}
}

func TestEngagementScore(t *testing.T) {
	if got := EngagementScore(""); got != 0 {
		t.Errorf("empty text should score 0, got %v", got)
	}

	plain := EngagementScore("just some words here without any hooks at all whatsoever today")
	hooked := EngagementScore(strings.Repeat("solid content ", 30) +
		"What do you think? Share your top 3 ideas below!")
	if hooked <= plain {
		t.Errorf("questions and CTAs should raise the score: %v vs %v", hooked, plain)
	}
	if hooked > 1 {
		t.Errorf("score must be clamped to 1, got %v", hooked)
	}
}

func TestEngagementTipsAlwaysThree(t *testing.T) {
	texts := []string{
		"",
		"short",
		"Do you like this? Share it! Click to follow for more content from us.",
		strings.Repeat("word ", 600),
	}
	for _, text := range texts {
		tips := EngagementTips(text)
		if len(tips) != 3 {
			t.Errorf("EngagementTips(%.20q...) returned %d tips", text, len(tips))
		}
		seen := map[string]bool{}
		for _, tip := range tips {
			if seen[tip] {
				t.Errorf("duplicate tip %q", tip)
			}
			seen[tip] = true
		}
	}
}

func TestBasicHashtags(t *testing.T) {
	tags := BasicHashtags("kubernetes kubernetes kubernetes deployment deployment cloud a an the")
	if len(tags) == 0 {
		t.Fatal("expected hashtags")
	}
	if tags[0].Tag != "#kubernetes" {
		t.Errorf("most frequent word should rank first, got %q", tags[0].Tag)
	}
	for _, tag := range tags {
		if !strings.HasPrefix(tag.Tag, "#") {
			t.Errorf("tag missing # prefix: %q", tag.Tag)
		}
		if tag.Score < 0 || tag.Score > 1 {
			t.Errorf("score out of range: %v", tag.Score)
		}
		if len(tag.Tag) <= 4 {
			t.Errorf("short words should be filtered, got %q", tag.Tag)
		}
	}

	if tags := BasicHashtags("a an it to"); tags == nil || len(tags) != 0 {
		t.Errorf("only short words should yield an empty list, got %v", tags)
	}

	many := strings.Repeat("alpha bravo charlie delta echo foxtrot golfing hotels indigo juliet kilos limas ", 2)
	if got := BasicHashtags(many); len(got) > 10 {
		t.Errorf("expected at most 10 hashtags, got %d", len(got))
	}
}

func TestBasicEmojis(t *testing.T) {
	for _, label := range []string{"positive", "negative", "neutral", "anything"} {
		if got := BasicEmojis(label); len(got) != 5 {
			t.Errorf("expected 5 emoji for %q, got %d", label, len(got))
		}
	}
}

func TestBasicAnalysisIsComplete(t *testing.T) {
	result := BasicAnalysis("A great and wonderful announcement. We shipped 3 features! What do you think? " +
		strings.Repeat("Details about the release process and rollout plan. ", 5))

	if result.WordCount == 0 {
		t.Error("missing word count")
	}
	if result.Sentiment.Label != "positive" {
		t.Errorf("expected positive sentiment, got %q", result.Sentiment.Label)
	}
	if len(result.Hashtags) == 0 {
		t.Error("missing hashtags")
	}
	if len(result.EmojiSuggestions) != 5 {
		t.Errorf("expected 5 emoji, got %d", len(result.EmojiSuggestions))
	}
	if len(result.EngagementTips) != 3 {
		t.Errorf("expected 3 tips, got %d", len(result.EngagementTips))
	}
	if result.ImprovedText.Twitter == "" || result.ImprovedText.Instagram == "" || result.ImprovedText.LinkedIn == "" {
		t.Error("all rewrites should be populated")
	}
}

func TestHashtagsWithRationale(t *testing.T) {
	tags := HashtagsWithRationale("golang golang concurrency")
	if len(tags) == 0 {
		t.Fatal("expected tags")
	}
	for _, tag := range tags {
		if !strings.Contains(tag.Rationale, "Popular term") {
			t.Errorf("missing rationale on %q: %q", tag.Tag, tag.Rationale)
		}
	}
}
