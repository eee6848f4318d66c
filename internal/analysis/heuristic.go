package analysis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
	wordCharsRe     = regexp.MustCompile(`[^\w\s]`)
	numberRe        = regexp.MustCompile(`\b\d+\b`)
	syllableGroupRe = regexp.MustCompile(`[aeiouy]{1,2}`)
	silentSuffixRe  = regexp.MustCompile(`(?:[^laeiouy]es|ed|[^laeiouy]e)$`)
)

var positiveWords = map[string]bool{
	"amazing": true, "awesome": true, "excellent": true, "fantastic": true,
	"great": true, "wonderful": true, "brilliant": true, "outstanding": true,
	"superb": true, "magnificent": true, "incredible": true, "perfect": true,
	"beautiful": true, "love": true, "best": true, "good": true, "nice": true,
	"happy": true, "excited": true, "thrilled": true, "delighted": true,
	"pleased": true, "satisfied": true,
}

var negativeWords = map[string]bool{
	"terrible": true, "awful": true, "horrible": true, "bad": true,
	"worst": true, "hate": true, "disgusting": true, "disappointing": true,
	"frustrating": true, "annoying": true, "sad": true, "angry": true,
	"upset": true, "depressed": true, "worried": true, "concerned": true,
	"difficult": true, "problem": true, "issue": true, "fail": true,
	"failed": true, "broken": true, "wrong": true, "error": true,
	"mistake": true,
}

var ctaWords = []string{
	"click", "share", "comment", "like", "follow",
	"subscribe", "join", "try", "get", "download",
}

var defaultTips = []string{
	"Use emojis to make content more engaging",
	"Share personal experiences or stories",
	"Post at optimal times for your audience",
	"Use trending hashtags relevant to your content",
	"Respond quickly to comments and messages",
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// FleschKincaid returns the Flesch-Kincaid grade level and the Flesch
// reading-ease score (clamped to [0, 100]).
func FleschKincaid(text string) (grade, score float64) {
	sentences := 0
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	words := strings.Fields(text)
	if sentences == 0 || len(words) == 0 {
		return 0, 0
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	avgSentenceLen := float64(len(words)) / float64(sentences)
	avgSyllables := float64(syllables) / float64(len(words))

	score = 206.835 - 1.015*avgSentenceLen - 84.6*avgSyllables
	grade = 0.39*avgSentenceLen + 11.8*avgSyllables - 15.59

	grade = math.Max(0, math.Round(grade*10)/10)
	score = math.Max(0, math.Min(100, math.Round(score*10)/10))
	return grade, score
}

// countSyllables estimates syllables by counting vowel groups after
// stripping common silent suffixes.
func countSyllables(word string) int {
	word = strings.ToLower(word)
	if len(word) <= 3 {
		return 1
	}
	word = silentSuffixRe.ReplaceAllString(word, "")
	word = strings.TrimPrefix(word, "y")

	n := len(syllableGroupRe.FindAllString(word, -1))
	if n == 0 {
		return 1
	}
	return n
}

// AnalyzeSentiment does a bag-of-words polarity lookup. The label flips at
// a net polarity of ±0.01 per word.
func AnalyzeSentiment(text string) Sentiment {
	words := strings.Fields(strings.ToLower(text))
	positive, negative := 0, 0
	for _, w := range words {
		if positiveWords[w] {
			positive++
		}
		if negativeWords[w] {
			negative++
		}
	}

	if positive+negative == 0 || len(words) == 0 {
		return Sentiment{Label: "neutral", Score: 0}
	}

	score := float64(positive-negative) / float64(len(words))
	switch {
	case score > 0.01:
		return Sentiment{Label: "positive", Score: math.Min(1, score*10)}
	case score < -0.01:
		return Sentiment{Label: "negative", Score: math.Max(-1, score*10)}
	default:
		return Sentiment{Label: "neutral", Score: 0}
	}
}

// EngagementScore estimates how likely text is to drive interaction,
// clamped to [0, 1].
func EngagementScore(text string) float64 {
	score := 0.0
	lower := strings.ToLower(text)

	wordCount := len(strings.Fields(text))
	switch {
	case wordCount >= 50 && wordCount <= 300:
		score += 0.2
	case wordCount >= 20 && wordCount <= 500:
		score += 0.1
	}

	questions := strings.Count(text, "?")
	score += math.Min(0.2, float64(questions)*0.1)

	exclamations := strings.Count(text, "!")
	if exclamations >= 1 && exclamations <= 3 {
		score += 0.1
	}

	ctaHits := 0
	for _, w := range ctaWords {
		if strings.Contains(lower, w) {
			ctaHits++
		}
	}
	score += math.Min(0.2, float64(ctaHits)*0.05)

	numbers := len(numberRe.FindAllString(text, -1))
	score += math.Min(0.15, float64(numbers)*0.03)

	return math.Min(1, math.Max(0, score))
}

// EngagementTips returns exactly three short tips tailored to the text,
// padded from a fixed list when fewer than three apply.
func EngagementTips(text string) []string {
	var tips []string
	lower := strings.ToLower(text)
	wordCount := len(strings.Fields(text))

	if wordCount < 20 {
		tips = append(tips, "Add more detail to increase engagement")
	} else if wordCount > 500 {
		tips = append(tips, "Consider shortening for better readability")
	}
	if !strings.Contains(text, "?") {
		tips = append(tips, "Add questions to encourage interaction")
	}
	if !strings.Contains(text, "!") {
		tips = append(tips, "Use exclamation points to show enthusiasm")
	}

	hasCTA := false
	for _, w := range []string{"click", "share", "comment", "like", "follow"} {
		if strings.Contains(lower, w) {
			hasCTA = true
			break
		}
	}
	if !hasCTA {
		tips = append(tips, "Include a clear call-to-action")
	}

	for _, tip := range defaultTips {
		if len(tips) >= 3 {
			break
		}
		duplicate := false
		for _, t := range tips {
			if t == tip {
				duplicate = true
				break
			}
		}
		if !duplicate {
			tips = append(tips, tip)
		}
	}

	return tips[:3]
}

// BasicHashtags ranks words longer than three characters by frequency,
// scaled by relative frequency, at most ten.
func BasicHashtags(text string) []Hashtag {
	cleaned := wordCharsRe.ReplaceAllString(strings.ToLower(text), "")
	words := strings.Fields(cleaned)

	freq := make(map[string]int)
	total := 0
	for _, w := range words {
		if len(w) > 3 {
			freq[w]++
			total++
		}
	}
	if total == 0 {
		return []Hashtag{}
	}

	type entry struct {
		word  string
		count int
	}
	entries := make([]entry, 0, len(freq))
	for w, c := range freq {
		entries = append(entries, entry{w, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].word < entries[j].word
	})

	if len(entries) > 10 {
		entries = entries[:10]
	}
	hashtags := make([]Hashtag, len(entries))
	for i, e := range entries {
		hashtags[i] = Hashtag{
			Tag:   "#" + e.word,
			Score: math.Min(1, float64(e.count)/float64(total)*10),
		}
	}
	return hashtags
}

// BasicEmojis returns a sentiment-keyed set of up to five emoji.
func BasicEmojis(sentimentLabel string) []string {
	switch sentimentLabel {
	case "positive":
		return []string{"🚀", "✨", "🔥", "💯", "🎉"}
	case "negative":
		return []string{"😔", "💭", "🤷", "📉", "⚠️"}
	default:
		return []string{"📝", "💭", "🤔", "📊", "🎯"}
	}
}

// BasicAnalysis computes the full heuristic analysis. It always returns a
// complete result with all fields populated.
func BasicAnalysis(text string) *Result {
	grade, _ := FleschKincaid(text)
	sentiment := AnalyzeSentiment(text)

	return &Result{
		WordCount:        WordCount(text),
		ReadingGrade:     grade,
		Sentiment:        sentiment,
		Hashtags:         BasicHashtags(text),
		EmojiSuggestions: BasicEmojis(sentiment.Label),
		EngagementScore:  EngagementScore(text),
		EngagementTips:   EngagementTips(text),
		ImprovedText: ImprovedText{
			Twitter:   TwitterVersion(text),
			Instagram: InstagramVersion(text),
			LinkedIn:  LinkedInVersion(text),
		},
	}
}

// HashtagsWithRationale converts basic hashtags into the rationale form
// used by the hashtag-only operation.
func HashtagsWithRationale(text string) []Hashtag {
	tags := BasicHashtags(text)
	for i := range tags {
		tags[i].Rationale = fmt.Sprintf("Popular term (score: %.2f)", tags[i].Score)
	}
	return tags
}
