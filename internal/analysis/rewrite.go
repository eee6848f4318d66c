package analysis

import (
	"strings"
	"unicode/utf8"
)

// Platform character limits and truncation cut points.
const (
	twitterLimit   = 280
	twitterCut     = 270
	instagramLimit = 2200
	instagramCut   = 2190
	linkedInReflow = 1300
	linkedInBlock  = 300
)

// TwitterVersion truncates text to fit Twitter's limit, cutting at the last
// space before the cut point when one exists reasonably close to the end.
func TwitterVersion(text string) string {
	return truncateAtSpace(text, twitterLimit, twitterCut, 200)
}

// InstagramVersion truncates text to fit Instagram's caption limit.
func InstagramVersion(text string) string {
	return truncateAtSpace(text, instagramLimit, instagramCut, 2000)
}

func truncateAtSpace(text string, limit, cut, minSpace int) string {
	if len(text) <= limit {
		return text
	}
	truncated := strings.TrimSpace(text[:runeBoundary(text, cut)])
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > minSpace {
		return truncated[:lastSpace] + "..."
	}
	return truncated + "..."
}

// runeBoundary backs n up to the start of the rune it lands inside, so
// slicing at the returned offset never splits a multibyte character.
func runeBoundary(text string, n int) int {
	if n >= len(text) {
		return len(text)
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return n
}

// LinkedInVersion reflows long single-paragraph text into ~300-character
// blocks separated by blank lines. LinkedIn has no hard limit; this is a
// readability transform only.
func LinkedInVersion(text string) string {
	if len(text) <= linkedInReflow {
		return text
	}

	var paragraphs []string
	for _, p := range strings.Split(text, "\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) != 1 {
		return text
	}

	var sentences []string
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, strings.TrimSpace(s))
		}
	}

	var blocks []string
	current := ""
	for _, sentence := range sentences {
		if len(current)+len(sentence) > linkedInBlock {
			if current != "" {
				blocks = append(blocks, strings.TrimSpace(current))
			}
			current = sentence + "."
		} else {
			current += sentence + "."
		}
	}
	if current != "" {
		blocks = append(blocks, strings.TrimSpace(current))
	}
	return strings.Join(blocks, "\n\n")
}

// Truncate returns at most n bytes of text, used for rewrite backfill when
// the AI response omits a platform.
func Truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:runeBoundary(text, n)]
}
