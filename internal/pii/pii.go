// Package pii provides best-effort syntactic detection and redaction of
// personally identifiable information in extracted text. It matches fixed
// formats only; non-standard formats are expected to slip through.
package pii

import "regexp"

// pattern pairs a PII regex with its redaction placeholder.
type pattern struct {
	re          *regexp.Regexp
	replacement string
}

var patterns = []pattern{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED-SSN]"},
	{regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\s?\d{4}\b`), "[REDACTED-CARD]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED-EMAIL]"},
	{regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`), "[REDACTED-PHONE]"},
}

// Detect reports whether text contains any recognized PII pattern.
func Detect(text string) bool {
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Scan redacts all recognized PII spans with category-specific placeholders
// and reports whether anything was found. The SSN pattern is applied before
// the phone pattern so nnn-nn-nnnn is not half-consumed as a phone number.
func Scan(text string) (string, bool) {
	detected := false
	for _, p := range patterns {
		if p.re.MatchString(text) {
			detected = true
			text = p.re.ReplaceAllString(text, p.replacement)
		}
	}
	return text, detected
}
