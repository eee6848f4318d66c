// Package aijson extracts JSON objects from raw model output. Models often
// wrap JSON in prose or markdown fences; callers salvage the object between
// the first '{' and the last '}' before parsing.
package aijson

import (
	"errors"
	"strings"
)

// ErrNoObject is returned when the raw text contains no JSON object.
var ErrNoObject = errors.New("no JSON object found in response")

// SalvageObject returns the substring spanning the first '{' through the
// last '}' of raw. It does not validate that the span parses.
func SalvageObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoObject
	}
	return raw[start : end+1], nil
}
