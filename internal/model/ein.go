// Package model defines the value types produced by the verification pipeline.
package model

import (
	"regexp"
	"strings"
)

var einDigitsRe = regexp.MustCompile(`^\d{9}$`)

// NormalizeEIN validates a raw EIN and returns its canonical dashed form
// (XX-XXXXXXX). Accepts the dashed form or 9 bare digits, with surrounding
// whitespace. Returns false for anything else; no partial parse.
func NormalizeEIN(raw string) (string, bool) {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
	if !einDigitsRe.MatchString(clean) {
		return "", false
	}
	return clean[:2] + "-" + clean[2:], true
}

// EINDigits strips the dash from a canonical EIN. The digits form is the
// cache and quota key for the identifier.
func EINDigits(ein string) string {
	return strings.ReplaceAll(ein, "-", "")
}
