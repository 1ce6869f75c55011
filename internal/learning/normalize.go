package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// punctRegex matches characters stripped during normalization: everything
// that is not a letter, digit, or whitespace.
var punctRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// whitespaceRegex matches one or more whitespace characters.
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize canonicalizes content for near-duplicate comparison:
// lowercase, punctuation stripped, whitespace collapsed to single spaces.
// "Fixed the bug!" and "fixed the bug" normalize identically.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = punctRegex.ReplaceAllString(s, "")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormHash returns the hex SHA-256 of the normalized content. Stored in an
// indexed column so normalized-equality checks are a single lookup.
func NormHash(content string) string {
	h := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(h[:])
}
