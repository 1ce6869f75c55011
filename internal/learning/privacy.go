package learning

import (
	"regexp"
	"strings"

	"github.com/mwaldrop/lore/internal/errors"
)

// privateTagRegex matches <private>...</private> blocks and their contents.
var privateTagRegex = regexp.MustCompile(`(?is)<private>.*?</private>`)

// secretPattern pairs a human-readable name with a detector.
type secretPattern struct {
	name string
	re   *regexp.Regexp
}

// secretPatterns are scanned after private blocks are stripped. A match
// rejects the whole content; nothing is persisted.
var secretPatterns = []secretPattern{
	{"aws access key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"private key block", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{"github token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"api secret key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`)},
	{"bearer token", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.=]{20,}\b`)},
	{"credential assignment", regexp.MustCompile(`(?i)\b(password|passwd|api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*['"]?[^\s'"]{8,}`)},
}

// StripPrivate removes all <private>...</private> blocks. Runs before both
// storage and the secret scan, so private blocks never trigger rejection.
func StripPrivate(s string) string {
	return strings.TrimSpace(privateTagRegex.ReplaceAllString(s, ""))
}

// FilterContent applies the privacy filter: private blocks are stripped,
// then the remainder is scanned for secret-like patterns. Returns the
// filtered content or a PRIVACY_VIOLATION error.
func FilterContent(content string) (string, error) {
	filtered := StripPrivate(content)
	if filtered == "" {
		return "", errors.NewInvalidRequest("content is empty after removing private blocks")
	}
	for _, p := range secretPatterns {
		if p.re.MatchString(filtered) {
			return "", errors.NewPrivacyViolation(p.name)
		}
	}
	return filtered, nil
}
