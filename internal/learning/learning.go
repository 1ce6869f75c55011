// Package learning defines the domain types for the knowledge store:
// learnings, their access records, version relations, and the validation
// rules shared by every operation.
package learning

import (
	"regexp"
	"strings"
	"time"

	"github.com/mwaldrop/lore/internal/errors"
)

// Learning is the atomic unit of stored knowledge. Content is immutable once
// created; edits happen via supersession, never in-place.
type Learning struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	Tags        []string `json:"tags,omitempty"`
	Confidence  string   `json:"confidence"`
	ProjectPath *string  `json:"project_path,omitempty"`
	Source      *string  `json:"source,omitempty"`
	CreatedAt   string   `json:"created_at"` // RFC3339 UTC
	EventDate   string   `json:"event_date"` // RFC3339 UTC, may precede CreatedAt
}

// AccessRecord tracks recall hits for one learning.
type AccessRecord struct {
	LearningID     string `json:"learning_id"`
	LastAccessedAt string `json:"last_accessed_at"`
	AccessCount    int    `json:"access_count"`
	AutoCaptured   bool   `json:"auto_captured"`
}

// Relation is a directed version edge: ID supersedes/extends/derives-from
// SupersedesID.
type Relation struct {
	ID           string `json:"id"`
	SupersedesID string `json:"supersedes_id"`
	RelationType string `json:"relation_type"`
	CreatedAt    string `json:"created_at"`
}

// PatternMetadata is the optional companion row for performance-pattern
// learnings.
type PatternMetadata struct {
	LearningID    string  `json:"learning_id"`
	Strategy      string  `json:"strategy,omitempty"`
	Quality       string  `json:"quality,omitempty"`
	FailureMode   string  `json:"failure_mode,omitempty"`
	InputTokens   int     `json:"input_tokens,omitempty"`
	OutputTokens  int     `json:"output_tokens,omitempty"`
	EstimatedCost float64 `json:"estimated_cost,omitempty"`
}

// Relation types.
const (
	RelationUpdates = "updates"
	RelationExtends = "extends"
	RelationDerives = "derives"
)

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Types lists the valid learning types.
var Types = []string{
	"WORKING_SOLUTION",
	"FAILURE_PATTERN",
	"ARCHITECTURE_DECISION",
	"PERFORMANCE_PATTERN",
	"DEBUGGING_INSIGHT",
	"PROJECT_CONVENTION",
	"TOOL_USAGE",
}

// PatternType is the only type that may carry PatternMetadata.
const PatternType = "PERFORMANCE_PATTERN"

var typeSet = func() map[string]bool {
	m := make(map[string]bool, len(Types))
	for _, t := range Types {
		m[t] = true
	}
	return m
}()

// ValidateType checks a learning type against the whitelist.
func ValidateType(t string) error {
	if !typeSet[t] {
		return errors.NewInvalidRequest("type must be one of: " + strings.Join(Types, ", "))
	}
	return nil
}

// ValidateConfidence checks a confidence value, defaulting empty to medium.
func ValidateConfidence(c string) (string, error) {
	switch c {
	case "":
		return ConfidenceMedium, nil
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, nil
	}
	return "", errors.NewInvalidRequest("confidence must be one of: high, medium, low")
}

// ValidateRelationType checks a relation type, defaulting empty to updates.
func ValidateRelationType(rt string) (string, error) {
	switch rt {
	case "":
		return RelationUpdates, nil
	case RelationUpdates, RelationExtends, RelationDerives:
		return rt, nil
	}
	return "", errors.NewInvalidRequest("relation type must be one of: updates, extends, derives")
}

// namespaceRegex validates namespace names: a letter followed by up to 39
// letters, digits, underscores, or hyphens.
var namespaceRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,39}$`)

// ValidateNamespace checks a namespace name. The empty name is the global
// namespace and is always valid.
func ValidateNamespace(name string) error {
	if name == "" {
		return nil
	}
	if !namespaceRegex.MatchString(name) {
		return errors.NewInvalidRequest("namespace must match ^[A-Za-z][A-Za-z0-9_-]{0,39}$")
	}
	return nil
}

// Now returns the current time as an RFC3339 UTC string, the canonical
// timestamp format for all persisted fields.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// AgeDays returns the whole days elapsed since an RFC3339 timestamp.
// Unparseable timestamps count as age zero so they are never prune-eligible.
func AgeDays(rfc3339 string) int {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return 0
	}
	return int(time.Since(t).Hours() / 24)
}

// MergeTags returns the union of two tag sets, preserving first-seen order.
func MergeTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	result := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
