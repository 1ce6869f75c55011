package store

import (
	"fmt"

	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/learning"
)

// ClassifyPatternInput contains parameters for the pattern classification
// operation.
type ClassifyPatternInput struct {
	ID            string
	Strategy      string
	Quality       string
	FailureMode   string
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
}

// ClassifyPatternOutput contains the result of the pattern classification
// operation.
type ClassifyPatternOutput struct {
	Pattern *learning.PatternMetadata `json:"pattern"`
}

// ClassifyPattern attaches or updates pattern metadata on a learning.
// Only performance-pattern learnings carry this companion row.
func ClassifyPattern(unit *db.Unit, input ClassifyPatternInput) (*ClassifyPatternOutput, error) {
	if input.ID == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	l, err := unit.GetLearning(input.ID)
	if err != nil {
		return nil, err
	}
	if l.Type != learning.PatternType {
		return nil, errors.NewInvalidRequest(
			fmt.Sprintf("pattern metadata applies only to %s learnings, got %s", learning.PatternType, l.Type))
	}

	meta := &learning.PatternMetadata{
		LearningID:    input.ID,
		Strategy:      input.Strategy,
		Quality:       input.Quality,
		FailureMode:   input.FailureMode,
		InputTokens:   input.InputTokens,
		OutputTokens:  input.OutputTokens,
		EstimatedCost: input.EstimatedCost,
	}
	if err := unit.UpsertPatternMeta(meta); err != nil {
		return nil, err
	}
	return &ClassifyPatternOutput{Pattern: meta}, nil
}
