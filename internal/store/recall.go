package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/learning"
)

// Recall modes.
const (
	ModeSearch = "search"
	ModeRecent = "recent"
	ModeShared = "shared"
)

const defaultRecallLimit = 10

// RecallInput contains parameters for the Recall operation.
type RecallInput struct {
	Query      string // required except in recent mode
	Mode       string // search (default), recent, shared
	Limit      int    // default 10
	Type       string // whitelist-validated filter
	Project    string
	MaxAgeDays int
	AutoOnly   bool
	ManualOnly bool
}

// RecallResult is one recall hit.
type RecallResult struct {
	learning.Learning
	Score       float64 `json:"score"`
	AccessCount int     `json:"access_count"`
	Namespace   string  `json:"namespace,omitempty"`
}

// RecallOutput contains the result of the Recall operation.
type RecallOutput struct {
	Results []RecallResult `json:"results"`
	Mode    string         `json:"mode"`
}

// Recall searches the unit. Search mode ranks by full-text relevance with
// the query treated as a literal phrase; recent mode returns the newest
// entries regardless of query; shared mode merges namespace and global
// results by score. Every returned learning has its access record touched.
// global may be nil and is only consulted in shared mode from a
// namespace-scoped unit.
func Recall(unit, global *db.Unit, input RecallInput) (*RecallOutput, error) {
	mode := input.Mode
	if mode == "" {
		mode = ModeSearch
	}
	switch mode {
	case ModeSearch, ModeRecent, ModeShared:
	default:
		return nil, errors.NewInvalidRequest(
			fmt.Sprintf("mode must be one of: %s, %s, %s", ModeSearch, ModeRecent, ModeShared))
	}
	if mode != ModeRecent && input.Query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	filters, err := buildFilters(input)
	if err != nil {
		return nil, err
	}

	out := &RecallOutput{Mode: mode}
	switch mode {
	case ModeRecent:
		rows, err := unit.RecentLearnings(filters, limit)
		if err != nil {
			return nil, err
		}
		out.Results, err = touchResults(unit, rows, unit.Namespace)
		if err != nil {
			return nil, err
		}

	case ModeSearch:
		rows, err := unit.SearchFullText(input.Query, filters, limit)
		if err != nil {
			return nil, err
		}
		out.Results, err = touchResults(unit, rows, unit.Namespace)
		if err != nil {
			return nil, err
		}

	case ModeShared:
		rows, err := unit.SearchFullText(input.Query, filters, limit)
		if err != nil {
			return nil, err
		}
		results, err := touchResults(unit, rows, unit.Namespace)
		if err != nil {
			return nil, err
		}
		if global != nil && global.Path != unit.Path {
			globalRows, err := global.SearchFullText(input.Query, filters, limit)
			if err != nil {
				return nil, err
			}
			globalResults, err := touchResults(global, globalRows, "")
			if err != nil {
				return nil, err
			}
			results = append(results, globalResults...)
			// bm25 scores ascend as relevance drops.
			sort.SliceStable(results, func(i, j int) bool {
				return results[i].Score < results[j].Score
			})
			if len(results) > limit {
				results = results[:limit]
			}
		}
		out.Results = results
	}
	return out, nil
}

// buildFilters validates recall filters before they reach the query layer.
func buildFilters(input RecallInput) (db.SearchFilters, error) {
	var filters db.SearchFilters
	if input.Type != "" {
		if err := learning.ValidateType(input.Type); err != nil {
			return filters, err
		}
		filters.Type = input.Type
	}
	if input.MaxAgeDays < 0 {
		return filters, errors.NewInvalidRequest("max_age_days must be non-negative")
	}
	if input.MaxAgeDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -input.MaxAgeDays)
		filters.CreatedFrom = cutoff.Format(time.RFC3339)
	}
	if input.AutoOnly && input.ManualOnly {
		return filters, errors.NewInvalidRequest("auto_only and manual_only are mutually exclusive")
	}
	filters.Project = input.Project
	filters.AutoOnly = input.AutoOnly
	filters.ManualOnly = input.ManualOnly
	return filters, nil
}

// touchResults records an access for every returned row and reports the
// post-touch count.
func touchResults(unit *db.Unit, rows []db.SearchRow, namespace string) ([]RecallResult, error) {
	results := make([]RecallResult, 0, len(rows))
	for _, row := range rows {
		if err := unit.TouchAccess(row.ID); err != nil {
			return nil, err
		}
		results = append(results, RecallResult{
			Learning:    row.Learning,
			Score:       row.Score,
			AccessCount: row.AccessCount + 1,
			Namespace:   namespace,
		})
	}
	return results, nil
}
