// Package store implements the knowledge-store operations: store with
// deduplication, ranked recall, version history, pruning, namespace
// management, and export. Every operation takes an explicit storage unit
// handle; there is no ambient state.
package store

import (
	"crypto/rand"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/judge"
	"github.com/mwaldrop/lore/internal/learning"
)

// StoreInput contains parameters for the Store operation.
type StoreInput struct {
	Content      string // required
	Type         string // required, validated against whitelist
	Tags         []string
	Confidence   string  // default: medium
	ProjectPath  *string // provenance
	Source       *string
	EventDate    *string // RFC3339; default: now
	SupersedesID *string // optional version link target
	RelationType string  // default: updates when SupersedesID set
	AutoCaptured bool
}

// StoreOutput contains the result of the Store operation.
type StoreOutput struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Store persists a new learning. Content is privacy-filtered, the dedup
// engine runs before any non-versioned insert, and a detected duplicate is
// an idempotent no-op returning the existing id with its access record
// touched. Versioned inserts (SupersedesID set) skip dedup: a revision is
// expected to resemble its parent.
func Store(unit *db.Unit, cfg *config.Config, indexer judge.Indexer, input StoreInput) (*StoreOutput, error) {
	content, err := learning.FilterContent(input.Content)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(content) > cfg.MaxContentChars {
		return nil, errors.NewInvalidRequest(
			fmt.Sprintf("content exceeds maximum length of %d characters", cfg.MaxContentChars))
	}

	if err := learning.ValidateType(input.Type); err != nil {
		return nil, err
	}
	confidence, err := learning.ValidateConfidence(input.Confidence)
	if err != nil {
		return nil, err
	}

	now := learning.Now()
	eventDate := now
	if input.EventDate != nil {
		t, err := time.Parse(time.RFC3339, *input.EventDate)
		if err != nil {
			return nil, errors.NewInvalidRequest("event_date must be RFC3339")
		}
		eventDate = t.UTC().Format(time.RFC3339)
	}

	var relationType string
	if input.SupersedesID != nil {
		relationType, err = learning.ValidateRelationType(input.RelationType)
		if err != nil {
			return nil, err
		}
		exists, err := unit.LearningExists(*input.SupersedesID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.NewNotFound(*input.SupersedesID)
		}
	} else {
		if existingID, err := FindDuplicate(unit, cfg, content, input.Type); err != nil {
			return nil, err
		} else if existingID != "" {
			if err := unit.TouchAccess(existingID); err != nil {
				return nil, err
			}
			return &StoreOutput{ID: existingID, Duplicate: true}, nil
		}
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	l := &learning.Learning{
		ID:          id,
		Content:     content,
		Type:        input.Type,
		Tags:        learning.MergeTags(input.Tags, nil),
		Confidence:  confidence,
		ProjectPath: input.ProjectPath,
		Source:      input.Source,
		CreatedAt:   now,
		EventDate:   eventDate,
	}

	if err := unit.InsertLearning(l); err != nil {
		return nil, err
	}

	if input.AutoCaptured {
		if err := unit.EnsureAccess(id, true); err != nil {
			return nil, err
		}
	}

	if input.SupersedesID != nil {
		if err := unit.InsertRelation(id, *input.SupersedesID, relationType); err != nil {
			return nil, err
		}
	}

	if indexer != nil {
		indexer.AutoIndex(id)
	}

	return &StoreOutput{ID: id, CreatedAt: now}, nil
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
