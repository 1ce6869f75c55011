package db

import (
	"database/sql"
	"strings"

	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/learning"
)

// InsertRelation creates a directed version edge. The partial unique index
// rejects a second outgoing "updates" edge for the same learning.
func (u *Unit) InsertRelation(id, supersedesID, relationType string) error {
	_, err := u.DB.Exec(`
		INSERT INTO relations (id, supersedes_id, relation_type, created_at)
		VALUES (?, ?, ?, ?)`,
		id, supersedesID, relationType, learning.Now(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.NewConflict("relation already exists or learning already has an updates link")
		}
		return errors.NewInternal(err)
	}
	return nil
}

// OutgoingRelations returns edges where the learning is the superseder
// (its ancestors are one hop away via supersedes_id).
func (u *Unit) OutgoingRelations(id string) ([]learning.Relation, error) {
	return u.queryRelations(`
		SELECT id, supersedes_id, relation_type, created_at
		FROM relations WHERE id = ?
		ORDER BY created_at ASC`, id)
}

// IncomingRelations returns edges where the learning is superseded
// (its descendants are one hop away via id).
func (u *Unit) IncomingRelations(id string) ([]learning.Relation, error) {
	return u.queryRelations(`
		SELECT id, supersedes_id, relation_type, created_at
		FROM relations WHERE supersedes_id = ?
		ORDER BY created_at ASC`, id)
}

// NextInUpdatesChain returns the id of the learning that supersedes id via
// an "updates" edge, or empty string at the chain's end. With malformed
// data several updates edges can point at the same parent; the newest wins.
func (u *Unit) NextInUpdatesChain(id string) (string, error) {
	var next string
	err := u.DB.QueryRow(`
		SELECT id FROM relations
		WHERE supersedes_id = ? AND relation_type = ?
		ORDER BY created_at DESC LIMIT 1`,
		id, learning.RelationUpdates,
	).Scan(&next)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return next, nil
}

// RepointRelations redirects edges referencing a removed duplicate to the
// dedup survivor, dropping self-loops and edges that would collide with
// existing ones.
func (u *Unit) RepointRelations(duplicateID, survivorID string) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{`UPDATE OR IGNORE relations SET id = ? WHERE id = ?`, []any{survivorID, duplicateID}},
		{`UPDATE OR IGNORE relations SET supersedes_id = ? WHERE supersedes_id = ?`, []any{survivorID, duplicateID}},
		// Edges that could not be repointed (conflicts) and self-loops
		// created by the merge are dropped with the duplicate.
		{`DELETE FROM relations WHERE id = ? OR supersedes_id = ?`, []any{duplicateID, duplicateID}},
		{`DELETE FROM relations WHERE id = supersedes_id`, nil},
	}
	for _, s := range stmts {
		if _, err := u.DB.Exec(s.query, s.args...); err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

// CountRelations returns the total number of relation edges.
func (u *Unit) CountRelations() (int, error) {
	var n int
	if err := u.DB.QueryRow(`SELECT COUNT(*) FROM relations`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func (u *Unit) queryRelations(query string, args ...any) ([]learning.Relation, error) {
	rows, err := u.DB.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var result []learning.Relation
	for rows.Next() {
		var r learning.Relation
		if err := rows.Scan(&r.ID, &r.SupersedesID, &r.RelationType, &r.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// UpsertPatternMeta creates or updates the pattern metadata companion row.
func (u *Unit) UpsertPatternMeta(m *learning.PatternMetadata) error {
	_, err := u.DB.Exec(`
		INSERT INTO pattern_metadata (
			learning_id, strategy, quality, failure_mode,
			input_tokens, output_tokens, estimated_cost
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(learning_id) DO UPDATE SET
			strategy = excluded.strategy,
			quality = excluded.quality,
			failure_mode = excluded.failure_mode,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			estimated_cost = excluded.estimated_cost`,
		m.LearningID, m.Strategy, m.Quality, m.FailureMode,
		m.InputTokens, m.OutputTokens, m.EstimatedCost,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetPatternMeta returns pattern metadata for a learning, or nil.
func (u *Unit) GetPatternMeta(id string) (*learning.PatternMetadata, error) {
	var m learning.PatternMetadata
	err := u.DB.QueryRow(`
		SELECT learning_id, COALESCE(strategy, ''), COALESCE(quality, ''),
		       COALESCE(failure_mode, ''), input_tokens, output_tokens, estimated_cost
		FROM pattern_metadata WHERE learning_id = ?`, id,
	).Scan(&m.LearningID, &m.Strategy, &m.Quality, &m.FailureMode,
		&m.InputTokens, &m.OutputTokens, &m.EstimatedCost)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &m, nil
}

// CountPatternMeta returns the number of pattern metadata rows.
func (u *Unit) CountPatternMeta() (int, error) {
	var n int
	if err := u.DB.QueryRow(`SELECT COUNT(*) FROM pattern_metadata`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}
