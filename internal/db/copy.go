package db

import (
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/learning"
)

// Bulk readers and insert-if-absent writers used by namespace migration.
// Insert-if-absent semantics make replayed migrations idempotent.

// AllRelations returns every relation edge.
func (u *Unit) AllRelations() ([]learning.Relation, error) {
	return u.queryRelations(`
		SELECT id, supersedes_id, relation_type, created_at
		FROM relations ORDER BY created_at ASC`)
}

// AllPatternMeta returns every pattern metadata row.
func (u *Unit) AllPatternMeta() ([]learning.PatternMetadata, error) {
	rows, err := u.DB.Query(`
		SELECT learning_id, strategy, quality, failure_mode,
		       input_tokens, output_tokens, estimated_cost
		FROM pattern_metadata`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var metas []learning.PatternMetadata
	for rows.Next() {
		var m learning.PatternMetadata
		if err := rows.Scan(
			&m.LearningID, &m.Strategy, &m.Quality, &m.FailureMode,
			&m.InputTokens, &m.OutputTokens, &m.EstimatedCost,
		); err != nil {
			return nil, errors.NewInternal(err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// InsertLearningIfAbsent inserts a learning unless its id already exists,
// reporting whether a row was written. The FTS index row is only added for
// a fresh insert.
func (u *Unit) InsertLearningIfAbsent(l *learning.Learning) (bool, error) {
	tagsJSON, err := marshalTags(l.Tags)
	if err != nil {
		return false, errors.NewInternal(err)
	}

	tx, err := u.DB.Begin()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT OR IGNORE INTO learnings
			(id, content, type, tags_json, confidence, project_path, source,
			 norm_hash, created_at, event_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Content, l.Type, tagsJSON, l.Confidence,
		toNullString(l.ProjectPath), toNullString(l.Source),
		learning.NormHash(l.Content), l.CreatedAt, l.EventDate,
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.Exec(
		`INSERT INTO learnings_fts (id, content) VALUES (?, ?)`, l.ID, l.Content,
	); err != nil {
		return false, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// InsertAccessIfAbsent copies an access record unless one exists.
func (u *Unit) InsertAccessIfAbsent(rec *learning.AccessRecord) error {
	auto := 0
	if rec.AutoCaptured {
		auto = 1
	}
	_, err := u.DB.Exec(`
		INSERT OR IGNORE INTO access_records
			(learning_id, last_accessed_at, access_count, auto_captured)
		VALUES (?, ?, ?, ?)`,
		rec.LearningID, rec.LastAccessedAt, rec.AccessCount, auto,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// InsertRelationIfAbsent copies a relation edge unless an equal one exists.
// Edges whose endpoints are missing in the destination are skipped by the
// foreign key check at the caller's discretion; callers copy learnings
// first so in practice only a conflicting updates edge is ignored.
func (u *Unit) InsertRelationIfAbsent(rel learning.Relation) error {
	_, err := u.DB.Exec(`
		INSERT OR IGNORE INTO relations (id, supersedes_id, relation_type, created_at)
		VALUES (?, ?, ?, ?)`,
		rel.ID, rel.SupersedesID, rel.RelationType, rel.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// InsertPatternMetaIfAbsent copies a pattern metadata row unless one exists.
func (u *Unit) InsertPatternMetaIfAbsent(m learning.PatternMetadata) error {
	_, err := u.DB.Exec(`
		INSERT OR IGNORE INTO pattern_metadata
			(learning_id, strategy, quality, failure_mode,
			 input_tokens, output_tokens, estimated_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.LearningID, m.Strategy, m.Quality, m.FailureMode,
		m.InputTokens, m.OutputTokens, m.EstimatedCost,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ClearAll empties the unit: learnings (cascading to access records,
// relations, and pattern metadata) and the FTS index.
func (u *Unit) ClearAll() error {
	tx, err := u.DB.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM learnings`,
		`DELETE FROM learnings_fts`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
