package db

import "github.com/mwaldrop/lore/internal/errors"

// IntegrityCheck runs SQLite's own integrity check and returns its verdict
// line ("ok" when the file is sound).
func (u *Unit) IntegrityCheck() (string, error) {
	var result string
	if err := u.DB.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return "", errors.NewInternal(err)
	}
	return result, nil
}

// OrphanedAccessRecords counts access records whose learning is gone.
// Foreign keys cascade these away in normal operation; a nonzero count
// means the file was edited outside the store.
func (u *Unit) OrphanedAccessRecords() (int, error) {
	return u.scalarCount(`
		SELECT COUNT(*) FROM access_records a
		WHERE NOT EXISTS (SELECT 1 FROM learnings l WHERE l.id = a.learning_id)`)
}

// OrphanedRelations counts relation edges with a missing endpoint.
func (u *Unit) OrphanedRelations() (int, error) {
	return u.scalarCount(`
		SELECT COUNT(*) FROM relations r
		WHERE NOT EXISTS (SELECT 1 FROM learnings l WHERE l.id = r.id)
		   OR NOT EXISTS (SELECT 1 FROM learnings l WHERE l.id = r.supersedes_id)`)
}

// OrphanedFTSRows counts index rows without a learning, and
// MissingFTSRows counts learnings absent from the index. Either being
// nonzero means the index needs a rebuild.
func (u *Unit) OrphanedFTSRows() (int, error) {
	return u.scalarCount(`
		SELECT COUNT(*) FROM learnings_fts f
		WHERE NOT EXISTS (SELECT 1 FROM learnings l WHERE l.id = f.id)`)
}

func (u *Unit) MissingFTSRows() (int, error) {
	return u.scalarCount(`
		SELECT COUNT(*) FROM learnings l
		WHERE NOT EXISTS (SELECT 1 FROM learnings_fts f WHERE f.id = l.id)`)
}

func (u *Unit) scalarCount(query string) (int, error) {
	var n int
	if err := u.DB.QueryRow(query).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}
