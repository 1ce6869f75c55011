package db

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/learning"
)

const learningColumns = `id, content, type, tags_json, confidence,
	project_path, source, created_at, event_date`

// InsertLearning stores a new learning and its FTS index row in one
// transaction. The caller is responsible for dedup checks first.
func (u *Unit) InsertLearning(l *learning.Learning) error {
	tagsJSON, err := marshalTags(l.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}

	tx, err := u.DB.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO learnings (
			id, content, type, tags_json, confidence,
			project_path, source, norm_hash, created_at, event_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Content, l.Type, tagsJSON, l.Confidence,
		toNullString(l.ProjectPath), toNullString(l.Source),
		learning.NormHash(l.Content), l.CreatedAt, l.EventDate,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	if _, err := tx.Exec(
		`INSERT INTO learnings_fts (id, content) VALUES (?, ?)`,
		l.ID, l.Content,
	); err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetLearning retrieves a learning by id.
func (u *Unit) GetLearning(id string) (*learning.Learning, error) {
	row := u.DB.QueryRow(
		`SELECT `+learningColumns+` FROM learnings WHERE id = ?`, id)

	l, err := scanLearning(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return l, nil
}

// LearningExists reports whether a learning id is present.
func (u *Unit) LearningExists(id string) (bool, error) {
	var one int
	err := u.DB.QueryRow(`SELECT 1 FROM learnings WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// CountLearnings returns the number of learnings in the unit. Tolerates a
// missing table (pre-schema unit) by reporting zero.
func (u *Unit) CountLearnings() (int, error) {
	var n int
	err := u.DB.QueryRow(`SELECT COUNT(*) FROM learnings`).Scan(&n)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// UpdateTags replaces a learning's tag set (used by dedup merges; content
// itself is never updated in place).
func (u *Unit) UpdateTags(id string, tags []string) error {
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return errors.NewInternal(err)
	}
	if _, err := u.DB.Exec(
		`UPDATE learnings SET tags_json = ? WHERE id = ?`, tagsJSON, id,
	); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteLearnings removes a batch of learnings. Relations, access records,
// and pattern metadata cascade; FTS rows are removed explicitly because
// the index is not FK-linked.
func (u *Unit) DeleteLearnings(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := u.DB.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM learnings WHERE id = ?`, id); err != nil {
			return errors.NewInternal(err)
		}
		if _, err := tx.Exec(`DELETE FROM learnings_fts WHERE id = ?`, id); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RebuildFTS repopulates the FTS index from the learnings table. Called
// after bulk deletes so ranks are computed against a compact index.
func (u *Unit) RebuildFTS() error {
	tx, err := u.DB.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM learnings_fts`); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := tx.Exec(
		`INSERT INTO learnings_fts (id, content) SELECT id, content FROM learnings`,
	); err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetAccess returns the access record for a learning, or nil if none exists.
func (u *Unit) GetAccess(id string) (*learning.AccessRecord, error) {
	var (
		r    learning.AccessRecord
		auto int
	)
	err := u.DB.QueryRow(
		`SELECT learning_id, last_accessed_at, access_count, auto_captured
		 FROM access_records WHERE learning_id = ?`, id,
	).Scan(&r.LearningID, &r.LastAccessedAt, &r.AccessCount, &auto)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	r.AutoCaptured = auto != 0
	return &r, nil
}

// TouchAccess records one access hit: insert-or-increment with a refreshed
// timestamp. Lazily creates the record on first access.
func (u *Unit) TouchAccess(id string) error {
	_, err := u.DB.Exec(`
		INSERT INTO access_records (learning_id, last_accessed_at, access_count, auto_captured)
		VALUES (?, ?, 1, 0)
		ON CONFLICT(learning_id) DO UPDATE SET
			access_count = access_count + 1,
			last_accessed_at = excluded.last_accessed_at`,
		id, learning.Now(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// EnsureAccess creates a zero-count access record at store time for
// auto-captured learnings. No-op if a record already exists.
func (u *Unit) EnsureAccess(id string, autoCaptured bool) error {
	auto := 0
	if autoCaptured {
		auto = 1
	}
	_, err := u.DB.Exec(`
		INSERT INTO access_records (learning_id, last_accessed_at, access_count, auto_captured)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(learning_id) DO NOTHING`,
		id, learning.Now(), auto,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// MergeAccess max-merges a duplicate's access record into the survivor's:
// keep the higher count and the later timestamp.
func (u *Unit) MergeAccess(survivorID, duplicateID string) error {
	dup, err := u.GetAccess(duplicateID)
	if err != nil {
		return err
	}
	if dup == nil {
		return nil
	}

	auto := 0
	if dup.AutoCaptured {
		auto = 1
	}
	_, err = u.DB.Exec(`
		INSERT INTO access_records (learning_id, last_accessed_at, access_count, auto_captured)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(learning_id) DO UPDATE SET
			access_count = MAX(access_count, excluded.access_count),
			last_accessed_at = MAX(last_accessed_at, excluded.last_accessed_at)`,
		survivorID, dup.LastAccessedAt, dup.AccessCount, auto,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FindExact returns the id of a learning with byte-identical content and
// the same type, or empty string.
func (u *Unit) FindExact(content, typ string) (string, error) {
	var id string
	err := u.DB.QueryRow(
		`SELECT id FROM learnings WHERE content = ? AND type = ?
		 ORDER BY created_at ASC LIMIT 1`,
		content, typ,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return id, nil
}

// FindByNormHash returns the oldest learning of the given type whose
// normalized content hashes to hash, or empty string.
func (u *Unit) FindByNormHash(hash, typ string) (string, error) {
	var id string
	err := u.DB.QueryRow(
		`SELECT id FROM learnings WHERE norm_hash = ? AND type = ?
		 ORDER BY created_at ASC LIMIT 1`,
		hash, typ,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return id, nil
}

// Candidate is a narrowed fuzzy-match candidate.
type Candidate struct {
	ID      string
	Content string
}

// FTSCandidates full-text searches for candidate content and returns up to
// limit same-type candidates for normalized comparison.
func (u *Unit) FTSCandidates(content, typ string, limit int) ([]Candidate, error) {
	match := ftsWordQuery(content)
	if match == "" {
		return nil, nil
	}

	rows, err := u.DB.Query(`
		SELECT l.id, l.content
		FROM learnings_fts f
		JOIN learnings l ON l.id = f.id
		WHERE learnings_fts MATCH ? AND l.type = ?
		ORDER BY bm25(learnings_fts)
		LIMIT ?`,
		match, typ, limit,
	)
	if err != nil {
		// An FTS syntax error from hostile input means no candidates,
		// not a failed store.
		return nil, nil
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Content); err != nil {
			return nil, errors.NewInternal(err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// NormHashGroups returns groups of ids sharing (type, norm_hash), oldest
// first within each group. Used by near-duplicate consolidation.
func (u *Unit) NormHashGroups() (map[string][]string, error) {
	return u.groupIDs(`
		SELECT type || ':' || norm_hash, id FROM learnings
		ORDER BY type, norm_hash, created_at ASC, id ASC`)
}

// ExactGroups returns groups of ids sharing (type, content), oldest first
// within each group.
func (u *Unit) ExactGroups() (map[string][]string, error) {
	return u.groupIDs(`
		SELECT type || ':' || content, id FROM learnings
		ORDER BY type, content, created_at ASC, id ASC`)
}

func (u *Unit) groupIDs(query string) (map[string][]string, error) {
	rows, err := u.DB.Query(query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	groups := make(map[string][]string)
	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return nil, errors.NewInternal(err)
		}
		groups[key] = append(groups[key], id)
	}
	return groups, rows.Err()
}

// SearchFilters narrow full-text search results.
type SearchFilters struct {
	Type        string // validated against the type whitelist
	Project     string
	CreatedFrom string // RFC3339 lower bound from max-age filter
	AutoOnly    bool
	ManualOnly  bool
}

// SearchRow is one ranked search result.
type SearchRow struct {
	learning.Learning
	Score       float64
	AccessCount int
}

// SearchFullText runs a ranked FTS query. The query text is treated as a
// literal phrase so special characters never reach the FTS expression
// parser. Lower scores rank better per the bm25 convention.
func (u *Unit) SearchFullText(query string, filters SearchFilters, limit int) ([]SearchRow, error) {
	sqlStr := `
		SELECT ` + prefixed("l", learningColumns) + `,
		       bm25(learnings_fts) AS score,
		       COALESCE(a.access_count, 0)
		FROM learnings_fts f
		JOIN learnings l ON l.id = f.id
		LEFT JOIN access_records a ON a.learning_id = l.id
		WHERE learnings_fts MATCH ?`
	args := []any{ftsPhraseQuery(query)}

	sqlStr, args = applyFilters(sqlStr, args, filters)
	sqlStr += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	return u.querySearchRows(sqlStr, args...)
}

// RecentLearnings bypasses ranking and returns the limit newest learnings,
// with score reported as zero.
func (u *Unit) RecentLearnings(filters SearchFilters, limit int) ([]SearchRow, error) {
	sqlStr := `
		SELECT ` + prefixed("l", learningColumns) + `,
		       0 AS score,
		       COALESCE(a.access_count, 0)
		FROM learnings l
		LEFT JOIN access_records a ON a.learning_id = l.id
		WHERE 1=1`
	var args []any

	sqlStr, args = applyFilters(sqlStr, args, filters)
	sqlStr += " ORDER BY l.created_at DESC LIMIT ?"
	args = append(args, limit)

	return u.querySearchRows(sqlStr, args...)
}

func applyFilters(sqlStr string, args []any, filters SearchFilters) (string, []any) {
	if filters.Type != "" {
		sqlStr += " AND l.type = ?"
		args = append(args, filters.Type)
	}
	if filters.Project != "" {
		sqlStr += " AND l.project_path = ?"
		args = append(args, filters.Project)
	}
	if filters.CreatedFrom != "" {
		sqlStr += " AND l.created_at >= ?"
		args = append(args, filters.CreatedFrom)
	}
	if filters.AutoOnly {
		sqlStr += " AND a.auto_captured = 1"
	}
	if filters.ManualOnly {
		sqlStr += " AND (a.auto_captured IS NULL OR a.auto_captured = 0)"
	}
	return sqlStr, args
}

func (u *Unit) querySearchRows(sqlStr string, args ...any) ([]SearchRow, error) {
	rows, err := u.DB.Query(sqlStr, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var results []SearchRow
	for rows.Next() {
		var (
			r           SearchRow
			tagsJSON    sql.NullString
			projectPath sql.NullString
			source      sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &r.Content, &r.Type, &tagsJSON, &r.Confidence,
			&projectPath, &source, &r.CreatedAt, &r.EventDate,
			&r.Score, &r.AccessCount,
		); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.ProjectPath = fromNullString(projectPath)
		r.Source = fromNullString(source)
		if r.Tags, err = unmarshalTags(tagsJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ExportRow joins a learning with its access record for export.
type ExportRow struct {
	learning.Learning
	Access *learning.AccessRecord `json:"access,omitempty"`
}

// AllLearnings returns every learning joined with its access record,
// newest first.
func (u *Unit) AllLearnings() ([]ExportRow, error) {
	rows, err := u.DB.Query(`
		SELECT ` + prefixed("l", learningColumns) + `,
		       a.last_accessed_at, a.access_count, a.auto_captured
		FROM learnings l
		LEFT JOIN access_records a ON a.learning_id = l.id
		ORDER BY l.created_at DESC, l.id DESC`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var results []ExportRow
	for rows.Next() {
		var (
			r           ExportRow
			tagsJSON    sql.NullString
			projectPath sql.NullString
			source      sql.NullString
			lastAccess  sql.NullString
			accessCount sql.NullInt64
			auto        sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID, &r.Content, &r.Type, &tagsJSON, &r.Confidence,
			&projectPath, &source, &r.CreatedAt, &r.EventDate,
			&lastAccess, &accessCount, &auto,
		); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.ProjectPath = fromNullString(projectPath)
		r.Source = fromNullString(source)
		if r.Tags, err = unmarshalTags(tagsJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		if lastAccess.Valid {
			r.Access = &learning.AccessRecord{
				LearningID:     r.ID,
				LastAccessedAt: lastAccess.String,
				AccessCount:    int(accessCount.Int64),
				AutoCaptured:   auto.Int64 != 0,
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// PruneCandidates returns ids and metadata for learnings created before
// cutoff with zero recorded accesses.
type PruneCandidate struct {
	ID         string
	Content    string
	Type       string
	Confidence string
	CreatedAt  string
}

// FindPruneCandidates selects unaccessed learnings older than the cutoff
// timestamp (RFC3339).
func (u *Unit) FindPruneCandidates(cutoff string) ([]PruneCandidate, error) {
	rows, err := u.DB.Query(`
		SELECT l.id, l.content, l.type, l.confidence, l.created_at
		FROM learnings l
		LEFT JOIN access_records a ON a.learning_id = l.id
		WHERE l.created_at < ? AND COALESCE(a.access_count, 0) = 0
		ORDER BY l.created_at ASC`,
		cutoff)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var candidates []PruneCandidate
	for rows.Next() {
		var c PruneCandidate
		if err := rows.Scan(&c.ID, &c.Content, &c.Type, &c.Confidence, &c.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func scanLearning(row *sql.Row) (*learning.Learning, error) {
	var (
		l           learning.Learning
		tagsJSON    sql.NullString
		projectPath sql.NullString
		source      sql.NullString
	)
	err := row.Scan(
		&l.ID, &l.Content, &l.Type, &tagsJSON, &l.Confidence,
		&projectPath, &source, &l.CreatedAt, &l.EventDate,
	)
	if err != nil {
		return nil, err
	}

	l.ProjectPath = fromNullString(projectPath)
	l.Source = fromNullString(source)
	if l.Tags, err = unmarshalTags(tagsJSON); err != nil {
		return nil, err
	}
	return &l, nil
}

func marshalTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalTags(tagsJSON sql.NullString) ([]string, error) {
	if !tagsJSON.Valid || tagsJSON.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// prefixed qualifies each column in a comma-separated list with an alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// ftsPhraseQuery quotes the entire query as one literal FTS5 phrase so
// operators and special characters in user input are inert.
func ftsPhraseQuery(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}

// ftsWordQuery quotes each word individually: used for candidate
// narrowing, where all words must appear but not necessarily adjacently.
func ftsWordQuery(content string) string {
	words := strings.Fields(content)
	if len(words) > 12 {
		words = words[:12]
	}
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}
