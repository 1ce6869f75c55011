package db

import (
	"database/sql"
	"fmt"

	"github.com/mwaldrop/lore/internal/errors"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 3

// fullSchema is the complete current schema, applied in one shot to new
// units. Existing units reach the same shape via the migration steps.
const fullSchema = `
CREATE TABLE IF NOT EXISTS learnings (
  id           TEXT PRIMARY KEY,
  content      TEXT NOT NULL,
  type         TEXT NOT NULL,
  tags_json    TEXT,
  confidence   TEXT NOT NULL DEFAULT 'medium',
  project_path TEXT,
  source       TEXT,
  norm_hash    TEXT NOT NULL,
  created_at   TEXT NOT NULL,
  event_date   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_learnings_type_created
ON learnings(type, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_learnings_norm_hash
ON learnings(type, norm_hash);

CREATE INDEX IF NOT EXISTS idx_learnings_created
ON learnings(created_at DESC);

CREATE TABLE IF NOT EXISTS access_records (
  learning_id      TEXT PRIMARY KEY
                   REFERENCES learnings(id) ON DELETE CASCADE,
  last_accessed_at TEXT NOT NULL,
  access_count     INTEGER NOT NULL DEFAULT 0,
  auto_captured    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS relations (
  id            TEXT NOT NULL REFERENCES learnings(id) ON DELETE CASCADE,
  supersedes_id TEXT NOT NULL REFERENCES learnings(id) ON DELETE CASCADE,
  relation_type TEXT NOT NULL DEFAULT 'updates',
  created_at    TEXT NOT NULL,
  UNIQUE (id, supersedes_id, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_relations_supersedes
ON relations(supersedes_id);

-- A learning may supersede at most one parent via "updates", keeping the
-- version chain simple so latest() is well-defined.
CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_updates_chain
ON relations(id) WHERE relation_type = 'updates';

CREATE TABLE IF NOT EXISTS pattern_metadata (
  learning_id    TEXT PRIMARY KEY
                 REFERENCES learnings(id) ON DELETE CASCADE,
  strategy       TEXT,
  quality        TEXT,
  failure_mode   TEXT,
  input_tokens   INTEGER NOT NULL DEFAULT 0,
  output_tokens  INTEGER NOT NULL DEFAULT 0,
  estimated_cost REAL NOT NULL DEFAULT 0
);

CREATE VIRTUAL TABLE IF NOT EXISTS learnings_fts USING fts5(
  id UNINDEXED,
  content,
  tokenize = 'unicode61 remove_diacritics 2'
);
`

// migration is one versioned schema step. Destructive steps are wrapped in
// backup / verify / rollback by applyDestructive.
type migration struct {
	version     int
	destructive bool
	label       string
	apply       func(db *sql.DB) error
}

var migrations = []migration{
	{1, false, "base-schema", migrateBaseSchema},
	{2, false, "pattern-metadata", migratePatternMetadata},
	{3, true, "fts-rebuild", migrateFTSRebuild},
}

// migrate brings the unit to the current schema version. New units get the
// full schema in one step; existing units apply outstanding migrations in
// order. Any failure is fatal to the calling operation.
func (u *Unit) migrate(retain int) error {
	version, err := userVersion(u.DB)
	if err != nil {
		return err
	}
	if version >= CurrentSchemaVersion {
		return nil
	}

	if version == 0 {
		if _, err := u.DB.Exec(fullSchema); err != nil {
			return errors.NewMigrationFailed(CurrentSchemaVersion, err.Error())
		}
		return setUserVersion(u.DB, CurrentSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if m.destructive {
			if err := u.applyDestructive(m, retain); err != nil {
				return err
			}
		} else {
			if err := m.apply(u.DB); err != nil {
				return errors.NewMigrationFailed(m.version, err.Error())
			}
		}
		if err := setUserVersion(u.DB, m.version); err != nil {
			return err
		}
	}
	return nil
}

// applyDestructive runs a destructive migration under the safety protocol:
// record the pre-change learnings count, back up the unit file, apply,
// verify the count did not shrink, and restore the backup on any failure.
// On success only the newest retain backups are kept.
func (u *Unit) applyDestructive(m migration, retain int) error {
	pre, err := u.CountLearnings()
	if err != nil {
		return errors.NewMigrationFailed(m.version, err.Error())
	}

	backupPath, err := u.CreateBackup("migration-" + m.label)
	if err != nil {
		return errors.NewMigrationFailed(m.version, err.Error())
	}

	if err := m.apply(u.DB); err != nil {
		if restoreErr := u.RestoreBackup(backupPath); restoreErr != nil {
			return errors.NewMigrationFailed(m.version,
				fmt.Sprintf("%v; backup restore also failed: %v", err, restoreErr))
		}
		return errors.NewMigrationFailed(m.version, fmt.Sprintf("%v (restored from backup)", err))
	}

	post, err := u.CountLearnings()
	if err == nil && post < pre {
		err = fmt.Errorf("row count regressed: %d before, %d after", pre, post)
	}
	if err != nil {
		if restoreErr := u.RestoreBackup(backupPath); restoreErr != nil {
			return errors.NewMigrationFailed(m.version,
				fmt.Sprintf("%v; backup restore also failed: %v", err, restoreErr))
		}
		return errors.NewMigrationFailed(m.version, fmt.Sprintf("%v (restored from backup)", err))
	}

	return PruneBackups(u.Path, retain)
}

// migrateBaseSchema creates the v1 tables: learnings, access records,
// relations, and the original FTS index (default tokenizer).
func migrateBaseSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS learnings (
	  id           TEXT PRIMARY KEY,
	  content      TEXT NOT NULL,
	  type         TEXT NOT NULL,
	  tags_json    TEXT,
	  confidence   TEXT NOT NULL DEFAULT 'medium',
	  project_path TEXT,
	  source       TEXT,
	  norm_hash    TEXT NOT NULL,
	  created_at   TEXT NOT NULL,
	  event_date   TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_learnings_type_created
	ON learnings(type, created_at DESC);

	CREATE INDEX IF NOT EXISTS idx_learnings_norm_hash
	ON learnings(type, norm_hash);

	CREATE INDEX IF NOT EXISTS idx_learnings_created
	ON learnings(created_at DESC);

	CREATE TABLE IF NOT EXISTS access_records (
	  learning_id      TEXT PRIMARY KEY
	                   REFERENCES learnings(id) ON DELETE CASCADE,
	  last_accessed_at TEXT NOT NULL,
	  access_count     INTEGER NOT NULL DEFAULT 0,
	  auto_captured    INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS relations (
	  id            TEXT NOT NULL REFERENCES learnings(id) ON DELETE CASCADE,
	  supersedes_id TEXT NOT NULL REFERENCES learnings(id) ON DELETE CASCADE,
	  relation_type TEXT NOT NULL DEFAULT 'updates',
	  created_at    TEXT NOT NULL,
	  UNIQUE (id, supersedes_id, relation_type)
	);

	CREATE INDEX IF NOT EXISTS idx_relations_supersedes
	ON relations(supersedes_id);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_updates_chain
	ON relations(id) WHERE relation_type = 'updates';

	CREATE VIRTUAL TABLE IF NOT EXISTS learnings_fts USING fts5(
	  id UNINDEXED,
	  content
	);
	`
	_, err := db.Exec(schema)
	return err
}

// migratePatternMetadata adds the optional pattern_metadata companion
// table. Additive and existence-probed, so replays are no-ops.
func migratePatternMetadata(db *sql.DB) error {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='pattern_metadata'",
	).Scan(&name)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE pattern_metadata (
	  learning_id    TEXT PRIMARY KEY
	                 REFERENCES learnings(id) ON DELETE CASCADE,
	  strategy       TEXT,
	  quality        TEXT,
	  failure_mode   TEXT,
	  input_tokens   INTEGER NOT NULL DEFAULT 0,
	  output_tokens  INTEGER NOT NULL DEFAULT 0,
	  estimated_cost REAL NOT NULL DEFAULT 0
	);`)
	return err
}

// migrateFTSRebuild drops and recreates the FTS index with the unicode61
// tokenizer, then repopulates it from learnings.
func migrateFTSRebuild(db *sql.DB) error {
	stmts := []string{
		`DROP TABLE IF EXISTS learnings_fts;`,
		`CREATE VIRTUAL TABLE learnings_fts USING fts5(
		  id UNINDEXED,
		  content,
		  tokenize = 'unicode61 remove_diacritics 2'
		);`,
		`INSERT INTO learnings_fts (id, content)
		 SELECT id, content FROM learnings;`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// userVersion returns the current schema version (user_version pragma).
func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// setUserVersion sets the schema version (user_version pragma).
// PRAGMA does not accept bound parameters; version is a trusted constant.
func setUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
