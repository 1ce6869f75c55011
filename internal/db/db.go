// Package db manages storage units: one SQLite file per namespace, each
// with an identical schema, WAL journaling, and an FTS5 index over learning
// content. All access goes through parameterized statements.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/learning"
	_ "modernc.org/sqlite"
)

// Unit is a handle to one isolated storage unit. Operations receive a Unit
// explicitly; there is no ambient "current namespace" state.
type Unit struct {
	DB        *sql.DB
	Path      string
	Namespace string // "" is the global namespace
	BaseDir   string
}

// GlobalPath returns the global unit's file path under baseDir.
func GlobalPath(baseDir string) string {
	return filepath.Join(baseDir, "lore.db")
}

// NamespacePath returns a namespace unit's file path under baseDir.
// The name must already be validated.
func NamespacePath(baseDir, name string) string {
	return filepath.Join(baseDir, "namespaces", name+".db")
}

// UnitPath resolves a namespace name ("" for global) to its unit file path.
func UnitPath(baseDir, namespace string) string {
	if namespace == "" {
		return GlobalPath(baseDir)
	}
	return NamespacePath(baseDir, namespace)
}

// Open resolves a namespace to its storage unit, creating directories and
// the full schema as needed, and applying any outstanding migrations.
// Idempotent; safe to call on every operation.
func Open(baseDir, namespace string, cfg *config.Config) (*Unit, error) {
	if err := learning.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	path := UnitPath(baseDir, namespace)
	if namespace != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create namespaces directory: %w", err)
		}
	}

	u := &Unit{Path: path, Namespace: namespace, BaseDir: baseDir}
	if err := u.open(); err != nil {
		return nil, err
	}

	retain := 5
	if cfg != nil && cfg.BackupRetain > 0 {
		retain = cfg.BackupRetain
	}
	if err := u.migrate(retain); err != nil {
		u.DB.Close()
		return nil, err
	}

	if cfg != nil {
		if cfg.DBMaxOpenConns > 0 {
			u.DB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		}
		if cfg.DBMaxIdleConns > 0 {
			u.DB.SetMaxIdleConns(cfg.DBMaxIdleConns)
		}
	}

	_ = os.Chmod(path, 0600)
	return u, nil
}

// open opens the unit's SQLite file with pragmas in the connection string.
// busy_timeout is connection-scoped, so it must ride on the DSN where it is
// reapplied to every pooled connection, not issued once via Exec.
func (u *Unit) open() error {
	dsn := u.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open storage unit: %w", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		db.Close()
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		db.Close()
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}

	u.DB = db
	return nil
}

// Close closes the unit's database connection.
func (u *Unit) Close() error {
	if u.DB == nil {
		return nil
	}
	return u.DB.Close()
}

// reopen closes and reopens the unit, used after restoring from a backup.
func (u *Unit) reopen() error {
	if u.DB != nil {
		_ = u.DB.Close()
	}
	return u.open()
}

// ListNamespaces returns the names of all namespace units on disk, sorted
// by directory order. The global namespace is not included.
func ListNamespaces(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, "namespaces"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), ".db")
		if !ok {
			continue // backups, -wal, -shm
		}
		if learning.ValidateNamespace(name) != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// RemoveUnit deletes a unit file and its WAL sidecar files.
// Callers are expected to back up the unit first.
func RemoveUnit(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}
