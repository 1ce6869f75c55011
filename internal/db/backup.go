package db

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupTimeFormat keeps backup names lexicographically sortable.
const backupTimeFormat = "20060102T150405"

// BackupPath returns the backup file name for a unit: the unit file plus a
// purpose-tagged, timestamped suffix.
func BackupPath(unitPath, purpose string, now time.Time) string {
	return fmt.Sprintf("%s.%s-%s.bak", unitPath, purpose, now.UTC().Format(backupTimeFormat))
}

// CreateBackup copies the unit file to a timestamped backup and returns the
// backup path. The WAL is checkpointed first so the copy is self-contained.
func (u *Unit) CreateBackup(purpose string) (string, error) {
	if _, err := u.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return "", fmt.Errorf("checkpoint before backup: %w", err)
	}

	dst := BackupPath(u.Path, purpose, time.Now())
	if err := copyFile(u.Path, dst); err != nil {
		return "", fmt.Errorf("backup %s: %w", purpose, err)
	}
	return dst, nil
}

// RestoreBackup replaces the unit file with a backup copy and reopens the
// connection. Used when a destructive migration fails verification.
func (u *Unit) RestoreBackup(backupPath string) error {
	if u.DB != nil {
		_ = u.DB.Close()
		u.DB = nil
	}
	_ = os.Remove(u.Path + "-wal")
	_ = os.Remove(u.Path + "-shm")
	if err := copyFile(backupPath, u.Path); err != nil {
		return fmt.Errorf("restore from %s: %w", backupPath, err)
	}
	return u.reopen()
}

// PruneBackups keeps the retain newest backups for a unit and deletes the
// rest. Backup names sort chronologically by construction.
func PruneBackups(unitPath string, retain int) error {
	backups, err := ListBackups(unitPath)
	if err != nil {
		return err
	}
	if len(backups) <= retain {
		return nil
	}
	for _, old := range backups[:len(backups)-retain] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ListBackups returns all backup files for a unit, oldest first.
func ListBackups(unitPath string) ([]string, error) {
	dir := filepath.Dir(unitPath)
	base := filepath.Base(unitPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			backups = append(backups, filepath.Join(dir, name))
		}
	}
	sort.Strings(backups)
	return backups, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
