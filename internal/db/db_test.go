package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/learning"
)

func openTestUnit(t *testing.T, namespace string) *Unit {
	t.Helper()
	unit, err := Open(t.TempDir(), namespace, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { unit.Close() })
	return unit
}

func insertTestLearning(t *testing.T, u *Unit, id, content, typ string) {
	t.Helper()
	now := learning.Now()
	err := u.InsertLearning(&learning.Learning{
		ID:         id,
		Content:    content,
		Type:       typ,
		Confidence: learning.ConfidenceMedium,
		CreatedAt:  now,
		EventDate:  now,
	})
	if err != nil {
		t.Fatalf("InsertLearning failed: %v", err)
	}
}

func TestOpen_FreshUnit(t *testing.T) {
	unit := openTestUnit(t, "")

	var version int
	if err := unit.DB.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version query failed: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}

	n, err := unit.CountLearnings()
	if err != nil {
		t.Fatalf("CountLearnings failed: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh unit has %d learnings", n)
	}
}

func TestOpen_Reentrant(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()

	u1, err := Open(baseDir, "", cfg)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	insertTestLearning(t, u1, "01TESTID00000000000000000A", "persists across opens", "WORKING_SOLUTION")
	u1.Close()

	u2, err := Open(baseDir, "", cfg)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer u2.Close()

	n, err := u2.CountLearnings()
	if err != nil {
		t.Fatalf("CountLearnings failed: %v", err)
	}
	if n != 1 {
		t.Errorf("learnings after reopen = %d, want 1", n)
	}
}

func TestNamespacePaths(t *testing.T) {
	baseDir := "/base"
	if got := UnitPath(baseDir, ""); got != filepath.Join(baseDir, "lore.db") {
		t.Errorf("global path = %q", got)
	}
	if got := UnitPath(baseDir, "agent1"); got != filepath.Join(baseDir, "namespaces", "agent1.db") {
		t.Errorf("namespace path = %q", got)
	}
}

func TestOpen_InvalidNamespace(t *testing.T) {
	if _, err := Open(t.TempDir(), "bad name!", config.DefaultConfig()); err == nil {
		t.Fatal("Open with invalid namespace succeeded")
	}
}

func TestListNamespaces(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()

	for _, ns := range []string{"alpha", "beta"} {
		u, err := Open(baseDir, ns, cfg)
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", ns, err)
		}
		u.Close()
	}

	names, err := ListNamespaces(baseDir)
	if err != nil {
		t.Fatalf("ListNamespaces failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("ListNamespaces = %v, want 2 entries", names)
	}
}

func TestFTS_InsertAndSearch(t *testing.T) {
	unit := openTestUnit(t, "")
	insertTestLearning(t, unit, "01TESTID00000000000000000A", "Use retries with backoff", "WORKING_SOLUTION")

	rows, err := unit.SearchFullText("retries", SearchFilters{}, 10)
	if err != nil {
		t.Fatalf("SearchFullText failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("search returned %d rows, want 1", len(rows))
	}
	// bm25 reports matches as negative scores, ascending-is-better.
	if rows[0].Score == 0 {
		t.Errorf("score = 0, want a nonzero bm25 score")
	}
}

func TestFTS_HostileQueryIsLiteral(t *testing.T) {
	unit := openTestUnit(t, "")
	insertTestLearning(t, unit, "01TESTID00000000000000000A", "plain content", "WORKING_SOLUTION")

	// FTS operators and syntax must not leak through as expressions.
	for _, q := range []string{`a AND b OR c`, `"unbalanced`, `col:value`, `NEAR(x y)`} {
		if _, err := unit.SearchFullText(q, SearchFilters{}, 10); err != nil {
			t.Errorf("SearchFullText(%q) failed: %v", q, err)
		}
	}
}

func TestDeleteLearnings_RemovesFTSRows(t *testing.T) {
	unit := openTestUnit(t, "")
	insertTestLearning(t, unit, "01TESTID00000000000000000A", "to be deleted", "WORKING_SOLUTION")

	if err := unit.DeleteLearnings([]string{"01TESTID00000000000000000A"}); err != nil {
		t.Fatalf("DeleteLearnings failed: %v", err)
	}

	n, err := unit.CountFTS()
	if err != nil {
		t.Fatalf("CountFTS failed: %v", err)
	}
	if n != 0 {
		t.Errorf("FTS rows after delete = %d, want 0", n)
	}
}

func TestTouchAccess_InsertThenIncrement(t *testing.T) {
	unit := openTestUnit(t, "")
	insertTestLearning(t, unit, "01TESTID00000000000000000A", "accessed", "WORKING_SOLUTION")

	for i := 0; i < 3; i++ {
		if err := unit.TouchAccess("01TESTID00000000000000000A"); err != nil {
			t.Fatalf("TouchAccess failed: %v", err)
		}
	}

	rec, err := unit.GetAccess("01TESTID00000000000000000A")
	if err != nil {
		t.Fatalf("GetAccess failed: %v", err)
	}
	if rec == nil || rec.AccessCount != 3 {
		t.Fatalf("access record = %+v, want count 3", rec)
	}
}

func TestUpdatesChain_UniqueOutgoingEdge(t *testing.T) {
	unit := openTestUnit(t, "")
	insertTestLearning(t, unit, "01TESTID00000000000000000A", "v1", "WORKING_SOLUTION")
	insertTestLearning(t, unit, "01TESTID00000000000000000B", "v2", "WORKING_SOLUTION")
	insertTestLearning(t, unit, "01TESTID00000000000000000C", "unrelated", "WORKING_SOLUTION")

	if err := unit.InsertRelation("01TESTID00000000000000000B", "01TESTID00000000000000000A", learning.RelationUpdates); err != nil {
		t.Fatalf("InsertRelation failed: %v", err)
	}
	// A second outgoing updates edge from B violates the partial unique index.
	err := unit.InsertRelation("01TESTID00000000000000000B", "01TESTID00000000000000000C", learning.RelationUpdates)
	if err == nil {
		t.Fatal("second updates edge accepted")
	}
	// extends edges are not chain-constrained.
	if err := unit.InsertRelation("01TESTID00000000000000000B", "01TESTID00000000000000000C", learning.RelationExtends); err != nil {
		t.Fatalf("extends edge rejected: %v", err)
	}
}

func TestBackup_CreateRestorePrune(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()
	unit, err := Open(baseDir, "", cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer unit.Close()

	insertTestLearning(t, unit, "01TESTID00000000000000000A", "survives restore", "WORKING_SOLUTION")

	backupPath, err := unit.CreateBackup("test")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	if err := unit.DeleteLearnings([]string{"01TESTID00000000000000000A"}); err != nil {
		t.Fatalf("DeleteLearnings failed: %v", err)
	}
	if err := unit.RestoreBackup(backupPath); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}

	n, err := unit.CountLearnings()
	if err != nil {
		t.Fatalf("CountLearnings failed: %v", err)
	}
	if n != 1 {
		t.Errorf("learnings after restore = %d, want 1", n)
	}
}

func TestBackup_RetentionTrim(t *testing.T) {
	unit := openTestUnit(t, "")

	// Backup names carry second-resolution timestamps; synthesize a spread
	// of them instead of sleeping between real backups.
	base := time.Now().UTC()
	for i := 0; i < 7; i++ {
		path := BackupPath(unit.Path, "retention", base.Add(time.Duration(-i)*time.Second))
		if err := os.WriteFile(path, []byte("backup"), 0o600); err != nil {
			t.Fatalf("write backup: %v", err)
		}
	}

	if err := PruneBackups(unit.Path, 5); err != nil {
		t.Fatalf("PruneBackups failed: %v", err)
	}
	backups, err := ListBackups(unit.Path)
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(backups) != 5 {
		t.Errorf("backups after trim = %d, want 5", len(backups))
	}
}
