package store

import (
	"testing"
	"time"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
)

// seedDuplicates bypasses the store-time dedup guard to simulate a unit
// that accumulated duplicates, e.g. via external writes.
func seedDuplicates(t *testing.T, unit *db.Unit) (survivor, dupA, dupB string) {
	t.Helper()
	survivor = "01DEDUP00000000000000000AA"
	dupA = "01DEDUP00000000000000000BB"
	dupB = "01DEDUP00000000000000000CC"
	insertAged(t, unit, survivor, "cache invalidation is hard", "FAILURE_PATTERN", 72*time.Hour)
	insertAged(t, unit, dupA, "cache invalidation is hard", "FAILURE_PATTERN", 48*time.Hour)
	insertAged(t, unit, dupB, "cache invalidation is hard", "FAILURE_PATTERN", 24*time.Hour)
	return survivor, dupA, dupB
}

func TestDedup_ExactGroupsOldestSurvives(t *testing.T) {
	unit := newTestUnit(t)
	cfg := config.DefaultConfig()
	survivor, dupA, dupB := seedDuplicates(t, unit)

	out, err := Dedup(unit, cfg, DedupInput{})
	if err != nil {
		t.Fatalf("Dedup: %v", err)
	}
	if len(out.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(out.Groups))
	}
	g := out.Groups[0]
	if g.SurvivorID != survivor {
		t.Errorf("survivor = %s, want oldest %s", g.SurvivorID, survivor)
	}
	if len(g.RemovedIDs) != 2 || out.Removed != 2 {
		t.Errorf("removed = %v (%d), want [%s %s]", g.RemovedIDs, out.Removed, dupA, dupB)
	}

	n, err := unit.CountLearnings()
	if err != nil {
		t.Fatalf("CountLearnings: %v", err)
	}
	if n != 1 {
		t.Errorf("learnings after dedup = %d, want 1", n)
	}
	if exists, _ := unit.LearningExists(survivor); !exists {
		t.Error("survivor was deleted")
	}

	backups, err := db.ListBackups(unit.Path)
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) == 0 {
		t.Error("destructive dedup ran without a backup")
	}
}

func TestDedup_DryRunChangesNothing(t *testing.T) {
	unit := newTestUnit(t)
	seedDuplicates(t, unit)

	out, err := Dedup(unit, config.DefaultConfig(), DedupInput{DryRun: true})
	if err != nil {
		t.Fatalf("Dedup: %v", err)
	}
	if !out.DryRun || out.Removed != 2 {
		t.Errorf("dry-run report wrong: %+v", out)
	}

	n, _ := unit.CountLearnings()
	if n != 3 {
		t.Errorf("dry run deleted rows: count = %d, want 3", n)
	}
	backups, _ := db.ListBackups(unit.Path)
	if len(backups) != 0 {
		t.Errorf("dry run created backups: %v", backups)
	}
}

func TestDedup_ExactOnlySkipsNearDuplicates(t *testing.T) {
	unit := newTestUnit(t)
	cfg := config.DefaultConfig()
	insertAged(t, unit, "01DEDUP00000000000000000AA", "Cache invalidation is hard!", "FAILURE_PATTERN", 48*time.Hour)
	insertAged(t, unit, "01DEDUP00000000000000000BB", "cache invalidation is hard", "FAILURE_PATTERN", 24*time.Hour)

	out, err := Dedup(unit, cfg, DedupInput{})
	if err != nil {
		t.Fatalf("exact Dedup: %v", err)
	}
	if out.Removed != 0 {
		t.Errorf("exact pass merged near duplicates: %+v", out)
	}

	out, err = Dedup(unit, cfg, DedupInput{IncludeNear: true})
	if err != nil {
		t.Fatalf("near Dedup: %v", err)
	}
	if out.Removed != 1 {
		t.Errorf("near pass removed %d, want 1", out.Removed)
	}
	n, _ := unit.CountLearnings()
	if n != 1 {
		t.Errorf("learnings = %d, want 1", n)
	}
}

func TestDedup_MergesTagsAccessAndRelations(t *testing.T) {
	unit := newTestUnit(t)
	cfg := config.DefaultConfig()
	survivor, dupA, _ := seedDuplicates(t, unit)

	other := mustStore(t, unit, "a related but distinct learning", "FAILURE_PATTERN")
	if _, err := Link(unit, LinkInput{ID: dupA, SupersedesID: other}); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := unit.UpdateTags(survivor, []string{"caching"}); err != nil {
		t.Fatalf("UpdateTags survivor: %v", err)
	}
	if err := unit.UpdateTags(dupA, []string{"invalidation", "caching"}); err != nil {
		t.Fatalf("UpdateTags duplicate: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := unit.TouchAccess(dupA); err != nil {
			t.Fatalf("TouchAccess: %v", err)
		}
	}

	if _, err := Dedup(unit, cfg, DedupInput{}); err != nil {
		t.Fatalf("Dedup: %v", err)
	}

	got, err := Get(unit, survivor)
	if err != nil {
		t.Fatalf("Get survivor: %v", err)
	}
	if len(got.Learning.Tags) != 2 {
		t.Errorf("merged tags = %v, want union of both sets", got.Learning.Tags)
	}
	if got.Access == nil || got.Access.AccessCount != 4 {
		t.Errorf("merged access = %+v, want count 4", got.Access)
	}
	// The duplicate's edge now points from the survivor.
	if len(got.Relations) != 1 || got.Relations[0].SupersedesID != other {
		t.Errorf("repointed relations = %+v", got.Relations)
	}
}

func TestDedup_NoDuplicatesIsNoOp(t *testing.T) {
	unit := newTestUnit(t)
	mustStore(t, unit, "one of a kind", "TOOL_USAGE")

	out, err := Dedup(unit, config.DefaultConfig(), DedupInput{IncludeNear: true})
	if err != nil {
		t.Fatalf("Dedup: %v", err)
	}
	if out.Removed != 0 || len(out.Groups) != 0 {
		t.Errorf("no-op dedup reported work: %+v", out)
	}
	backups, _ := db.ListBackups(unit.Path)
	if len(backups) != 0 {
		t.Errorf("no-op dedup created backups: %v", backups)
	}
}
