package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
)

// TestWorkflow exercises the full lifecycle against one base directory:
// capture into a namespace, dedup, revision, recall, promotion to global,
// and the maintenance operations.
func TestWorkflow(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()

	scoped, err := db.Open(baseDir, "session-1", cfg)
	require.NoError(t, err)
	defer scoped.Close()
	global, err := db.Open(baseDir, "", cfg)
	require.NoError(t, err)
	defer global.Close()

	// Capture a few learnings, one of them twice.
	first, err := Store(scoped, cfg, nil, StoreInput{
		Content: "Use exponential backoff for flaky network calls",
		Type:    "WORKING_SOLUTION",
		Tags:    []string{"retries"},
	})
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	dup, err := Store(scoped, cfg, nil, StoreInput{
		Content: "use exponential backoff for flaky network calls!",
		Type:    "WORKING_SOLUTION",
	})
	require.NoError(t, err)
	require.True(t, dup.Duplicate)
	require.Equal(t, first.ID, dup.ID)

	_, err = Store(scoped, cfg, nil, StoreInput{
		Content: "The staging cluster rejects deploys on Fridays",
		Type:    "PROJECT_CONVENTION",
	})
	require.NoError(t, err)

	// Revise the first learning.
	revised, err := Store(scoped, cfg, nil, StoreInput{
		Content:      "Use exponential backoff with jitter for flaky network calls",
		Type:         "WORKING_SOLUTION",
		SupersedesID: &first.ID,
	})
	require.NoError(t, err)

	latest, err := Latest(scoped, first.ID)
	require.NoError(t, err)
	require.Equal(t, revised.ID, latest.LatestID)

	history, err := History(scoped, revised.ID)
	require.NoError(t, err)
	require.Len(t, history.Ancestors, 1)
	require.Equal(t, first.ID, history.Ancestors[0].ID)

	// Recall finds the revision and counts the access.
	recall, err := Recall(scoped, global, RecallInput{Query: "backoff with jitter"})
	require.NoError(t, err)
	require.Len(t, recall.Results, 1)
	require.Equal(t, revised.ID, recall.Results[0].ID)
	require.Equal(t, 1, recall.Results[0].AccessCount)

	// Promote the namespace into global and retire it.
	migrated, err := MigrateNamespace(baseDir, cfg, MigrateInput{From: "session-1", To: "global", Move: true})
	require.NoError(t, err)
	require.Equal(t, 3, migrated.Copied)
	require.True(t, migrated.SourceCleared)

	total, err := global.CountLearnings()
	require.NoError(t, err)
	require.Equal(t, 3, total)

	// Lineage survived the move.
	latest, err = Latest(global, first.ID)
	require.NoError(t, err)
	require.Equal(t, revised.ID, latest.LatestID)

	// Maintenance passes find a consistent unit and nothing to remove.
	checked, err := Validate(global, ValidateInput{})
	require.NoError(t, err)
	require.True(t, checked.OK)

	deduped, err := Dedup(global, cfg, DedupInput{IncludeNear: true})
	require.NoError(t, err)
	require.Equal(t, 0, deduped.Removed)

	pruned, err := MaybePrune(context.Background(), global, cfg, nil, PruneInput{Force: true})
	require.NoError(t, err)
	require.Empty(t, pruned.Pruned)

	stats, err := Stats(global)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.Relations)

	exported, err := Export(global, ExportInput{})
	require.NoError(t, err)
	require.Equal(t, 3, exported.Entries)
}
