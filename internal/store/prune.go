package store

import (
	"context"
	"os"
	"time"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/judge"
	"github.com/mwaldrop/lore/internal/learning"
)

// PruneInput contains parameters for the Prune operation.
type PruneInput struct {
	// Force skips the 24h sentinel throttle.
	Force  bool
	DryRun bool
}

// PrunedEntry reports one deleted (or would-be deleted) learning.
type PrunedEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	AgeDays   int    `json:"age_days"`
	CreatedAt string `json:"created_at"`
}

// PruneOutput contains the result of the Prune operation.
type PruneOutput struct {
	Skipped    bool          `json:"skipped,omitempty"` // throttled, nothing examined
	Candidates int           `json:"candidates"`
	Pruned     []PrunedEntry `json:"pruned"`
	Kept       int           `json:"kept"`
	DryRun     bool          `json:"dry_run,omitempty"`
}

// MaybePrune removes stale learnings. It is throttled to once per prune
// interval via a sentinel file's mtime unless forced. Candidates are
// learnings past the minimum age with zero recorded accesses; each one is
// put to the relevance judge (errors count as keep), or to the flat
// maximum-age heuristic when no judge is configured. Deletions are batched
// behind a file backup and followed by a full-text index rebuild.
func MaybePrune(ctx context.Context, unit *db.Unit, cfg *config.Config, j judge.Judge, input PruneInput) (*PruneOutput, error) {
	sentinel := unit.Path + ".lastprune"
	if !input.Force && !input.DryRun {
		if info, err := os.Stat(sentinel); err == nil {
			interval := time.Duration(cfg.PruneIntervalHours) * time.Hour
			if time.Since(info.ModTime()) < interval {
				return &PruneOutput{Skipped: true, Pruned: []PrunedEntry{}}, nil
			}
		}
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.PruneMinAgeDays).Format(time.RFC3339)
	candidates, err := unit.FindPruneCandidates(cutoff)
	if err != nil {
		return nil, err
	}

	if j == nil {
		j = judge.Heuristic{MaxAgeDays: cfg.PruneMaxAgeDays}
	}

	out := &PruneOutput{Candidates: len(candidates), Pruned: []PrunedEntry{}, DryRun: input.DryRun}
	var pruneIDs []string
	for _, c := range candidates {
		age := learning.AgeDays(c.CreatedAt)
		verdict, err := j.Judge(ctx, judge.Input{
			Content:    c.Content,
			AgeDays:    age,
			Type:       c.Type,
			Accessed:   false,
			Confidence: c.Confidence,
		})
		if err != nil || verdict != judge.Prune {
			out.Kept++
			continue
		}
		pruneIDs = append(pruneIDs, c.ID)
		out.Pruned = append(out.Pruned, PrunedEntry{
			ID:        c.ID,
			Type:      c.Type,
			AgeDays:   age,
			CreatedAt: c.CreatedAt,
		})
	}

	if input.DryRun {
		return out, nil
	}

	if len(pruneIDs) > 0 {
		if _, err := unit.CreateBackup("prune"); err != nil {
			return nil, err
		}
		if err := unit.DeleteLearnings(pruneIDs); err != nil {
			return nil, err
		}
		if err := unit.RebuildFTS(); err != nil {
			return nil, err
		}
		if err := db.PruneBackups(unit.Path, cfg.BackupRetain); err != nil {
			return nil, err
		}
	}

	if err := touchSentinel(sentinel); err != nil {
		return nil, err
	}
	return out, nil
}

func touchSentinel(path string) error {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}
