package store

import (
	"sort"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/learning"
)

// FindDuplicate runs the three dedup strategies in order of cost and
// returns the id of an existing duplicate, or "" when none matches.
// Strategies: exact content match, normalized match via the indexed hash
// (case, punctuation, and whitespace folded), then normalized comparison
// against a small candidate set narrowed by full-text search. The third
// pass catches rows whose norm_hash column drifted, e.g. a hand-edited
// database. When several rows match, the oldest wins so repeated stores
// always converge on one id.
func FindDuplicate(unit *db.Unit, cfg *config.Config, content, typ string) (string, error) {
	id, err := unit.FindExact(content, typ)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	normalized := learning.Normalize(content)
	if normalized == "" {
		return "", nil
	}
	id, err = unit.FindByNormHash(learning.NormHash(content), typ)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	candidates, err := unit.FTSCandidates(content, typ, cfg.FuzzyCandidateLimit)
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if learning.Normalize(c.Content) == normalized {
			return c.ID, nil
		}
	}
	return "", nil
}

// DedupInput contains parameters for the batch Dedup operation.
type DedupInput struct {
	// IncludeNear extends grouping from exact content equality to
	// normalized equality across the whole unit.
	IncludeNear bool
	DryRun      bool
}

// DedupGroup describes one set of duplicates collapsed into a survivor.
type DedupGroup struct {
	SurvivorID string   `json:"survivor_id"`
	RemovedIDs []string `json:"removed_ids"`
}

// DedupOutput contains the result of the batch Dedup operation.
type DedupOutput struct {
	Groups  []DedupGroup `json:"groups"`
	Removed int          `json:"removed"`
	DryRun  bool         `json:"dry_run,omitempty"`
}

// Dedup scans the whole unit for duplicate groups and merges each group
// into its oldest member: tags unioned, access records max-merged,
// relations re-pointed at the survivor. A file backup is taken before the
// first destructive change.
func Dedup(unit *db.Unit, cfg *config.Config, input DedupInput) (*DedupOutput, error) {
	grouped, err := unit.ExactGroups()
	if err != nil {
		return nil, err
	}
	if input.IncludeNear {
		// Identical content always shares a norm hash, so near grouping
		// subsumes exact grouping.
		grouped, err = unit.NormHashGroups()
		if err != nil {
			return nil, err
		}
	}

	var groups [][]string
	for _, g := range grouped {
		if len(g) > 1 {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })

	out := &DedupOutput{DryRun: input.DryRun}
	for _, g := range groups {
		out.Groups = append(out.Groups, DedupGroup{SurvivorID: g[0], RemovedIDs: g[1:]})
		out.Removed += len(g) - 1
	}
	if input.DryRun || out.Removed == 0 {
		return out, nil
	}

	if _, err := unit.CreateBackup("dedup"); err != nil {
		return nil, err
	}
	for _, g := range groups {
		if err := mergeGroup(unit, g[0], g[1:]); err != nil {
			return nil, err
		}
	}
	if err := db.PruneBackups(unit.Path, cfg.BackupRetain); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeGroup folds the duplicates into the survivor, then deletes them.
func mergeGroup(unit *db.Unit, survivorID string, duplicateIDs []string) error {
	survivor, err := unit.GetLearning(survivorID)
	if err != nil {
		return err
	}
	tags := survivor.Tags
	for _, dupID := range duplicateIDs {
		dup, err := unit.GetLearning(dupID)
		if err != nil {
			return err
		}
		tags = learning.MergeTags(tags, dup.Tags)
		if err := unit.MergeAccess(survivorID, dupID); err != nil {
			return err
		}
		if err := unit.RepointRelations(dupID, survivorID); err != nil {
			return err
		}
	}
	if err := unit.UpdateTags(survivorID, tags); err != nil {
		return err
	}
	return unit.DeleteLearnings(duplicateIDs)
}
