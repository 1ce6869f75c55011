package store

import (
	"os"
	"path/filepath"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/learning"
)

// NamespaceInfo summarizes one namespace unit.
type NamespaceInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// NamespacesOutput contains the result of the namespace list operation.
type NamespacesOutput struct {
	Global     NamespaceInfo   `json:"global"`
	Namespaces []NamespaceInfo `json:"namespaces"`
}

// ListNamespaces reports the global unit and every namespace unit with its
// entry count.
func ListNamespaces(baseDir string, cfg *config.Config) (*NamespacesOutput, error) {
	out := &NamespacesOutput{Namespaces: []NamespaceInfo{}}

	count, err := countUnit(baseDir, "", cfg)
	if err != nil {
		return nil, err
	}
	out.Global = NamespaceInfo{Name: "global", Count: count}

	names, err := db.ListNamespaces(baseDir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		count, err := countUnit(baseDir, name, cfg)
		if err != nil {
			return nil, err
		}
		out.Namespaces = append(out.Namespaces, NamespaceInfo{Name: name, Count: count})
	}
	return out, nil
}

func countUnit(baseDir, namespace string, cfg *config.Config) (int, error) {
	unit, err := db.Open(baseDir, namespace, cfg)
	if err != nil {
		return 0, err
	}
	defer unit.Close()
	return unit.CountLearnings()
}

// MigrateInput contains parameters for the namespace migration operation.
// Empty or "global" names address the global unit.
type MigrateInput struct {
	From   string
	To     string
	Move   bool // clear the source after copying, backup taken first
	DryRun bool
}

// MigrateOutput contains the result of the namespace migration operation.
type MigrateOutput struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Copied        int    `json:"copied"`
	AlreadyThere  int    `json:"already_there"`
	SourceCleared bool   `json:"source_cleared,omitempty"`
	BackupPath    string `json:"backup_path,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

// MigrateNamespace copies every entity from one unit into another with
// insert-if-absent-by-id semantics, so replays are idempotent. With Move
// set the source is cleared afterwards, behind a mandatory file backup.
func MigrateNamespace(baseDir string, cfg *config.Config, input MigrateInput) (*MigrateOutput, error) {
	from := canonicalNamespace(input.From)
	to := canonicalNamespace(input.To)
	if from == to {
		return nil, errors.NewInvalidRequest("source and destination are the same unit")
	}

	src, err := db.Open(baseDir, from, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	dst, err := db.Open(baseDir, to, cfg)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	rows, err := src.AllLearnings()
	if err != nil {
		return nil, err
	}

	out := &MigrateOutput{From: displayNamespace(from), To: displayNamespace(to), DryRun: input.DryRun}
	if input.DryRun {
		for _, row := range rows {
			exists, err := dst.LearningExists(row.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				out.AlreadyThere++
			} else {
				out.Copied++
			}
		}
		return out, nil
	}

	for _, row := range rows {
		l := row.Learning
		inserted, err := dst.InsertLearningIfAbsent(&l)
		if err != nil {
			return nil, err
		}
		if inserted {
			out.Copied++
		} else {
			out.AlreadyThere++
		}
		if row.Access != nil {
			if err := dst.InsertAccessIfAbsent(row.Access); err != nil {
				return nil, err
			}
		}
	}

	// Edges and pattern rows go after all learnings so their FK targets
	// exist on the destination side.
	relations, err := src.AllRelations()
	if err != nil {
		return nil, err
	}
	for _, rel := range relations {
		if err := dst.InsertRelationIfAbsent(rel); err != nil {
			return nil, err
		}
	}
	metas, err := src.AllPatternMeta()
	if err != nil {
		return nil, err
	}
	for _, m := range metas {
		if err := dst.InsertPatternMetaIfAbsent(m); err != nil {
			return nil, err
		}
	}

	if input.Move {
		backupPath, err := src.CreateBackup("migrate")
		if err != nil {
			return nil, err
		}
		if err := src.ClearAll(); err != nil {
			return nil, err
		}
		if err := db.PruneBackups(src.Path, cfg.BackupRetain); err != nil {
			return nil, err
		}
		out.SourceCleared = true
		out.BackupPath = backupPath
	}
	return out, nil
}

func canonicalNamespace(name string) string {
	if name == "global" {
		return ""
	}
	return name
}

func displayNamespace(name string) string {
	if name == "" {
		return "global"
	}
	return name
}

// RunnerRegistry answers whether a namespace still has a registered owner.
type RunnerRegistry interface {
	Exists(name string) (bool, error)
}

// DirRegistry is the default registry: a namespace's owner is a directory
// entry of the same name under <base>/runners.
type DirRegistry struct {
	Dir string
}

// NewRunnerRegistry returns the directory-backed registry rooted in baseDir.
func NewRunnerRegistry(baseDir string) DirRegistry {
	return DirRegistry{Dir: filepath.Join(baseDir, "runners")}
}

// Exists reports whether the runner record is present. A missing registry
// directory means no runners are registered.
func (r DirRegistry) Exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(r.Dir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// PruneNamespacesOutput contains the result of the orphaned-namespace
// prune operation.
type PruneNamespacesOutput struct {
	Removed  []string `json:"removed"`
	Retained []string `json:"retained"`
	DryRun   bool     `json:"dry_run,omitempty"`
}

// PruneOrphanedNamespaces deletes namespace units whose runner record no
// longer exists. Dry-run reports what would go without deleting anything.
func PruneOrphanedNamespaces(baseDir string, registry RunnerRegistry, dryRun bool) (*PruneNamespacesOutput, error) {
	names, err := db.ListNamespaces(baseDir)
	if err != nil {
		return nil, err
	}

	out := &PruneNamespacesOutput{Removed: []string{}, Retained: []string{}, DryRun: dryRun}
	for _, name := range names {
		owned, err := registry.Exists(name)
		if err != nil {
			return nil, err
		}
		if owned {
			out.Retained = append(out.Retained, name)
			continue
		}
		if !dryRun {
			if err := db.RemoveUnit(db.NamespacePath(baseDir, name)); err != nil {
				return nil, err
			}
		}
		out.Removed = append(out.Removed, name)
	}
	return out, nil
}

// ValidateNamespaceName exposes the namespace naming rule to the command
// surface. Empty means global and is valid.
func ValidateNamespaceName(name string) error {
	return learning.ValidateNamespace(canonicalNamespace(name))
}
