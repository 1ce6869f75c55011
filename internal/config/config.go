package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// MaxContentChars is the maximum character count for learning content.
	MaxContentChars int `json:"max_content_chars"`

	// PruneMinAgeDays is the minimum age before an unaccessed learning is
	// even considered for pruning.
	PruneMinAgeDays int `json:"prune_min_age_days"`

	// PruneMaxAgeDays is the heuristic cutoff applied when no relevance
	// judge is configured: older unaccessed entries are prune-eligible.
	PruneMaxAgeDays int `json:"prune_max_age_days"`

	// PruneIntervalHours throttles auto-prune runs per storage unit.
	PruneIntervalHours int `json:"prune_interval_hours"`

	// JudgeCommand is the external relevance judge invocation (argv).
	// Empty means no judge; the heuristic fallback applies.
	JudgeCommand []string `json:"judge_command,omitempty"`

	// IndexerCommand is the external semantic indexer invocation (argv).
	// The learning id is appended as the final argument. Empty disables
	// semantic indexing.
	IndexerCommand []string `json:"indexer_command,omitempty"`

	// FuzzyCandidateLimit bounds the candidate set for fuzzy duplicate
	// detection.
	FuzzyCandidateLimit int `json:"fuzzy_candidate_limit"`

	// BackupRetain is how many backups to keep per storage unit.
	BackupRetain int `json:"backup_retain"`

	// DBMaxOpenConns limits open database connections per unit.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle database connections per unit.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from
	// registration. Unknown names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxContentChars:     10000,
		PruneMinAgeDays:     60,
		PruneMaxAgeDays:     90,
		PruneIntervalHours:  24,
		FuzzyCandidateLimit: 10,
		BackupRetain:        5,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lore.
func Load(baseDir string) (*Config, error) {
	raw, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), raw), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.MaxContentChars = pickInt(overlay.MaxContentChars, base.MaxContentChars)
	result.PruneMinAgeDays = pickInt(overlay.PruneMinAgeDays, base.PruneMinAgeDays)
	result.PruneMaxAgeDays = pickInt(overlay.PruneMaxAgeDays, base.PruneMaxAgeDays)
	result.PruneIntervalHours = pickInt(overlay.PruneIntervalHours, base.PruneIntervalHours)
	result.FuzzyCandidateLimit = pickInt(overlay.FuzzyCandidateLimit, base.FuzzyCandidateLimit)
	result.BackupRetain = pickInt(overlay.BackupRetain, base.BackupRetain)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Commands: overlay replaces wholesale when set (argv lists don't merge).
	result.JudgeCommand = overlay.JudgeCommand
	if len(result.JudgeCommand) == 0 {
		result.JudgeCommand = base.JudgeCommand
	}
	result.IndexerCommand = overlay.IndexerCommand
	if len(result.IndexerCommand) == 0 {
		result.IndexerCommand = base.IndexerCommand
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
