package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("config = %+v, want defaults", cfg)
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	baseDir := t.TempDir()
	content := `{
		"max_content_chars": 500,
		"judge_command": ["my-judge", "--fast"],
		"disabled_tools": ["learning_prune"]
	}`
	if err := os.WriteFile(filepath.Join(baseDir, "config.json"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(baseDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxContentChars != 500 {
		t.Errorf("max_content_chars = %d, want 500", cfg.MaxContentChars)
	}
	// Untouched fields keep their defaults.
	if cfg.PruneMinAgeDays != 60 || cfg.BackupRetain != 5 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.JudgeCommand, []string{"my-judge", "--fast"}) {
		t.Errorf("judge_command = %v", cfg.JudgeCommand)
	}
	if !reflect.DeepEqual(cfg.DisabledTools, []string{"learning_prune"}) {
		t.Errorf("disabled_tools = %v", cfg.DisabledTools)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	baseDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(baseDir, "config.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(baseDir); err == nil {
		t.Error("malformed config did not error")
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.DisabledTools = []string{"learning_export"}

	overlay := &Config{
		MaxContentChars: 2000,
		IndexerCommand:  []string{"indexer"},
		DisabledTools:   []string{"learning_export", " learning_prune "},
	}

	got := Merge(base, overlay)
	if got.MaxContentChars != 2000 {
		t.Errorf("max_content_chars = %d, want overlay 2000", got.MaxContentChars)
	}
	if got.PruneMaxAgeDays != base.PruneMaxAgeDays {
		t.Errorf("prune_max_age_days = %d, want base %d", got.PruneMaxAgeDays, base.PruneMaxAgeDays)
	}
	if !reflect.DeepEqual(got.IndexerCommand, []string{"indexer"}) {
		t.Errorf("indexer_command = %v", got.IndexerCommand)
	}
	// Tool lists merge, trim, and dedup.
	if !reflect.DeepEqual(got.DisabledTools, []string{"learning_export", "learning_prune"}) {
		t.Errorf("disabled_tools = %v", got.DisabledTools)
	}
}

func TestMerge_ZeroOverlayKeepsBase(t *testing.T) {
	got := Merge(DefaultConfig(), &Config{})
	if !reflect.DeepEqual(got, DefaultConfig()) {
		t.Errorf("merge with zero overlay = %+v, want defaults", got)
	}
}
