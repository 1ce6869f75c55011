package store

import (
	"os"

	"github.com/mwaldrop/lore/internal/db"
)

// StatsOutput summarizes a storage unit.
type StatsOutput struct {
	Namespace     string         `json:"namespace"`
	Total         int            `json:"total"`
	ByType        map[string]int `json:"by_type"`
	ByConfidence  map[string]int `json:"by_confidence"`
	Accessed      int            `json:"accessed"`
	Relations     int            `json:"relations"`
	Patterns      int            `json:"patterns"`
	SchemaVersion int            `json:"schema_version"`
	FileBytes     int64          `json:"file_bytes"`
}

// Stats reports entry counts, access coverage, and the unit file's size.
func Stats(unit *db.Unit) (*StatsOutput, error) {
	out := &StatsOutput{Namespace: unit.Namespace, SchemaVersion: db.CurrentSchemaVersion}
	if out.Namespace == "" {
		out.Namespace = "global"
	}

	var err error
	if out.Total, err = unit.CountLearnings(); err != nil {
		return nil, err
	}
	if out.ByType, err = unit.TypeCounts(); err != nil {
		return nil, err
	}
	if out.ByConfidence, err = unit.ConfidenceCounts(); err != nil {
		return nil, err
	}
	if out.Accessed, err = unit.AccessedCount(); err != nil {
		return nil, err
	}
	if out.Relations, err = unit.CountRelations(); err != nil {
		return nil, err
	}
	if out.Patterns, err = unit.CountPatternMeta(); err != nil {
		return nil, err
	}

	if info, err := os.Stat(unit.Path); err == nil {
		out.FileBytes = info.Size()
	}
	return out, nil
}
