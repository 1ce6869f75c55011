package store

import (
	"github.com/mwaldrop/lore/internal/db"
)

// ValidateInput contains parameters for the Validate operation.
type ValidateInput struct {
	// Fix resynchronizes the full-text index when parity checks fail.
	Fix bool
}

// ValidateOutput reports the health of a storage unit.
type ValidateOutput struct {
	Integrity         string `json:"integrity"` // SQLite's own verdict, "ok" when sound
	Learnings         int    `json:"learnings"`
	FTSRows           int    `json:"fts_rows"`
	MissingFTSRows    int    `json:"missing_fts_rows"`
	OrphanedFTSRows   int    `json:"orphaned_fts_rows"`
	OrphanedAccess    int    `json:"orphaned_access_records"`
	OrphanedRelations int    `json:"orphaned_relations"`
	FTSRebuilt        bool   `json:"fts_rebuilt,omitempty"`
	OK                bool   `json:"ok"`
}

// Validate checks the unit file's integrity, full-text index parity, and
// referential orphans. With Fix set, a parity failure triggers an index
// rebuild; orphaned rows are reported but never deleted automatically.
func Validate(unit *db.Unit, input ValidateInput) (*ValidateOutput, error) {
	out := &ValidateOutput{}

	var err error
	if out.Integrity, err = unit.IntegrityCheck(); err != nil {
		return nil, err
	}
	if out.Learnings, err = unit.CountLearnings(); err != nil {
		return nil, err
	}
	if out.FTSRows, err = unit.CountFTS(); err != nil {
		return nil, err
	}
	if out.MissingFTSRows, err = unit.MissingFTSRows(); err != nil {
		return nil, err
	}
	if out.OrphanedFTSRows, err = unit.OrphanedFTSRows(); err != nil {
		return nil, err
	}
	if out.OrphanedAccess, err = unit.OrphanedAccessRecords(); err != nil {
		return nil, err
	}
	if out.OrphanedRelations, err = unit.OrphanedRelations(); err != nil {
		return nil, err
	}

	if input.Fix && (out.MissingFTSRows > 0 || out.OrphanedFTSRows > 0) {
		if err := unit.RebuildFTS(); err != nil {
			return nil, err
		}
		out.FTSRebuilt = true
		out.MissingFTSRows = 0
		out.OrphanedFTSRows = 0
		if out.FTSRows, err = unit.CountFTS(); err != nil {
			return nil, err
		}
	}

	out.OK = out.Integrity == "ok" &&
		out.MissingFTSRows == 0 && out.OrphanedFTSRows == 0 &&
		out.OrphanedAccess == 0 && out.OrphanedRelations == 0
	return out, nil
}
