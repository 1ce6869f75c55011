package store

import (
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/learning"
)

// GetOutput is one learning with its access record and version edges.
type GetOutput struct {
	Learning  *learning.Learning        `json:"learning"`
	Access    *learning.AccessRecord    `json:"access,omitempty"`
	Pattern   *learning.PatternMetadata `json:"pattern,omitempty"`
	Relations []learning.Relation       `json:"relations,omitempty"`
}

// Get fetches a single learning by id together with its access record,
// pattern metadata, and relation edges in both directions.
func Get(unit *db.Unit, id string) (*GetOutput, error) {
	l, err := unit.GetLearning(id)
	if err != nil {
		return nil, err
	}
	access, err := unit.GetAccess(id)
	if err != nil {
		return nil, err
	}
	pattern, err := unit.GetPatternMeta(id)
	if err != nil {
		return nil, err
	}
	outgoing, err := unit.OutgoingRelations(id)
	if err != nil {
		return nil, err
	}
	incoming, err := unit.IncomingRelations(id)
	if err != nil {
		return nil, err
	}
	return &GetOutput{
		Learning:  l,
		Access:    access,
		Pattern:   pattern,
		Relations: append(outgoing, incoming...),
	}, nil
}
