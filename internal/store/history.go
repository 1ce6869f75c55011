package store

import (
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/learning"
)

// maxTraversalDepth bounds version-graph walks. Exceeding it truncates the
// result rather than failing.
const maxTraversalDepth = 10

// LinkInput contains parameters for the Link operation.
type LinkInput struct {
	ID           string // the newer learning
	SupersedesID string // the learning it supersedes
	RelationType string // default: updates
}

// LinkOutput contains the result of the Link operation.
type LinkOutput struct {
	ID           string `json:"id"`
	SupersedesID string `json:"supersedes_id"`
	RelationType string `json:"relation_type"`
}

// Link records a version edge between two existing learnings.
func Link(unit *db.Unit, input LinkInput) (*LinkOutput, error) {
	if input.ID == "" || input.SupersedesID == "" {
		return nil, errors.NewInvalidRequest("id and supersedes_id are required")
	}
	if input.ID == input.SupersedesID {
		return nil, errors.NewInvalidRequest("a learning cannot supersede itself")
	}
	relationType, err := learning.ValidateRelationType(input.RelationType)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{input.ID, input.SupersedesID} {
		exists, err := unit.LearningExists(id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.NewNotFound(id)
		}
	}
	if err := unit.InsertRelation(input.ID, input.SupersedesID, relationType); err != nil {
		return nil, err
	}
	return &LinkOutput{
		ID:           input.ID,
		SupersedesID: input.SupersedesID,
		RelationType: relationType,
	}, nil
}

// HistoryEntry is one node in a version lineage.
type HistoryEntry struct {
	learning.Learning
	RelationType string `json:"relation_type"`
	Depth        int    `json:"depth"`
}

// HistoryOutput contains a learning's lineage in both directions,
// nearest-first.
type HistoryOutput struct {
	ID          string         `json:"id"`
	Ancestors   []HistoryEntry `json:"ancestors"`
	Descendants []HistoryEntry `json:"descendants"`
	Truncated   bool           `json:"truncated,omitempty"`
}

// History walks the version graph from id: ancestors are the learnings id
// transitively supersedes, descendants the learnings that transitively
// supersede it. Breadth-first, nearest-first, bounded at depth 10.
func History(unit *db.Unit, id string) (*HistoryOutput, error) {
	exists, err := unit.LearningExists(id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NewNotFound(id)
	}

	out := &HistoryOutput{ID: id}
	out.Ancestors, out.Truncated, err = walk(unit, id, ancestorsOf)
	if err != nil {
		return nil, err
	}
	descendants, truncated, err := walk(unit, id, descendantsOf)
	if err != nil {
		return nil, err
	}
	out.Descendants = descendants
	out.Truncated = out.Truncated || truncated
	return out, nil
}

type hop struct {
	id           string
	relationType string
}

func ancestorsOf(unit *db.Unit, id string) ([]hop, error) {
	edges, err := unit.OutgoingRelations(id)
	if err != nil {
		return nil, err
	}
	hops := make([]hop, 0, len(edges))
	for _, e := range edges {
		hops = append(hops, hop{id: e.SupersedesID, relationType: e.RelationType})
	}
	return hops, nil
}

func descendantsOf(unit *db.Unit, id string) ([]hop, error) {
	edges, err := unit.IncomingRelations(id)
	if err != nil {
		return nil, err
	}
	hops := make([]hop, 0, len(edges))
	for _, e := range edges {
		hops = append(hops, hop{id: e.ID, relationType: e.RelationType})
	}
	return hops, nil
}

// walk traverses the graph breadth-first from start using next to expand
// each node, so entries come out nearest-first. Returns truncated=true
// when the depth bound cut the walk short.
func walk(unit *db.Unit, start string, next func(*db.Unit, string) ([]hop, error)) ([]HistoryEntry, bool, error) {
	visited := map[string]bool{start: true}
	frontier := []hop{{id: start}}
	var entries []HistoryEntry

	for depth := 1; depth <= maxTraversalDepth; depth++ {
		var nextFrontier []hop
		for _, h := range frontier {
			hops, err := next(unit, h.id)
			if err != nil {
				return nil, false, err
			}
			for _, nh := range hops {
				if visited[nh.id] {
					continue
				}
				visited[nh.id] = true
				l, err := unit.GetLearning(nh.id)
				if err != nil {
					if errors.Is(err, errors.ErrNotFound) {
						continue
					}
					return nil, false, err
				}
				entries = append(entries, HistoryEntry{
					Learning:     *l,
					RelationType: nh.relationType,
					Depth:        depth,
				})
				nextFrontier = append(nextFrontier, nh)
			}
		}
		if len(nextFrontier) == 0 {
			return entries, false, nil
		}
		frontier = nextFrontier
	}

	// Depth bound reached with unexpanded nodes left.
	for _, h := range frontier {
		hops, err := next(unit, h.id)
		if err != nil {
			return nil, false, err
		}
		for _, nh := range hops {
			if !visited[nh.id] {
				return entries, true, nil
			}
		}
	}
	return entries, false, nil
}

// LatestOutput contains the result of the Latest operation.
type LatestOutput struct {
	ID        string             `json:"id"`
	LatestID  string             `json:"latest_id"`
	Learning  *learning.Learning `json:"learning"`
	Hops      int                `json:"hops"`
	Truncated bool               `json:"truncated,omitempty"`
}

// Latest resolves the terminal node of the updates chain starting at id,
// following forward edges until no newer version exists. Returns id itself
// when it was never superseded. The walk truncates at depth 10 and returns
// the partial chain's end.
func Latest(unit *db.Unit, id string) (*LatestOutput, error) {
	exists, err := unit.LearningExists(id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NewNotFound(id)
	}

	current := id
	hops := 0
	truncated := false
	for ; hops < maxTraversalDepth; hops++ {
		next, err := unit.NextInUpdatesChain(current)
		if err != nil {
			return nil, err
		}
		if next == "" || next == current {
			break
		}
		current = next
	}
	if hops == maxTraversalDepth {
		next, err := unit.NextInUpdatesChain(current)
		if err != nil {
			return nil, err
		}
		truncated = next != "" && next != current
	}

	l, err := unit.GetLearning(current)
	if err != nil {
		return nil, err
	}
	return &LatestOutput{
		ID:        id,
		LatestID:  current,
		Learning:  l,
		Hops:      hops,
		Truncated: truncated,
	}, nil
}
