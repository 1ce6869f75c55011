package store

import (
	"fmt"
	"testing"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/learning"
)

// buildChain stores n learnings where each supersedes the previous one,
// returning ids oldest-first.
func buildChain(t *testing.T, unit *db.Unit, n int) []string {
	t.Helper()
	cfg := config.DefaultConfig()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		input := StoreInput{
			Content: fmt.Sprintf("timeout is %d seconds", 10+i),
			Type:    "PROJECT_CONVENTION",
		}
		if i > 0 {
			input.SupersedesID = &ids[i-1]
		}
		out, err := Store(unit, cfg, nil, input)
		if err != nil {
			t.Fatalf("Store link %d: %v", i, err)
		}
		ids = append(ids, out.ID)
	}
	return ids
}

func TestLatest_FollowsUpdatesChain(t *testing.T) {
	unit := newTestUnit(t)
	ids := buildChain(t, unit, 3)

	out, err := Latest(unit, ids[0])
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if out.LatestID != ids[2] {
		t.Errorf("latest = %s, want %s", out.LatestID, ids[2])
	}
	if out.Hops != 2 {
		t.Errorf("hops = %d, want 2", out.Hops)
	}
	if out.Truncated {
		t.Error("short chain reported truncated")
	}
	if out.Learning == nil || out.Learning.ID != ids[2] {
		t.Errorf("latest learning = %+v", out.Learning)
	}
}

func TestLatest_UnsupersededReturnsSelf(t *testing.T) {
	unit := newTestUnit(t)
	id := mustStore(t, unit, "never revised", "TOOL_USAGE")

	out, err := Latest(unit, id)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if out.LatestID != id || out.Hops != 0 {
		t.Errorf("Latest = %+v, want self with 0 hops", out)
	}
}

func TestLatest_TruncatesLongChain(t *testing.T) {
	unit := newTestUnit(t)
	ids := buildChain(t, unit, 13)

	out, err := Latest(unit, ids[0])
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !out.Truncated {
		t.Error("12-hop chain not reported truncated")
	}
	if out.Hops != 10 {
		t.Errorf("hops = %d, want 10", out.Hops)
	}
	if out.LatestID != ids[10] {
		t.Errorf("partial chain end = %s, want %s", out.LatestID, ids[10])
	}
}

func TestLatest_NotFound(t *testing.T) {
	unit := newTestUnit(t)
	if _, err := Latest(unit, "01NOSUCHID0000000000000000"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Latest = %v, want NOT_FOUND", err)
	}
}

func TestHistory_BothDirectionsNearestFirst(t *testing.T) {
	unit := newTestUnit(t)
	ids := buildChain(t, unit, 3) // A <- B <- C

	out, err := History(unit, ids[2])
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(out.Ancestors) != 2 {
		t.Fatalf("ancestors = %d, want 2", len(out.Ancestors))
	}
	if out.Ancestors[0].ID != ids[1] || out.Ancestors[0].Depth != 1 {
		t.Errorf("first ancestor = %s depth %d, want %s depth 1",
			out.Ancestors[0].ID, out.Ancestors[0].Depth, ids[1])
	}
	if out.Ancestors[1].ID != ids[0] || out.Ancestors[1].Depth != 2 {
		t.Errorf("second ancestor = %s depth %d, want %s depth 2",
			out.Ancestors[1].ID, out.Ancestors[1].Depth, ids[0])
	}
	if len(out.Descendants) != 0 {
		t.Errorf("head of chain has descendants: %+v", out.Descendants)
	}

	out, err = History(unit, ids[0])
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(out.Descendants) != 2 || out.Descendants[0].ID != ids[1] || out.Descendants[1].ID != ids[2] {
		t.Errorf("descendants of root wrong: %+v", out.Descendants)
	}
	if len(out.Ancestors) != 0 {
		t.Errorf("root has ancestors: %+v", out.Ancestors)
	}
	if out.Truncated {
		t.Error("short lineage reported truncated")
	}
}

func TestHistory_MixedRelationTypes(t *testing.T) {
	unit := newTestUnit(t)
	base := mustStore(t, unit, "base convention", "PROJECT_CONVENTION")
	branch := mustStore(t, unit, "special case of the convention", "PROJECT_CONVENTION")

	if _, err := Link(unit, LinkInput{ID: branch, SupersedesID: base, RelationType: learning.RelationExtends}); err != nil {
		t.Fatalf("Link: %v", err)
	}

	out, err := History(unit, branch)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(out.Ancestors) != 1 || out.Ancestors[0].RelationType != learning.RelationExtends {
		t.Errorf("extends edge missing from lineage: %+v", out.Ancestors)
	}
}

func TestHistory_TruncatesDeepLineage(t *testing.T) {
	unit := newTestUnit(t)
	ids := buildChain(t, unit, 13)

	out, err := History(unit, ids[len(ids)-1])
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !out.Truncated {
		t.Error("deep lineage not reported truncated")
	}
	if len(out.Ancestors) != 10 {
		t.Errorf("ancestors = %d, want 10 (depth bound)", len(out.Ancestors))
	}
}

func TestHistory_NotFound(t *testing.T) {
	unit := newTestUnit(t)
	if _, err := History(unit, "01NOSUCHID0000000000000000"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("History = %v, want NOT_FOUND", err)
	}
}

func TestLink_Defaults(t *testing.T) {
	unit := newTestUnit(t)
	a := mustStore(t, unit, "version one", "TOOL_USAGE")
	b := mustStore(t, unit, "version two", "TOOL_USAGE")

	out, err := Link(unit, LinkInput{ID: b, SupersedesID: a})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if out.RelationType != learning.RelationUpdates {
		t.Errorf("relation type = %q, want updates default", out.RelationType)
	}
}

func TestLink_Validation(t *testing.T) {
	unit := newTestUnit(t)
	a := mustStore(t, unit, "lone entry", "TOOL_USAGE")

	if _, err := Link(unit, LinkInput{ID: a, SupersedesID: a}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("self-link = %v, want INVALID_REQUEST", err)
	}
	if _, err := Link(unit, LinkInput{ID: a}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing target = %v, want INVALID_REQUEST", err)
	}
	if _, err := Link(unit, LinkInput{ID: a, SupersedesID: "01NOSUCHID0000000000000000"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown target = %v, want NOT_FOUND", err)
	}
	if _, err := Link(unit, LinkInput{ID: a, SupersedesID: a, RelationType: "replaces"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("bad relation type = %v, want INVALID_REQUEST", err)
	}
}

func TestLink_SecondUpdatesEdgeConflicts(t *testing.T) {
	unit := newTestUnit(t)
	a := mustStore(t, unit, "first parent", "TOOL_USAGE")
	b := mustStore(t, unit, "second parent", "TOOL_USAGE")
	c := mustStore(t, unit, "the child", "TOOL_USAGE")

	if _, err := Link(unit, LinkInput{ID: c, SupersedesID: a}); err != nil {
		t.Fatalf("first Link: %v", err)
	}
	if _, err := Link(unit, LinkInput{ID: c, SupersedesID: b}); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("second updates edge = %v, want CONFLICT", err)
	}
	// A second outgoing edge of a different type is fine.
	if _, err := Link(unit, LinkInput{ID: c, SupersedesID: b, RelationType: learning.RelationExtends}); err != nil {
		t.Errorf("extends edge after updates edge: %v", err)
	}
}
