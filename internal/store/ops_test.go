package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
)

func TestExport_JSONFormat(t *testing.T) {
	unit := newTestUnit(t)
	mustStore(t, unit, "exported entry one", "TOOL_USAGE")
	mustStore(t, unit, "exported entry two", "TOOL_USAGE")

	path := filepath.Join(t.TempDir(), "out.json")
	out, err := Export(unit, ExportInput{Path: path})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out.Entries != 2 || out.Format != FormatJSON || out.Path != path {
		t.Errorf("export report = %+v", out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var rows []db.ExportRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("exported rows = %d, want 2", len(rows))
	}
}

func TestExport_CompactFormat(t *testing.T) {
	unit := newTestUnit(t)
	mustStore(t, unit, "line one entry", "TOOL_USAGE")
	mustStore(t, unit, "line two entry", "TOOL_USAGE")

	path := filepath.Join(t.TempDir(), "out.jsonl")
	if _, err := Export(unit, ExportInput{Format: FormatCompact, Path: path}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lines := 0
	for scanner.Scan() {
		var row db.ExportRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("line %d is not a JSON object: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("export lines = %d, want 2", lines)
	}
}

func TestExport_DefaultPath(t *testing.T) {
	unit := newTestUnit(t)
	mustStore(t, unit, "entry for default path", "TOOL_USAGE")

	out, err := Export(unit, ExportInput{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(out.Path, filepath.Join(unit.BaseDir, "exports")) {
		t.Errorf("default path %s not under exports dir", out.Path)
	}
	if !strings.Contains(filepath.Base(out.Path), "global-") {
		t.Errorf("default name %s missing unit label", filepath.Base(out.Path))
	}
	if _, err := os.Stat(out.Path); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestExport_BadFormat(t *testing.T) {
	unit := newTestUnit(t)
	if _, err := Export(unit, ExportInput{Format: "xml"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Export = %v, want INVALID_REQUEST", err)
	}
}

func TestExport_EmptyUnit(t *testing.T) {
	unit := newTestUnit(t)

	path := filepath.Join(t.TempDir(), "empty.json")
	out, err := Export(unit, ExportInput{Path: path})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out.Entries != 0 {
		t.Errorf("entries = %d, want 0", out.Entries)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty export = %q, want []", data)
	}
}

func TestStats(t *testing.T) {
	unit := newTestUnit(t)

	a := mustStore(t, unit, "stat entry one", "TOOL_USAGE")
	b := mustStore(t, unit, "stat entry two", "PERFORMANCE_PATTERN")
	if err := unit.TouchAccess(a); err != nil {
		t.Fatalf("TouchAccess: %v", err)
	}
	if _, err := Link(unit, LinkInput{ID: b, SupersedesID: a}); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, err := ClassifyPattern(unit, ClassifyPatternInput{ID: b, Strategy: "batching"}); err != nil {
		t.Fatalf("ClassifyPattern: %v", err)
	}

	out, err := Stats(unit)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if out.Namespace != "global" {
		t.Errorf("namespace = %q, want global", out.Namespace)
	}
	if out.Total != 2 || out.Accessed != 1 || out.Relations != 1 || out.Patterns != 1 {
		t.Errorf("stats = %+v", out)
	}
	if out.ByType["TOOL_USAGE"] != 1 || out.ByType["PERFORMANCE_PATTERN"] != 1 {
		t.Errorf("by_type = %v", out.ByType)
	}
	if out.SchemaVersion != db.CurrentSchemaVersion {
		t.Errorf("schema version = %d, want %d", out.SchemaVersion, db.CurrentSchemaVersion)
	}
	if out.FileBytes == 0 {
		t.Error("file size not reported")
	}
}

func TestValidate_HealthyUnit(t *testing.T) {
	unit := newTestUnit(t)
	mustStore(t, unit, "healthy entry", "TOOL_USAGE")

	out, err := Validate(unit, ValidateInput{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !out.OK || out.Integrity != "ok" {
		t.Errorf("healthy unit failed validation: %+v", out)
	}
	if out.Learnings != 1 || out.FTSRows != 1 {
		t.Errorf("counts = %d learnings, %d fts rows", out.Learnings, out.FTSRows)
	}
}

func TestValidate_FixRebuildsIndex(t *testing.T) {
	unit := newTestUnit(t)
	mustStore(t, unit, "entry losing its index row", "TOOL_USAGE")

	if _, err := unit.DB.Exec(`DELETE FROM learnings_fts`); err != nil {
		t.Fatalf("break index: %v", err)
	}

	out, err := Validate(unit, ValidateInput{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.OK || out.MissingFTSRows != 1 {
		t.Errorf("broken index not detected: %+v", out)
	}

	out, err = Validate(unit, ValidateInput{Fix: true})
	if err != nil {
		t.Fatalf("Validate with fix: %v", err)
	}
	if !out.FTSRebuilt || !out.OK || out.FTSRows != 1 {
		t.Errorf("fix did not restore parity: %+v", out)
	}
}

func TestClassifyPattern(t *testing.T) {
	unit := newTestUnit(t)
	id := mustStore(t, unit, "parallel tool calls cut latency", "PERFORMANCE_PATTERN")

	out, err := ClassifyPattern(unit, ClassifyPatternInput{
		ID:            id,
		Strategy:      "parallel",
		Quality:       "good",
		InputTokens:   1200,
		OutputTokens:  400,
		EstimatedCost: 0.02,
	})
	if err != nil {
		t.Fatalf("ClassifyPattern: %v", err)
	}
	if out.Pattern.Strategy != "parallel" {
		t.Errorf("pattern = %+v", out.Pattern)
	}

	got, err := Get(unit, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Pattern == nil || got.Pattern.InputTokens != 1200 {
		t.Errorf("stored pattern = %+v", got.Pattern)
	}

	// Upsert replaces the row.
	if _, err := ClassifyPattern(unit, ClassifyPatternInput{ID: id, Strategy: "batched"}); err != nil {
		t.Fatalf("second ClassifyPattern: %v", err)
	}
	got, _ = Get(unit, id)
	if got.Pattern.Strategy != "batched" {
		t.Errorf("upsert did not replace: %+v", got.Pattern)
	}
	n, _ := unit.CountPatternMeta()
	if n != 1 {
		t.Errorf("pattern rows = %d, want 1", n)
	}
}

func TestClassifyPattern_WrongType(t *testing.T) {
	unit := newTestUnit(t)
	id := mustStore(t, unit, "not a performance pattern", "TOOL_USAGE")

	if _, err := ClassifyPattern(unit, ClassifyPatternInput{ID: id, Strategy: "x"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ClassifyPattern = %v, want INVALID_REQUEST", err)
	}
	if _, err := ClassifyPattern(unit, ClassifyPatternInput{Strategy: "x"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing id = %v, want INVALID_REQUEST", err)
	}
	if _, err := ClassifyPattern(unit, ClassifyPatternInput{ID: "01NOSUCHID0000000000000000"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown id = %v, want NOT_FOUND", err)
	}
}
