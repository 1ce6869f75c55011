package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
)

// Export formats.
const (
	FormatJSON    = "json"    // indented JSON array
	FormatCompact = "compact" // one JSON object per line
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Format string // json (default) or compact
	Path   string // destination file; default <base>/exports/<unit>-<ts>.<ext>
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path    string `json:"path"`
	Format  string `json:"format"`
	Entries int    `json:"entries"`
}

// Export writes every learning joined with its access record, newest
// first, to a file.
func Export(unit *db.Unit, input ExportInput) (*ExportOutput, error) {
	format := input.Format
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCompact {
		return nil, errors.NewInvalidRequest("format must be json or compact")
	}

	rows, err := unit.AllLearnings()
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []db.ExportRow{}
	}

	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return nil, errors.NewInternal(err)
		}
	case FormatCompact:
		enc := json.NewEncoder(&buf)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return nil, errors.NewInternal(err)
			}
		}
	}

	path := input.Path
	if path == "" {
		ext := "json"
		if format == FormatCompact {
			ext = "jsonl"
		}
		name := unit.Namespace
		if name == "" {
			name = "global"
		}
		stamp := time.Now().UTC().Format("20060102T150405")
		path = filepath.Join(unit.BaseDir, "exports", fmt.Sprintf("%s-%s.%s", name, stamp, ext))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &ExportOutput{Path: path, Format: format, Entries: len(rows)}, nil
}
