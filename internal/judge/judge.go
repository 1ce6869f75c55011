// Package judge wraps the optional out-of-process collaborators: the
// relevance judge consulted by auto-prune, and the semantic indexer
// notified after stores. Both degrade safely when absent.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Verdict is a binary retention decision.
type Verdict string

const (
	Keep  Verdict = "keep"
	Prune Verdict = "prune"
)

// Input is the evidence presented to the judge for one learning.
type Input struct {
	Content    string `json:"content"`
	AgeDays    int    `json:"age_days"`
	Type       string `json:"type"`
	Accessed   bool   `json:"accessed"`
	Confidence string `json:"confidence"`
}

// Judge decides whether a stale learning is still worth keeping.
type Judge interface {
	Judge(ctx context.Context, in Input) (Verdict, error)
}

// ExecJudge shells out to an external command, writing the Input as JSON
// on stdin and reading a single keep/prune token from stdout. Any failure
// (missing binary, non-zero exit, garbage output) is returned as an error;
// the prune engine treats errors as keep.
type ExecJudge struct {
	Command []string
}

// NewExecJudge returns an ExecJudge, or nil when no command is configured
// so callers fall through to the heuristic.
func NewExecJudge(command []string) *ExecJudge {
	if len(command) == 0 {
		return nil
	}
	return &ExecJudge{Command: command}
}

// Judge invokes the external command. No timeout is enforced here; callers
// impose one via ctx.
func (j *ExecJudge) Judge(ctx context.Context, in Input) (Verdict, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return Keep, err
	}

	cmd := exec.CommandContext(ctx, j.Command[0], j.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	out, err := cmd.Output()
	if err != nil {
		return Keep, fmt.Errorf("judge command: %w", err)
	}

	switch strings.TrimSpace(strings.ToLower(string(out))) {
	case string(Keep):
		return Keep, nil
	case string(Prune):
		return Prune, nil
	}
	return Keep, fmt.Errorf("judge returned unrecognized verdict %q", strings.TrimSpace(string(out)))
}

// Heuristic is the fallback applied when no judge is available: anything
// older than MaxAgeDays is prune-eligible, everything else is kept.
type Heuristic struct {
	MaxAgeDays int
}

// Judge applies the flat age threshold.
func (h Heuristic) Judge(_ context.Context, in Input) (Verdict, error) {
	if in.AgeDays > h.MaxAgeDays {
		return Prune, nil
	}
	return Keep, nil
}
