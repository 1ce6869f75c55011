package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/judge"
	"github.com/mwaldrop/lore/internal/store"
)

// Handlers holds dependencies for MCP tool handlers. Storage units are
// opened per call from the namespace argument.
type Handlers struct {
	baseDir string
	cfg     *config.Config
	indexer judge.Indexer
	judge   judge.Judge
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(baseDir string, cfg *config.Config) *Handlers {
	h := &Handlers{
		baseDir: baseDir,
		cfg:     cfg,
		indexer: judge.NewIndexer(cfg.IndexerCommand),
	}
	if j := judge.NewExecJudge(cfg.JudgeCommand); j != nil {
		h.judge = j
	}
	return h
}

// openUnit resolves the namespace argument to a storage unit.
func (h *Handlers) openUnit(namespace string) (*db.Unit, error) {
	if namespace == "global" {
		namespace = ""
	}
	return db.Open(h.baseDir, namespace, h.cfg)
}

// Request types for each tool

// StoreRequest represents the arguments for learning_store.
type StoreRequest struct {
	Content      string   `json:"content"`
	Type         string   `json:"type"`
	Tags         []string `json:"tags,omitempty"`
	Confidence   string   `json:"confidence,omitempty"`
	ProjectPath  *string  `json:"project_path,omitempty"`
	Source       *string  `json:"source,omitempty"`
	EventDate    *string  `json:"event_date,omitempty"`
	SupersedesID *string  `json:"supersedes_id,omitempty"`
	RelationType string   `json:"relation_type,omitempty"`
	AutoCaptured bool     `json:"auto_captured,omitempty"`
	Namespace    string   `json:"namespace,omitempty"`
}

// RecallRequest represents the arguments for learning_recall.
type RecallRequest struct {
	Query      string `json:"query,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Type       string `json:"type,omitempty"`
	Project    string `json:"project,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	AutoOnly   bool   `json:"auto_only,omitempty"`
	ManualOnly bool   `json:"manual_only,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
}

// IDRequest covers the tools addressing a single learning by id.
type IDRequest struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace,omitempty"`
}

// LinkRequest represents the arguments for learning_link.
type LinkRequest struct {
	ID           string `json:"id"`
	SupersedesID string `json:"supersedes_id"`
	RelationType string `json:"relation_type,omitempty"`
	Namespace    string `json:"namespace,omitempty"`
}

// StatsRequest represents the arguments for learning_stats.
type StatsRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// ExportRequest represents the arguments for learning_export.
type ExportRequest struct {
	Format    string `json:"format,omitempty"`
	Path      string `json:"path,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// DedupRequest represents the arguments for learning_dedup.
type DedupRequest struct {
	IncludeNear bool   `json:"include_near,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
}

// PruneRequest represents the arguments for learning_prune.
type PruneRequest struct {
	Force     bool   `json:"force,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// MigrateRequest represents the arguments for namespace_migrate.
type MigrateRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Move   bool   `json:"move,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// HandleStore handles the learning_store tool call.
func (h *Handlers) HandleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StoreRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.Store(unit, h.cfg, h.indexer, store.StoreInput{
		Content:      input.Content,
		Type:         input.Type,
		Tags:         input.Tags,
		Confidence:   input.Confidence,
		ProjectPath:  input.ProjectPath,
		Source:       input.Source,
		EventDate:    input.EventDate,
		SupersedesID: input.SupersedesID,
		RelationType: input.RelationType,
		AutoCaptured: input.AutoCaptured,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRecall handles the learning_recall tool call.
func (h *Handlers) HandleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecallRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	var global *db.Unit
	if input.Mode == store.ModeShared && unit.Namespace != "" {
		if global, err = h.openUnit(""); err != nil {
			return errorResult(err), nil
		}
		defer global.Close()
	}

	result, err := store.Recall(unit, global, store.RecallInput{
		Query:      input.Query,
		Mode:       input.Mode,
		Limit:      input.Limit,
		Type:       input.Type,
		Project:    input.Project,
		MaxAgeDays: input.MaxAgeDays,
		AutoOnly:   input.AutoOnly,
		ManualOnly: input.ManualOnly,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGet handles the learning_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.Get(unit, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLink handles the learning_link tool call.
func (h *Handlers) HandleLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LinkRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.Link(unit, store.LinkInput{
		ID:           input.ID,
		SupersedesID: input.SupersedesID,
		RelationType: input.RelationType,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistory handles the learning_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.History(unit, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLatest handles the learning_latest tool call.
func (h *Handlers) HandleLatest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.Latest(unit, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleStats handles the learning_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.Stats(unit)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the learning_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.Export(unit, store.ExportInput{
		Format: input.Format,
		Path:   input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDedup handles the learning_dedup tool call.
func (h *Handlers) HandleDedup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DedupRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.Dedup(unit, h.cfg, store.DedupInput{
		IncludeNear: input.IncludeNear,
		DryRun:      input.DryRun,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePrune handles the learning_prune tool call.
func (h *Handlers) HandlePrune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PruneRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	unit, err := h.openUnit(input.Namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer unit.Close()

	result, err := store.MaybePrune(ctx, unit, h.cfg, h.judge, store.PruneInput{
		Force:  input.Force,
		DryRun: input.DryRun,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleNamespaceList handles the namespace_list tool call.
func (h *Handlers) HandleNamespaceList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := store.ListNamespaces(h.baseDir, h.cfg)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleNamespaceMigrate handles the namespace_migrate tool call.
func (h *Handlers) HandleNamespaceMigrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MigrateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := store.MigrateNamespace(h.baseDir, h.cfg, store.MigrateInput{
		From:   input.From,
		To:     input.To,
		Move:   input.Move,
		DryRun: input.DryRun,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if loreErr, ok := err.(*errors.LoreError); ok {
		errorObj := map[string]any{
			"code":    loreErr.Code,
			"message": loreErr.Message,
			"status":  loreErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if loreErr.Code != errors.ErrInternal && loreErr.Details != nil {
			errorObj["details"] = loreErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
