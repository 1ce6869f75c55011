package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mwaldrop/lore/internal/learning"
)

// Tool definitions. Every tool accepts an optional namespace argument;
// empty means the global store.

var storeToolDef = mcp.NewTool("learning_store",
	mcp.WithDescription("Store a learning. Duplicate content of the same type returns the existing id instead of creating a new entry."),
	mcp.WithString("content", mcp.Required(),
		mcp.Description("The learning text. <private>...</private> blocks are stripped before storage.")),
	mcp.WithString("type", mcp.Required(),
		mcp.Description("One of: "+strings.Join(learning.Types, ", "))),
	mcp.WithArray("tags", mcp.Description("Free-form tags")),
	mcp.WithString("confidence", mcp.Description("high, medium (default), or low")),
	mcp.WithString("project_path", mcp.Description("Project the learning came from")),
	mcp.WithString("source", mcp.Description("Provenance note")),
	mcp.WithString("event_date", mcp.Description("RFC3339 timestamp of the underlying event")),
	mcp.WithString("supersedes_id", mcp.Description("Id of the learning this one supersedes")),
	mcp.WithString("relation_type", mcp.Description("updates (default), extends, or derives")),
	mcp.WithBoolean("auto_captured", mcp.Description("Mark the entry as captured automatically")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var recallToolDef = mcp.NewTool("learning_recall",
	mcp.WithDescription("Search stored learnings. Returned entries have their access records touched."),
	mcp.WithString("query", mcp.Description("Search phrase; required except in recent mode")),
	mcp.WithString("mode", mcp.Description("search (default), recent, or shared")),
	mcp.WithNumber("limit", mcp.Description("Maximum results, default 10")),
	mcp.WithString("type", mcp.Description("Filter by learning type")),
	mcp.WithString("project", mcp.Description("Filter by project path")),
	mcp.WithNumber("max_age_days", mcp.Description("Only entries created within this many days")),
	mcp.WithBoolean("auto_only", mcp.Description("Only auto-captured entries")),
	mcp.WithBoolean("manual_only", mcp.Description("Only manually stored entries")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; shared mode also searches global")),
)

var getToolDef = mcp.NewTool("learning_get",
	mcp.WithDescription("Fetch one learning by id with its access record and version edges."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Learning id")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var linkToolDef = mcp.NewTool("learning_link",
	mcp.WithDescription("Record a version edge between two existing learnings."),
	mcp.WithString("id", mcp.Required(), mcp.Description("The newer learning")),
	mcp.WithString("supersedes_id", mcp.Required(), mcp.Description("The learning it supersedes")),
	mcp.WithString("relation_type", mcp.Description("updates (default), extends, or derives")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var historyToolDef = mcp.NewTool("learning_history",
	mcp.WithDescription("Walk a learning's version lineage in both directions, nearest-first, bounded at depth 10."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Learning id")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var latestToolDef = mcp.NewTool("learning_latest",
	mcp.WithDescription("Resolve the newest version at the end of a learning's updates chain."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Learning id")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var statsToolDef = mcp.NewTool("learning_stats",
	mcp.WithDescription("Summarize a storage unit: totals, per-type and per-confidence counts, access coverage."),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var exportToolDef = mcp.NewTool("learning_export",
	mcp.WithDescription("Export all learnings with their access records, newest first."),
	mcp.WithString("format", mcp.Description("json (default, indented array) or compact (JSONL)")),
	mcp.WithString("path", mcp.Description("Destination file; defaults under the store's exports directory")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var dedupToolDef = mcp.NewTool("learning_dedup",
	mcp.WithDescription("Collapse duplicate groups into their oldest member. A file backup is taken first."),
	mcp.WithBoolean("include_near", mcp.Description("Also group by normalized content equality")),
	mcp.WithBoolean("dry_run", mcp.Description("Report groups without changing anything")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var pruneToolDef = mcp.NewTool("learning_prune",
	mcp.WithDescription("Remove stale, never-accessed learnings past the minimum age, consulting the relevance judge."),
	mcp.WithBoolean("force", mcp.Description("Skip the prune-interval throttle")),
	mcp.WithBoolean("dry_run", mcp.Description("Report candidates without deleting")),
	mcp.WithString("namespace", mcp.Description("Namespace scope; empty for global")),
)

var namespaceListToolDef = mcp.NewTool("namespace_list",
	mcp.WithDescription("List the global store and every namespace with entry counts."),
)

var namespaceMigrateToolDef = mcp.NewTool("namespace_migrate",
	mcp.WithDescription("Copy all entries from one namespace into another (insert-if-absent). With move, the source is cleared behind a backup."),
	mcp.WithString("from", mcp.Required(), mcp.Description("Source namespace, or global")),
	mcp.WithString("to", mcp.Required(), mcp.Description("Destination namespace, or global")),
	mcp.WithBoolean("move", mcp.Description("Clear the source after copying")),
	mcp.WithBoolean("dry_run", mcp.Description("Report what would be copied")),
)
