package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/judge"
	"github.com/mwaldrop/lore/internal/learning"
	"github.com/mwaldrop/lore/internal/store"
	"github.com/mwaldrop/lore/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(baseDir string, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "lore",
		Usage:   "Durable agent knowledge store",
		Version: Version,
		Commands: []*cli.Command{
			storeCmd(baseDir, cfg),
			recallCmd(baseDir, cfg),
			getCmd(baseDir, cfg),
			linkCmd(baseDir, cfg),
			historyCmd(baseDir, cfg),
			latestCmd(baseDir, cfg),
			statsCmd(baseDir, cfg),
			validateCmd(baseDir, cfg),
			dedupCmd(baseDir, cfg),
			pruneCmd(baseDir, cfg),
			exportCmd(baseDir, cfg),
			patternCmd(baseDir, cfg),
			namespaceCmd(baseDir, cfg),
			serveCmd(baseDir, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// namespaceFlag is shared by every unit-scoped command.
func namespaceFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "namespace", Aliases: []string{"n"}, Usage: "Namespace scope (default: global)"}
}

// openUnit resolves the --namespace flag to a storage unit.
func openUnit(c *cli.Context, baseDir string, cfg *config.Config) (*db.Unit, error) {
	ns := c.String("namespace")
	if ns == "global" {
		ns = ""
	}
	return db.Open(baseDir, ns, cfg)
}

// storeCmd creates the store command.
func storeCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "store",
		Usage: "Store a learning (reads content from stdin or --content)",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.StringFlag{Name: "content", Aliases: []string{"c"}, Usage: "Learning content (alternative to stdin)"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Required: true,
				Usage: "One of: " + strings.Join(learning.Types, ", ")},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
			&cli.StringFlag{Name: "confidence", Usage: "high, medium (default), or low"},
			&cli.StringFlag{Name: "project", Usage: "Project path the learning came from"},
			&cli.StringFlag{Name: "source", Usage: "Provenance note"},
			&cli.StringFlag{Name: "event-date", Usage: "RFC3339 timestamp of the underlying event"},
			&cli.StringFlag{Name: "supersedes", Usage: "Id of the learning this one supersedes"},
			&cli.StringFlag{Name: "relation", Usage: "updates (default), extends, or derives"},
			&cli.BoolFlag{Name: "auto", Usage: "Mark as auto-captured"},
		},
		Action: func(c *cli.Context) error {
			content := c.String("content")
			if content == "" {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("content must be piped via stdin or passed with --content"))
				}
				var err error
				if content, err = readStdin(); err != nil {
					return outputError(errors.NewInternal(err))
				}
			}
			if content == "" {
				return outputError(errors.NewInvalidRequest("content is required"))
			}

			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			input := store.StoreInput{
				Content:      content,
				Type:         c.String("type"),
				Tags:         parseTags(c.String("tags")),
				Confidence:   c.String("confidence"),
				RelationType: c.String("relation"),
				AutoCaptured: c.Bool("auto"),
			}
			if p := c.String("project"); p != "" {
				input.ProjectPath = &p
			}
			if s := c.String("source"); s != "" {
				input.Source = &s
			}
			if d := c.String("event-date"); d != "" {
				input.EventDate = &d
			}
			if sup := c.String("supersedes"); sup != "" {
				input.SupersedesID = &sup
			}

			output, err := store.Store(unit, cfg, judge.NewIndexer(cfg.IndexerCommand), input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// recallCmd creates the recall command.
func recallCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "recall",
		Usage:     "Search stored learnings",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "search (default), recent, or shared"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 10, Usage: "Maximum results"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Filter by learning type"},
			&cli.StringFlag{Name: "project", Usage: "Filter by project path"},
			&cli.IntFlag{Name: "max-age", Usage: "Only entries created within this many days"},
			&cli.BoolFlag{Name: "auto-only", Usage: "Only auto-captured entries"},
			&cli.BoolFlag{Name: "manual-only", Usage: "Only manually stored entries"},
		},
		Action: func(c *cli.Context) error {
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			var global *db.Unit
			if c.String("mode") == store.ModeShared && unit.Namespace != "" {
				if global, err = db.Open(baseDir, "", cfg); err != nil {
					return outputError(err)
				}
				defer global.Close()
			}

			output, err := store.Recall(unit, global, store.RecallInput{
				Query:      c.Args().First(),
				Mode:       c.String("mode"),
				Limit:      c.Int("limit"),
				Type:       c.String("type"),
				Project:    c.String("project"),
				MaxAgeDays: c.Int("max-age"),
				AutoOnly:   c.Bool("auto-only"),
				ManualOnly: c.Bool("manual-only"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch one learning by id",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{namespaceFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("learning id is required"))
			}
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.Get(unit, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// linkCmd creates the link command.
func linkCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "link",
		Usage:     "Record a version edge between two learnings",
		ArgsUsage: "<id> <supersedes-id>",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.StringFlag{Name: "relation", Aliases: []string{"r"}, Usage: "updates (default), extends, or derives"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("usage: lore link <id> <supersedes-id>"))
			}
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.Link(unit, store.LinkInput{
				ID:           c.Args().Get(0),
				SupersedesID: c.Args().Get(1),
				RelationType: c.String("relation"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show a learning's version lineage",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{namespaceFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("learning id is required"))
			}
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.History(unit, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// latestCmd creates the latest command.
func latestCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "latest",
		Usage:     "Resolve the newest version of a learning",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{namespaceFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("learning id is required"))
			}
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.Latest(unit, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize a storage unit",
		Flags: []cli.Flag{namespaceFlag()},
		Action: func(c *cli.Context) error {
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.Stats(unit)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// validateCmd creates the validate command.
func validateCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check unit integrity and full-text index parity",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.BoolFlag{Name: "fix", Usage: "Rebuild the full-text index when parity checks fail"},
		},
		Action: func(c *cli.Context) error {
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.Validate(unit, store.ValidateInput{Fix: c.Bool("fix")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// dedupCmd creates the dedup command.
func dedupCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "dedup",
		Usage: "Collapse duplicate groups into their oldest member",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.BoolFlag{Name: "near", Usage: "Also group by normalized content equality"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Report groups without changing anything"},
		},
		Action: func(c *cli.Context) error {
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.Dedup(unit, cfg, store.DedupInput{
				IncludeNear: c.Bool("near"),
				DryRun:      c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// pruneCmd creates the prune command.
func pruneCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Remove stale, never-accessed learnings",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.BoolFlag{Name: "force", Usage: "Skip the prune-interval throttle"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Report candidates without deleting"},
		},
		Action: func(c *cli.Context) error {
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			var j judge.Judge
			if ej := judge.NewExecJudge(cfg.JudgeCommand); ej != nil {
				j = ej
			}

			output, err := store.MaybePrune(c.Context, unit, cfg, j, store.PruneInput{
				Force:  c.Bool("force"),
				DryRun: c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all learnings with their access records",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json (default) or compact"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Destination file"},
		},
		Action: func(c *cli.Context) error {
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.Export(unit, store.ExportInput{
				Format: c.String("format"),
				Path:   c.String("output"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// patternCmd creates the pattern command.
func patternCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "pattern",
		Usage:     "Attach pattern metadata to a performance-pattern learning",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.StringFlag{Name: "strategy", Usage: "Strategy label"},
			&cli.StringFlag{Name: "quality", Usage: "Observed quality"},
			&cli.StringFlag{Name: "failure-mode", Usage: "Observed failure mode"},
			&cli.IntFlag{Name: "input-tokens", Usage: "Input token count"},
			&cli.IntFlag{Name: "output-tokens", Usage: "Output token count"},
			&cli.Float64Flag{Name: "cost", Usage: "Estimated cost"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("learning id is required"))
			}
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			output, err := store.ClassifyPattern(unit, store.ClassifyPatternInput{
				ID:            c.Args().First(),
				Strategy:      c.String("strategy"),
				Quality:       c.String("quality"),
				FailureMode:   c.String("failure-mode"),
				InputTokens:   c.Int("input-tokens"),
				OutputTokens:  c.Int("output-tokens"),
				EstimatedCost: c.Float64("cost"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// namespaceCmd creates the namespace command with its subcommands.
func namespaceCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "namespace",
		Usage: "Manage namespace storage units",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List namespaces with entry counts",
				Action: func(c *cli.Context) error {
					output, err := store.ListNamespaces(baseDir, cfg)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "migrate",
				Usage:     "Copy all entries from one namespace into another",
				ArgsUsage: "<from> <to>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "move", Usage: "Clear the source after copying (backup taken first)"},
					&cli.BoolFlag{Name: "dry-run", Usage: "Report what would be copied"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("usage: lore namespace migrate <from> <to>"))
					}
					output, err := store.MigrateNamespace(baseDir, cfg, store.MigrateInput{
						From:   c.Args().Get(0),
						To:     c.Args().Get(1),
						Move:   c.Bool("move"),
						DryRun: c.Bool("dry-run"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "prune",
				Usage: "Remove namespace units whose runner record is gone",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Report orphans without deleting"},
				},
				Action: func(c *cli.Context) error {
					output, err := store.PruneOrphanedNamespaces(
						baseDir, store.NewRunnerRegistry(baseDir), c.Bool("dry-run"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the read-only web viewer",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 7161, Usage: "Port"},
		},
		Action: func(c *cli.Context) error {
			unit, err := openUnit(c, baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer unit.Close()

			srv := web.NewServer(unit, cfg, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if loreErr, ok := err.(*errors.LoreError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", loreErr.Code, loreErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
