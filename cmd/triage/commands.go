package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/triage"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/knowledge"
	"github.com/poiesic/triage/mailbox/spool"
	"github.com/poiesic/triage/pipeline"
	"github.com/poiesic/triage/reembed"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Process a batch of messages from the spool",
		Action: runAction,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "every",
				Usage: "Keep running a batch at this interval until interrupted (0 runs once)",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Keep running, and start a batch as soon as mail lands in the inbox",
			},
		},
	}
}

func kbCommand() *cli.Command {
	return &cli.Command{
		Name:  "kb",
		Usage: "Manage the knowledge base replies draw on",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a text file as a knowledge document",
				ArgsUsage: "FILE",
				Action:    kbAddAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Document title (defaults to the file name)"},
					&cli.StringFlag{Name: "category", Usage: "Document category"},
					&cli.StringSliceFlag{Name: "tag", Usage: "Tag to attach, may be repeated"},
				},
			},
			{
				Name:      "load",
				Usage:     "Import every .txt and .json document in a directory",
				ArgsUsage: "DIR",
				Action:    kbLoadAction,
			},
			{
				Name:      "remove",
				Usage:     "Remove entries by ID",
				ArgsUsage: "ID...",
				Action:    kbRemoveAction,
			},
			{
				Name:   "rebuild",
				Usage:  "Rebuild the in-memory index from storage and report its size",
				Action: kbRebuildAction,
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed every entry with the configured embedding model",
				Action: kbReembedAction,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of entries to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N entries",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show knowledge base statistics",
				Action: kbStatsAction,
			},
			{
				Name:      "search",
				Usage:     "Find the entries nearest to a query",
				ArgsUsage: "QUERY",
				Action:    kbSearchAction,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "k", Usage: "Number of results", Value: 5},
				},
			},
		},
	}
}

func recordsCommand() *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "Inspect and repair processing records",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List records",
				Action: recordsListAction,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "stage", Usage: "Only list records in this stage, may be repeated"},
				},
			},
			{
				Name:      "show",
				Usage:     "Print a record as JSON",
				ArgsUsage: "ID",
				Action:    recordsShowAction,
			},
			{
				Name:      "reset",
				Usage:     "Return failed records to the stage they failed in",
				ArgsUsage: "ID...",
				Action:    recordsResetAction,
			},
			{
				Name:      "archive",
				Usage:     "Archive failed records without processing them",
				ArgsUsage: "ID...",
				Action:    recordsArchiveAction,
			},
		},
	}
}

// withOrchestrator opens the database and spool and hands fn an orchestrator.
func withOrchestrator(c *cli.Context, fn func(*pipeline.Orchestrator) error) error {
	return withTriage(c, func(t *triage.Triage) error {
		return runOrchestrator(c, t, fn)
	})
}

func runOrchestrator(c *cli.Context, t *triage.Triage, fn func(*pipeline.Orchestrator) error) error {
	mail, err := spool.New(c.String("spool"))
	if err != nil {
		return fmt.Errorf("failed to open spool: %w", err)
	}
	o, err := t.NewOrchestrator(mail)
	if err != nil {
		return err
	}
	defer o.Release()
	return fn(o)
}

func withTriage(c *cli.Context, fn func(*triage.Triage) error) error {
	t, err := openTriage(c)
	if err != nil {
		return err
	}
	defer t.Close()
	return fn(t)
}

func runAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	every := c.Duration("every")
	once := every == 0 && !c.Bool("watch")

	return withOrchestrator(c, func(o *pipeline.Orchestrator) error {
		var wake <-chan struct{}
		if c.Bool("watch") {
			var err error
			if wake, err = watchInbox(ctx, spool.InboxPath(c.String("spool"))); err != nil {
				return fmt.Errorf("watching inbox: %w", err)
			}
		}
		var tick <-chan time.Time
		if every > 0 {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			summary, err := o.RunBatch(ctx)
			if summary != nil {
				printSummary(c.App.Writer, summary)
			}
			if err != nil {
				if once || errors.Is(err, pipeline.ErrRunInProgress) {
					return err
				}
				slog.Error("batch failed", "err", err)
			}
			if once {
				return nil
			}

			select {
			case <-ctx.Done():
				return nil
			case <-wake:
			case <-tick:
			}
		}
	})
}

func kbAddAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("a file to add is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	title := c.String("title")
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return withTriage(c, func(t *triage.Triage) error {
		loader, err := t.NewLoader()
		if err != nil {
			return err
		}
		ids, err := loader.AddDocument(c.Context, knowledge.Document{
			Title:    title,
			Content:  string(content),
			Category: c.String("category"),
			Tags:     c.StringSlice("tag"),
			Source:   path,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Added %q as %d entries\n", title, len(ids))
		return nil
	})
}

func kbLoadAction(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		return errors.New("a directory to load is required")
	}
	return withTriage(c, func(t *triage.Triage) error {
		loader, err := t.NewLoader()
		if err != nil {
			return err
		}
		n, err := loader.LoadDirectory(c.Context, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Loaded %d documents from %s\n", n, dir)
		return nil
	})
}

func kbRemoveAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one entry ID is required")
	}
	return withTriage(c, func(t *triage.Triage) error {
		n, err := t.Index().Remove(c.Context, c.Args().Slice()...)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Removed %d entries\n", n)
		return nil
	})
}

func kbRebuildAction(c *cli.Context) error {
	return withTriage(c, func(t *triage.Triage) error {
		stats, err := t.Index().Rebuild(c.Context)
		if err != nil {
			return err
		}
		printStats(c.App.Writer, stats)
		return nil
	})
}

func kbReembedAction(c *cli.Context) error {
	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}

	return withTriage(c, func(t *triage.Triage) error {
		r, err := t.NewReembedder(nil, config, c.App.ErrWriter)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
		fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
		fmt.Fprintln(c.App.ErrWriter)

		result, err := r.Run(c.Context)
		if err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		if result.Index != nil {
			printStats(c.App.Writer, *result.Index)
		}
		return nil
	})
}

func kbStatsAction(c *cli.Context) error {
	return withTriage(c, func(t *triage.Triage) error {
		printStats(c.App.Writer, t.Index().Stats())
		return nil
	})
}

func kbSearchAction(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a query is required")
	}
	return withTriage(c, func(t *triage.Triage) error {
		results, err := t.SearchKnowledge(c.Context, query, c.Int("k"))
		if err != nil {
			return err
		}
		printResults(c.App.Writer, results)
		return nil
	})
}

func recordsListAction(c *cli.Context) error {
	var stages []core.Stage
	for _, s := range c.StringSlice("stage") {
		stage, err := core.ParseStage(s)
		if err != nil {
			return err
		}
		stages = append(stages, stage)
	}
	return withTriage(c, func(t *triage.Triage) error {
		records, err := t.Records().ListRecords(c.Context, stages...)
		if err != nil {
			return err
		}
		printRecords(c.App.Writer, records)
		return nil
	})
}

func recordsShowAction(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("a record ID is required")
	}
	return withTriage(c, func(t *triage.Triage) error {
		record, err := t.Records().GetRecord(c.Context, core.MessageID(id))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	})
}

func recordsResetAction(c *cli.Context) error {
	return eachRecord(c, func(o *pipeline.Orchestrator, id core.MessageID) (*core.ProcessingRecord, error) {
		return o.Reset(c.Context, id)
	})
}

func recordsArchiveAction(c *cli.Context) error {
	return eachRecord(c, func(o *pipeline.Orchestrator, id core.MessageID) (*core.ProcessingRecord, error) {
		return o.Archive(c.Context, id)
	})
}

// eachRecord applies op to every ID argument, reporting each outcome. It
// fails if any ID failed.
func eachRecord(c *cli.Context, op func(*pipeline.Orchestrator, core.MessageID) (*core.ProcessingRecord, error)) error {
	if c.NArg() == 0 {
		return errors.New("at least one record ID is required")
	}
	return withOrchestrator(c, func(o *pipeline.Orchestrator) error {
		var errs []error
		for _, id := range c.Args().Slice() {
			record, err := op(o, core.MessageID(id))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			fmt.Fprintf(c.App.Writer, "%s -> %s\n", id, stageLabel(record.Stage))
		}
		return errors.Join(errs...)
	})
}

func learnAction(c *cli.Context) error {
	since := time.Now().UTC().Add(-c.Duration("since"))
	return withOrchestrator(c, func(o *pipeline.Orchestrator) error {
		n, err := o.Learn(c.Context, since)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Learned from %d sent replies\n", n)
		return nil
	})
}

func cleanupAction(c *cli.Context) error {
	return withTriage(c, func(t *triage.Triage) error {
		err := runOrchestrator(c, t, func(o *pipeline.Orchestrator) error {
			n, err := o.Cleanup(c.Context, c.Duration("older-than"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Deleted %d archived records\n", n)
			return nil
		})
		if err != nil {
			return err
		}
		return t.Compact()
	})
}
