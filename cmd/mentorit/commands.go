package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/mentorit"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/ingestion"
)

var errMissingArg = errors.New("missing argument")

func firstArg(c *cli.Context, name string) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	if arg == "" {
		return "", fmt.Errorf("%w: %s", errMissingArg, name)
	}
	return arg, nil
}

// withEngine opens the engine, runs fn and closes the engine.
func withEngine(c *cli.Context, fn func(*mentorit.Engine) error) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}

func ingestCommand(c *cli.Context) error {
	archive, err := firstArg(c, "archive")
	if err != nil {
		return err
	}
	mode, err := core.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}
	req := ingestion.CreateBatchRequest{
		ArchivePath: archive,
		Namespace:   c.String("namespace"),
		AutoDetect:  c.Bool("auto-detect"),
		Mode:        mode,
	}

	return withEngine(c, func(e *mentorit.Engine) error {
		if !c.Bool("wait") {
			b, err := e.CreateBatch(c.Context, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Batch %s created (%s)\n", b.ID, b.Status)
			return nil
		}

		b, err := e.Ingest(c.Context, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Batch %s submitted\n", b.ID)
		e.Wait()
		return printBatchResult(c, e, b.ID)
	})
}

func printBatchResult(c *cli.Context, e *mentorit.Engine, batchID string) error {
	b, err := e.Batch(c.Context, batchID)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "Batch %s: %s\n", b.ID, b.Status)
	fmt.Fprintf(w, "  episodes: %d total, %d succeeded, %d failed, %d skipped\n",
		b.TotalEpisodes, b.SuccessfulEpisodes, b.FailedEpisodes, b.SkippedEpisodes)
	fmt.Fprintf(w, "  chunks:   %d\n", b.TotalChunks)
	if b.Error != "" {
		fmt.Fprintf(w, "  error:    %s\n", b.Error)
	}
	if b.Status == core.BatchClassifying {
		fmt.Fprintf(w, "Review namespaces with 'mentorit episodes %s', then run 'mentorit confirm %s'\n", b.ID, b.ID)
	}
	return nil
}

func batchesCommand(c *cli.Context) error {
	return withEngine(c, func(e *mentorit.Engine) error {
		batches, err := e.Batches(c.Context)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tARCHIVE\tNAMESPACE\tSTATUS\tEPISODES\tDONE\tFAILED\tSKIPPED\tCHUNKS\tCREATED")
		for _, b := range batches {
			ns := b.Namespace
			if b.AutoDetect {
				ns += " (auto)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				b.ID, b.ArchiveName, ns, b.Status, b.TotalEpisodes, b.SuccessfulEpisodes,
				b.FailedEpisodes, b.SkippedEpisodes, b.TotalChunks, b.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func episodesCommand(c *cli.Context) error {
	batchID, err := firstArg(c, "batch-id")
	if err != nil {
		return err
	}
	return withEngine(c, func(e *mentorit.Engine) error {
		episodes, err := e.Episodes(c.Context, batchID)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tCHUNKS\tNAMESPACES\tPREDICTED\tNOTE")
		for _, ep := range episodes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				ep.ID, ep.Filename, ep.Status, ep.ChunkCount,
				formatTargets(ep), formatPredictions(ep.PredictedNamespaces), episodeNote(ep))
		}
		return tw.Flush()
	})
}

func formatTargets(ep *core.Episode) string {
	parts := make([]string, 0, len(ep.TargetNamespaces))
	for _, ns := range ep.TargetNamespaces {
		parts = append(parts, fmt.Sprintf("%s(%d/%d)", ns, ep.Progress(ns), len(ep.Chunks)))
	}
	return strings.Join(parts, ",")
}

func formatPredictions(scores []core.NamespaceScore) string {
	parts := make([]string, 0, len(scores))
	for _, s := range scores {
		parts = append(parts, fmt.Sprintf("%s:%.2f", s.Name, s.Confidence))
	}
	return strings.Join(parts, ",")
}

func episodeNote(ep *core.Episode) string {
	switch {
	case ep.DuplicateOf != "":
		return "duplicate of " + ep.DuplicateOf
	case ep.ManualOverride:
		return "override"
	}
	return ep.Error
}

func confirmCommand(c *cli.Context) error {
	batchID, err := firstArg(c, "batch-id")
	if err != nil {
		return err
	}
	return withEngine(c, func(e *mentorit.Engine) error {
		if _, err := e.Confirm(c.Context, batchID); err != nil {
			return err
		}
		e.Wait()
		return printBatchResult(c, e, batchID)
	})
}

func cancelCommand(c *cli.Context) error {
	batchID, err := firstArg(c, "batch-id")
	if err != nil {
		return err
	}
	return withEngine(c, func(e *mentorit.Engine) error {
		b, err := e.Cancel(c.Context, batchID)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Batch %s: %s\n", b.ID, b.Status)
		return nil
	})
}

func retryCommand(c *cli.Context) error {
	batchID, err := firstArg(c, "batch-id")
	if err != nil {
		return err
	}
	return withEngine(c, func(e *mentorit.Engine) error {
		if _, err := e.Retry(c.Context, batchID); err != nil {
			return err
		}
		e.Wait()
		return printBatchResult(c, e, batchID)
	})
}

func deleteCommand(c *cli.Context) error {
	batchID, err := firstArg(c, "batch-id")
	if err != nil {
		return err
	}
	return withEngine(c, func(e *mentorit.Engine) error {
		if err := e.Delete(c.Context, batchID); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Batch %s deleted\n", batchID)
		return nil
	})
}

func overrideCommand(c *cli.Context) error {
	episodeID, err := firstArg(c, "episode-id")
	if err != nil {
		return err
	}
	return withEngine(c, func(e *mentorit.Engine) error {
		ep, err := e.OverrideNamespaces(c.Context, episodeID, c.StringSlice("namespace"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Episode %s: %s -> %s\n", ep.ID, ep.Status, strings.Join(ep.TargetNamespaces, ","))
		if ep.Status == core.EpisodeFailed {
			fmt.Fprintf(c.App.Writer, "Run 'mentorit retry %s' to upload to the new namespaces\n", ep.BatchID)
		}
		return nil
	})
}

func recoverCommand(c *cli.Context) error {
	return withEngine(c, func(e *mentorit.Engine) error {
		report, err := e.Recover(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Resubmitted %d batches (%d episodes reset)\n", len(report.Batches), report.EpisodesReset)
		e.Wait()
		for _, id := range report.Batches {
			if err := printBatchResult(c, e, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func consolidateCommand(c *cli.Context) error {
	return withEngine(c, func(e *mentorit.Engine) error {
		summary, err := e.Consolidate(c.Context, c.Bool("dry-run"), c.App.ErrWriter)
		if err != nil {
			return err
		}
		w := c.App.Writer
		for _, p := range summary.Pairs {
			status := "ok"
			if p.Err != nil {
				status = p.Err.Error()
			}
			fmt.Fprintf(w, "%s -> %s: %d vectors (%s)\n", p.Pair.Source, p.Pair.Target, p.Count, status)
		}
		verb := "Moved"
		if summary.DryRun {
			verb = "Would move"
		}
		fmt.Fprintf(w, "%s %d vectors in %s\n", verb, summary.Moved, summary.Elapsed.Round(time.Millisecond))
		return errors.Join(summary.Errors()...)
	})
}

func searchCommand(c *cli.Context) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("%w: text", errMissingArg)
	}
	return withEngine(c, func(e *mentorit.Engine) error {
		results, err := e.Search(c.Context, c.StringSlice("namespace"), text, c.Int("top-k"))
		if err != nil {
			return err
		}
		w := c.App.Writer
		fmt.Fprintf(w, "Found %d hits\n", len(results))
		for i, hit := range results {
			marker := ""
			if hit.Verbatim {
				marker = " verbatim"
			}
			fmt.Fprintf(w, "%d: [%0.3f%s] %s/%s %s\n", i, hit.Score, marker, hit.Namespace, hit.Metadata["source"], hit.Text)
		}
		return nil
	})
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withEngine(c, func(e *mentorit.Engine) error {
		e.StartRecovery(ctx, c.Duration("interval"))
		fmt.Fprintln(c.App.Writer, "Serving; press Ctrl-C to stop")
		<-ctx.Done()
		return nil
	})
}
