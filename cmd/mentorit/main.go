// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/mentorit"
	"github.com/poiesic/mentorit/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mentorit",
		Usage: "Distill mentoring transcripts into a namespaced vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"MENTORIT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write JSON logs to this file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides config)",
			},
		},
		Before: setupLogger,
		After:  closeLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Create a batch from a zip archive or directory of transcripts",
				ArgsUsage: "<archive>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "namespace",
						Aliases: []string{"n"},
						Usage:   "Target namespace, or the fallback with --auto-detect",
					},
					&cli.BoolFlag{
						Name:  "auto-detect",
						Usage: "Classify each transcript and wait for confirmation before uploading",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Distillation mode (plain, mentor_voice)",
						Value: "plain",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Process the batch now; otherwise leave it for the next recovery pass",
						Value: true,
					},
				},
			},
			{
				Name:   "batches",
				Usage:  "List batches",
				Action: batchesCommand,
			},
			{
				Name:      "episodes",
				Usage:     "List a batch's episodes",
				ArgsUsage: "<batch-id>",
				Action:    episodesCommand,
			},
			{
				Name:      "confirm",
				Usage:     "Confirm the namespaces of an auto-detect batch and process it",
				ArgsUsage: "<batch-id>",
				Action:    confirmCommand,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a batch",
				ArgsUsage: "<batch-id>",
				Action:    cancelCommand,
			},
			{
				Name:      "retry",
				Usage:     "Retry a batch's failed episodes",
				ArgsUsage: "<batch-id>",
				Action:    retryCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a batch and its episodes; uploaded vectors are kept",
				ArgsUsage: "<batch-id>",
				Action:    deleteCommand,
			},
			{
				Name:      "override",
				Usage:     "Replace an episode's target namespaces",
				ArgsUsage: "<episode-id>",
				Action:    overrideCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "namespace",
						Aliases:  []string{"n"},
						Usage:    "Target namespace; repeat for more, the first is primary",
						Required: true,
					},
				},
			},
			{
				Name:   "recover",
				Usage:  "Resume batches abandoned by a previous run",
				Action: recoverCommand,
			},
			{
				Name:   "consolidate",
				Usage:  "Merge mixed-case namespaces into their lower-case counterparts",
				Action: consolidateCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Only count what would move",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Query the vector index",
				ArgsUsage: "<text>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "namespace",
						Aliases:  []string{"n"},
						Usage:    "Namespace to search; repeat for more",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results",
						Value:   5,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "Run recovery at startup and periodically until interrupted",
				Description: "serve holds the database lock while it runs, so other mentorit\n" +
					"commands against the same --db (ingest, cancel, retry) fail until it\n" +
					"exits. Batches created before it started are resumed once they have\n" +
					"been idle for the configured staleness window.",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Time between recovery passes (default from config)",
					},
				},
			},
		},
	}
}

// openEngine loads the configuration, applies global flag overrides and
// opens the engine.
func openEngine(c *cli.Context) (*mentorit.Engine, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if db := c.String("db"); db != "" {
		cfg.DBPath = db
	}
	ctx, cancel := context.WithTimeout(c.Context, time.Minute)
	defer cancel()
	engine, err := mentorit.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}
