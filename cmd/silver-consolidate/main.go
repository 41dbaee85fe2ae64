// silver-consolidate merges the Silver-source tables into canonical
// consolidated entities, rebuilds the link tables, and runs the
// lab-computer associator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/cli"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/consolidate"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config file")
		only       = flag.String("only", "", "run one consolidator: departments, groups, relationships, labs, users, computers, lab-computers")
		dryRun     = flag.Bool("dry-run", false, "compute the plan without writing")
		batchSize  = flag.Int("batch-size", 0, "upsert flush size (default from config)")
		showStatus = flag.Bool("show-status", false, "print recent runs and exit")
	)
	flag.Parse()

	ctx, stop := cli.SignalContext()
	defer stop()

	app, err := cli.Setup(ctx, "silver-consolidate", *configPath)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer app.Close()

	if *showStatus {
		if err := app.ShowStatus(ctx, 25); err != nil {
			cli.Fail(app.Logger, err)
		}
		return
	}

	batch := app.Cfg.Performance.BatchSize
	if *batchSize > 0 {
		batch = *batchSize
	}

	runner := &consolidate.Runner{
		Pool:      app.Pool,
		Silver:    storage.NewSilverStore(app.Pool),
		Ledger:    app.Ledger,
		Logger:    app.Logger,
		BatchSize: batch,
		ChunkSize: app.Cfg.Performance.InsertChunkSize,
		DryRun:    *dryRun,
	}

	// Dependency order: departments and groups feed users and computers;
	// labs feed the PI set and the associator; the associator runs last.
	steps := []struct {
		name string
		run  func(context.Context) (*consolidate.Stats, error)
	}{
		{"departments", runner.ConsolidateDepartments},
		{"groups", runner.ConsolidateGroups},
		{"relationships", runner.ExtractRelationships},
		{"labs", runner.BuildLabs},
		{"users", runner.ConsolidateUsers},
		{"computers", runner.ConsolidateComputers},
		{"lab-computers", runner.AssociateLabs},
	}

	failed := false
	for _, step := range steps {
		if *only != "" && *only != step.name {
			continue
		}
		stats, err := step.run(ctx)
		if stats != nil {
			fmt.Printf("%s run %s: processed=%d written=%d skipped=%d errors=%d\n",
				step.name, stats.RunID, stats.Processed, stats.Written, stats.Skipped, stats.Errors)
		}
		if err != nil {
			app.Logger.Error().Err(err).Str("consolidator", step.name).Msg("consolidation failed")
			failed = true
		}
		if ctx.Err() != nil {
			failed = true
			break
		}
	}
	if failed {
		os.Exit(1)
	}
}
