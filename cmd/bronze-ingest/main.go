// bronze-ingest lands one (source, entity) feed into the append-only Bronze
// layer with hash-gated change detection.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/cli"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

func main() {
	var (
		configPath        = flag.String("config", "config.yaml", "path to the YAML config file")
		source            = flag.String("source", "", "source system to ingest (e.g. tdx, active_directory)")
		entity            = flag.String("entity", "", "entity type to ingest (e.g. user, asset)")
		fullSync          = flag.Bool("full-sync", false, "ignore the incremental watermark")
		dryRun            = flag.Bool("dry-run", false, "compute the plan without writing")
		stopOnErrors      = flag.Bool("stop-on-errors", false, "abort on the first record error")
		showStatus        = flag.Bool("show-status", false, "print recent runs and exit")
		showRecentChanges = flag.Int("show-recent-changes", 0, "print bronze change counts for the trailing N days and exit")
	)
	flag.Parse()

	ctx, stop := cli.SignalContext()
	defer stop()

	app, err := cli.Setup(ctx, "bronze-ingest", *configPath)
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
	if *showRecentChanges > 0 {
		if err := app.ShowRecentChanges(ctx, *showRecentChanges); err != nil {
			cli.Fail(app.Logger, err)
		}
		return
	}

	if *source == "" || *entity == "" {
		fmt.Fprintln(os.Stderr, "both --source and --entity are required")
		flag.Usage()
		os.Exit(1)
	}

	registry := bronze.NewRegistry(app.Cfg, app.Pool)
	def, err := registry.Lookup(*source, *entity)
	if err != nil {
		cli.Fail(app.Logger, err)
	}

	ingester := bronze.NewIngester(def, storage.NewBronzeStore(app.Pool), app.Ledger, app.Logger, *stopOnErrors)
	stats, err := ingester.Ingest(ctx, *fullSync, *dryRun)
	if stats != nil {
		fmt.Printf("run %s: processed=%d created=%d updated=%d skipped=%d errors=%d\n",
			stats.RunID, stats.Processed, stats.Created, stats.Updated, stats.Skipped, stats.Errors)
	}
	if err != nil {
		cli.Fail(app.Logger, err)
	}
}
