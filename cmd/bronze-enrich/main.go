// bronze-enrich runs the second ingestion pass for detail-backed sources:
// a worker pool fetches per-ID documents and updates Bronze rows in place.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/cli"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/health"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config file")
		source     = flag.String("source", "", "source system to enrich (e.g. tdx)")
		entity     = flag.String("entity", "", "entity type to enrich (e.g. user, asset)")
		fullSync   = flag.Bool("full-sync", false, "ignore the incremental watermark")
		dryRun     = flag.Bool("dry-run", false, "compute the plan without writing")
		maxWorkers = flag.Int("max-workers", 0, "detail-call worker pool size (default from config)")
		apiDelay   = flag.Float64("api-delay", 0, "inter-call delay in seconds for rate-limited sources")
	)
	flag.Parse()

	ctx, stop := cli.SignalContext()
	defer stop()

	app, err := cli.Setup(ctx, "bronze-enrich", *configPath)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer app.Close()

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

	workers := app.Cfg.Performance.MaxWorkers
	if *maxWorkers > 0 {
		workers = *maxWorkers
	}
	delay := app.Cfg.Sources.TDX.APIDelay()
	if *apiDelay > 0 {
		delay = time.Duration(*apiDelay * float64(time.Second))
	}
	// Rate-limited sources serialize their detail calls.
	if app.Cfg.Sources.TDX.RateLimited && *source == bronze.SourceTDX {
		workers = 1
	}

	enricher := bronze.NewEnricher(def, storage.NewBronzeStore(app.Pool), app.Ledger, app.Logger, workers, delay)

	if app.Cfg.Health.Enabled {
		srv := health.NewServer("bronze-enrich", app.Cfg.Health.Port, enricher.StatsSnapshot, app.Logger)
		go func() {
			if err := srv.Start(); err != nil {
				app.Logger.Error().Err(err).Msg("health server stopped")
			}
		}()
	}

	stats, err := enricher.Enrich(ctx, *fullSync, *dryRun)
	if stats != nil {
		fmt.Printf("run %s: processed=%d enriched=%d skipped=%d errors=%d\n",
			stats.RunID, stats.Processed, stats.Updated, stats.Skipped, stats.Errors)
	}
	if err != nil {
		cli.Fail(app.Logger, err)
	}
}
