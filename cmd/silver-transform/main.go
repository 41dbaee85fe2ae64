// silver-transform projects the latest Bronze rows for one (source, entity)
// into its typed Silver-source table with hash-gated batch upserts.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/cli"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/silver"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config file")
		source     = flag.String("source", "", "source system to transform (e.g. tdx)")
		entity     = flag.String("entity", "", "entity type to transform (e.g. user)")
		all        = flag.Bool("all", false, "run every registered transformer in order")
		fullSync   = flag.Bool("full-sync", false, "ignore the incremental watermark")
		dryRun     = flag.Bool("dry-run", false, "compute the plan without writing")
		batchSize  = flag.Int("batch-size", 0, "upsert flush size (default from config)")
	)
	flag.Parse()

	ctx, stop := cli.SignalContext()
	defer stop()

	app, err := cli.Setup(ctx, "silver-transform", *configPath)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer app.Close()

	batch := app.Cfg.Performance.BatchSize
	if *batchSize > 0 {
		batch = *batchSize
	}

	registry := silver.NewRegistry()
	bronzeStore := storage.NewBronzeStore(app.Pool)
	silverStore := storage.NewSilverStore(app.Pool)

	run := func(t *silver.Transformer) error {
		t.Bind(bronzeStore, silverStore, app.Ledger, app.Logger, batch, app.Cfg.Performance.ReadChunkSize)
		stats, err := t.Transform(ctx, *fullSync, *dryRun)
		if stats != nil {
			fmt.Printf("%s/%s run %s: processed=%d written=%d skipped=%d errors=%d\n",
				t.SourceSystem, t.LedgerEntity, stats.RunID,
				stats.Processed, stats.Written, stats.Skipped, stats.Errors)
		}
		return err
	}

	if *all {
		failed := false
		for _, key := range sortedKeys(registry) {
			if err := run(registry[key]); err != nil {
				app.Logger.Error().Err(err).Str("transformer", key).Msg("transformation failed")
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	if *source == "" || *entity == "" {
		fmt.Fprintln(os.Stderr, "either --all or both --source and --entity are required")
		flag.Usage()
		os.Exit(1)
	}

	t, err := silver.Lookup(registry, *source, *entity)
	if err != nil {
		cli.Fail(app.Logger, err)
	}
	if err := run(t); err != nil {
		cli.Fail(app.Logger, err)
	}
}

func sortedKeys(registry map[string]*silver.Transformer) []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
