package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/config"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/logging"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/runledger"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// App is the shared bootstrap every job binary runs through: config, logger,
// pool, schema, ledger.
type App struct {
	Cfg    *config.Config
	Logger zerolog.Logger
	Pool   *pgxpool.Pool
	Ledger *runledger.Ledger
}

// Setup loads configuration, opens the pool, and applies the schema. The
// caller owns Close.
func Setup(ctx context.Context, jobName, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewJobLogger(jobName, cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	pool, err := storage.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureSchema(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return &App{
		Cfg:    cfg,
		Logger: logger,
		Pool:   pool,
		Ledger: runledger.New(pool, logger),
	}, nil
}

// Close releases the pool.
func (a *App) Close() {
	a.Pool.Close()
}

// SignalContext returns a context cancelled on SIGINT/SIGTERM so jobs can
// close the in-flight batch cleanly and mark the run interrupted.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ShowStatus prints the most recent run-ledger rows and exits.
func (a *App) ShowStatus(ctx context.Context, limit int) error {
	runs, err := a.Ledger.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	fmt.Printf("%-36s  %-20s  %-22s  %-9s  %9s  %8s  %8s\n",
		"RUN ID", "SOURCE", "ENTITY", "STATUS", "PROCESSED", "CREATED", "UPDATED")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-22s  %-9s  %9d  %8d  %8d\n",
			r.RunID, r.SourceSystem, r.EntityType, r.Status,
			r.Counts.Processed, r.Counts.Created, r.Counts.Updated)
		if r.ErrorMessage != nil {
			fmt.Printf("    error: %s\n", *r.ErrorMessage)
		}
	}
	return nil
}

// ShowRecentChanges prints Bronze insert counts over the trailing window.
func (a *App) ShowRecentChanges(ctx context.Context, days int) error {
	counts, err := storage.NewBronzeStore(a.Pool).RecentChangeCounts(ctx, days)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Printf("no bronze changes in the last %d days\n", days)
		return nil
	}
	fmt.Printf("bronze changes, last %d days:\n", days)
	for _, c := range counts {
		fmt.Printf("  %-20s %-22s %8d\n", c.SourceSystem, c.EntityType, c.Rows)
	}
	return nil
}

// Fail logs the error and exits 1.
func Fail(logger zerolog.Logger, err error) {
	logger.Error().Err(err).Msg("job failed")
	os.Exit(1)
}
