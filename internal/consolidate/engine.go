package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/metrics"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/runledger"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// LedgerSource is the run-ledger source_system for every consolidation run.
const LedgerSource = "silver_consolidation"

// Runner carries the shared dependencies of all consolidators. Consolidators
// are single-threaded; joins happen in memory after bulk reads.
type Runner struct {
	Pool      *pgxpool.Pool
	Silver    *storage.SilverStore
	Ledger    *runledger.Ledger
	Logger    zerolog.Logger
	BatchSize int
	ChunkSize int // link-table rebuild chunk
	DryRun    bool
}

// Stats is the per-consolidator counts block.
type Stats struct {
	RunID     uuid.UUID
	Processed int
	Written   int
	Skipped   int
	Errors    int
}

// row is one canonical entity ready for the hash-gated upsert: its key as
// text plus the typed column values.
type row struct {
	key    string
	values map[string]any
}

// runScoped wraps one consolidator in a run-ledger entry under the
// consolidation scope. Dry runs skip the ledger entirely.
func (r *Runner) runScoped(ctx context.Context, entity string, fn func(context.Context, *Stats) error) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	logger := r.Logger.With().Str("entity", entity).Logger()

	var runID uuid.UUID
	if !r.DryRun {
		var err error
		runID, err = r.Ledger.Begin(ctx, LedgerSource, entity, map[string]any{"mode": "full"})
		if err != nil {
			return nil, fmt.Errorf("failed to begin consolidation run: %w", err)
		}
		stats.RunID = runID
	}

	err := fn(ctx, stats)

	if !r.DryRun && runID != uuid.Nil {
		var msg string
		if err != nil {
			msg = err.Error()
		}
		counts := runledger.Counts{Processed: stats.Processed, Created: stats.Written}
		if lerr := r.Ledger.Complete(context.WithoutCancel(ctx), runID, counts, msg); lerr != nil {
			logger.Error().Err(lerr).Str("run_id", runID.String()).Msg("failed to complete run row")
		}
	}

	metrics.RunDuration.WithLabelValues("consolidate_" + entity).Observe(time.Since(start).Seconds())
	logger.Info().
		Int("processed", stats.Processed).
		Int("written", stats.Written).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("consolidation finished")

	return stats, err
}

// upsertRows writes canonical rows through the hash-gated batch upsert: one
// existing-hash fetch, skip-on-equal, flushes of BatchSize rows.
func (r *Runner) upsertRows(ctx context.Context, spec storage.UpsertSpec, keyColumn string, rows []row, stats *Stats) error {
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.key)
	}
	existing, err := r.Silver.ExistingHashes(ctx, spec.Table, keyColumn, keys)
	if err != nil {
		return err
	}

	var batch [][]any
	flush := func() error {
		if len(batch) == 0 || r.DryRun {
			batch = nil
			return nil
		}
		written, err := r.Silver.UpsertBatch(ctx, spec, batch)
		if err != nil {
			return err
		}
		stats.Written += int(written)
		batch = nil
		return nil
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			if ferr := flush(); ferr != nil {
				return ferr
			}
			return err
		}
		stats.Processed++

		entityHash := hashing.EntityHash(row.values)
		if existing[row.key] == entityHash {
			stats.Skipped++
			continue
		}
		row.values["entity_hash"] = entityHash
		if stats.RunID != uuid.Nil {
			row.values["ingestion_run_id"] = stats.RunID
		}

		if r.DryRun {
			stats.Written++
			continue
		}

		bound := make([]any, len(spec.Columns))
		for i, col := range spec.Columns {
			bound[i] = row.values[col]
		}
		batch = append(batch, bound)
		if len(batch) >= r.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// rebuild replaces a link table unless this is a dry run.
func (r *Runner) rebuild(ctx context.Context, table string, columns []string, rows [][]any) error {
	if r.DryRun {
		r.Logger.Info().Str("table", table).Int("rows", len(rows)).Msg("dry run: would rebuild")
		return nil
	}
	return r.Silver.ReplaceAll(ctx, table, columns, rows, r.ChunkSize)
}

func textOf(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func boolOf(p *bool) bool {
	return p != nil && *p
}

func firstNonEmpty(values ...string) any {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return nil
}
