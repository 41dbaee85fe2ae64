package silver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/metrics"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/runledger"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// Row is one projected Silver row: the natural key as text plus the typed
// column values. The engine computes entity_hash over Values and stamps the
// provenance columns.
type Row struct {
	Key    string
	Values map[string]any
}

// Projector converts the latest Bronze rows in scope into Silver rows. A
// projector may fold several Bronze rows into one Silver row (per-NIC
// inventory records) or emit one row per Bronze row. Per-record problems
// come back as errors alongside the good rows.
type Projector interface {
	Project(entities []*storage.RawEntity) ([]Row, []error)
}

// Transformer runs the incremental Bronze → Silver-source transformation for
// one (source, entity).
type Transformer struct {
	SourceSystem string
	BronzeEntity string
	LedgerEntity string // entity_type under the silver_transformation ledger scope
	Spec         storage.UpsertSpec
	KeyColumn    string
	Projector    Projector
	// FullScanAlways forces a full Bronze scan regardless of the watermark.
	// Needed when one Silver row folds multiple Bronze keys (per-NIC
	// records), where a change to one key invalidates a row built from
	// unchanged siblings.
	FullScanAlways bool

	BatchSize     int
	ReadChunkSize int

	bronze *storage.BronzeStore
	silver *storage.SilverStore
	ledger *runledger.Ledger
	logger zerolog.Logger
}

// Bind attaches storage and logging. Kept separate from the literal
// transformer definitions so those stay declarative.
func (t *Transformer) Bind(bronze *storage.BronzeStore, silver *storage.SilverStore, ledger *runledger.Ledger, logger zerolog.Logger, batchSize, readChunkSize int) {
	t.bronze = bronze
	t.silver = silver
	t.ledger = ledger
	t.logger = logger.With().Str("source", t.SourceSystem).Str("entity", t.LedgerEntity).Logger()
	t.BatchSize = batchSize
	t.ReadChunkSize = readChunkSize
}

// Stats is the transformation counts block.
type Stats struct {
	RunID     uuid.UUID
	Processed int
	Written   int // created+updated; the bulk upsert cannot tell them apart
	Skipped   int
	Errors    int
}

// Transform runs one bounded transformation job.
func (t *Transformer) Transform(ctx context.Context, fullSync, dryRun bool) (*Stats, error) {
	start := time.Now()
	jobLabel := "transform_" + t.SourceSystem + "_" + t.LedgerEntity
	stats := &Stats{}

	var since *time.Time
	if !fullSync && !t.FullScanAlways {
		var err error
		since, err = t.ledger.LastSuccessfulCompletion(ctx, runledger.SilverTransformation, t.LedgerEntity)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve transformation watermark: %w", err)
		}
	}

	runMeta := map[string]any{
		"mode":          mode(fullSync),
		"source_system": t.SourceSystem,
	}
	if since != nil {
		runMeta["incremental_since"] = since.UTC().Format(time.RFC3339)
	}

	var runID uuid.UUID
	if !dryRun {
		var err error
		runID, err = t.ledger.Begin(ctx, runledger.SilverTransformation, t.LedgerEntity, runMeta)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transformation run: %w", err)
		}
		stats.RunID = runID
	}

	ids, err := t.bronze.ExternalIDsSince(ctx, t.BronzeEntity, t.SourceSystem, since)
	if err != nil {
		t.completeBestEffort(ctx, runID, stats, err.Error(), dryRun)
		return stats, err
	}
	if len(ids) == 0 {
		t.completeBestEffort(ctx, runID, stats, "", dryRun)
		t.logger.Info().Msg("nothing to transform")
		return stats, nil
	}

	// Phase 1: latest Bronze row per external_id, one windowed query per
	// chunk instead of one query per id.
	var entities []*storage.RawEntity
	for begin := 0; begin < len(ids); begin += t.ReadChunkSize {
		if err := ctx.Err(); err != nil {
			t.completeBestEffort(ctx, runID, stats, "interrupted", dryRun)
			return stats, err
		}
		end := begin + t.ReadChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk, err := t.bronze.LatestByExternalIDs(ctx, t.BronzeEntity, t.SourceSystem, ids[begin:end])
		if err != nil {
			t.completeBestEffort(ctx, runID, stats, err.Error(), dryRun)
			return stats, err
		}
		entities = append(entities, chunk...)
	}

	rows, projErrs := t.Projector.Project(entities)
	stats.Errors += len(projErrs)
	for _, perr := range projErrs {
		t.logger.Warn().Err(perr).Msg("projection failed")
		metrics.RecordErrors.WithLabelValues(jobLabel).Inc()
	}

	// Phase 2: existing entity hashes for every projected key, one query.
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.Key)
	}
	existing, err := t.silver.ExistingHashes(ctx, t.Spec.Table, t.KeyColumn, keys)
	if err != nil {
		t.completeBestEffort(ctx, runID, stats, err.Error(), dryRun)
		return stats, err
	}

	// Phase 3: hash gate, then batched upsert flushes.
	var batch [][]any
	flush := func() error {
		if len(batch) == 0 || dryRun {
			batch = nil
			return nil
		}
		written, err := t.silver.UpsertBatch(ctx, t.Spec, batch)
		if err != nil {
			return err
		}
		stats.Written += int(written)
		metrics.RecordsWritten.WithLabelValues(jobLabel).Add(float64(written))
		batch = nil
		return nil
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			// Clean stop: commit the in-flight batch before reporting.
			if ferr := flush(); ferr != nil {
				t.logger.Error().Err(ferr).Msg("failed to flush final batch on interrupt")
			}
			t.completeBestEffort(ctx, runID, stats, "interrupted", dryRun)
			return stats, err
		}

		stats.Processed++
		metrics.RecordsProcessed.WithLabelValues(jobLabel).Inc()

		entityHash := hashing.EntityHash(row.Values)
		if existing[row.Key] == entityHash {
			stats.Skipped++
			metrics.RecordsSkipped.WithLabelValues(jobLabel).Inc()
			continue
		}

		row.Values["entity_hash"] = entityHash
		row.Values["source_system"] = t.SourceSystem
		if runID != uuid.Nil {
			row.Values["ingestion_run_id"] = runID
		}

		if dryRun {
			t.logger.Info().Str("key", row.Key).Str("action", "would upsert").Msg("dry run")
			stats.Written++
			continue
		}

		bound := make([]any, len(t.Spec.Columns))
		for i, col := range t.Spec.Columns {
			bound[i] = row.Values[col]
		}
		batch = append(batch, bound)

		if len(batch) >= t.BatchSize {
			if err := flush(); err != nil {
				t.completeBestEffort(ctx, runID, stats, err.Error(), dryRun)
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		t.completeBestEffort(ctx, runID, stats, err.Error(), dryRun)
		return stats, err
	}

	var summary string
	if stats.Errors > 0 {
		summary = fmt.Sprintf("%d projection errors", stats.Errors)
	}
	t.completeBestEffort(ctx, runID, stats, summary, dryRun)

	metrics.RunDuration.WithLabelValues(jobLabel).Observe(time.Since(start).Seconds())
	t.logger.Info().
		Int("processed", stats.Processed).
		Int("written", stats.Written).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("transformation finished")

	if summary != "" {
		return stats, errors.New(summary)
	}
	return stats, nil
}

func (t *Transformer) completeBestEffort(ctx context.Context, runID uuid.UUID, stats *Stats, errorMessage string, dryRun bool) {
	if dryRun || runID == uuid.Nil {
		return
	}
	counts := runledger.Counts{Processed: stats.Processed, Created: stats.Written}
	if err := t.ledger.Complete(context.WithoutCancel(ctx), runID, counts, errorMessage); err != nil {
		t.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to complete run row")
	}
}

func mode(fullSync bool) string {
	if fullSync {
		return "full"
	}
	return "incremental"
}
