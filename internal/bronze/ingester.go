package bronze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/metrics"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/runledger"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/sources"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// Definition wires one (source, entity) into the generic ingestion and
// enrichment engines: the whitelisted hash field sets, the source clients,
// and the method tag recorded inside each landed document.
type Definition struct {
	SourceSystem     string
	EntityType       string
	IngestionMethod  string // e.g. "tdx_api", "ldap_search", "csv_import"
	IngestionSource  string // human-readable origin, e.g. endpoint or file
	BasicHashFields  []string
	DetailHashFields []string // enrichment-only fields (attribute arrays)
	Lister           sources.Lister
	Detail           sources.DetailFetcher // nil when the source has no detail pass
}

// Stats is the counts block a job prints and records on its run row.
type Stats struct {
	RunID     uuid.UUID
	Processed int
	Created   int
	Updated   int
	Skipped   int
	Errors    int
}

// HasWork reports whether the run touched anything.
func (s *Stats) HasWork() bool {
	return s.Created+s.Updated > 0
}

// Ingester lands source records into append-only Bronze with hash-gated
// change detection. Every change produces a new row; unchanged records are
// skipped.
type Ingester struct {
	def          Definition
	store        *storage.BronzeStore
	ledger       *runledger.Ledger
	logger       zerolog.Logger
	stopOnErrors bool
}

// NewIngester creates an ingester for one (source, entity).
func NewIngester(def Definition, store *storage.BronzeStore, ledger *runledger.Ledger, logger zerolog.Logger, stopOnErrors bool) *Ingester {
	return &Ingester{
		def:          def,
		store:        store,
		ledger:       ledger,
		logger:       logger.With().Str("source", def.SourceSystem).Str("entity", def.EntityType).Logger(),
		stopOnErrors: stopOnErrors,
	}
}

// Ingest runs one bounded ingestion job. Dry runs compute the full plan and
// counts without writing Bronze rows or the run ledger.
func (ing *Ingester) Ingest(ctx context.Context, fullSync, dryRun bool) (*Stats, error) {
	start := time.Now()
	jobLabel := ing.def.SourceSystem + "_" + ing.def.EntityType
	stats := &Stats{}

	var since *time.Time
	if !fullSync {
		var err error
		since, err = ing.ledger.LastSuccessfulCompletion(ctx, ing.def.SourceSystem, ing.def.EntityType)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve incremental watermark: %w", err)
		}
	}

	runMeta := map[string]any{"mode": mode(fullSync)}
	if since != nil {
		runMeta["incremental_since"] = since.UTC().Format(time.RFC3339)
	}

	var runID uuid.UUID
	if !dryRun {
		var err error
		runID, err = ing.ledger.Begin(ctx, ing.def.SourceSystem, ing.def.EntityType, runMeta)
		if err != nil {
			return nil, fmt.Errorf("failed to begin run: %w", err)
		}
		stats.RunID = runID
	}

	existing, err := ing.store.LatestBasicHashes(ctx, ing.def.EntityType, ing.def.SourceSystem)
	if err != nil {
		ing.completeBestEffort(ctx, runID, stats, err.Error(), dryRun)
		return stats, err
	}

	records, err := ing.def.Lister.List(ctx, since)
	if err != nil {
		ing.completeBestEffort(ctx, runID, stats, err.Error(), dryRun)
		return stats, fmt.Errorf("failed to fetch source records: %w", err)
	}

	ing.logger.Info().
		Int("candidates", len(records)).
		Int("known_ids", len(existing)).
		Bool("full_sync", fullSync).
		Bool("dry_run", dryRun).
		Msg("ingestion started")

	var firstErr string
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			ing.completeBestEffort(ctx, runID, stats, "interrupted", dryRun)
			return stats, err
		}

		// Sources without server-side modification filters are filtered here
		// against their own modified-date field.
		if since != nil && rec.ModifiedAt != nil && !rec.ModifiedAt.After(*since) {
			continue
		}

		stats.Processed++
		metrics.RecordsProcessed.WithLabelValues(jobLabel).Inc()

		if err := ing.processRecord(ctx, rec, existing, runID, dryRun, stats); err != nil {
			stats.Errors++
			metrics.RecordErrors.WithLabelValues(jobLabel).Inc()
			if firstErr == "" {
				firstErr = err.Error()
			}
			ing.logger.Warn().Err(err).Str("external_id", rec.ExternalID).Msg("record failed")
			if ing.stopOnErrors {
				summary := fmt.Sprintf("stopped on first error: %s", err)
				ing.completeBestEffort(ctx, runID, stats, summary, dryRun)
				return stats, errors.New(summary)
			}
		}
	}

	var summary string
	if stats.Errors > 0 {
		summary = fmt.Sprintf("%d record errors (first: %s)", stats.Errors, firstErr)
	}
	ing.completeBestEffort(ctx, runID, stats, summary, dryRun)

	metrics.RunDuration.WithLabelValues(jobLabel).Observe(time.Since(start).Seconds())
	ing.logger.Info().
		Int("processed", stats.Processed).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("ingestion finished")

	if summary != "" {
		return stats, errors.New(summary)
	}
	return stats, nil
}

func (ing *Ingester) processRecord(ctx context.Context, rec sources.Record, existing map[string]string, runID uuid.UUID, dryRun bool, stats *Stats) error {
	basicHash := ing.basicHash(rec.Data)

	prior, known := existing[rec.ExternalID]
	if known && prior == basicHash {
		stats.Skipped++
		metrics.RecordsSkipped.WithLabelValues(ing.def.SourceSystem + "_" + ing.def.EntityType).Inc()
		return nil
	}

	if dryRun {
		action := "would create"
		if known {
			action = "would update"
		}
		ing.logger.Info().Str("external_id", rec.ExternalID).Str("action", action).Msg("dry run")
		if known {
			stats.Updated++
		} else {
			stats.Created++
		}
		return nil
	}

	rawData := make(map[string]any, len(rec.Data)+4)
	for k, v := range rec.Data {
		rawData[k] = v
	}
	rawData["_ingestion_method"] = ing.def.IngestionMethod
	rawData["_ingestion_source"] = ing.def.IngestionSource
	rawData["_ingestion_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	rawData["_content_hash_basic"] = basicHash

	var runPtr *uuid.UUID
	if runID != uuid.Nil {
		runPtr = &runID
	}

	row := &storage.RawEntity{
		EntityType:        ing.def.EntityType,
		SourceSystem:      ing.def.SourceSystem,
		ExternalID:        rec.ExternalID,
		RawData:           rawData,
		IngestionRunID:    runPtr,
		IngestionMetadata: map[string]any{"full_data": ing.def.Detail == nil},
	}
	if err := ing.store.Insert(ctx, row); err != nil {
		return err
	}

	if known {
		stats.Updated++
	} else {
		stats.Created++
	}
	metrics.RecordsWritten.WithLabelValues(ing.def.SourceSystem + "_" + ing.def.EntityType).Inc()
	return nil
}

// completeBestEffort writes the run row outcome. Ledger failures never undo
// committed work; they are logged and swallowed.
func (ing *Ingester) completeBestEffort(ctx context.Context, runID uuid.UUID, stats *Stats, errorMessage string, dryRun bool) {
	if dryRun || runID == uuid.Nil {
		return
	}
	counts := runledger.Counts{
		Processed: stats.Processed,
		Created:   stats.Created,
		Updated:   stats.Updated,
	}
	if err := ing.ledger.Complete(context.WithoutCancel(ctx), runID, counts, errorMessage); err != nil {
		ing.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to complete run row")
	}
}

func mode(fullSync bool) string {
	if fullSync {
		return "full"
	}
	return "incremental"
}
