package bronze

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/metrics"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/runledger"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/sources"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// Enricher runs the second ingestion pass for sources whose list endpoint
// returns thin records: it finds Bronze rows lacking an enriched content
// hash, fetches the per-ID detail document, and updates raw_data in place.
// This is the only legal in-place Bronze mutation.
type Enricher struct {
	def        Definition
	store      *storage.BronzeStore
	ledger     *runledger.Ledger
	logger     zerolog.Logger
	maxWorkers int
	apiDelay   time.Duration

	mu    sync.Mutex
	stats Stats
}

// NewEnricher creates an enricher for one (source, entity). Rate-limited
// sources pass maxWorkers=1 with a non-zero apiDelay.
func NewEnricher(def Definition, store *storage.BronzeStore, ledger *runledger.Ledger, logger zerolog.Logger, maxWorkers int, apiDelay time.Duration) *Enricher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Enricher{
		def:        def,
		store:      store,
		ledger:     ledger,
		logger:     logger.With().Str("source", def.SourceSystem).Str("entity", def.EntityType).Logger(),
		maxWorkers: maxWorkers,
		apiDelay:   apiDelay,
	}
}

// ledger scope for enrichment runs, distinct from the ingestion scope so the
// two passes keep independent watermarks.
func (e *Enricher) ledgerEntity() string {
	return e.def.EntityType + "_enrichment"
}

// StatsSnapshot returns a copy of the live counters for the health endpoint.
func (e *Enricher) StatsSnapshot() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]any{
		"processed": e.stats.Processed,
		"enriched":  e.stats.Updated,
		"skipped":   e.stats.Skipped,
		"errors":    e.stats.Errors,
	}
}

// Enrich runs one bounded enrichment job with a worker pool of size
// maxWorkers issuing detail calls in parallel.
func (e *Enricher) Enrich(ctx context.Context, fullSync, dryRun bool) (*Stats, error) {
	if e.def.Detail == nil {
		return nil, fmt.Errorf("%s/%s has no detail source", e.def.SourceSystem, e.def.EntityType)
	}

	start := time.Now()
	jobLabel := e.def.SourceSystem + "_" + e.def.EntityType + "_enrichment"

	var since *time.Time
	if !fullSync {
		var err error
		since, err = e.ledger.LastSuccessfulCompletion(ctx, e.def.SourceSystem, e.ledgerEntity())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve enrichment watermark: %w", err)
		}
	}

	runMeta := map[string]any{
		"mode":        mode(fullSync),
		"max_workers": e.maxWorkers,
	}
	if since != nil {
		runMeta["incremental_since"] = since.UTC().Format(time.RFC3339)
	}

	var runID uuid.UUID
	if !dryRun {
		var err error
		runID, err = e.ledger.Begin(ctx, e.def.SourceSystem, e.ledgerEntity(), runMeta)
		if err != nil {
			return nil, fmt.Errorf("failed to begin enrichment run: %w", err)
		}
	}

	rows, err := e.store.RowsNeedingEnrichment(ctx, e.def.EntityType, e.def.SourceSystem, since)
	if err != nil {
		e.completeBestEffort(ctx, runID, err.Error(), dryRun)
		return e.snapshot(runID), err
	}

	e.logger.Info().
		Int("targets", len(rows)).
		Int("workers", e.maxWorkers).
		Bool("dry_run", dryRun).
		Msg("enrichment started")

	jobs := make(chan *storage.RawEntity)
	var wg sync.WaitGroup
	for w := 0; w < e.maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				e.enrichRow(ctx, row, dryRun, jobLabel)
				if e.apiDelay > 0 {
					select {
					case <-time.After(e.apiDelay):
					case <-ctx.Done():
					}
				}
			}
		}()
	}

	interrupted := false
feed:
	for _, row := range rows {
		select {
		case jobs <- row:
		case <-ctx.Done():
			interrupted = true
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	stats := e.snapshot(runID)

	var summary string
	switch {
	case interrupted:
		summary = "interrupted"
	case stats.Errors > 0:
		summary = fmt.Sprintf("%d record errors", stats.Errors)
	}
	e.completeBestEffort(ctx, runID, summary, dryRun)

	metrics.RunDuration.WithLabelValues(jobLabel).Observe(time.Since(start).Seconds())
	e.logger.Info().
		Int("processed", stats.Processed).
		Int("enriched", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("enrichment finished")

	if summary != "" {
		return stats, errors.New(summary)
	}
	return stats, nil
}

func (e *Enricher) enrichRow(ctx context.Context, row *storage.RawEntity, dryRun bool, jobLabel string) {
	e.mu.Lock()
	e.stats.Processed++
	e.mu.Unlock()
	metrics.RecordsProcessed.WithLabelValues(jobLabel).Inc()

	callStart := time.Now()
	detail, err := e.def.Detail.Detail(ctx, row.ExternalID)
	metrics.DetailCallDuration.Observe(time.Since(callStart).Seconds())
	if err != nil {
		e.recordError(jobLabel)
		var httpErr *sources.HTTPError
		if errors.As(err, &httpErr) && !httpErr.Retryable() {
			// Non-retryable upstream response: the row stays unenriched and
			// the next run will pick it up again.
			e.logger.Warn().Err(err).Str("external_id", row.ExternalID).Msg("detail call rejected")
		} else {
			e.logger.Warn().Err(err).Str("external_id", row.ExternalID).Msg("detail call failed")
		}
		return
	}

	merged := make(map[string]any, len(row.RawData)+len(detail))
	for k, v := range row.RawData {
		merged[k] = v
	}
	for k, v := range detail {
		merged[k] = v
	}

	// Hash-stability check: the detail document must produce the same basic
	// hash the ingester computed, or the whitelists have drifted.
	if got := e.def.BasicHash(merged); got != row.BasicHash() && row.BasicHash() != "" {
		e.logger.Warn().
			Str("external_id", row.ExternalID).
			Msg("basic hash mismatch between list and detail documents")
	}

	enrichedHash := e.def.EnrichedHash(merged)
	if enrichedHash == row.EnrichedHash() {
		e.mu.Lock()
		e.stats.Skipped++
		e.mu.Unlock()
		metrics.RecordsSkipped.WithLabelValues(jobLabel).Inc()
		return
	}

	if dryRun {
		e.logger.Info().Str("external_id", row.ExternalID).Str("action", "would enrich").Msg("dry run")
		e.mu.Lock()
		e.stats.Updated++
		e.mu.Unlock()
		return
	}

	merged["_ingestion_method"] = e.def.IngestionMethod + "_enriched"
	merged["_content_hash_enriched"] = enrichedHash
	merged["_enrichment_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	merged["_content_hash_basic"] = row.RawData["_content_hash_basic"]

	if err := e.store.UpdateRawData(ctx, row.RawID, merged); err != nil {
		e.recordError(jobLabel)
		e.logger.Warn().Err(err).Int64("raw_id", row.RawID).Msg("failed to update bronze row")
		return
	}

	e.mu.Lock()
	e.stats.Updated++
	e.mu.Unlock()
	metrics.RecordsWritten.WithLabelValues(jobLabel).Inc()
}

func (e *Enricher) recordError(jobLabel string) {
	e.mu.Lock()
	e.stats.Errors++
	e.mu.Unlock()
	metrics.RecordErrors.WithLabelValues(jobLabel).Inc()
}

func (e *Enricher) snapshot(runID uuid.UUID) *Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.RunID = runID
	return &s
}

func (e *Enricher) completeBestEffort(ctx context.Context, runID uuid.UUID, errorMessage string, dryRun bool) {
	if dryRun || runID == uuid.Nil {
		return
	}
	s := e.snapshot(runID)
	counts := runledger.Counts{Processed: s.Processed, Created: 0, Updated: s.Updated}
	if err := e.ledger.Complete(context.WithoutCancel(ctx), runID, counts, errorMessage); err != nil {
		e.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to complete run row")
	}
}
