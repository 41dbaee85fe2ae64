package runledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Status values for meta.ingestion_runs rows.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SilverTransformation is the sentinel source_system used by Silver
// transformation runs; physical sources use their own names.
const SilverTransformation = "silver_transformation"

const staleMessage = "stale — process terminated"

// Counts carries the per-run record counters.
type Counts struct {
	Processed int
	Created   int
	Updated   int
}

// Run is one row of meta.ingestion_runs.
type Run struct {
	RunID        uuid.UUID
	SourceSystem string
	EntityType   string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Status       string
	Counts       Counts
	ErrorMessage *string
}

// Ledger records every job invocation in meta.ingestion_runs. Ledger writes
// are best-effort: a failed ledger write never rolls back committed work,
// callers log it and move on.
type Ledger struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New creates a run ledger over the shared pool.
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Ledger {
	return &Ledger{pool: pool, logger: logger}
}

// Begin starts a run: in one transaction it sweeps any prior running rows for
// this (source, entity) to failed/stale, then inserts the new running row.
// The sweep enforces "at most one running row per (source, entity)" — it is a
// crash-recovery mechanism, not a lock.
func (l *Ledger) Begin(ctx context.Context, sourceSystem, entityType string, metadata map[string]any) (uuid.UUID, error) {
	runID := uuid.New()

	meta, err := json.Marshal(metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	swept, err := tx.Exec(ctx, `
		UPDATE meta.ingestion_runs
		SET status = $1, completed_at = now(), error_message = $2
		WHERE source_system = $3 AND entity_type = $4 AND status = $5
	`, StatusFailed, staleMessage, sourceSystem, entityType, StatusRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to sweep stale runs: %w", err)
	}
	if n := swept.RowsAffected(); n > 0 {
		l.logger.Warn().
			Int64("stale_runs", n).
			Str("source_system", sourceSystem).
			Str("entity_type", entityType).
			Msg("marked stale runs as failed")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO meta.ingestion_runs
			(run_id, source_system, entity_type, started_at, status, metadata)
		VALUES ($1, $2, $3, now(), $4, $5)
	`, runID, sourceSystem, entityType, StatusRunning, meta)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return runID, nil
}

// Complete finishes a run. A non-empty errorMessage marks the run failed,
// otherwise completed.
func (l *Ledger) Complete(ctx context.Context, runID uuid.UUID, counts Counts, errorMessage string) error {
	status := StatusCompleted
	var msg *string
	if errorMessage != "" {
		status = StatusFailed
		msg = &errorMessage
	}

	_, err := l.pool.Exec(ctx, `
		UPDATE meta.ingestion_runs
		SET completed_at = now(),
		    status = $1,
		    records_processed = $2,
		    records_created = $3,
		    records_updated = $4,
		    error_message = $5
		WHERE run_id = $6
	`, status, counts.Processed, counts.Created, counts.Updated, msg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", runID, err)
	}
	return nil
}

// LastSuccessfulCompletion returns MAX(completed_at) over completed runs for
// this (source, entity), or nil when none exists. This is the incremental
// watermark.
func (l *Ledger) LastSuccessfulCompletion(ctx context.Context, sourceSystem, entityType string) (*time.Time, error) {
	var completed *time.Time
	err := l.pool.QueryRow(ctx, `
		SELECT MAX(completed_at)
		FROM meta.ingestion_runs
		WHERE source_system = $1 AND entity_type = $2 AND status = $3
	`, sourceSystem, entityType, StatusCompleted).Scan(&completed)
	if err != nil {
		return nil, fmt.Errorf("failed to query last successful completion: %w", err)
	}
	return completed, nil
}

// RecentRuns returns the most recent runs across all jobs, newest first.
// Backs --show-status.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT run_id, source_system, entity_type, started_at, completed_at,
		       status, records_processed, records_created, records_updated, error_message
		FROM meta.ingestion_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.SourceSystem, &r.EntityType, &r.StartedAt, &r.CompletedAt,
			&r.Status, &r.Counts.Processed, &r.Counts.Created, &r.Counts.Updated, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
