package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RawEntity is one Bronze row: an opaque source document plus landing
// metadata. Content hashes live inside RawData under "_"-prefixed keys.
type RawEntity struct {
	RawID             int64
	EntityType        string
	SourceSystem      string
	ExternalID        string
	RawData           map[string]any
	IngestedAt        time.Time
	IngestionRunID    *uuid.UUID
	IngestionMetadata map[string]any
}

// BasicHash returns the stored basic content hash, if any.
func (r *RawEntity) BasicHash() string {
	if v, ok := r.RawData["_content_hash_basic"].(string); ok {
		return v
	}
	return ""
}

// EnrichedHash returns the stored enriched content hash, if any.
func (r *RawEntity) EnrichedHash() string {
	if v, ok := r.RawData["_content_hash_enriched"].(string); ok {
		return v
	}
	return ""
}

// BronzeStore provides typed access to bronze.raw_entities.
type BronzeStore struct {
	pool *pgxpool.Pool
}

// NewBronzeStore creates a Bronze store over the shared pool.
func NewBronzeStore(pool *pgxpool.Pool) *BronzeStore {
	return &BronzeStore{pool: pool}
}

// LatestBasicHashes returns, for every external_id already landed for this
// (source, entity), the basic content hash of its most recent row.
func (s *BronzeStore) LatestBasicHashes(ctx context.Context, entityType, sourceSystem string) (map[string]string, error) {
	query := `
		SELECT DISTINCT ON (external_id)
			external_id,
			raw_data ->> '_content_hash_basic'
		FROM bronze.raw_entities
		WHERE entity_type = $1 AND source_system = $2
		ORDER BY external_id, ingested_at DESC, raw_id DESC
	`

	rows, err := s.pool.Query(ctx, query, entityType, sourceSystem)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var externalID string
		var hash *string
		if err := rows.Scan(&externalID, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan existing hash: %w", err)
		}
		if hash != nil {
			hashes[externalID] = *hash
		}
	}
	return hashes, rows.Err()
}

// Insert appends one Bronze row. Bronze is append-only; callers never update
// rows through this path.
func (s *BronzeStore) Insert(ctx context.Context, row *RawEntity) error {
	rawData, err := json.Marshal(row.RawData)
	if err != nil {
		return fmt.Errorf("failed to marshal raw data: %w", err)
	}
	metadata, err := json.Marshal(row.IngestionMetadata)
	if err != nil {
		return fmt.Errorf("failed to marshal ingestion metadata: %w", err)
	}

	query := `
		INSERT INTO bronze.raw_entities
			(entity_type, source_system, external_id, raw_data, ingested_at, ingestion_run_id, ingestion_metadata)
		VALUES ($1, $2, $3, $4, now(), $5, $6)
	`
	_, err = s.pool.Exec(ctx, query,
		row.EntityType, row.SourceSystem, row.ExternalID, rawData, row.IngestionRunID, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert bronze row: %w", err)
	}
	return nil
}

// ExternalIDsSince enumerates the external_ids with Bronze activity after
// since for this (source, entity). A nil since means all ids.
func (s *BronzeStore) ExternalIDsSince(ctx context.Context, entityType, sourceSystem string, since *time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT external_id
		FROM bronze.raw_entities
		WHERE entity_type = $1 AND source_system = $2
	`
	args := []any{entityType, sourceSystem}
	if since != nil {
		query += ` AND ingested_at > $3`
		args = append(args, *since)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate external ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestByExternalIDs fetches the most recent Bronze row for each of the
// given external_ids with a single windowed query. Callers chunk the id list
// so each call carries roughly a thousand ids.
func (s *BronzeStore) LatestByExternalIDs(ctx context.Context, entityType, sourceSystem string, externalIDs []string) ([]*RawEntity, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT raw_id, entity_type, source_system, external_id, raw_data, ingested_at, ingestion_run_id, ingestion_metadata
		FROM (
			SELECT *,
				ROW_NUMBER() OVER (PARTITION BY external_id ORDER BY ingested_at DESC, raw_id DESC) AS rn
			FROM bronze.raw_entities
			WHERE entity_type = $1 AND source_system = $2 AND external_id = ANY($3)
		) ranked
		WHERE rn = 1
	`

	rows, err := s.pool.Query(ctx, query, entityType, sourceSystem, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bronze rows: %w", err)
	}
	defer rows.Close()

	return scanRawEntities(rows)
}

// RowsNeedingEnrichment returns the latest Bronze row per external_id that
// still lacks an enriched content hash, optionally limited to rows landed
// after since.
func (s *BronzeStore) RowsNeedingEnrichment(ctx context.Context, entityType, sourceSystem string, since *time.Time) ([]*RawEntity, error) {
	query := `
		SELECT raw_id, entity_type, source_system, external_id, raw_data, ingested_at, ingestion_run_id, ingestion_metadata
		FROM (
			SELECT *,
				ROW_NUMBER() OVER (PARTITION BY external_id ORDER BY ingested_at DESC, raw_id DESC) AS rn
			FROM bronze.raw_entities
			WHERE entity_type = $1 AND source_system = $2
		) ranked
		WHERE rn = 1 AND raw_data ->> '_content_hash_enriched' IS NULL
	`
	args := []any{entityType, sourceSystem}
	if since != nil {
		query += ` AND ingested_at > $3`
		args = append(args, *since)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows needing enrichment: %w", err)
	}
	defer rows.Close()

	return scanRawEntities(rows)
}

// UpdateRawData replaces raw_data for one row by raw_id. This is the sole
// legal in-place Bronze mutation (the enrichment pass) and runs in its own
// transaction.
func (s *BronzeStore) UpdateRawData(ctx context.Context, rawID int64, rawData map[string]any) error {
	data, err := json.Marshal(rawData)
	if err != nil {
		return fmt.Errorf("failed to marshal raw data: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin enrichment transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE bronze.raw_entities SET raw_data = $1 WHERE raw_id = $2`, data, rawID)
	if err != nil {
		return fmt.Errorf("failed to update bronze row %d: %w", rawID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bronze row %d not found", rawID)
	}

	return tx.Commit(ctx)
}

// ChangeCount is a per-(source, entity) Bronze insert count for a window.
type ChangeCount struct {
	SourceSystem string
	EntityType   string
	Rows         int64
}

// RecentChangeCounts reports Bronze insert counts per (source, entity) over
// the trailing window, newest-heavy first. Backs --show-recent-changes.
func (s *BronzeStore) RecentChangeCounts(ctx context.Context, days int) ([]ChangeCount, error) {
	query := `
		SELECT source_system, entity_type, COUNT(*)
		FROM bronze.raw_entities
		WHERE ingested_at > now() - ($1 || ' days')::interval
		GROUP BY source_system, entity_type
		ORDER BY COUNT(*) DESC
	`

	rows, err := s.pool.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent changes: %w", err)
	}
	defer rows.Close()

	var counts []ChangeCount
	for rows.Next() {
		var c ChangeCount
		if err := rows.Scan(&c.SourceSystem, &c.EntityType, &c.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan change count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanRawEntities(rows pgx.Rows) ([]*RawEntity, error) {
	var entities []*RawEntity
	for rows.Next() {
		var e RawEntity
		if err := rows.Scan(&e.RawID, &e.EntityType, &e.SourceSystem, &e.ExternalID,
			&e.RawData, &e.IngestedAt, &e.IngestionRunID, &e.IngestionMetadata); err != nil {
			return nil, fmt.Errorf("failed to scan bronze row: %w", err)
		}
		entities = append(entities, &e)
	}
	return entities, rows.Err()
}
