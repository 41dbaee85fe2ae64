package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SilverStore provides batched access to the silver schema: hash lookups,
// hash-gated batch upserts, and full-refresh link-table rebuilds.
type SilverStore struct {
	pool *pgxpool.Pool
}

// NewSilverStore creates a Silver store over the shared pool.
func NewSilverStore(pool *pgxpool.Pool) *SilverStore {
	return &SilverStore{pool: pool}
}

// UpsertSpec describes the shape of a hash-gated batch upsert into one
// Silver table. Columns lists every bound column including the keys;
// created_at/updated_at are managed by the store.
type UpsertSpec struct {
	Table      string
	KeyColumns []string
	Columns    []string
}

// ExistingHashes fetches entity_hash per key with one query. Keys are
// compared as text so integer-keyed tables share the same path as
// text-keyed ones.
func (s *SilverStore) ExistingHashes(ctx context.Context, table, keyColumn string, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	query := fmt.Sprintf(
		`SELECT %s::text, entity_hash FROM %s WHERE %s::text = ANY($1)`,
		keyColumn, table, keyColumn,
	)

	rows, err := s.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing entity hashes from %s: %w", table, err)
	}
	defer rows.Close()

	hashes := make(map[string]string, len(keys))
	for rows.Next() {
		var key, hash string
		if err := rows.Scan(&key, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan entity hash: %w", err)
		}
		hashes[key] = hash
	}
	return hashes, rows.Err()
}

// UpsertBatch executes one multi-row INSERT ... ON CONFLICT ... DO UPDATE
// gated on entity_hash inequality, so rows whose hash did not change are
// never rewritten even when the pre-batch hash fetch raced. Returns the
// number of rows actually written.
func (s *SilverStore) UpsertBatch(ctx context.Context, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := buildUpsertQuery(spec, len(rows))

	args := make([]any, 0, len(rows)*len(spec.Columns))
	for _, row := range rows {
		if len(row) != len(spec.Columns) {
			return 0, fmt.Errorf("upsert row has %d values, want %d", len(row), len(spec.Columns))
		}
		args = append(args, row...)
	}

	var written int64
	err := s.execWithRetry(ctx, func() error {
		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		written = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert batch into %s: %w", spec.Table, err)
	}
	return written, nil
}

func buildUpsertQuery(spec UpsertSpec, rowCount int) string {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(spec.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(spec.Columns, ", "))
	b.WriteString(", created_at, updated_at) VALUES ")

	param := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 0; c < len(spec.Columns); c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", param)
			param++
		}
		b.WriteString(", now(), now())")
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(strings.Join(spec.KeyColumns, ", "))
	b.WriteString(") DO UPDATE SET ")

	keySet := make(map[string]bool, len(spec.KeyColumns))
	for _, k := range spec.KeyColumns {
		keySet[k] = true
	}
	first := true
	for _, col := range spec.Columns {
		if keySet[col] {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", col, col)
		first = false
	}
	b.WriteString(", updated_at = now() WHERE ")
	b.WriteString(spec.Table)
	b.WriteString(".entity_hash != EXCLUDED.entity_hash")

	return b.String()
}

// ReplaceAll rebuilds a link table: TRUNCATE then chunked multi-row inserts,
// all inside one transaction so readers never observe a half-built table.
func (s *SilverStore) ReplaceAll(ctx context.Context, table string, columns []string, rows [][]any, chunkSize int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin rebuild transaction for %s: %w", table, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE "+table); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", table, err)
	}

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		query := buildInsertQuery(table, columns, len(chunk))
		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			if len(row) != len(columns) {
				return fmt.Errorf("insert row has %d values, want %d", len(row), len(columns))
			}
			args = append(args, row...)
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert chunk into %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

func buildInsertQuery(table string, columns []string, rowCount int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	param := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 0; c < len(columns); c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", param)
			param++
		}
		b.WriteString(")")
	}
	return b.String()
}

// execWithRetry retries transient database failures (deadlock, serialization)
// a small fixed number of times with exponential backoff.
func (s *SilverStore) execWithRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isTransientDBError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func isTransientDBError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return true
	}
	return false
}
