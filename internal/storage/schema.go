package storage

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaFS embed.FS

// EnsureSchema applies the embedded DDL. Every statement is idempotent
// (IF NOT EXISTS), so jobs can run this unconditionally at startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	content, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	statements := splitSQLStatements(string(content))
	for i, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement %d: %w", i, err)
		}
	}

	logger.Debug().Int("statements", len(statements)).Msg("schema ensured")
	return nil
}

// splitSQLStatements splits the schema file on semicolons, respecting
// single-quoted strings.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString := false

	for _, ch := range sql {
		if ch == '\'' {
			inString = !inString
		}
		if ch == ';' && !inString {
			statements = append(statements, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(ch)
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
