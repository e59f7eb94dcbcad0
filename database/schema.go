package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaStatements creates the chat transcript tables. Every statement is
// idempotent.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chat_exchanges (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		outcome TEXT NOT NULL,
		failure TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_exchange_citations (
		exchange_id UUID NOT NULL REFERENCES chat_exchanges(id) ON DELETE CASCADE,
		position INT NOT NULL,
		display_name TEXT NOT NULL,
		PRIMARY KEY (exchange_id, position)
	)`,
	"CREATE INDEX IF NOT EXISTS idx_chat_exchanges_session ON chat_exchanges(session_id, started_at)",
	"CREATE INDEX IF NOT EXISTS idx_chat_exchange_citations_name ON chat_exchange_citations(display_name)",
}

func EnsureTranscriptSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	for _, stmt := range SchemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}
