// Package transcript keeps a durable log of chat exchanges for operators.
// The log is write-mostly: live sessions never read their history back from
// it.
package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fabfab/docchat/database"
	"github.com/fabfab/docchat/session"
)

// Entry is one exchange as stored in the transcript log.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Outcome   string    `json:"outcome"`
	Failure   string    `json:"failure,omitempty"`
	Citations []string  `json:"citations"`
	StartedAt time.Time `json:"startedAt"`
	Duration  int64     `json:"durationMs"`
}

type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRecorder ensures the transcript schema exists and returns a
// recorder writing to it.
func NewPostgresRecorder(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*PostgresRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := database.EnsureTranscriptSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("ensure transcript schema: %w", err)
	}
	return &PostgresRecorder{pool: pool, logger: logger}, nil
}

var _ session.Recorder = (*PostgresRecorder)(nil)

func (r *PostgresRecorder) Record(ctx context.Context, exchange session.Exchange) (err error) {
	id, err := uuid.Parse(exchange.ID)
	if err != nil {
		return fmt.Errorf("parse exchange id: %w", err)
	}
	sessionID, err := uuid.Parse(exchange.SessionID)
	if err != nil {
		return fmt.Errorf("parse session id: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				r.logger.Warn("rollback transcript tx", zap.Error(rbErr))
			}
		}
	}()

	if _, err = tx.Exec(ctx, `
		INSERT INTO chat_exchanges (id, session_id, question, answer, outcome, failure, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, sessionID, exchange.Question, exchange.Answer, string(exchange.Outcome),
		failureText(exchange.Failure), exchange.StartedAt, exchange.Duration.Milliseconds()); err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}

	for idx, citation := range exchange.Citations {
		if _, err = tx.Exec(ctx, `
			INSERT INTO chat_exchange_citations (exchange_id, position, display_name)
			VALUES ($1, $2, $3)
		`, id, idx, citation.DisplayName); err != nil {
			return fmt.Errorf("insert citation %d: %w", idx, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Exchanges returns the latest exchanges of a session, oldest first.
func (r *PostgresRecorder) Exchanges(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.session_id, e.question, e.answer, e.outcome, COALESCE(e.failure, ''),
		       e.started_at, e.duration_ms,
		       COALESCE(array_agg(c.display_name ORDER BY c.position) FILTER (WHERE c.display_name IS NOT NULL), '{}')
		FROM (
			SELECT * FROM chat_exchanges
			WHERE session_id = $1
			ORDER BY started_at DESC
			LIMIT $2
		) e
		LEFT JOIN chat_exchange_citations c ON c.exchange_id = e.id
		GROUP BY e.id, e.session_id, e.question, e.answer, e.outcome, e.failure, e.started_at, e.duration_ms
		ORDER BY e.started_at ASC
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry     Entry
			entryID   uuid.UUID
			sessionID uuid.UUID
		)
		if scanErr := rows.Scan(&entryID, &sessionID, &entry.Question, &entry.Answer, &entry.Outcome,
			&entry.Failure, &entry.StartedAt, &entry.Duration, &entry.Citations); scanErr != nil {
			return nil, fmt.Errorf("scan exchange: %w", scanErr)
		}
		entry.ID = entryID.String()
		entry.SessionID = sessionID.String()
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func failureText(err error) *string {
	if err == nil {
		return nil
	}
	text := err.Error()
	return &text
}
