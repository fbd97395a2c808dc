package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmaggi/voiceloop/internal/telemetry"
)

// PostgresStore persists session summaries in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_summaries (
			session_id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL DEFAULT '',
			job_id TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			shutdown_reason TEXT NOT NULL,
			cost_total DOUBLE PRECISION NOT NULL,
			summary JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_summaries_ended ON session_summaries (ended_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sum telemetry.Summary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_summaries (session_id, room_id, job_id, started_at, ended_at, shutdown_reason, cost_total, summary)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			shutdown_reason = EXCLUDED.shutdown_reason,
			cost_total = EXCLUDED.cost_total,
			summary = EXCLUDED.summary`,
		sum.SessionID,
		sum.RoomID,
		sum.JobID,
		sum.StartedAt,
		sum.EndedAt,
		sum.ShutdownReason,
		sum.CostTotal,
		payload,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, sessionID string) (telemetry.Summary, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM session_summaries WHERE session_id=$1`,
		sessionID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return telemetry.Summary{}, false, nil
	}
	if err != nil {
		return telemetry.Summary{}, false, fmt.Errorf("query summary: %w", err)
	}

	var sum telemetry.Summary
	if err := json.Unmarshal(payload, &sum); err != nil {
		return telemetry.Summary{}, false, fmt.Errorf("decode summary: %w", err)
	}
	return sum, true, nil
}

func (s *PostgresStore) RecentSummaries(ctx context.Context, limit int) ([]telemetry.Summary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT summary FROM session_summaries ORDER BY ended_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent summaries: %w", err)
	}
	defer rows.Close()

	items := make([]telemetry.Summary, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		var sum telemetry.Summary
		if err := json.Unmarshal(payload, &sum); err != nil {
			return nil, fmt.Errorf("decode summary row: %w", err)
		}
		items = append(items, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
