// Package sqlite is a SQLite-backed usage ledger.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/reasoning-relay/internal/usage"
)

// Store is a SQLite implementation of usage.Ledger.
type Store struct {
	db *sql.DB
}

var _ usage.Ledger = (*Store)(nil)

// New opens (creating if needed) the ledger at dsn.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			mode TEXT NOT NULL,
			streaming INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			reasoning_model TEXT,
			synthesis_model TEXT,
			reasoning_input_tokens INTEGER NOT NULL DEFAULT 0,
			reasoning_output_tokens INTEGER NOT NULL DEFAULT 0,
			reasoning_cached_tokens INTEGER NOT NULL DEFAULT 0,
			reasoning_tokens INTEGER NOT NULL DEFAULT 0,
			synthesis_input_tokens INTEGER NOT NULL DEFAULT 0,
			synthesis_output_tokens INTEGER NOT NULL DEFAULT 0,
			synthesis_cache_write_tokens INTEGER NOT NULL DEFAULT 0,
			synthesis_cache_read_tokens INTEGER NOT NULL DEFAULT 0,
			usage_estimated INTEGER NOT NULL DEFAULT 0,
			reasoning_cost REAL NOT NULL DEFAULT 0,
			synthesis_cost REAL NOT NULL DEFAULT 0,
			total_cost REAL NOT NULL DEFAULT 0,
			error_type TEXT,
			duration_ns INTEGER,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_status ON turns(status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) Record(ctx context.Context, r *usage.Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	query := `INSERT INTO turns (
		id, request_id, mode, streaming, status, reasoning_model, synthesis_model,
		reasoning_input_tokens, reasoning_output_tokens, reasoning_cached_tokens, reasoning_tokens,
		synthesis_input_tokens, synthesis_output_tokens, synthesis_cache_write_tokens, synthesis_cache_read_tokens,
		usage_estimated, reasoning_cost, synthesis_cost, total_cost, error_type, duration_ns, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.RequestID, r.Mode, boolToInt(r.Streaming), r.Status, r.ReasoningModel, r.SynthesisModel,
		r.Reasoning.InputTokens, r.Reasoning.OutputTokens, r.Reasoning.CachedTokens, r.Reasoning.ReasoningTokens,
		r.Synthesis.InputTokens, r.Synthesis.OutputTokens, r.Synthesis.CacheWriteTokens, r.Synthesis.CacheReadTokens,
		boolToInt(r.UsageEstimated), r.Cost.Reasoning, r.Cost.Synthesis, r.Cost.Total,
		r.ErrorType, r.Duration.Nanoseconds(), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, limit int) ([]*usage.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT
		id, request_id, mode, streaming, status, reasoning_model, synthesis_model,
		reasoning_input_tokens, reasoning_output_tokens, reasoning_cached_tokens, reasoning_tokens,
		synthesis_input_tokens, synthesis_output_tokens, synthesis_cache_write_tokens, synthesis_cache_read_tokens,
		usage_estimated, reasoning_cost, synthesis_cost, total_cost, error_type, duration_ns, created_at
	FROM turns ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var out []*usage.Record
	for rows.Next() {
		var (
			r                    usage.Record
			requestID, errorType sql.NullString
			rModel, sModel       sql.NullString
			streaming, estimated int
			durationNS           sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID, &requestID, &r.Mode, &streaming, &r.Status, &rModel, &sModel,
			&r.Reasoning.InputTokens, &r.Reasoning.OutputTokens, &r.Reasoning.CachedTokens, &r.Reasoning.ReasoningTokens,
			&r.Synthesis.InputTokens, &r.Synthesis.OutputTokens, &r.Synthesis.CacheWriteTokens, &r.Synthesis.CacheReadTokens,
			&estimated, &r.Cost.Reasoning, &r.Cost.Synthesis, &r.Cost.Total, &errorType, &durationNS, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		r.RequestID = requestID.String
		r.ErrorType = errorType.String
		r.ReasoningModel = rModel.String
		r.SynthesisModel = sModel.String
		r.Streaming = streaming != 0
		r.UsageEstimated = estimated != 0
		r.Duration = time.Duration(durationNS.Int64)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) Totals(ctx context.Context) (*usage.Totals, error) {
	query := `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(reasoning_input_tokens + synthesis_input_tokens), 0),
		COALESCE(SUM(reasoning_output_tokens + synthesis_output_tokens), 0),
		COALESCE(SUM(total_cost), 0)
	FROM turns`

	t := &usage.Totals{}
	err := s.db.QueryRowContext(ctx, query, usage.StatusFailed).Scan(
		&t.Turns, &t.FailedTurns, &t.PromptTokens, &t.CompletionTokens, &t.CostUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to total turns: %w", err)
	}
	return t, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
