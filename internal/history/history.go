// Package history persists execution outcomes to PostgreSQL. The store is
// optional: it only comes up when a DSN is configured, and automation runs
// fine without it.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can swap in pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS executions (
		id UUID PRIMARY KEY,
		platform_id TEXT NOT NULL,
		template_name TEXT NOT NULL,
		target_url TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL,
		actions_executed INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

const insertSQL = `
	INSERT INTO executions
		(id, platform_id, template_name, target_url, success, error_kind, duration_ms, actions_executed, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

const recentSQL = `
	SELECT id, platform_id, template_name, target_url, success, error_kind, duration_ms, actions_executed, created_at
	FROM executions
	ORDER BY created_at DESC
	LIMIT $1;
`

// Entry is one recorded execution.
type Entry struct {
	ID              string    `json:"id"`
	PlatformID      string    `json:"platformId"`
	TemplateName    string    `json:"templateName"`
	TargetURL       string    `json:"targetUrl"`
	Success         bool      `json:"success"`
	ErrorKind       string    `json:"errorKind,omitempty"`
	DurationMs      int64     `json:"durationMs"`
	ActionsExecuted int       `json:"actionsExecuted"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store records and lists execution history.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies connectivity and ensures the schema exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure executions table: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("history")}, nil
}

// Connect opens a pgx pool for the DSN and builds a Store on it. The
// returned closer releases the pool.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history pool: %w", err)
	}
	store, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// Record inserts one entry. A zero ID or CreatedAt is filled in.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, insertSQL,
		entry.ID, entry.PlatformID, entry.TemplateName, entry.TargetURL,
		entry.Success, entry.ErrorKind, entry.DurationMs, entry.ActionsExecuted, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	s.log.Debug("Execution recorded.",
		zap.String("platform", entry.PlatformID), zap.Bool("success", entry.Success))
	return nil
}

// RecordResult maps an execution result onto an Entry and records it.
func (s *Store) RecordResult(ctx context.Context, platformID, templateName, targetURL string, res *schemas.ExecutionResult) error {
	entry := Entry{
		PlatformID:      platformID,
		TemplateName:    templateName,
		TargetURL:       targetURL,
		Success:         res.Success,
		DurationMs:      res.DurationMs,
		ActionsExecuted: res.ActionsExecuted,
	}
	if res.Error != nil {
		entry.ErrorKind = string(res.Error.Kind)
	}
	return s.Record(ctx, entry)
}

// Recent lists the latest entries, newest first. limit <= 0 picks 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PlatformID, &e.TemplateName, &e.TargetURL,
			&e.Success, &e.ErrorKind, &e.DurationMs, &e.ActionsExecuted, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading executions: %w", err)
	}
	return entries, nil
}
