package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/dataset-importer/internal/store"
)

type queryCloser interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements the store.RunRepository interface using Postgres.
type RunStore struct {
	pool queryCloser
}

// NewRunStore constructs a RunStore from an existing pool (a *pgxpool.Pool or a
// pgxmock pool in tests).
func NewRunStore(pool queryCloser) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertRunStart inserts or refreshes a running import run.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO import_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE import_runs.status <> EXCLUDED.status;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE import_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// UpsertSourceStats adds counter deltas for one source of a run.
func (s *RunStore) UpsertSourceStats(
	ctx context.Context,
	runID uuid.UUID,
	source string,
	delta store.SourceDelta,
	at time.Time,
) error {
	query := `
		INSERT INTO import_run_sources (
			run_id, source, state, processed, committed, rejected,
			fallback_committed, failed, last_update
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, source) DO UPDATE SET
			state = COALESCE(NULLIF(EXCLUDED.state, ''), import_run_sources.state),
			processed = import_run_sources.processed + EXCLUDED.processed,
			committed = import_run_sources.committed + EXCLUDED.committed,
			rejected = import_run_sources.rejected + EXCLUDED.rejected,
			fallback_committed = import_run_sources.fallback_committed + EXCLUDED.fallback_committed,
			failed = import_run_sources.failed + EXCLUDED.failed,
			last_update = GREATEST(import_run_sources.last_update, EXCLUDED.last_update);
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		runID,
		source,
		delta.State,
		delta.Processed,
		delta.Committed,
		delta.Rejected,
		delta.FallbackCommitted,
		delta.Failed,
		at,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert source stats: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM import_runs
		WHERE id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs, newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM import_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunSources retrieves per-source statistics for a run.
func (s *RunStore) ListRunSources(ctx context.Context, runID uuid.UUID) ([]store.SourceStats, error) {
	query := `
		SELECT run_id, source, state, processed, committed, rejected, fallback_committed, failed, last_update
		FROM import_run_sources
		WHERE run_id = $1
		ORDER BY source;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run sources: %w", err)
	}
	defer rows.Close()

	var stats []store.SourceStats
	for rows.Next() {
		var stat store.SourceStats
		if err := rows.Scan(
			&stat.RunID,
			&stat.Source,
			&stat.State,
			&stat.Processed,
			&stat.Committed,
			&stat.Rejected,
			&stat.FallbackCommitted,
			&stat.Failed,
			&stat.LastUpdate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source stats: %w", err)
	}
	return stats, nil
}
