package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the import_runs status column.
type RunStatus string

// Import run statuses persisted in import_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models the import_runs table.
type Run struct {
	ID           uuid.UUID
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus
	ErrorMessage *string
}

// SourceStats aggregates one source within a run.
type SourceStats struct {
	RunID             uuid.UUID
	Source            string
	State             string
	Processed         int64
	Committed         int64
	Rejected          int64
	FallbackCommitted int64
	Failed            int64
	LastUpdate        time.Time
}

// SourceDelta carries counter increments for one source.
type SourceDelta struct {
	State             string
	Processed         int64
	Committed         int64
	Rejected          int64
	FallbackCommitted int64
	Failed            int64
}

// IsZero reports whether the delta changes nothing.
func (d SourceDelta) IsZero() bool {
	return d == SourceDelta{}
}

// RunRepository persists import run progress.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) a running run.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// UpsertSourceStats applies counter deltas per (run, source). A non-empty
	// State replaces the stored state.
	UpsertSourceStats(ctx context.Context, runID uuid.UUID, source string, delta SourceDelta, at time.Time) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunSources returns per-source stats for one run.
	ListRunSources(ctx context.Context, runID uuid.UUID) ([]SourceStats, error)
}
