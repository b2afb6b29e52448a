package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dataset-importer/internal/store"
)

func TestRunStoreUpsertSourceStats(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	runID := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	at := time.Unix(1700000000, 0).UTC()
	delta := store.SourceDelta{State: "chunk_upserting", Processed: 200, Committed: 198, Rejected: 2}

	mock.ExpectExec("INSERT INTO import_run_sources").
		WithArgs(runID, "quran", "chunk_upserting", int64(200), int64(198), int64(2), int64(0), int64(0), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, runs.UpsertSourceStats(context.Background(), runID, "quran", delta, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	runID := uuid.New()
	mock.ExpectQuery("FROM import_runs").
		WithArgs(runID).
		WillReturnError(pgx.ErrNoRows)

	_, err = runs.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreStartAndComplete(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	runID := uuid.New()
	start := time.Unix(1700000000, 0).UTC()
	finish := start.Add(time.Minute)
	msg := "quran: download failed"

	mock.ExpectExec("INSERT INTO import_runs").
		WithArgs(runID, start, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE import_runs").
		WithArgs(finish, store.RunError, &msg, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, runs.UpsertRunStart(context.Background(), runID, start))
	require.NoError(t, runs.CompleteRun(context.Background(), runID, finish, store.RunError, &msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRunSources(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	runID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("FROM import_run_sources").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{
			"run_id", "source", "state", "processed", "committed",
			"rejected", "fallback_committed", "failed", "last_update",
		}).AddRow(runID, "hadith", "completed", int64(10), int64(9), int64(0), int64(1), int64(0), at))

	stats, err := runs.ListRunSources(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, "hadith", stats[0].Source)
	require.Equal(t, int64(1), stats[0].FallbackCommitted)
	require.NoError(t, mock.ExpectationsWereMet())
}
