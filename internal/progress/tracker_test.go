package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTrackerFoldsRun(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(2)
	id := uuid.New()
	runID := UUIDToBytes(id)
	now := time.Now().UTC()

	require.NoError(t, tracker.Consume(context.Background(), []Event{
		{RunID: runID, TS: now, Stage: StageRunStart, Sources: []string{"quran", "hadith"}},
		{RunID: runID, TS: now, Stage: StageSourceState, Source: "quran", State: "chunk_upserting"},
		{RunID: runID, TS: now, Stage: StageChunkDone, Source: "quran", Label: "quran.verses", Chunk: 1, Chunks: 3, Processed: 200, Counts: Counts{Committed: 200}},
		{RunID: runID, TS: now, Stage: StageChunkDone, Source: "quran", Label: "quran.verses", Chunk: 2, Chunks: 3, Processed: 400, Counts: Counts{Committed: 200}},
	}))

	snap, ok := tracker.Latest()
	require.True(t, ok)
	require.Equal(t, id, snap.RunID)
	require.Equal(t, "running", snap.Status)
	require.Len(t, snap.Sources, 2)
	require.Equal(t, "quran", snap.Sources[0].Source)
	require.Equal(t, "chunk_upserting", snap.Sources[0].State)
	require.Equal(t, 2, snap.Sources[0].Chunk)
	require.Equal(t, int64(400), snap.Sources[0].Counts.Committed)
	require.Equal(t, "pending", snap.Sources[1].State)

	require.NoError(t, tracker.Consume(context.Background(), []Event{
		{RunID: runID, TS: now, Stage: StageSourceDone, Source: "quran", State: "completed", Processed: 500, Counts: Counts{Committed: 490, Failed: 10}},
		{RunID: runID, TS: now, Stage: StageSourceError, Source: "hadith", State: "failed", Note: "download failed"},
		{RunID: runID, TS: now, Stage: StageRunError, Counts: Counts{Committed: 490, Failed: 10}, Note: "hadith: download failed"},
	}))

	snap, ok = tracker.Run(id)
	require.True(t, ok)
	require.Equal(t, "error", snap.Status)
	require.NotNil(t, snap.Finished)
	require.Equal(t, "completed", snap.Sources[0].State)
	require.Equal(t, Counts{Committed: 490, Failed: 10}, snap.Sources[0].Counts)
	require.Equal(t, "download failed", snap.Sources[1].Error)
}

func TestTrackerEvictsOldRuns(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(1)
	first, second := uuid.New(), uuid.New()
	now := time.Now()
	require.NoError(t, tracker.Consume(context.Background(), []Event{
		{RunID: UUIDToBytes(first), TS: now, Stage: StageRunStart},
		{RunID: UUIDToBytes(second), TS: now, Stage: StageRunStart},
	}))

	_, ok := tracker.Run(first)
	require.False(t, ok)
	snap, ok := tracker.Latest()
	require.True(t, ok)
	require.Equal(t, second, snap.RunID)
}

func TestTrackerEmpty(t *testing.T) {
	t.Parallel()

	_, ok := NewTracker(0).Latest()
	require.False(t, ok)
}
