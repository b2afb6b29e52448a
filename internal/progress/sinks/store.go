package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/progress"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

// StoreSink persists run progress via a store.RunRepository. Chunk deltas are
// collapsed per source within a batch to reduce write amplification; source
// completions reconcile the stored counters with the importer totals.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger

	mu        sync.Mutex
	reported  map[sourceKey]progress.Counts
	processed map[sourceKey]int64
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{
		repo:      repo,
		logger:    logger,
		reported:  make(map[sourceKey]progress.Counts),
		processed: make(map[sourceKey]int64),
	}
}

// Name implements progress.Named.
func (s *StoreSink) Name() string { return "store" }

// Consume applies the batch in order. Pending source deltas are written
// before a run is completed so the ledger never shows a finished run with
// stale counters.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make(map[sourceKey]*sourceDelta)
	var order []sourceKey

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageRunDone, progress.StageRunError:
			if err := s.flush(ctx, pending, order); err != nil {
				return err
			}
			pending = make(map[sourceKey]*sourceDelta)
			order = order[:0]
			if err := s.completeRun(ctx, runID, evt); err != nil {
				return err
			}
		default:
			key := sourceKey{runID: runID, source: evt.Source}
			delta := pending[key]
			if delta == nil {
				delta = &sourceDelta{}
				pending[key] = delta
				order = append(order, key)
			}
			s.accumulate(key, delta, evt)
		}
	}
	return s.flush(ctx, pending, order)
}

func (s *StoreSink) completeRun(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	var errMsg *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
		note := evt.Note
		errMsg = &note
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, errMsg); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *StoreSink) accumulate(key sourceKey, delta *sourceDelta, evt progress.Event) {
	if evt.TS.After(delta.at) {
		delta.at = evt.TS
	}
	switch evt.Stage {
	case progress.StageSourceState:
		delta.State = evt.State
	case progress.StageChunkDone:
		delta.Committed += evt.Counts.Committed
		delta.Processed += int64(evt.Records)
		reported := s.reported[key]
		reported.Committed += evt.Counts.Committed
		s.reported[key] = reported
		s.processed[key] += int64(evt.Records)
	case progress.StageSourceDone, progress.StageSourceError:
		if evt.State != "" {
			delta.State = evt.State
		}
		reported := s.reported[key]
		delta.Committed += evt.Counts.Committed - reported.Committed
		delta.Rejected += evt.Counts.Rejected - reported.Rejected
		delta.FallbackCommitted += evt.Counts.FallbackCommitted - reported.FallbackCommitted
		delta.Failed += evt.Counts.Failed - reported.Failed
		delta.Processed += evt.Processed - s.processed[key]
		delete(s.reported, key)
		delete(s.processed, key)
	}
}

func (s *StoreSink) flush(ctx context.Context, pending map[sourceKey]*sourceDelta, order []sourceKey) error {
	for _, key := range order {
		delta := pending[key]
		if delta.IsZero() {
			continue
		}
		if err := s.repo.UpsertSourceStats(ctx, key.runID, key.source, delta.SourceDelta, delta.at); err != nil {
			return fmt.Errorf("upsert source stats: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type sourceKey struct {
	runID  uuid.UUID
	source string
}

type sourceDelta struct {
	store.SourceDelta
	at time.Time
}
