package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/importer"
)

// Observer adapts importer lifecycle callbacks into Events on an Emitter.
// Chunk and state callbacks carry no run id, so the adapter remembers the id
// announced by RunStarted.
type Observer struct {
	emitter Emitter
	logger  *zap.Logger

	mu    sync.RWMutex
	runID [16]byte
}

var _ importer.Observer = (*Observer)(nil)

// NewObserver wraps emitter.
func NewObserver(emitter Emitter, logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{emitter: emitter, logger: logger}
}

// RunStarted records runID and emits RUN_START.
func (o *Observer) RunStarted(runID string, sources []string) {
	id, err := ParseRunID(runID)
	if err != nil {
		o.logger.Warn("progress disabled for run", zap.String("run_id", runID), zap.Error(err))
		return
	}
	o.mu.Lock()
	o.runID = id
	o.mu.Unlock()
	o.emit(Event{Stage: StageRunStart, Sources: append([]string(nil), sources...)})
}

// StateChanged emits SOURCE_STATE.
func (o *Observer) StateChanged(t importer.Transition) {
	evt := Event{
		TS:     t.At.UTC(),
		Stage:  StageSourceState,
		Source: t.Source,
		State:  t.To.String(),
	}
	if t.Err != nil {
		evt.Note = t.Err.Error()
	}
	o.emit(evt)
}

// ChunkDone emits CHUNK_DONE. A committed chunk counts its records as
// committed; a rolled-back chunk leaves the counts to the fallback totals
// reported on SOURCE_DONE.
func (o *Observer) ChunkDone(source string, r batch.ChunkReport) {
	evt := Event{
		Stage:     StageChunkDone,
		Source:    source,
		Label:     r.Label,
		Chunk:     r.Index + 1,
		Chunks:    r.Total,
		Records:   r.Size,
		Processed: r.Processed,
	}
	if r.Committed {
		evt.Counts.Committed = int64(r.Size)
	} else {
		evt.Note = "rolled back"
	}
	o.emit(evt)
}

// SourceFinished emits SOURCE_DONE or SOURCE_ERROR with the source totals.
func (o *Observer) SourceFinished(_ string, r importer.SourceReport) {
	evt := Event{
		Stage:     StageSourceDone,
		Source:    r.Source,
		State:     r.State,
		Processed: r.Processed,
		Counts:    countsOf(r.Result),
		Dur:       r.Elapsed,
	}
	if r.Err != nil {
		evt.Stage = StageSourceError
		evt.Note = r.Error
	}
	o.emit(evt)
}

// RunFinished emits RUN_DONE, or RUN_ERROR when any source failed.
func (o *Observer) RunFinished(_ string, s importer.Summary) {
	evt := Event{
		Stage:  StageRunDone,
		Counts: countsOf(s.Result),
		Dur:    s.Elapsed,
	}
	for _, src := range s.Sources {
		evt.Sources = append(evt.Sources, src.Source)
	}
	if s.Failed > 0 {
		evt.Stage = StageRunError
		for _, src := range s.Sources {
			if src.Error != "" {
				evt.Note = src.Source + ": " + src.Error
				break
			}
		}
	}
	o.emit(evt)
}

func (o *Observer) emit(evt Event) {
	if o == nil || o.emitter == nil {
		return
	}
	o.mu.RLock()
	evt.RunID = o.runID
	o.mu.RUnlock()
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	o.emitter.Emit(evt)
}

func countsOf(r batch.Result) Counts {
	return Counts{
		Committed:         int64(r.Committed),
		Rejected:          int64(r.Rejected),
		FallbackCommitted: int64(r.FallbackCommitted),
		Failed:            int64(r.Failed),
	}
}
