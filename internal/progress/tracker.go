package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SourceSnapshot is the live view of one source.
type SourceSnapshot struct {
	Source    string        `json:"source"`
	State     string        `json:"state"`
	Label     string        `json:"label,omitempty"`
	Chunk     int           `json:"chunk,omitempty"`
	Chunks    int           `json:"chunks,omitempty"`
	Processed int64         `json:"processed"`
	Counts    Counts        `json:"counts"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
	Error     string        `json:"error,omitempty"`
	Updated   time.Time     `json:"updated"`
}

// RunSnapshot is the live view of one run.
type RunSnapshot struct {
	RunID    uuid.UUID        `json:"run_id"`
	Status   string           `json:"status"`
	Started  time.Time        `json:"started"`
	Finished *time.Time       `json:"finished,omitempty"`
	Counts   Counts           `json:"counts"`
	Sources  []SourceSnapshot `json:"sources"`
	Error    string           `json:"error,omitempty"`
}

// Tracker is an in-memory sink answering "what is the importer doing now".
// It keeps the most recent runs only.
type Tracker struct {
	mu     sync.RWMutex
	keep   int
	order  []uuid.UUID
	runs   map[uuid.UUID]*runState
	latest uuid.UUID
}

type runState struct {
	snap    RunSnapshot
	sources map[string]*SourceSnapshot
	names   []string
}

func (r *runState) source(name string, at time.Time) *SourceSnapshot {
	src := r.sources[name]
	if src == nil {
		src = &SourceSnapshot{Source: name, State: "pending", Updated: at}
		r.sources[name] = src
		r.names = append(r.names, name)
	}
	return src
}

// NewTracker retains up to keep runs (at least one).
func NewTracker(keep int) *Tracker {
	if keep <= 0 {
		keep = 1
	}
	return &Tracker{keep: keep, runs: make(map[uuid.UUID]*runState)}
}

// Name implements Named.
func (t *Tracker) Name() string { return "tracker" }

// Consume folds the batch into the snapshots.
func (t *Tracker) Consume(_ context.Context, batch []Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

// Close implements Sink.
func (t *Tracker) Close(context.Context) error { return nil }

func (t *Tracker) apply(evt Event) {
	id := evt.RunUUID()
	run := t.runs[id]
	if run == nil {
		run = &runState{
			snap:    RunSnapshot{RunID: id, Status: "running", Started: evt.TS},
			sources: make(map[string]*SourceSnapshot),
		}
		t.runs[id] = run
		t.order = append(t.order, id)
		t.latest = id
		t.evict()
	}

	switch evt.Stage {
	case StageRunStart:
		run.snap.Started = evt.TS
		for _, name := range evt.Sources {
			run.source(name, evt.TS)
		}
	case StageRunDone, StageRunError:
		finished := evt.TS
		run.snap.Finished = &finished
		run.snap.Counts = evt.Counts
		run.snap.Status = "success"
		if evt.Stage == StageRunError {
			run.snap.Status = "error"
			run.snap.Error = evt.Note
		}
	default:
		applySource(run.source(evt.Source, evt.TS), evt)
	}
}

func applySource(src *SourceSnapshot, evt Event) {
	src.Updated = evt.TS
	switch evt.Stage {
	case StageSourceState:
		src.State = evt.State
		if evt.Note != "" {
			src.Error = evt.Note
		}
	case StageChunkDone:
		src.Label = evt.Label
		src.Chunk = evt.Chunk
		src.Chunks = evt.Chunks
		src.Processed = evt.Processed
		src.Counts.Committed += evt.Counts.Committed
	case StageSourceDone, StageSourceError:
		if evt.State != "" {
			src.State = evt.State
		}
		src.Processed = evt.Processed
		src.Counts = evt.Counts
		src.Elapsed = evt.Dur
		src.Error = evt.Note
	}
}

func (t *Tracker) evict() {
	for len(t.order) > t.keep {
		delete(t.runs, t.order[0])
		t.order = t.order[1:]
	}
}

// Latest returns the most recently seen run.
func (t *Tracker) Latest() (RunSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot(t.latest)
}

// Run returns the snapshot for id.
func (t *Tracker) Run(id uuid.UUID) (RunSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot(id)
}

func (t *Tracker) snapshot(id uuid.UUID) (RunSnapshot, bool) {
	run, ok := t.runs[id]
	if !ok {
		return RunSnapshot{}, false
	}
	out := run.snap
	if out.Finished != nil {
		finished := *out.Finished
		out.Finished = &finished
	}
	out.Sources = make([]SourceSnapshot, 0, len(run.names))
	for _, name := range run.names {
		out.Sources = append(out.Sources, *run.sources[name])
	}
	return out, true
}
