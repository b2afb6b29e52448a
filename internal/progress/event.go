package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageSourceState Stage = "SOURCE_STATE"
	StageChunkDone   Stage = "CHUNK_DONE"
	StageSourceDone  Stage = "SOURCE_DONE"
	StageSourceError Stage = "SOURCE_ERROR"
)

// Counts carries record outcome counters. On CHUNK_DONE they are deltas; on
// SOURCE_* and RUN_* events they are totals.
type Counts struct {
	Committed         int64 `json:"committed"`
	Rejected          int64 `json:"rejected"`
	FallbackCommitted int64 `json:"fallback_committed"`
	Failed            int64 `json:"failed"`
}

// Event captures one milestone of an import run.
type Event struct {
	// RunID uniquely identifies the import run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Source names the importer; empty for RUN_* events.
	Source string
	// State is the importer state after a SOURCE_STATE transition.
	State string
	// Label identifies the record group of a chunk (e.g. "quran.verses").
	Label string
	// Chunk is the 1-based chunk index; Chunks the total for the label.
	Chunk  int
	Chunks int
	// Records is the chunk size.
	Records int
	// Processed is the running processed counter of the source.
	Processed int64
	Counts    Counts
	// Sources lists the planned sources on RUN_START.
	Sources []string
	// Dur captures elapsed time for SOURCE_* and RUN_* completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSourceState:
		if e.Source == "" || e.State == "" {
			return errors.New("source state requires source and state")
		}
	case StageChunkDone:
		if e.Source == "" || e.Label == "" {
			return errors.New("chunk done requires source and label")
		}
	case StageSourceDone, StageSourceError:
		if e.Source == "" {
			return fmt.Errorf("%s requires source", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

// Terminal reports whether the event closes a source or a run.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageSourceDone, StageSourceError, StageRunDone, StageRunError:
		return true
	}
	return false
}

// RunUUID converts the stored RunID into a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes converts a uuid.UUID into the byte array stored on events.
func UUIDToBytes(id uuid.UUID) [16]byte {
	return [16]byte(id)
}

// ParseRunID parses a textual run id into its byte form.
func ParseRunID(runID string) ([16]byte, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	return UUIDToBytes(id), nil
}
