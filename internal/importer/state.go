package importer

import (
	"fmt"
	"time"
)

// State is the lifecycle position of one importer.
type State int32

// Importer states, in the order a successful import visits them.
const (
	Idle State = iota
	Downloading
	Parsing
	Transforming
	ChunkUpserting
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case Parsing:
		return "parsing"
	case Transforming:
		return "transforming"
	case ChunkUpserting:
		return "chunk_upserting"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// canTransition allows forward steps along the happy path, a restart from a
// terminal state, and Failed from anywhere.
func canTransition(from, to State) bool {
	switch {
	case to == Failed:
		return from != Failed
	case from.Terminal():
		return to == Downloading
	default:
		return to == from+1
	}
}

// Transition describes a state change of one source.
type Transition struct {
	Source string
	From   State
	To     State
	Err    error
	At     time.Time
}
