package batch

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Outcome classifies what happened to one record.
type Outcome int

const (
	// Committed records were written as part of a chunk.
	Committed Outcome = iota
	// RejectedInvalid records never reached the database.
	RejectedInvalid
	// FailedRetriedIndividually records were committed by the fallback path.
	FailedRetriedIndividually
	// FailedPermanently records failed on their own as well.
	FailedPermanently
	// MergedDuplicate records repeated an earlier natural key in the same
	// payload and were folded into its last occurrence.
	MergedDuplicate
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case RejectedInvalid:
		return "rejected"
	case FailedRetriedIndividually:
		return "fallback_committed"
	case FailedPermanently:
		return "failed"
	case MergedDuplicate:
		return "merged"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result tallies record outcomes.
type Result struct {
	Committed         int `json:"committed"`
	Rejected          int `json:"rejected"`
	FallbackCommitted int `json:"fallback_committed"`
	Failed            int `json:"failed"`
	Merged            int `json:"merged"`
}

// Add accumulates other into r.
func (r *Result) Add(other Result) {
	r.Committed += other.Committed
	r.Rejected += other.Rejected
	r.FallbackCommitted += other.FallbackCommitted
	r.Failed += other.Failed
	r.Merged += other.Merged
}

// Count increments the counter for outcome by n.
func (r *Result) Count(outcome Outcome, n int) {
	switch outcome {
	case Committed:
		r.Committed += n
	case RejectedInvalid:
		r.Rejected += n
	case FailedRetriedIndividually:
		r.FallbackCommitted += n
	case FailedPermanently:
		r.Failed += n
	case MergedDuplicate:
		r.Merged += n
	}
}

// Written is the number of records persisted by either path.
func (r Result) Written() int {
	return r.Committed + r.FallbackCommitted
}

// Total is the number of records accounted for.
func (r Result) Total() int {
	return r.Committed + r.Rejected + r.FallbackCommitted + r.Failed + r.Merged
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (r Result) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("committed", r.Committed)
	enc.AddInt("rejected", r.Rejected)
	enc.AddInt("fallback_committed", r.FallbackCommitted)
	enc.AddInt("failed", r.Failed)
	if r.Merged > 0 {
		enc.AddInt("merged", r.Merged)
	}
	return nil
}
