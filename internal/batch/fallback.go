package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/metrics"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

// ReprocessIndividually writes each record of chunk in its own transaction.
// Failures are reported as RecordWriteError and processing continues; there is
// no further retry. A connection failure stops the loop with a fatal
// ChunkTransactionError.
func ReprocessIndividually[T any](ctx context.Context, p *Processor, label string, chunk []T, single SingleFunc[T]) (Result, error) {
	var res Result
	for i, record := range chunk {
		err := p.runner.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			return single(ctx, tx, record)
		})
		if err == nil {
			res.FallbackCommitted++
			metrics.ObserveRecords(label, FailedRetriedIndividually.String(), 1)
			continue
		}

		id := recordID(record, i)
		if store.IsConnectionError(err) {
			p.reporter.Error("record failed on connection; aborting fallback",
				zap.String("label", label),
				zap.String("record_id", id),
				zap.Error(err),
			)
			return res, &ChunkTransactionError{Label: label, Index: i, Size: 1, Fatal: true, Err: err}
		}

		res.Failed++
		metrics.ObserveRecords(label, FailedPermanently.String(), 1)
		writeErr := &RecordWriteError{Label: label, RecordID: id, Err: err}
		p.reporter.Error("record write failed",
			zap.String("label", label),
			zap.String("record_id", id),
			zap.Error(writeErr),
		)
		if p.deadLetter != nil {
			if dlErr := p.deadLetter.Record(label, id, record, err); dlErr != nil {
				p.reporter.Warn("dead letter write failed",
					zap.String("label", label),
					zap.String("record_id", id),
					zap.Error(dlErr),
				)
			}
		}
	}
	return res, nil
}

func recordID(record any, index int) string {
	if ider, ok := record.(Identifier); ok {
		return ider.RecordID()
	}
	return fmt.Sprintf("#%d", index)
}
