package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/progress"
)

// LogSink writes progress events as structured logs. Chunk events are logged
// at debug level since a large source emits thousands of them.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Name implements progress.Named.
func (s *LogSink) Name() string { return "log" }

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Source != "" {
			fields = append(fields, zap.String("source", evt.Source))
		}
		if evt.State != "" {
			fields = append(fields, zap.String("state", evt.State))
		}
		if evt.Label != "" {
			fields = append(fields,
				zap.String("label", evt.Label),
				zap.Int("chunk", evt.Chunk),
				zap.Int("chunks", evt.Chunks),
				zap.Int("records", evt.Records),
			)
		}
		if evt.Processed > 0 {
			fields = append(fields, zap.Int64("processed", evt.Processed))
		}
		if evt.Terminal() {
			fields = append(fields,
				zap.Int64("committed", evt.Counts.Committed),
				zap.Int64("rejected", evt.Counts.Rejected),
				zap.Int64("fallback_committed", evt.Counts.FallbackCommitted),
				zap.Int64("failed", evt.Counts.Failed),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageChunkDone:
			s.logger.Debug("progress event", fields...)
		case progress.StageSourceError, progress.StageRunError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
