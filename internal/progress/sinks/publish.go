package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/dataset-importer/internal/progress"
	"github.com/JakeFAU/dataset-importer/internal/publisher"
)

// Notification is the message published when a source or run finishes.
type Notification struct {
	RunID      string          `json:"run_id"`
	Event      string          `json:"event"`
	Source     string          `json:"source,omitempty"`
	State      string          `json:"state,omitempty"`
	Counts     progress.Counts `json:"counts"`
	Processed  int64           `json:"processed,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}

// Attributes implements publisher.Attributed so subscribers can filter
// without decoding the body.
func (n Notification) Attributes() map[string]string {
	attrs := map[string]string{"run_id": n.RunID, "event": n.Event}
	if n.Source != "" {
		attrs["source"] = n.Source
	}
	return attrs
}

// PublishSink publishes a Notification for every source and run completion.
// Chunk and state events are not published.
type PublishSink struct {
	publisher publisher.Publisher
	topic     string
}

// NewPublishSink publishes to topic through p.
func NewPublishSink(p publisher.Publisher, topic string) *PublishSink {
	return &PublishSink{publisher: p, topic: topic}
}

// Name implements progress.Named.
func (s *PublishSink) Name() string { return "publish" }

// Consume publishes terminal events; every failure is reported.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		if _, err := s.publisher.Publish(ctx, s.topic, notificationOf(evt)); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", evt.Stage, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the publisher is owned by the caller.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

func notificationOf(evt progress.Event) Notification {
	return Notification{
		RunID:      evt.RunUUID().String(),
		Event:      string(evt.Stage),
		Source:     evt.Source,
		State:      evt.State,
		Counts:     evt.Counts,
		Processed:  evt.Processed,
		DurationMs: evt.Dur.Milliseconds(),
		Error:      evt.Note,
		At:         evt.TS,
	}
}
