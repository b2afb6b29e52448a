package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/dataset-importer/internal/progress"
)

// RedisClient is the subset of go-redis used by RedisSink.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink mirrors run snapshots into Redis:
//
//	SET  <prefix>:<run_id>:state <JSON> EX <ttl>  latest snapshot for polling
//	SET  <prefix>:latest <run_id> EX <ttl>
//	PUB  <prefix> <JSON>                          on source and run completion
//
// Chunk events only update the in-memory fold; Redis is written once per
// batch and run.
type RedisSink struct {
	client  RedisClient
	prefix  string
	ttl     time.Duration
	tracker *progress.Tracker
}

// NewRedisSink builds a sink writing under prefix.
func NewRedisSink(client RedisClient, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "importer:run"
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl, tracker: progress.NewTracker(4)}
}

// Name implements progress.Named.
func (s *RedisSink) Name() string { return "redis" }

// StateKey returns the snapshot key of runID.
func (s *RedisSink) StateKey(runID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:state", s.prefix, runID)
}

// Consume folds the batch and writes the snapshot of every run it touched.
func (s *RedisSink) Consume(ctx context.Context, batch []progress.Event) error {
	if len(batch) == 0 {
		return nil
	}
	if err := s.tracker.Consume(ctx, batch); err != nil {
		return err
	}
	touched := make(map[uuid.UUID]bool)
	var order []uuid.UUID
	for _, evt := range batch {
		id := evt.RunUUID()
		if _, seen := touched[id]; !seen {
			touched[id] = false
			order = append(order, id)
		}
		if evt.Terminal() {
			touched[id] = true
		}
	}
	for _, id := range order {
		if err := s.write(ctx, id, touched[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisSink) write(ctx context.Context, id uuid.UUID, publish bool) error {
	snap, ok := s.tracker.Run(id)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal run snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.StateKey(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+":latest", id.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if !publish {
		return nil
	}
	if err := s.client.Publish(ctx, s.prefix, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Close implements the Sink interface; the client is owned by the caller.
func (s *RedisSink) Close(context.Context) error {
	return nil
}
