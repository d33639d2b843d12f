// Package events publishes generation jobs for the external render worker.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GenerateSongEvent is the event name the render worker subscribes to.
const GenerateSongEvent = "generate-song-event"

// DefaultStreamMaxLen is the approximate trim length for the generation stream.
const DefaultStreamMaxLen = 100000

// GenerationJobTrigger asks the worker to render one song. It is not persisted here.
type GenerationJobTrigger struct {
	SongID string `json:"songId"`
	UserID string `json:"userId"`
}

// Dispatcher publishes job triggers. Delivery is at-least-once; consumers dedupe on SongID.
type Dispatcher interface {
	Publish(ctx context.Context, trigger GenerationJobTrigger) error
}

// streamAdder is the slice of the go-redis client the dispatcher needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamDispatcher appends triggers to a Redis stream.
type RedisStreamDispatcher struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisStreamDispatcher creates a dispatcher writing to stream. maxLen <= 0 disables trimming.
func NewRedisStreamDispatcher(client *redis.Client, stream string, maxLen int64) *RedisStreamDispatcher {
	return &RedisStreamDispatcher{client: client, stream: stream, maxLen: maxLen}
}

// Publish appends one entry {name, songId, userId, sentAt} to the stream.
func (d *RedisStreamDispatcher) Publish(ctx context.Context, trigger GenerationJobTrigger) error {
	if trigger.SongID == "" || trigger.UserID == "" {
		return fmt.Errorf("trigger requires songId and userId")
	}

	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			"name":   GenerateSongEvent,
			"songId": trigger.SongID,
			"userId": trigger.UserID,
			"sentAt": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}

	if err := d.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s for song %s: %w", GenerateSongEvent, trigger.SongID, err)
	}
	return nil
}
