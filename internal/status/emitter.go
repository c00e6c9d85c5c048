// Package status publishes engine progress events to a Redis stream so
// external dashboards can follow cycles without talking to the tracker.
package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const streamMaxLen = 2000

// Emitter writes status events to a capped Redis stream. Emission is
// best-effort: a failed write is logged and dropped, never surfaced to the
// scheduling path.
type Emitter struct {
	client *redis.Client
	stream string
}

func NewEmitter(client *redis.Client, stream string) *Emitter {
	return &Emitter{client: client, stream: stream}
}

func (e *Emitter) Emit(ctx context.Context, level, step, message string, fields map[string]any) {
	if e == nil || e.client == nil {
		return
	}
	values := map[string]any{
		"level":   level,
		"step":    step,
		"message": message,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	for key, value := range fields {
		values[key] = value
	}
	if err := e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		slog.WarnContext(ctx, "failed to emit status event", "step", step, "error", err)
	}
}
