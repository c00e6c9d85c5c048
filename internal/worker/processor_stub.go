package worker

import (
	"context"
	"log/slog"
	"time"

	"forgeflow.app/engine/internal/model"
)

// StubProcessor is a no-op processor for testing and initial deployment.
// It reports success without producing artifacts, so the downstream
// lifecycle (change creation, verification, merge) can be exercised against
// a prepared branch.
type StubProcessor struct{}

func NewStubProcessor() *StubProcessor {
	return &StubProcessor{}
}

func (p *StubProcessor) Process(ctx context.Context, item *model.WorkItem) (*model.Outcome, error) {
	start := time.Now()

	slog.InfoContext(ctx, "stub processor: claiming item",
		"item_id", item.ID,
		"title", item.Title)

	return &model.Outcome{
		Success: true,
		Elapsed: time.Since(start),
	}, nil
}
