package worker

import (
	"context"

	"forgeflow.app/engine/internal/model"
)

// Processor is the opaque capability each routing key maps to. The engine
// drives the lifecycle around it and never looks inside the attempt.
type Processor interface {
	Process(ctx context.Context, item *model.WorkItem) (*model.Outcome, error)
}
