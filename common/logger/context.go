package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so every log line inside
// an item attempt carries the item, worker and cycle without manual plumbing.
type LogFields struct {
	ItemID    *int64  // tracker item id
	CycleID   *int64  // scheduling cycle id
	Iteration *int    // cycle iteration number
	Worker    *string // routing key of the owning worker
	ChangeID  *int64  // change request id, once one exists
	Component string  // component name, e.g. "engine.scheduler"
}

// WithLogFields enriches context with structured log fields. Multiple calls
// merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context, or empty LogFields.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ItemID != nil {
		result.ItemID = next.ItemID
	}
	if next.CycleID != nil {
		result.CycleID = next.CycleID
	}
	if next.Iteration != nil {
		result.Iteration = next.Iteration
	}
	if next.Worker != nil {
		result.Worker = next.Worker
	}
	if next.ChangeID != nil {
		result.ChangeID = next.ChangeID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value, for inline LogFields.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Used when logging worker error output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
