package engine

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"forgeflow.app/engine/internal/model"
)

var (
	depMarker = regexp.MustCompile(`(?i)\b(?:depends on|blocked by)\b`)
	depRef    = regexp.MustCompile(`#(\d+)`)
)

// ItemReader is the narrow tracker view the eligibility filter needs.
type ItemReader interface {
	GetItem(ctx context.Context, id int64) (*model.WorkItem, error)
}

// DependencyRefs extracts the item ids referenced by dependency markers in
// the body. Without a marker phrase the body is not scanned at all.
// Self-references are a data error in the item, not a dependency; they are
// dropped here.
func DependencyRefs(item *model.WorkItem) []int64 {
	if !depMarker.MatchString(item.Body) {
		return nil
	}

	var refs []int64
	for _, match := range depRef.FindAllStringSubmatch(item.Body, -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil || id == item.ID {
			continue
		}
		refs = append(refs, id)
	}
	return refs
}

// Ready reports whether all declared dependencies of the item are satisfied.
// A reference that cannot be resolved (missing item, transient fetch error)
// counts as satisfied: a single unresolvable reference must never wedge the
// queue. A resolved reference blocks the item until the referenced item is
// closed.
func Ready(ctx context.Context, item *model.WorkItem, reader ItemReader) bool {
	for _, ref := range DependencyRefs(item) {
		dep, err := reader.GetItem(ctx, ref)
		if err != nil {
			slog.DebugContext(ctx, "dependency reference unresolvable, treating as satisfied",
				"ref", ref,
				"error", err)
			continue
		}
		if !dep.Closed {
			slog.InfoContext(ctx, "item waiting on open dependency",
				"item_id", item.ID,
				"ref", ref)
			return false
		}
	}
	return true
}
