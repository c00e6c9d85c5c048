package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"forgeflow.app/engine/common/id"
	"forgeflow.app/engine/common/logger"
	"forgeflow.app/engine/internal/model"
	"forgeflow.app/engine/internal/tracker"
	"forgeflow.app/engine/internal/worker"
)

const maxCommentErrorLen = 1500

// AttemptResult records how one item attempt ended. State is always a
// terminal state; Failure is FailureNone only for completed items.
type AttemptResult struct {
	ID       int64
	State    model.ItemState
	Failure  model.FailureKind
	Outcome  *model.Outcome
	Change   *model.ChangeRequest
	Error    *string
	Duration time.Duration
}

// Driver runs a single item through its lifecycle: claim it, process it,
// verify the resulting change, and either merge and close or park the item
// with a status label and an explanatory comment.
//
// An error return means the attempt was aborted mid-flight by an
// infrastructure failure. The in-progress label left on the item is the
// visible marker for such aborts; a human (or a later run) resumes from it.
type Driver struct {
	tracker tracker.Tracker
	checks  *CheckPoller
}

func NewDriver(tr tracker.Tracker, checks *CheckPoller) *Driver {
	return &Driver{tracker: tr, checks: checks}
}

func (d *Driver) RunItem(ctx context.Context, item *model.WorkItem, route model.RouteKey, proc worker.Processor) (*AttemptResult, error) {
	sc := logger.StartSpan(ctx, "engine.run_item")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		ItemID:    logger.Ptr(item.ID),
		Worker:    logger.Ptr(string(route)),
		Component: "engine.driver",
	})
	started := time.Now()

	// Claim before any work so a concurrent cycle sees the item as taken.
	if err := d.tracker.SetLabel(ctx, item.ID, model.LabelInProgress); err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("claiming item %d: %w", item.ID, err)
	}
	item.State = model.StateInProgress

	slog.InfoContext(ctx, "processing item", "title", item.Title)

	outcome, err := proc.Process(ctx, item)
	if err != nil || outcome == nil || !outcome.Success {
		msg := "worker reported failure"
		if err != nil {
			msg = err.Error()
		} else if outcome != nil && outcome.Error != nil {
			msg = *outcome.Error
		}
		res := d.newResult(item, model.StateBlocked, model.FailureWorker, started)
		res.Outcome = outcome
		res.Error = logger.Ptr(msg)
		comment := fmt.Sprintf(
			"Automation could not implement this item: %s\n\nThe item is marked blocked; please review and provide guidance.",
			logger.Truncate(msg, maxCommentErrorLen))
		if terr := d.park(ctx, item, model.LabelBlocked, comment); terr != nil {
			return nil, terr
		}
		return res, nil
	}

	change, err := d.tracker.CreateChange(ctx, tracker.CreateChangeParams{
		Branch: BranchName(route, item.ID),
		Title:  changeTitle(route, item),
		Body:   changeBody(route, item, outcome),
	})
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("creating change for item %d: %w", item.ID, err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{ChangeID: logger.Ptr(change.ID)})
	slog.InfoContext(ctx, "change created", "branch", change.Branch)

	verdict, err := d.checks.Await(ctx, change.ID)
	if err != nil {
		return nil, fmt.Errorf("awaiting checks for change %d: %w", change.ID, err)
	}

	switch verdict {
	case model.VerdictFail:
		res := d.newResult(item, model.StateReviewNeeded, model.FailureChecks, started)
		res.Outcome, res.Change = outcome, change
		comment := fmt.Sprintf("Automated checks failed for %s. The change was left open; please review.", changeRef(change))
		if terr := d.park(ctx, item, model.LabelReviewNeeded, comment); terr != nil {
			return nil, terr
		}
		return res, nil
	case model.VerdictTimeout:
		res := d.newResult(item, model.StateReviewNeeded, model.FailureCheckTimeout, started)
		res.Outcome, res.Change = outcome, change
		comment := fmt.Sprintf("Checks did not finish within %s for %s. The change was left open; please review.",
			d.checks.timeout, changeRef(change))
		if terr := d.park(ctx, item, model.LabelReviewNeeded, comment); terr != nil {
			return nil, terr
		}
		return res, nil
	}

	// Re-read the change right before merging; mergeability can flip while
	// checks run.
	change, err = d.tracker.GetChange(ctx, change.ID)
	if err != nil {
		return nil, fmt.Errorf("refreshing change %d: %w", change.ID, err)
	}
	if !change.Mergeable || change.Unstable {
		res := d.newResult(item, model.StateReviewNeeded, model.FailureMergeUnsafe, started)
		res.Outcome, res.Change = outcome, change
		comment := fmt.Sprintf("%s passed checks but is not safe to merge (conflicts or unstable state). It was left open for manual resolution.", changeRef(change))
		if terr := d.park(ctx, item, model.LabelReviewNeeded, comment); terr != nil {
			return nil, terr
		}
		return res, nil
	}

	if err := d.tracker.MergeChange(ctx, change.ID, changeTitle(route, item)); err != nil {
		res := d.newResult(item, model.StateReviewNeeded, model.FailureMergeUnsafe, started)
		res.Outcome, res.Change = outcome, change
		res.Error = logger.Ptr(err.Error())
		comment := fmt.Sprintf("Merging %s failed: %s\n\nThe change was left open for manual resolution.",
			changeRef(change), logger.Truncate(err.Error(), maxCommentErrorLen))
		if terr := d.park(ctx, item, model.LabelReviewNeeded, comment); terr != nil {
			return nil, terr
		}
		return res, nil
	}

	closing := fmt.Sprintf("Resolved by %s (branch %s), implemented by the %s worker with %d artifacts.",
		changeRef(change), change.Branch, route, len(outcome.Artifacts))
	if err := d.tracker.AddComment(ctx, item.ID, closing); err != nil {
		slog.WarnContext(ctx, "failed to add closing comment", "error", err)
	}
	if err := d.tracker.CloseItem(ctx, item.ID); err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("closing item %d: %w", item.ID, err)
	}

	res := d.newResult(item, model.StateCompleted, model.FailureNone, started)
	res.Outcome, res.Change = outcome, change
	slog.InfoContext(ctx, "item completed", "duration", res.Duration)
	return res, nil
}

// park moves an item out of in-progress into a terminal status label and
// leaves an explanatory comment.
func (d *Driver) park(ctx context.Context, item *model.WorkItem, label, comment string) error {
	if err := d.tracker.ReplaceLabel(ctx, item.ID, model.LabelInProgress, label); err != nil {
		return fmt.Errorf("labeling item %d %s: %w", item.ID, label, err)
	}
	if err := d.tracker.AddComment(ctx, item.ID, comment); err != nil {
		slog.WarnContext(ctx, "failed to add status comment", "error", err)
	}
	return nil
}

func (d *Driver) newResult(item *model.WorkItem, state model.ItemState, failure model.FailureKind, started time.Time) *AttemptResult {
	item.State = state
	return &AttemptResult{
		ID:       id.New(),
		State:    state,
		Failure:  failure,
		Duration: time.Since(started),
	}
}

// BranchName is the branch a change for the item is created on.
func BranchName(route model.RouteKey, itemID int64) string {
	return fmt.Sprintf("ai/%s/item-%d", route, itemID)
}

func changeTitle(route model.RouteKey, item *model.WorkItem) string {
	return fmt.Sprintf("[%s] Resolve item #%d: %s", strings.ToUpper(string(route)), item.ID, item.Title)
}

func changeBody(route model.RouteKey, item *model.WorkItem, outcome *model.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated change for #%d.\n\n", item.ID)
	fmt.Fprintf(&b, "- Worker: %s\n", route)
	fmt.Fprintf(&b, "- Artifacts: %d\n", len(outcome.Artifacts))
	fmt.Fprintf(&b, "- Processing time: %s\n", outcome.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "\nCloses #%d\n", item.ID)
	return b.String()
}

func changeRef(change *model.ChangeRequest) string {
	if change.WebURL != nil {
		return *change.WebURL
	}
	return fmt.Sprintf("change !%d", change.ID)
}
