package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"forgeflow.app/engine/common/id"
	"forgeflow.app/engine/common/logger"
	"forgeflow.app/engine/internal/model"
	"forgeflow.app/engine/internal/tracker"
	"forgeflow.app/engine/internal/worker"
)

// StatusEmitter publishes progress events to an external status stream.
// Implementations must be safe for concurrent use.
type StatusEmitter interface {
	Emit(ctx context.Context, level, step, message string, fields map[string]any)
}

// AuditStore persists attempt and cycle records. Write-through only.
type AuditStore interface {
	RecordAttempt(ctx context.Context, rec *model.AttemptRecord) error
	RecordCycle(ctx context.Context, report *model.CycleReport) error
}

type Params struct {
	Tracker  tracker.Tracker
	Registry *Registry
	Router   *Router
	Driver   *Driver
	Emitter  StatusEmitter // optional
	Audit    AuditStore    // optional
	Quota    int           // max items per worker per cycle
	Pacing   time.Duration // delay between items within a worker
}

// Scheduler runs one cycle at a time: snapshot the open items, partition
// them across the registered workers, and let each worker drain its share
// concurrently. Workers share nothing but the tracker; the snapshot slices
// are disjoint and the report is guarded by a mutex.
type Scheduler struct {
	tracker  tracker.Tracker
	registry *Registry
	router   *Router
	driver   *Driver
	emitter  StatusEmitter
	audit    AuditStore
	quota    int
	pacing   time.Duration
}

func New(p Params) *Scheduler {
	return &Scheduler{
		tracker:  p.Tracker,
		registry: p.Registry,
		router:   p.Router,
		driver:   p.Driver,
		emitter:  p.Emitter,
		audit:    p.Audit,
		quota:    p.Quota,
		pacing:   p.Pacing,
	}
}

// RunCycle executes one scheduling cycle and returns its report. An error
// is returned only when the open-item snapshot cannot be fetched; the
// caller skips the cycle and retries on the next interval.
func (s *Scheduler) RunCycle(ctx context.Context, iteration int) (*model.CycleReport, error) {
	sc := logger.StartSpan(ctx, "engine.run_cycle")
	defer sc.End()
	ctx = sc.Context()

	cycleID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CycleID:   logger.Ptr(cycleID),
		Iteration: logger.Ptr(iteration),
		Component: "engine.scheduler",
	})

	report := &model.CycleReport{
		ID:        cycleID,
		Iteration: iteration,
		StartedAt: time.Now(),
	}

	items, err := s.tracker.ListOpenItems(ctx)
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("listing open items: %w", err)
	}
	slog.InfoContext(ctx, "cycle started", "open_items", len(items))
	s.emit(ctx, "info", "cycle_started", "scheduling cycle started", map[string]any{
		"iteration":  iteration,
		"open_items": len(items),
	})

	// Items already claimed or parked by a previous cycle keep their status
	// label as state; only backlog items are scheduled.
	assigned := make(map[model.RouteKey][]model.WorkItem)
	for _, item := range items {
		if item.State != model.StateBacklog {
			continue
		}
		route := s.router.Route(&item)
		item.Route = &route
		assigned[route] = append(assigned[route], item)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, route := range s.registry.Routes() {
		proc, _ := s.registry.Lookup(route)
		queue := assigned[route]

		wg.Add(1)
		go func(route model.RouteKey, queue []model.WorkItem) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "worker panicked", "worker", route, "panic", r)
					mu.Lock()
					report.WorkerErrors++
					mu.Unlock()
				}
			}()
			s.runWorker(ctx, route, queue, proc, report, &mu)
		}(route, queue)
	}
	wg.Wait()

	report.Elapsed = time.Since(report.StartedAt)
	if s.audit != nil {
		if err := s.audit.RecordCycle(ctx, report); err != nil {
			slog.WarnContext(ctx, "failed to record cycle", "error", err)
		}
	}
	s.emit(ctx, "info", "cycle_finished", "scheduling cycle finished", map[string]any{
		"iteration":     iteration,
		"processed":     report.Processed(),
		"completed":     report.Completed,
		"blocked":       report.Blocked,
		"review_needed": report.ReviewNeeded,
		"skipped":       report.Skipped,
		"worker_errors": report.WorkerErrors,
		"elapsed_ms":    report.Elapsed.Milliseconds(),
	})
	slog.InfoContext(ctx, "cycle finished",
		"processed", report.Processed(),
		"completed", report.Completed,
		"blocked", report.Blocked,
		"review_needed", report.ReviewNeeded,
		"skipped", report.Skipped,
		"worker_errors", report.WorkerErrors,
		"elapsed", report.Elapsed)
	return report, nil
}

func (s *Scheduler) runWorker(ctx context.Context, route model.RouteKey, queue []model.WorkItem, proc worker.Processor, report *model.CycleReport, mu *sync.Mutex) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Worker: logger.Ptr(string(route))})

	ready := make([]model.WorkItem, 0, len(queue))
	for i := range queue {
		if Ready(ctx, &queue[i], s.tracker) {
			ready = append(ready, queue[i])
			continue
		}
		mu.Lock()
		report.Skipped++
		mu.Unlock()
	}

	ordered := Order(ready)
	if len(ordered) > s.quota {
		ordered = ordered[:s.quota]
	}
	if len(ordered) == 0 {
		return
	}
	slog.InfoContext(ctx, "worker queue ready", "items", len(ordered))

	for i := range ordered {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pacing):
			}
		}

		item := &ordered[i]
		res, err := s.driver.RunItem(ctx, item, route, proc)
		if err != nil {
			// The item keeps its in-progress marker; the remaining queue
			// still runs.
			slog.ErrorContext(ctx, "item attempt aborted", "item_id", item.ID, "error", err)
			mu.Lock()
			report.WorkerErrors++
			mu.Unlock()
			continue
		}

		mu.Lock()
		report.Count(route, res.State)
		mu.Unlock()

		s.emit(ctx, "info", "item_"+string(res.State), "item reached terminal state", map[string]any{
			"item_id": item.ID,
			"worker":  string(route),
			"state":   string(res.State),
			"failure": string(res.Failure),
		})
		if s.audit != nil {
			if err := s.audit.RecordAttempt(ctx, attemptRecord(report.ID, item, route, res)); err != nil {
				slog.WarnContext(ctx, "failed to record attempt", "item_id", item.ID, "error", err)
			}
		}
	}
}

func (s *Scheduler) emit(ctx context.Context, level, step, message string, fields map[string]any) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, level, step, message, fields)
}

func attemptRecord(cycleID int64, item *model.WorkItem, route model.RouteKey, res *AttemptResult) *model.AttemptRecord {
	rec := &model.AttemptRecord{
		ID:       res.ID,
		CycleID:  cycleID,
		ItemID:   item.ID,
		Worker:   route,
		State:    res.State,
		Failure:  res.Failure,
		Error:    res.Error,
		Duration: res.Duration,
	}
	if res.Change != nil {
		rec.ChangeID = &res.Change.ID
	}
	return rec
}
