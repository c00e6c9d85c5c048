package engine_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"forgeflow.app/engine/internal/engine"
	"forgeflow.app/engine/internal/model"
)

var _ = Describe("Scheduler", func() {
	var (
		ctx      context.Context
		tr       *mockTracker
		backend  *mockProcessor
		frontend *mockProcessor
		arch     *mockProcessor
		emitter  *mockEmitter
		audit    *mockAudit
	)

	newScheduler := func(quota int) *engine.Scheduler {
		registry := engine.NewRegistry()
		registry.Register(model.RouteBackend, backend)
		registry.Register(model.RouteFrontend, frontend)
		registry.Register(model.RouteArchitecture, arch)

		poller := engine.NewCheckPoller(tr, time.Millisecond, 20*time.Millisecond)
		return engine.New(engine.Params{
			Tracker:  tr,
			Registry: registry,
			Router:   engine.NewRouter(model.RouteArchitecture),
			Driver:   engine.NewDriver(tr, poller),
			Emitter:  emitter,
			Audit:    audit,
			Quota:    quota,
			Pacing:   0,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		tr = &mockTracker{}
		backend = &mockProcessor{}
		frontend = &mockProcessor{}
		arch = &mockProcessor{}
		emitter = &mockEmitter{}
		audit = &mockAudit{}
	})

	It("returns an error when the snapshot cannot be fetched", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return nil, errors.New("rate limited")
		}
		_, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).To(HaveOccurred())
	})

	It("drives a routed item to completion", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 42, Title: "api auth fix", State: model.StateBacklog},
			}, nil
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Completed).To(Equal(1))
		Expect(report.Processed()).To(Equal(1))
		Expect(backend.processed).To(Equal([]int64{42}))
		Expect(tr.closedItems).To(Equal([]int64{42}))
	})

	It("drives a team-labeled item through its labeled worker to completion", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 42, Title: "api heavy title", Labels: []string{"team/frontend"}, State: model.StateBacklog},
			}, nil
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Completed).To(Equal(1))
		Expect(frontend.processed).To(Equal([]int64{42}))
		Expect(backend.processed).To(BeEmpty())
		Expect(tr.closedItems).To(Equal([]int64{42}))
		Expect(tr.comments).To(HaveLen(1))
	})

	It("leaves claimed and parked items alone", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 1, State: model.StateInProgress},
				{ID: 2, State: model.StateBlocked},
				{ID: 3, State: model.StateReviewNeeded},
			}, nil
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Processed()).To(BeZero())
		Expect(backend.processed).To(BeEmpty())
		Expect(frontend.processed).To(BeEmpty())
		Expect(arch.processed).To(BeEmpty())
	})

	It("skips items with open dependencies without touching them", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 42, Title: "api fix", State: model.StateBacklog},
				{ID: 43, Title: "api follow-up", Body: "Depends on #42", State: model.StateBacklog},
			}, nil
		}
		tr.getItemFn = func(_ context.Context, id int64) (*model.WorkItem, error) {
			return &model.WorkItem{ID: id, Closed: false}, nil
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Completed).To(Equal(1))
		Expect(report.Skipped).To(Equal(1))
		Expect(backend.processed).To(Equal([]int64{42}))

		// The skipped item keeps its labels and gets no comment; only #42
		// was labeled, closed and commented on.
		Expect(tr.setLabels).To(Equal([]string{model.LabelInProgress}))
		Expect(tr.closedItems).To(Equal([]int64{42}))
		Expect(tr.comments).To(HaveLen(1))
	})

	It("caps each worker at its quota, most urgent first", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 1, Title: "api one", State: model.StateBacklog, Labels: []string{"priority/low"}},
				{ID: 2, Title: "api two", State: model.StateBacklog, Labels: []string{"priority/critical"}},
				{ID: 3, Title: "api three", State: model.StateBacklog, Labels: []string{"priority/high"}},
			}, nil
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Completed).To(Equal(2))
		Expect(backend.processed).To(Equal([]int64{2, 3}))
	})

	It("runs each route's queue with its own processor", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 1, Title: "api endpoint", State: model.StateBacklog},
				{ID: 2, Title: "flutter widget", State: model.StateBacklog},
				{ID: 3, Title: "architecture review", State: model.StateBacklog},
			}, nil
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Completed).To(Equal(3))
		Expect(backend.processed).To(Equal([]int64{1}))
		Expect(frontend.processed).To(Equal([]int64{2}))
		Expect(arch.processed).To(Equal([]int64{3}))
		Expect(report.PerWorker).To(Equal(map[model.RouteKey]int{
			model.RouteBackend:      1,
			model.RouteFrontend:     1,
			model.RouteArchitecture: 1,
		}))
	})

	It("isolates a panicking worker from its siblings", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 1, Title: "api endpoint", State: model.StateBacklog},
				{ID: 2, Title: "flutter widget", State: model.StateBacklog},
			}, nil
		}
		backend.processFn = func(_ context.Context, _ *model.WorkItem) (*model.Outcome, error) {
			panic("boom")
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.WorkerErrors).To(Equal(1))
		Expect(report.Completed).To(Equal(1))
		Expect(frontend.processed).To(Equal([]int64{2}))
	})

	It("continues a worker's queue after an aborted attempt", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 1, Title: "api one", State: model.StateBacklog, Labels: []string{"priority/critical"}},
				{ID: 2, Title: "api two", State: model.StateBacklog},
			}, nil
		}
		tr.setLabelFn = func(_ context.Context, id int64, _ string) error {
			if id == 1 {
				return errors.New("503 service unavailable")
			}
			return nil
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.WorkerErrors).To(Equal(1))
		Expect(report.Completed).To(Equal(1))
		Expect(backend.processed).To(Equal([]int64{2}))
	})

	It("records attempts and the cycle in the audit store", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 42, Title: "api fix", State: model.StateBacklog},
			}, nil
		}

		report, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())

		Expect(audit.attempts).To(HaveLen(1))
		Expect(audit.attempts[0].ItemID).To(Equal(int64(42)))
		Expect(audit.attempts[0].Worker).To(Equal(model.RouteBackend))
		Expect(audit.attempts[0].State).To(Equal(model.StateCompleted))
		Expect(audit.attempts[0].CycleID).To(Equal(report.ID))

		Expect(audit.cycles).To(HaveLen(1))
		Expect(audit.cycles[0].Completed).To(Equal(1))
	})

	It("emits cycle and item events to the status stream", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 42, Title: "api fix", State: model.StateBacklog},
			}, nil
		}

		_, err := newScheduler(2).RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(emitter.steps).To(ContainElements("cycle_started", "item_completed", "cycle_finished"))
	})

	It("paces items within a worker", func() {
		tr.listOpenItemsFn = func(_ context.Context) ([]model.WorkItem, error) {
			return []model.WorkItem{
				{ID: 1, Title: "api one", State: model.StateBacklog},
				{ID: 2, Title: "api two", State: model.StateBacklog},
			}, nil
		}

		registry := engine.NewRegistry()
		registry.Register(model.RouteBackend, backend)
		poller := engine.NewCheckPoller(tr, time.Millisecond, 20*time.Millisecond)
		sched := engine.New(engine.Params{
			Tracker:  tr,
			Registry: registry,
			Router:   engine.NewRouter(model.RouteArchitecture),
			Driver:   engine.NewDriver(tr, poller),
			Quota:    2,
			Pacing:   25 * time.Millisecond,
		})

		started := time.Now()
		report, err := sched.RunCycle(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Completed).To(Equal(2))
		Expect(time.Since(started)).To(BeNumerically(">=", 25*time.Millisecond))
	})
})
