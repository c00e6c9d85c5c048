package engine_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"forgeflow.app/engine/internal/engine"
	"forgeflow.app/engine/internal/model"
	"forgeflow.app/engine/internal/tracker"
)

var _ = Describe("DependencyRefs", func() {
	It("returns nothing for a body without a dependency marker", func() {
		item := &model.WorkItem{ID: 10, Body: "See #5 and #6 for background"}
		Expect(engine.DependencyRefs(item)).To(BeEmpty())
	})

	It("extracts ids once a marker phrase is present", func() {
		item := &model.WorkItem{ID: 10, Body: "Depends on #5 and also blocked by #6"}
		Expect(engine.DependencyRefs(item)).To(Equal([]int64{5, 6}))
	})

	It("matches markers case-insensitively", func() {
		item := &model.WorkItem{ID: 10, Body: "DEPENDS ON #12"}
		Expect(engine.DependencyRefs(item)).To(Equal([]int64{12}))
	})

	It("drops self-references", func() {
		item := &model.WorkItem{ID: 10, Body: "Depends on #10 and #11"}
		Expect(engine.DependencyRefs(item)).To(Equal([]int64{11}))
	})

	It("returns nothing for an empty body", func() {
		Expect(engine.DependencyRefs(&model.WorkItem{ID: 10})).To(BeEmpty())
	})
})

var _ = Describe("Ready", func() {
	var (
		ctx context.Context
		tr  *mockTracker
	)

	BeforeEach(func() {
		ctx = context.Background()
		tr = &mockTracker{}
	})

	It("is ready when the item declares no dependencies", func() {
		item := &model.WorkItem{ID: 1, Body: "no refs here"}
		Expect(engine.Ready(ctx, item, tr)).To(BeTrue())
	})

	It("is not ready while a referenced item is still open", func() {
		tr.getItemFn = func(_ context.Context, id int64) (*model.WorkItem, error) {
			return &model.WorkItem{ID: id, Closed: false}, nil
		}
		item := &model.WorkItem{ID: 1, Body: "Depends on #2"}
		Expect(engine.Ready(ctx, item, tr)).To(BeFalse())
	})

	It("is ready once every referenced item is closed", func() {
		tr.getItemFn = func(_ context.Context, id int64) (*model.WorkItem, error) {
			return &model.WorkItem{ID: id, Closed: true}, nil
		}
		item := &model.WorkItem{ID: 1, Body: "Depends on #2, blocked by #3"}
		Expect(engine.Ready(ctx, item, tr)).To(BeTrue())
	})

	It("treats a missing referenced item as satisfied", func() {
		tr.getItemFn = func(_ context.Context, _ int64) (*model.WorkItem, error) {
			return nil, tracker.ErrNotFound
		}
		item := &model.WorkItem{ID: 1, Body: "Depends on #999"}
		Expect(engine.Ready(ctx, item, tr)).To(BeTrue())
	})

	It("treats a lookup error as satisfied rather than wedging the item", func() {
		tr.getItemFn = func(_ context.Context, _ int64) (*model.WorkItem, error) {
			return nil, errors.New("upstream timeout")
		}
		item := &model.WorkItem{ID: 1, Body: "Depends on #2"}
		Expect(engine.Ready(ctx, item, tr)).To(BeTrue())
	})

	It("blocks on the open item even when other refs are unresolvable", func() {
		tr.getItemFn = func(_ context.Context, id int64) (*model.WorkItem, error) {
			if id == 3 {
				return &model.WorkItem{ID: 3, Closed: false}, nil
			}
			return nil, tracker.ErrNotFound
		}
		item := &model.WorkItem{ID: 1, Body: "Depends on #2 and #3"}
		Expect(engine.Ready(ctx, item, tr)).To(BeFalse())
	})
})
