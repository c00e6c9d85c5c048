package engine_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"forgeflow.app/engine/internal/engine"
	"forgeflow.app/engine/internal/model"
)

var _ = Describe("Order", func() {
	item := func(id int64, labels ...string) model.WorkItem {
		return model.WorkItem{ID: id, Labels: labels}
	}

	ids := func(items []model.WorkItem) []int64 {
		out := make([]int64, len(items))
		for i, it := range items {
			out[i] = it.ID
		}
		return out
	}

	It("orders critical before high before medium before low", func() {
		items := []model.WorkItem{
			item(1, "priority/low"),
			item(2, "priority/critical"),
			item(3, "priority/medium"),
			item(4, "priority/high"),
		}
		Expect(ids(engine.Order(items))).To(Equal([]int64{2, 4, 3, 1}))
	})

	It("puts unlabeled items last", func() {
		items := []model.WorkItem{
			item(1),
			item(2, "priority/low"),
		}
		Expect(ids(engine.Order(items))).To(Equal([]int64{2, 1}))
	})

	It("keeps the incoming order for items sharing a rank", func() {
		items := []model.WorkItem{
			item(10, "priority/high"),
			item(11, "priority/critical"),
			item(12, "priority/high"),
			item(13),
		}
		Expect(ids(engine.Order(items))).To(Equal([]int64{11, 10, 12, 13}))
	})

	It("uses the most urgent label when several are present", func() {
		items := []model.WorkItem{
			item(1, "priority/low", "priority/critical"),
			item(2, "priority/high"),
		}
		Expect(ids(engine.Order(items))).To(Equal([]int64{1, 2}))
	})

	It("ignores non-priority labels", func() {
		items := []model.WorkItem{
			item(1, "team/backend", "bug"),
			item(2, "priority/low"),
		}
		Expect(ids(engine.Order(items))).To(Equal([]int64{2, 1}))
	})

	It("does not modify the input slice", func() {
		items := []model.WorkItem{
			item(1, "priority/low"),
			item(2, "priority/critical"),
		}
		_ = engine.Order(items)
		Expect(ids(items)).To(Equal([]int64{1, 2}))
	})
})
