package engine

import (
	"sort"

	"forgeflow.app/engine/internal/model"
)

const unprioritizedRank = 999

var priorityRanks = map[string]int{
	"priority/critical": 0,
	"priority/high":     1,
	"priority/medium":   2,
	"priority/low":      3,
}

func priorityRank(item *model.WorkItem) int {
	rank := unprioritizedRank
	for _, label := range item.Labels {
		if r, ok := priorityRanks[label]; ok && r < rank {
			rank = r
		}
	}
	return rank
}

// Order returns the items sorted by priority label, most urgent first.
// Items sharing a rank keep their incoming order, so the tracker's
// created-at ordering is the tiebreaker. The input slice is not modified.
func Order(items []model.WorkItem) []model.WorkItem {
	ordered := make([]model.WorkItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityRank(&ordered[i]) < priorityRank(&ordered[j])
	})
	return ordered
}
