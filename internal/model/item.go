package model

import "strings"

type ItemState string

type RouteKey string

const (
	StateBacklog      ItemState = "backlog"
	StateInProgress   ItemState = "in_progress"
	StateCompleted    ItemState = "completed"
	StateBlocked      ItemState = "blocked"
	StateReviewNeeded ItemState = "review_needed"
)

const (
	RouteBackend      RouteKey = "backend"
	RouteFrontend     RouteKey = "frontend"
	RouteArchitecture RouteKey = "architecture"
)

// Routes lists every route in its canonical order. Anything that iterates
// routes should use this so results are deterministic.
var Routes = []RouteKey{RouteBackend, RouteFrontend, RouteArchitecture}

// Status labels mirror the lifecycle state on the tracker. An item with no
// status label is in backlog.
const (
	LabelInProgress   = "status/in-progress"
	LabelBlocked      = "status/blocked"
	LabelReviewNeeded = "status/review-needed"
)

// Terminal reports whether no further automatic transition occurs from s
// without an external reset.
func (s ItemState) Terminal() bool {
	switch s {
	case StateCompleted, StateBlocked, StateReviewNeeded:
		return true
	}
	return false
}

func (r RouteKey) Valid() bool {
	switch r {
	case RouteBackend, RouteFrontend, RouteArchitecture:
		return true
	}
	return false
}

// WorkItem is the engine's view of a tracker issue. Items are created
// externally; the engine only mutates state, labels and routing.
type WorkItem struct {
	ID     int64     `json:"id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Labels []string  `json:"labels,omitempty"`
	Route  *RouteKey `json:"route,omitempty"`
	State  ItemState `json:"state"`
	Repo   string    `json:"repo"`
	WebURL *string   `json:"web_url,omitempty"`
	Closed bool      `json:"closed"`
}

func (i *WorkItem) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// StateFromLabels derives the lifecycle state from tracker labels.
// Closed items are completed regardless of labels.
func StateFromLabels(labels []string, closed bool) ItemState {
	if closed {
		return StateCompleted
	}
	for _, l := range labels {
		switch l {
		case LabelInProgress:
			return StateInProgress
		case LabelBlocked:
			return StateBlocked
		case LabelReviewNeeded:
			return StateReviewNeeded
		}
	}
	return StateBacklog
}

// SearchText returns the lowercased title+body concatenation used for
// keyword routing.
func (i *WorkItem) SearchText() string {
	return strings.ToLower(i.Title + " " + i.Body)
}
