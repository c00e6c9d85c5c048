package model

import "time"

// AttemptRecord is the write-through audit row for one lifecycle attempt.
// Never read back by the engine; the tracker stays the source of truth.
type AttemptRecord struct {
	ID       int64         `json:"id"`
	CycleID  int64         `json:"cycle_id"`
	ItemID   int64         `json:"item_id"`
	Worker   RouteKey      `json:"worker"`
	State    ItemState     `json:"state"`
	Failure  FailureKind   `json:"failure,omitempty"`
	Error    *string       `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	ChangeID *int64        `json:"change_id,omitempty"`
}

// CycleReport aggregates one scheduling cycle. Rebuilt each cycle.
type CycleReport struct {
	ID           int64            `json:"id"`
	Iteration    int              `json:"iteration"`
	StartedAt    time.Time        `json:"started_at"`
	Elapsed      time.Duration    `json:"elapsed"`
	Completed    int              `json:"completed"`
	Blocked      int              `json:"blocked"`
	ReviewNeeded int              `json:"review_needed"`
	Skipped      int              `json:"skipped"`
	WorkerErrors int              `json:"worker_errors"`
	PerWorker    map[RouteKey]int `json:"per_worker,omitempty"`
}

// Processed returns the number of items driven to a terminal state.
func (r *CycleReport) Processed() int {
	return r.Completed + r.Blocked + r.ReviewNeeded
}

func (r *CycleReport) Count(worker RouteKey, state ItemState) {
	if r.PerWorker == nil {
		r.PerWorker = make(map[RouteKey]int)
	}
	r.PerWorker[worker]++
	switch state {
	case StateCompleted:
		r.Completed++
	case StateBlocked:
		r.Blocked++
	case StateReviewNeeded:
		r.ReviewNeeded++
	}
}
