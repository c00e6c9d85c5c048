package model

import "time"

type CheckStatus string

type Verdict string

type FailureKind string

const (
	CheckSuccess CheckStatus = "success"
	CheckFailure CheckStatus = "failure"
	CheckPending CheckStatus = "pending"
)

const (
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictTimeout Verdict = "timeout"
)

const (
	FailureNone         FailureKind = ""
	FailureWorker       FailureKind = "worker"
	FailureChecks       FailureKind = "checks"
	FailureCheckTimeout FailureKind = "check_timeout"
	FailureMergeUnsafe  FailureKind = "merge_unsafe"
)

// Outcome is the result of one worker processing attempt. Immutable once
// produced; surfaced only through tracker comments and logs.
type Outcome struct {
	Success   bool          `json:"success"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Error     *string       `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// ChangeRequest is the reviewable change produced for a successfully
// implemented item. Held only for the duration of the item's lifecycle.
type ChangeRequest struct {
	ID        int64   `json:"id"`
	Branch    string  `json:"branch"`
	Mergeable bool    `json:"mergeable"`
	Unstable  bool    `json:"unstable"`
	WebURL    *string `json:"web_url,omitempty"`
}
