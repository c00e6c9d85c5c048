package engine

import (
	"context"
	"log/slog"
	"time"

	"forgeflow.app/engine/internal/model"
)

// CheckProvider reports the verification status of a change request.
type CheckProvider interface {
	CheckStatus(ctx context.Context, changeID int64) (model.CheckStatus, error)
}

// CheckPoller waits for the checks on a change request to settle. It sleeps
// for the poll interval, queries the status, and repeats until the checks
// pass, fail, or the configured timeout has elapsed.
type CheckPoller struct {
	provider CheckProvider
	interval time.Duration
	timeout  time.Duration
}

func NewCheckPoller(provider CheckProvider, interval, timeout time.Duration) *CheckPoller {
	return &CheckPoller{provider: provider, interval: interval, timeout: timeout}
}

// Await blocks until the change's checks reach a verdict. Status lookup
// errors are treated as still-pending so a flaky tracker response never
// fails a change outright. The only error returned is the caller's context
// being cancelled.
func (p *CheckPoller) Await(ctx context.Context, changeID int64) (model.Verdict, error) {
	waited := time.Duration(0)
	for {
		sleep := p.interval
		if remaining := p.timeout - waited; remaining < sleep {
			sleep = remaining
		}
		if sleep <= 0 {
			slog.WarnContext(ctx, "checks still pending at timeout",
				"change_id", changeID,
				"timeout", p.timeout)
			return model.VerdictTimeout, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sleep):
		}
		waited += sleep

		status, err := p.provider.CheckStatus(ctx, changeID)
		if err != nil {
			slog.WarnContext(ctx, "check status lookup failed, still waiting",
				"change_id", changeID,
				"error", err)
			continue
		}

		switch status {
		case model.CheckSuccess:
			return model.VerdictPass, nil
		case model.CheckFailure:
			return model.VerdictFail, nil
		}

		slog.DebugContext(ctx, "checks pending",
			"change_id", changeID,
			"waited", waited)
	}
}
