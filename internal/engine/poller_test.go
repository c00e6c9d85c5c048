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

var _ = Describe("CheckPoller", func() {
	var (
		ctx context.Context
		tr  *mockTracker
	)

	BeforeEach(func() {
		ctx = context.Background()
		tr = &mockTracker{}
	})

	It("returns pass when checks succeed", func() {
		tr.checkStatusFn = func(_ context.Context, _ int64) (model.CheckStatus, error) {
			return model.CheckSuccess, nil
		}
		poller := engine.NewCheckPoller(tr, time.Millisecond, 100*time.Millisecond)
		verdict, err := poller.Await(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(verdict).To(Equal(model.VerdictPass))
	})

	It("returns fail when checks fail", func() {
		tr.checkStatusFn = func(_ context.Context, _ int64) (model.CheckStatus, error) {
			return model.CheckFailure, nil
		}
		poller := engine.NewCheckPoller(tr, time.Millisecond, 100*time.Millisecond)
		verdict, err := poller.Await(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(verdict).To(Equal(model.VerdictFail))
	})

	It("keeps polling through pending until the status settles", func() {
		calls := 0
		tr.checkStatusFn = func(_ context.Context, _ int64) (model.CheckStatus, error) {
			calls++
			if calls < 4 {
				return model.CheckPending, nil
			}
			return model.CheckSuccess, nil
		}
		poller := engine.NewCheckPoller(tr, time.Millisecond, 100*time.Millisecond)
		verdict, err := poller.Await(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(verdict).To(Equal(model.VerdictPass))
		Expect(calls).To(Equal(4))
	})

	It("treats status lookup errors as still-pending", func() {
		calls := 0
		tr.checkStatusFn = func(_ context.Context, _ int64) (model.CheckStatus, error) {
			calls++
			if calls == 1 {
				return "", errors.New("502 bad gateway")
			}
			return model.CheckSuccess, nil
		}
		poller := engine.NewCheckPoller(tr, time.Millisecond, 100*time.Millisecond)
		verdict, err := poller.Await(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(verdict).To(Equal(model.VerdictPass))
	})

	It("returns timeout once the configured budget elapses", func() {
		tr.checkStatusFn = func(_ context.Context, _ int64) (model.CheckStatus, error) {
			return model.CheckPending, nil
		}
		poller := engine.NewCheckPoller(tr, 5*time.Millisecond, 20*time.Millisecond)
		started := time.Now()
		verdict, err := poller.Await(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(verdict).To(Equal(model.VerdictTimeout))
		Expect(time.Since(started)).To(BeNumerically(">=", 20*time.Millisecond))
	})

	It("caps the final sleep so the total wait never exceeds the budget", func() {
		tr.checkStatusFn = func(_ context.Context, _ int64) (model.CheckStatus, error) {
			return model.CheckPending, nil
		}
		// Interval does not divide the timeout evenly.
		poller := engine.NewCheckPoller(tr, 15*time.Millisecond, 20*time.Millisecond)
		started := time.Now()
		verdict, err := poller.Await(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(verdict).To(Equal(model.VerdictTimeout))
		Expect(time.Since(started)).To(BeNumerically("<", 40*time.Millisecond))
	})

	It("stops when the caller's context is cancelled", func() {
		tr.checkStatusFn = func(_ context.Context, _ int64) (model.CheckStatus, error) {
			return model.CheckPending, nil
		}
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		poller := engine.NewCheckPoller(tr, time.Second, time.Minute)
		_, err := poller.Await(cancelCtx, 1)
		Expect(err).To(MatchError(context.Canceled))
	})
})
