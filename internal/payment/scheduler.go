package payment

import (
	"context"
	"time"
)

// Scheduler abstracts the delay between poll cycles so tests can simulate
// time deterministically. The orchestrator holds at most one pending sleep at
// any time; cancelling the context is the sole cancellation mechanism.
type Scheduler interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerScheduler is the real implementation backed by time.Timer.
type TimerScheduler struct{}

func (TimerScheduler) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
