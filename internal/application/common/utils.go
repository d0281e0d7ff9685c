package common

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const Version = "0.1.0"

// PgInterval renders a duration as a Postgres interval literal.
func PgInterval(d time.Duration) string {
	sec := int64(d / time.Second)
	return fmt.Sprintf("%d seconds", sec)
}

// NextBackoffWithJitter returns the delay before retry number attempts+1.
// Exponential from 1s, capped at 30 minutes, with half-window jitter so
// parked items do not wake up in lockstep.
func NextBackoffWithJitter(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	base := time.Second << attempts

	limit := 30 * time.Minute
	if base > limit || base <= 0 {
		base = limit
	}

	jitter := time.Duration(rand.Int63n(int64(base / 2)))

	return base/2 + jitter
}

// SleepCtx sleeps for d or until ctx is done, whichever comes first.
func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
	}()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
