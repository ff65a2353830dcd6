package api

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// RefreshLimiter allows one router renewal per window across all callers.
// The slot is consumed by the attempt, whether or not the renewal succeeds.
type RefreshLimiter struct {
	limiter *rate.Limiter
	clock   clock.Clock
}

// NewRefreshLimiter returns a limiter for the given window. A window of zero
// or less disables limiting.
func NewRefreshLimiter(window time.Duration, clk clock.Clock) *RefreshLimiter {
	l := &RefreshLimiter{clock: clk}
	if window > 0 {
		l.limiter = rate.NewLimiter(rate.Every(window), 1)
	}
	return l
}

// Allow takes the slot when it is free. Otherwise it reports how long the
// caller has to wait.
func (l *RefreshLimiter) Allow() (bool, time.Duration) {
	if l.limiter == nil {
		return true, 0
	}
	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// retrySeconds rounds a wait up to whole seconds, never below one.
func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
