// ABOUTME: Exponential backoff policy for stream reconnect attempts.
// ABOUTME: Pure arithmetic; the stream client owns the timers and the attempt counter.

package stream

import "time"

// ReconnectPolicy controls how reconnect attempts back off. The delay
// doubles per attempt from BaseDelay up to MaxDelay; Exhausted reports
// when the attempt budget is spent.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy returns the standard policy: 1s base, 30s cap,
// 5 attempts before giving up.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before reconnect attempt number attempt
// (0-indexed): BaseDelay doubled attempt times, capped at MaxDelay.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether attempt failures have spent the budget.
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
