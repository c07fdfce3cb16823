package syllable

import "time"

// DefaultDebounceThreshold is the minimum interval between two accepted key presses.
const DefaultDebounceThreshold = 150 * time.Millisecond

// Gate drops events arriving sooner than its threshold after the last accepted one.
type Gate struct {
	threshold    time.Duration
	lastAccepted time.Time
}

// NewGate creates a gate. A non-positive threshold falls back to DefaultDebounceThreshold.
// The first event is always accepted.
func NewGate(threshold time.Duration) *Gate {
	if threshold <= 0 {
		threshold = DefaultDebounceThreshold
	}

	return &Gate{
		threshold:    threshold,
		lastAccepted: time.Time{},
	}
}

// Allow reports whether an event at now passes the gate and records it when it does.
// A clock that moved backwards yields a non-positive elapsed time and drops the event.
func (g *Gate) Allow(now time.Time) bool {
	if !g.lastAccepted.IsZero() {
		elapsed := now.Sub(g.lastAccepted)
		if elapsed < g.threshold {
			return false
		}
	}

	g.lastAccepted = now

	return true
}

// Remaining returns how long an event at now would still have to wait.
func (g *Gate) Remaining(now time.Time) time.Duration {
	if g.lastAccepted.IsZero() {
		return 0
	}

	elapsed := now.Sub(g.lastAccepted)
	if elapsed <= 0 {
		return g.threshold
	}

	if elapsed >= g.threshold {
		return 0
	}

	return g.threshold - elapsed
}

// LastAccepted returns the time of the last accepted event, zero when none was accepted.
func (g *Gate) LastAccepted() time.Time {
	return g.lastAccepted
}

// Threshold returns the configured minimum interval.
func (g *Gate) Threshold() time.Duration {
	return g.threshold
}
