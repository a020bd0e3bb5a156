package pharmacy

import "time"

const DefaultResendWindow = 60 * time.Second

// Cooldown tracks when a delivery code was last (re)sent. Remaining time is
// always derived from the stored timestamp, so redraw timers never drift.
type Cooldown struct {
	Window   time.Duration
	LastSent time.Time
}

func (c Cooldown) window() time.Duration {
	if c.Window <= 0 {
		return DefaultResendWindow
	}
	return c.Window
}

func (c Cooldown) Remaining(now time.Time) time.Duration {
	if c.LastSent.IsZero() {
		return 0
	}
	remaining := c.window() - now.Sub(c.LastSent)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Seconds is the whole number of seconds left, rounded down.
func (c Cooldown) Seconds(now time.Time) int {
	return int(c.Remaining(now) / time.Second)
}

// CanResend reports whether the full window has elapsed. Seconds may already
// read zero during the last fraction of a second.
func (c Cooldown) CanResend(now time.Time) bool {
	return c.Remaining(now) == 0
}
