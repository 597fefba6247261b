package capture

import "time"

// Default cadence settings.
const (
	IdleFPS     = 5
	ActiveFPS   = 15
	IdleTimeout = 2 * time.Second
)

// Cadence switches between an idle and an active frame rate based on motion.
// It starts idle, goes active on motion and falls back to idle once no motion
// has been seen for IdleTimeout.
type Cadence struct {
	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration

	active     bool
	lastMotion time.Time
}

// NewCadence returns an idle cadence with the default rates.
func NewCadence() *Cadence {
	return &Cadence{
		IdleFPS:     IdleFPS,
		ActiveFPS:   ActiveFPS,
		IdleTimeout: IdleTimeout,
	}
}

// Observe records whether the latest frame had motion. It returns the frame
// rate to use and whether it changed.
func (c *Cadence) Observe(motion bool, now time.Time) (fps int, changed bool) {
	if motion {
		c.lastMotion = now
		if !c.active {
			c.active = true
			return c.ActiveFPS, true
		}
	} else if c.active && now.Sub(c.lastMotion) > c.IdleTimeout {
		c.active = false
		return c.IdleFPS, true
	}
	return c.FPS(), false
}

// Active reports whether the active rate is in use.
func (c *Cadence) Active() bool {
	return c.active
}

// FPS returns the current frame rate.
func (c *Cadence) FPS() int {
	if c.active {
		return c.ActiveFPS
	}
	return c.IdleFPS
}

// Interval returns the time between frames at the current rate.
func (c *Cadence) Interval() time.Duration {
	return time.Second / time.Duration(max(c.FPS(), 1))
}
