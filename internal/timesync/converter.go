package timesync

import (
	"errors"
	"time"
)

// DefaultTickRate is the FreeRTOS configTICK_RATE_HZ of the reference firmware.
const DefaultTickRate = 1000

// ErrZeroTickRate reports a tick rate of 0 Hz.
var ErrZeroTickRate = errors.New("tick rate must be positive")

// Converter maps kernel ticks to wall-clock time.
type Converter struct {
	base       time.Time
	tickPeriod time.Duration
}

// NewConverter anchors tick 0 at base. rateHz is the kernel tick rate.
func NewConverter(base time.Time, rateHz uint32) (*Converter, error) {
	if rateHz == 0 {
		return nil, ErrZeroTickRate
	}

	return &Converter{
		base:       base,
		tickPeriod: time.Second / time.Duration(rateHz),
	}, nil
}

// TickToWallClock converts a tick count since boot to wall-clock time.
func (c *Converter) TickToWallClock(tick uint32) time.Time {
	return c.base.Add(c.TicksToDuration(uint64(tick)))
}

// TicksToDuration converts a tick count to a duration.
func (c *Converter) TicksToDuration(n uint64) time.Duration {
	//nolint:gosec // a uint32 tick count times a sub-second period fits in int64
	return time.Duration(n) * c.tickPeriod
}

// Base returns the wall-clock time of tick 0.
func (c *Converter) Base() time.Time {
	return c.base
}

// TickPeriod returns the duration of one tick.
func (c *Converter) TickPeriod() time.Duration {
	return c.tickPeriod
}
