// Package clock provides the monotonic millisecond time source used to
// judge route freshness.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock returns monotonically non-decreasing milliseconds. Absolute
// values carry no meaning outside a single process; only differences
// between two readings are ever compared.
type Clock interface {
	NowMS() int64
}

// SystemClock adapts a clockwork.Clock to NowMS, anchoring on the
// instant it was constructed so readings stay immune to wall-clock
// adjustments (NTP steps, manual clock changes).
type SystemClock struct {
	clock clockwork.Clock
	start time.Time
}

// NewSystemClock returns a Clock anchored at the current instant.
func NewSystemClock() *SystemClock {
	c := clockwork.NewRealClock()
	return &SystemClock{clock: c, start: c.Now()}
}

func (c *SystemClock) NowMS() int64 {
	return c.clock.Since(c.start).Milliseconds()
}

// FakeClock is a Clock that only advances when Advance is called,
// for deterministic timeout/rescue/garbage-collection tests (mirrors
// the teacher's clockwork.NewFakeClock() injection pattern).
type FakeClock struct {
	clock clockwork.FakeClock
	start time.Time
}

// NewFakeClock returns a FakeClock anchored at its construction
// instant.
func NewFakeClock() *FakeClock {
	c := clockwork.NewFakeClock()
	return &FakeClock{clock: c, start: c.Now()}
}

func (c *FakeClock) NowMS() int64 {
	return c.clock.Since(c.start).Milliseconds()
}

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.clock.Advance(d)
}
