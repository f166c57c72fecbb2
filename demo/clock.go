package demo

import (
	"sync/atomic"

	"github.com/clarete/incremental"
)

// LogicalClock is a mutable counter outside the engine's own input
// mechanism - the demo stand-in for a wall clock, a file mtime, or
// any other ambient value the engine cannot track writes to directly.
// The Clock query wraps it as FlavorVolatile so the engine still treats a
// tick as a change, without the caller ever calling incremental.Set.
type LogicalClock struct {
	ticks atomic.Int64
}

// Tick advances the clock. It does not itself bump the database's
// revision - callers pair a Tick with Session.NextRevision (or let the
// next Set on an unrelated input do so) before the new value becomes
// observable, per FlavorVolatile's contract (§4.4): a volatile query's
// cached value is reused until the revision moves, then re-executed
// exactly once.
func (c *LogicalClock) Tick() { c.ticks.Add(1) }

func (c *LogicalClock) read() int64 { return c.ticks.Load() }

// ClockKey is the Clock query's sole key; the clock has no notion of
// per-file identity.
type ClockKey struct{}

func newClockQuery(db *incremental.Database, clock *LogicalClock) *incremental.Query[ClockKey, int64] {
	return incremental.NewVolatileQuery(db, "Clock", func(_ *incremental.Session, _ ClockKey) (int64, error) {
		return clock.read(), nil
	})
}
