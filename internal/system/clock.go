package system

import "time"

// Clock is the simulation's tick counter and elapsed simulation time.
// Simulation loop only.
type Clock struct {
	tick uint64
	now  time.Duration
}

func (c *Clock) Tick() uint64       { return c.tick }
func (c *Clock) Now() time.Duration { return c.now }

// Advance closes the current tick.
func (c *Clock) Advance(dt time.Duration) {
	c.tick++
	c.now += dt
}
