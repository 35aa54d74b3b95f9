package system

import (
	"sort"
	"time"
)

// PhaseTimings is the wall time each phase took during one tick.
type PhaseTimings [PhaseCount]time.Duration

// Total is the whole tick.
func (t PhaseTimings) Total() time.Duration {
	var sum time.Duration
	for _, d := range t {
		sum += d
	}
	return sum
}

// Slowest returns the phase that took longest; the earliest wins ties.
func (t PhaseTimings) Slowest() (Phase, time.Duration) {
	best := PhaseInput
	for p := PhaseInput; p < PhaseCount; p++ {
		if t[p] > t[best] {
			best = p
		}
	}
	return best, t[best]
}

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool
	tick    uint64
	last    PhaseTimings
	now     func() time.Time
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		now:     time.Now,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every registered system once, records per-phase timings and
// advances the tick counter.
func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	r.last = PhaseTimings{}
	for _, s := range r.systems {
		start := r.now()
		s.Update(dt)
		if p := s.Phase(); p >= 0 && p < PhaseCount {
			r.last[p] += r.now().Sub(start)
		}
	}
	r.tick++
}

// TickPhase runs only the systems of one phase. Neither the tick counter nor
// the timings change.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Ticks returns the number of completed ticks.
func (r *Runner) Ticks() uint64 { return r.tick }

// LastTick returns the timings of the most recent Tick.
func (r *Runner) LastTick() PhaseTimings { return r.last }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
