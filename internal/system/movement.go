package system

import (
	"time"

	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/movement"
	"github.com/crowdlod/server/internal/world"
)

// MovementSystem advances every due tier batch. Phase 3 (Movement).
type MovementSystem struct {
	crowd    *world.Crowd
	pipeline *movement.Pipeline
	last     movement.Stats
	arrived  uint64
	failures uint64
}

func NewMovementSystem(crowd *world.Crowd, p *movement.Pipeline) *MovementSystem {
	return &MovementSystem{crowd: crowd, pipeline: p}
}

func (s *MovementSystem) Phase() coresys.Phase { return coresys.PhaseMovement }

func (s *MovementSystem) Update(dt time.Duration) {
	s.last = s.pipeline.Step(s.crowd, dt)
	s.arrived += uint64(s.last.Arrived)
	s.failures += uint64(s.last.NavFailures)
}

func (s *MovementSystem) Last() movement.Stats { return s.last }

// Totals returns arrivals and navigation failures since startup.
func (s *MovementSystem) Totals() (arrived, navFailures uint64) { return s.arrived, s.failures }
