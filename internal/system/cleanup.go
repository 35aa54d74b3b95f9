package system

import (
	"time"

	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/world"
)

// CleanupSystem frees every agent queued for destruction during the tick.
// This is the only place agents are freed. Phase 7 (Cleanup).
type CleanupSystem struct {
	crowd *world.Crowd
	freed uint64
}

func NewCleanupSystem(crowd *world.Crowd) *CleanupSystem {
	return &CleanupSystem{crowd: crowd}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.freed += uint64(s.crowd.FlushDestroyed())
}

// Freed returns the number of agents freed since startup.
func (s *CleanupSystem) Freed() uint64 { return s.freed }
