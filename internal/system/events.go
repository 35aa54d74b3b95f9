package system

import (
	"time"

	"github.com/crowdlod/server/internal/core/event"
	coresys "github.com/crowdlod/server/internal/core/system"
	"go.uber.org/zap"
)

// EventCounters tallies dispatched events since startup.
type EventCounters struct {
	Spawned      uint64
	Despawned    uint64
	TierChanges  uint64
	Rejected     uint64
	ExpiredSpawn uint64
	Fulfilled    uint64
	Total        uint64
}

// EventSystem swaps the bus buffers and dispatches the previous tick's
// events. Phase 1 (PreUpdate).
type EventSystem struct {
	bus      *event.Bus
	log      *zap.Logger
	counters EventCounters
}

func NewEventSystem(bus *event.Bus, log *zap.Logger) *EventSystem {
	s := &EventSystem{bus: bus, log: log}
	event.Subscribe(bus, func(e event.AgentSpawned) { s.counters.Spawned++ })
	event.Subscribe(bus, func(e event.TierChanged) { s.counters.TierChanges++ })
	event.Subscribe(bus, func(e event.AgentDespawned) {
		s.counters.Despawned++
		s.log.Debug("agent despawned", zap.Stringer("agent", e.Handle), zap.String("reason", e.Reason))
	})
	event.Subscribe(bus, func(e event.SpawnRejected) {
		s.counters.Rejected++
		s.log.Info("spawn request overflow rejected",
			zap.Uint64("request", e.RequestID), zap.Int("dropped", e.Dropped))
	})
	event.Subscribe(bus, func(e event.SpawnExpired) {
		s.counters.ExpiredSpawn++
		s.log.Info("spawn request expired",
			zap.Uint64("request", e.RequestID), zap.Int("remaining", e.Remaining))
	})
	event.Subscribe(bus, func(e event.SpawnFulfilled) {
		s.counters.Fulfilled++
		s.log.Debug("spawn request fulfilled",
			zap.Uint64("request", e.RequestID), zap.Int("spawned", e.Spawned))
	})
	return s
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// Counters returns a copy of the tallies.
func (s *EventSystem) Counters() EventCounters {
	c := s.counters
	c.Total = s.bus.Dispatched()
	return c
}
