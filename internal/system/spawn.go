package system

import (
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/core/event"
	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/scripting"
	"github.com/crowdlod/server/internal/spawn"
	"github.com/crowdlod/server/internal/world"
	"go.uber.org/zap"
)

// SpawnSystem drains the spawn queue. Phase 4 (Spawn).
type SpawnSystem struct {
	spawner *spawn.Spawner
	clock   *Clock
	log     *zap.Logger
	last    spawn.DrainResult
}

func NewSpawnSystem(sp *spawn.Spawner, clock *Clock, log *zap.Logger) *SpawnSystem {
	return &SpawnSystem{spawner: sp, clock: clock, log: log}
}

func (s *SpawnSystem) Phase() coresys.Phase { return coresys.PhaseSpawn }

func (s *SpawnSystem) Update(_ time.Duration) {
	s.last = s.spawner.Drain(s.clock.Now(), s.clock.Tick())
	if s.last.Spawned > 0 {
		s.log.Debug("spawned agents",
			zap.Uint64("tick", s.clock.Tick()),
			zap.Int("count", s.last.Spawned),
			zap.Int("pending", s.spawner.PendingCount()))
	}
}

func (s *SpawnSystem) Last() spawn.DrainResult { return s.last }

// ExpirySystem sweeps the crowd for agents to retire every interval ticks.
// Registered after SpawnSystem so fresh agents are seen next sweep.
type ExpirySystem struct {
	crowd    *world.Crowd
	expirer  *spawn.Expirer
	bus      *event.Bus
	clock    *Clock
	log      *zap.Logger
	interval int
	total    uint64
}

func NewExpirySystem(crowd *world.Crowd, ex *spawn.Expirer, bus *event.Bus, clock *Clock, interval int, log *zap.Logger) *ExpirySystem {
	return &ExpirySystem{crowd: crowd, expirer: ex, bus: bus, clock: clock, interval: interval, log: log}
}

// UseScripts installs the Lua expire_agent hook when one is loaded.
func (s *ExpirySystem) UseScripts(eng *scripting.Engine) {
	if eng == nil || !eng.HasExpire() {
		s.expirer.SetHook(nil)
		return
	}
	s.expirer.SetHook(func(id ecs.EntityID, a *component.Agent, now time.Duration) (bool, string) {
		return eng.ShouldExpire(AgentContext(id, a, now))
	})
}

func (s *ExpirySystem) SetInterval(n int) { s.interval = n }

func (s *ExpirySystem) Phase() coresys.Phase { return coresys.PhaseSpawn }

func (s *ExpirySystem) Update(_ time.Duration) {
	n := s.interval
	if n <= 0 {
		n = 1
	}
	if s.clock.Tick()%uint64(n) != 0 {
		return
	}
	gone := s.expirer.Sweep(s.crowd, s.clock.Now(), s.bus)
	s.total += uint64(len(gone))
}

// Total returns the number of agents retired since startup.
func (s *ExpirySystem) Total() uint64 { return s.total }
