package system

import (
	"sync/atomic"
	"time"

	"github.com/crowdlod/server/internal/config"
	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/lod"
	"github.com/crowdlod/server/internal/movement"
	"github.com/crowdlod/server/internal/spawn"
	"go.uber.org/zap"
)

// Tunables are the components a config reload reaches.
type Tunables struct {
	Classifier *lod.Classifier
	Pipeline   *movement.Pipeline
	Spawner    *spawn.Spawner
	Expirer    *spawn.Expirer

	ClassifySys *ClassifierSystem
	ExpirySys   *ExpirySystem
	OutputSys   *OutputSystem
	ArchiveSys  *ArchiveSystem
}

// ReloadSystem swaps in a new configuration at the start of a tick.
// Request may be called from any goroutine. Phase 0 (Input), registered
// before InputSystem.
type ReloadSystem struct {
	cfg     *config.Config
	t       Tunables
	pending atomic.Pointer[config.Config]
	log     *zap.Logger
	applied int
}

// NewReloadSystem applies changes into cfg in place so every holder of the
// pointer sees the new values.
func NewReloadSystem(cfg *config.Config, t Tunables, log *zap.Logger) *ReloadSystem {
	return &ReloadSystem{cfg: cfg, t: t, log: log}
}

// Request queues next for the coming tick boundary. next must already be
// validated. A later request replaces an earlier one not yet applied.
func (s *ReloadSystem) Request(next *config.Config) {
	s.pending.Store(next)
}

func (s *ReloadSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ReloadSystem) Update(_ time.Duration) {
	next := s.pending.Swap(nil)
	if next == nil {
		return
	}
	limits, err := SpawnLimits(next)
	if err != nil {
		s.log.Error("config reload rejected", zap.Error(err))
		return
	}

	// Listener addresses and archive driver only take effect on restart.
	next.Debug.BindAddress = s.cfg.Debug.BindAddress
	next.Debug.WSAddress = s.cfg.Debug.WSAddress
	next.Archive.Driver = s.cfg.Archive.Driver
	next.Archive.DSN = s.cfg.Archive.DSN
	next.Sim.StartTime = s.cfg.Sim.StartTime
	*s.cfg = *next

	t := s.t
	if t.Classifier != nil {
		t.Classifier.SetPolicy(LODPolicy(next))
		t.Classifier.SetViewers(Viewers(next))
	}
	if t.Pipeline != nil {
		t.Pipeline.SetParams(MovementParams(next))
	}
	if t.Spawner != nil {
		t.Spawner.SetLimits(limits)
	}
	if t.Expirer != nil {
		t.Expirer.SetPolicy(ExpiryPolicy(next))
	}
	if t.ClassifySys != nil {
		t.ClassifySys.SetInterval(next.LOD.ReclassifyInterval)
	}
	if t.ExpirySys != nil {
		t.ExpirySys.SetInterval(next.Expiry.Interval)
	}
	if t.OutputSys != nil {
		t.OutputSys.SetRenderEvery(next.Debug.RenderEvery)
	}
	if t.ArchiveSys != nil {
		t.ArchiveSys.SetInterval(next.Archive.EveryTicks)
	}
	s.applied++
	s.log.Info("configuration reloaded", zap.Int("generation", s.applied))
}

// Applied returns the number of reloads applied.
func (s *ReloadSystem) Applied() int { return s.applied }
