package system

import (
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/core/event"
	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/lod"
	"github.com/crowdlod/server/internal/scripting"
	"github.com/crowdlod/server/internal/world"
	"go.uber.org/zap"
)

// ClassifierSystem runs a LOD pass every interval ticks. Phase 2 (Classify).
type ClassifierSystem struct {
	crowd      *world.Crowd
	classifier *lod.Classifier
	bus        *event.Bus
	clock      *Clock
	log        *zap.Logger
	interval   int
	last       lod.PassResult
}

func NewClassifierSystem(crowd *world.Crowd, cl *lod.Classifier, bus *event.Bus, clock *Clock, interval int, log *zap.Logger) *ClassifierSystem {
	return &ClassifierSystem{crowd: crowd, classifier: cl, bus: bus, clock: clock, interval: interval, log: log}
}

// UseScripts routes the importance multiplier through the Lua
// lod_importance hook when one is loaded.
func (s *ClassifierSystem) UseScripts(eng *scripting.Engine) {
	if eng == nil || !eng.HasImportance() {
		s.classifier.SetImportance(nil)
		return
	}
	s.classifier.SetImportance(func(id ecs.EntityID, a *component.Agent) float64 {
		return eng.Importance(AgentContext(id, a, s.clock.Now()))
	})
}

func (s *ClassifierSystem) SetInterval(n int) { s.interval = n }

func (s *ClassifierSystem) Phase() coresys.Phase { return coresys.PhaseClassify }

func (s *ClassifierSystem) Update(_ time.Duration) {
	n := s.interval
	if n <= 0 {
		n = 1
	}
	if s.clock.Tick()%uint64(n) != 0 {
		return
	}
	s.last = s.classifier.Run(s.crowd, s.bus)
	if s.last.Pinned > 0 {
		s.log.Debug("agents pinned to off tier",
			zap.Uint64("pass", s.last.Pass), zap.Int("pinned", s.last.Pinned))
	}
}

// Last returns the most recent pass result.
func (s *ClassifierSystem) Last() lod.PassResult { return s.last }
