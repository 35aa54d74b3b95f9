package system

import (
	"time"

	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/world"
)

// RenderSink receives the per-agent render projection.
type RenderSink interface {
	Publish(tick uint64, items []world.RenderItem)
}

// OutputSystem flushes buffered replies and publishes the render projection
// every renderEvery ticks. Phase 5 (Output).
type OutputSystem struct {
	store       *net.SessionStore
	crowd       *world.Crowd
	clock       *Clock
	sinks       []RenderSink
	renderEvery int
	items       []world.RenderItem
}

func NewOutputSystem(store *net.SessionStore, crowd *world.Crowd, clock *Clock, renderEvery int) *OutputSystem {
	return &OutputSystem{store: store, crowd: crowd, clock: clock, renderEvery: renderEvery}
}

// AddSink registers a render consumer.
func (s *OutputSystem) AddSink(sink RenderSink) {
	s.sinks = append(s.sinks, sink)
}

func (s *OutputSystem) SetRenderEvery(n int) { s.renderEvery = n }

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	if len(s.sinks) > 0 && s.renderEvery > 0 && s.clock.Tick()%uint64(s.renderEvery) == 0 {
		s.items = s.items[:0]
		s.crowd.Project(func(it world.RenderItem) { s.items = append(s.items, it) })
		for _, sink := range s.sinks {
			sink.Publish(s.clock.Tick(), s.items)
		}
	}
	if s.store != nil {
		s.store.ForEach(func(sess *net.Session) {
			sess.FlushOutput()
		})
	}
}
