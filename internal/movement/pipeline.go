// Package movement advances agents along their navigation paths, one batch
// per LOD tier, each tier at its own cadence and fidelity.
package movement

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/nav"
	"github.com/crowdlod/server/internal/world"
	"go.uber.org/zap"
)

// goldenAngle spreads the push direction for agents sharing a position.
const goldenAngle = 2.399963229728653

// Params configures the pipeline.
type Params struct {
	// Cadence[t] is the number of ticks between updates of tier t; 0 = never.
	Cadence           [component.TierCount]int
	DefaultSpeed      float64
	WaypointTolerance float64
	SlowdownRadius    float64
	AvoidanceRadius   float64
	AvoidanceWeight   float64
	MaxNeighbors      int
	Bounds            component.Rect
	CellSize          float64
}

// DefaultOrder processes the highest-detail tier first.
var DefaultOrder = []component.Tier{component.TierHigh, component.TierMedium, component.TierLow, component.TierOff}

// Stats counts what one Run did.
type Stats struct {
	Tick        uint64
	Updated     [component.TierCount]int
	Arrived     int
	NavFailures int
}

type frameEntry struct {
	pos  component.Vec2
	tier component.Tier
	seq  uint64
}

type staged struct {
	id      ecs.EntityID
	seq     uint64
	pos     component.Vec2
	motion  component.Motion
	nav     component.Nav
	heading float64
}

type neighbor struct {
	d2  float64
	seq uint64
	pos component.Vec2
}

// Pipeline owns the scratch buffers reused across ticks.
// Not safe for concurrent use.
type Pipeline struct {
	params Params
	nav    nav.Provider
	log    *zap.Logger

	tick   uint64
	frame  map[ecs.EntityID]frameEntry
	grid   *world.Grid
	staged []staged
	near   []neighbor
}

func NewPipeline(p Params, provider nav.Provider, log *zap.Logger) *Pipeline {
	if p.CellSize <= 0 {
		p.CellSize = math.Max(p.AvoidanceRadius, 1)
	}
	return &Pipeline{
		params: p,
		nav:    provider,
		log:    log,
		frame:  make(map[ecs.EntityID]frameEntry, 1024),
		grid:   world.NewGrid(p.CellSize),
	}
}

// SetParams swaps the parameters; takes effect on the next Run.
func (p *Pipeline) SetParams(params Params) {
	if params.CellSize <= 0 {
		params.CellSize = p.params.CellSize
	}
	if params.CellSize != p.params.CellSize {
		p.grid = world.NewGrid(params.CellSize)
	}
	p.params = params
}

// Params returns the active parameters.
func (p *Pipeline) Params() Params { return p.params }

// Tick returns the number of completed runs.
func (p *Pipeline) Tick() uint64 { return p.tick }

// Due reports whether tier t updates on the given tick.
func (p *Pipeline) Due(t component.Tier, tick uint64) bool {
	c := p.params.Cadence[t]
	return c > 0 && tick%uint64(c) == 0
}

// Step runs one tick in DefaultOrder.
func (p *Pipeline) Step(crowd *world.Crowd, dt time.Duration) Stats {
	return p.Run(crowd, dt, DefaultOrder)
}

// Run advances every due tier in the given order. All reads of other agents
// come from a frame captured before the first tier runs and all writes are
// committed after the last, so the order of tiers does not change the result.
func (p *Pipeline) Run(crowd *world.Crowd, dt time.Duration, order []component.Tier) Stats {
	st := Stats{Tick: p.tick}
	p.capture(crowd)

	p.staged = p.staged[:0]
	for _, t := range order {
		if t >= component.TierCount || !p.Due(t, p.tick) {
			continue
		}
		step := dt.Seconds() * float64(p.params.Cadence[t])
		crowd.ForEachInTier(t, func(id ecs.EntityID, a *component.Agent) bool {
			s := p.update(id, a, t, step, &st)
			p.staged = append(p.staged, s)
			st.Updated[t]++
			return true
		})
	}

	sort.Slice(p.staged, func(i, j int) bool { return p.staged[i].seq < p.staged[j].seq })
	for i := range p.staged {
		s := &p.staged[i]
		crowd.SetPosition(s.id, s.pos)
		if a, ok := crowd.Get(s.id); ok {
			a.Motion = s.motion
			a.Nav = s.nav
			a.Transform.Heading = s.heading
		}
	}
	p.tick++
	return st
}

func (p *Pipeline) capture(crowd *world.Crowd) {
	clear(p.frame)
	p.grid.Reset()
	crowd.ForEach(func(id ecs.EntityID, a *component.Agent) bool {
		p.frame[id] = frameEntry{pos: a.Transform.Pos, tier: a.LOD.Tier, seq: a.Life.Seq}
		if a.Transform.Pos.IsFinite() {
			p.grid.Add(id, a.Transform.Pos)
		}
		return true
	})
}

// update computes an agent's next state without touching the store.
func (p *Pipeline) update(id ecs.EntityID, a *component.Agent, tier component.Tier, step float64, st *Stats) staged {
	out := staged{
		id:      id,
		seq:     a.Life.Seq,
		pos:     a.Transform.Pos,
		motion:  a.Motion,
		nav:     a.Nav,
		heading: a.Transform.Heading,
	}
	if !out.pos.IsFinite() {
		out.motion.Vel, out.motion.DesiredVel = component.Vec2{}, component.Vec2{}
		out.motion.State = component.MoveIdle
		return out
	}
	speed := a.Motion.MaxSpeed
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		speed = p.params.DefaultSpeed
	}

	target, final, status := p.advance(id, out.pos, &out.nav, st)
	if status != seekWaypoint {
		out.motion.Vel, out.motion.DesiredVel = component.Vec2{}, component.Vec2{}
		switch {
		case status == pathExhausted:
			out.motion.State = component.MoveArrived
			st.Arrived++
		case status == pathInvalid || out.motion.State != component.MoveArrived:
			out.motion.State = component.MoveIdle
		}
		return out
	}

	toTarget := target.Sub(out.pos)
	dist := toTarget.Len()
	var vel component.Vec2
	switch tier {
	case component.TierHigh, component.TierMedium:
		desired := toTarget.Norm().Scale(speed)
		if final && p.params.SlowdownRadius > 0 {
			desired = desired.Scale(math.Min(math.Max(dist/p.params.SlowdownRadius, 0), 1))
		}
		limit := p.params.MaxNeighbors
		if tier == component.TierMedium {
			limit /= 2
		}
		push := p.separation(id, out.pos, tier, limit)
		out.motion.DesiredVel = desired
		vel = desired.Add(push.Scale(p.params.AvoidanceWeight * speed)).Clamp(speed)
	case component.TierLow:
		vel = toTarget.Norm().Scale(speed)
		out.motion.DesiredVel = vel
	default:
		return out
	}

	move := vel.Scale(step)
	next := out.pos.Add(move)
	// never step past the waypoint we are seeking
	if move.Len() >= dist && dist > 0 && vel.Dot(toTarget) > 0 {
		next = target
	}
	if !next.IsFinite() {
		out.motion.Vel = component.Vec2{}
		return out
	}
	if p.params.Bounds.Max.X > p.params.Bounds.Min.X {
		next = p.params.Bounds.ClampPoint(next)
	}
	out.pos = next
	out.motion.Vel = vel
	out.motion.State = component.MoveMoving
	if vel.LenSq() > 1e-12 {
		out.heading = vel.Heading()
	}
	return out
}

type seekStatus uint8

const (
	seekWaypoint seekStatus = iota
	noPath
	pathExhausted
	pathInvalid
)

// advance resolves the waypoint to seek, moving the cursor past reached
// waypoints. final reports that no waypoint follows the target.
func (p *Pipeline) advance(id ecs.EntityID, pos component.Vec2, n *component.Nav, st *Stats) (target component.Vec2, final bool, status seekStatus) {
	if n.Path.IsZero() || p.nav == nil {
		n.HasWaypoint = false
		return component.Vec2{}, false, noPath
	}
	accept := n.Acceptance
	if accept <= 0 {
		accept = p.params.WaypointTolerance
	}
	// bounded so a degenerate looping path cannot spin forever
	for i := 0; i < 8; i++ {
		if !n.HasWaypoint {
			wp, err := p.nav.ResolveNextWaypoint(n.Path, n.Cursor)
			if err != nil {
				n.Path = component.PathRef{}
				n.HasWaypoint = false
				if errors.Is(err, nav.ErrExhausted) {
					return component.Vec2{}, false, pathExhausted
				}
				st.NavFailures++
				p.log.Debug("navigation unavailable, holding",
					zap.Stringer("agent", id), zap.Error(err))
				return component.Vec2{}, false, pathInvalid
			}
			n.Waypoint, n.HasWaypoint = wp, true
		}
		if pos.Dist(n.Waypoint) > accept {
			_, err := p.nav.ResolveNextWaypoint(n.Path, n.Cursor+1)
			return n.Waypoint, err != nil, seekWaypoint
		}
		n.Cursor++
		n.HasWaypoint = false
	}
	return pos, false, seekWaypoint
}

// separation sums push-away vectors from the nearest neighbours in the same
// or a higher-detail tier, read from the captured frame.
func (p *Pipeline) separation(self ecs.EntityID, pos component.Vec2, tier component.Tier, limit int) component.Vec2 {
	r := p.params.AvoidanceRadius
	if r <= 0 || limit <= 0 {
		return component.Vec2{}
	}
	me := p.frame[self]
	r2 := r * r
	p.near = p.near[:0]
	p.grid.Candidates(pos, r, func(other ecs.EntityID) bool {
		if other == self {
			return true
		}
		f, ok := p.frame[other]
		if !ok || f.tier > tier {
			return true
		}
		if d2 := f.pos.DistSq(pos); d2 <= r2 {
			p.near = append(p.near, neighbor{d2: d2, seq: f.seq, pos: f.pos})
		}
		return true
	})
	sort.Slice(p.near, func(i, j int) bool {
		if p.near[i].d2 != p.near[j].d2 {
			return p.near[i].d2 < p.near[j].d2
		}
		return p.near[i].seq < p.near[j].seq
	})
	if len(p.near) > limit {
		p.near = p.near[:limit]
	}

	var push component.Vec2
	for _, nb := range p.near {
		d := math.Sqrt(nb.d2)
		var dir component.Vec2
		if d < 1e-9 {
			a := goldenAngle * float64(int64(me.seq)-int64(nb.seq))
			dir = component.Vec2{X: math.Cos(a), Y: math.Sin(a)}
		} else {
			dir = pos.Sub(nb.pos).Scale(1 / d)
		}
		push = push.Add(dir.Scale(1 - d/r))
	}
	return push
}
