package debug

import (
	"errors"
	"math"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/nav"
	"github.com/crowdlod/server/internal/world"
)

// pathPreview bounds how many waypoints a path query resolves.
const pathPreview = 256

// ErrMalformed is returned for queries with unusable parameters.
var ErrMalformed = errors.New("malformed query")

// Bridge answers debug queries against the crowd store. It must only be
// called between completed passes; every call copies what it returns.
type Bridge struct {
	crowd *world.Crowd
	nav   nav.Provider
	tick  func() uint64
	stats func(*Stats)
}

func NewBridge(crowd *world.Crowd, provider nav.Provider) *Bridge {
	return &Bridge{crowd: crowd, nav: provider, tick: func() uint64 { return 0 }}
}

// SetClock supplies the current tick number stamped on every snapshot.
func (b *Bridge) SetClock(fn func() uint64) { b.tick = fn }

// SetStatsHook lets other subsystems add their counters to Stats.
func (b *Bridge) SetStatsHook(fn func(*Stats)) { b.stats = fn }

func (b *Bridge) snapshot(q Query, ids []ecs.EntityID) *Snapshot {
	s := &Snapshot{Tick: b.tick(), Query: q, Agents: make([]AgentView, 0, len(ids))}
	for _, id := range ids {
		if a, ok := b.crowd.Get(id); ok {
			s.Agents = append(s.Agents, viewOf(id, a))
		}
	}
	return s
}

// SelectHandle returns one agent, or a snapshot listing h as missing.
func (b *Bridge) SelectHandle(h ecs.EntityID) *Snapshot {
	q := Query{Kind: QueryHandle, Handle: h}
	if !b.crowd.Alive(h) {
		s := b.snapshot(q, nil)
		s.Missing = []ecs.EntityID{h}
		return s
	}
	return b.snapshot(q, []ecs.EntityID{h})
}

// SelectRegion returns the agents inside r.
func (b *Bridge) SelectRegion(r component.Rect) (*Snapshot, error) {
	if !r.Min.IsFinite() || !r.Max.IsFinite() {
		return nil, ErrMalformed
	}
	r = r.Normalized()
	lo, hi := pointOf(r.Min), pointOf(r.Max)
	return b.snapshot(Query{Kind: QueryRegion, Min: &lo, Max: &hi}, b.crowd.InRegion(r)), nil
}

// SelectRadius returns the agents within radius of center.
func (b *Bridge) SelectRadius(center component.Vec2, radius float64) (*Snapshot, error) {
	if !center.IsFinite() || radius < 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil, ErrMalformed
	}
	c := pointOf(center)
	q := Query{Kind: QueryRadius, Center: &c, Radius: Float(radius)}
	return b.snapshot(q, b.crowd.Nearby(center, radius)), nil
}

// ListByTag returns the agents carrying tag.
func (b *Bridge) ListByTag(tag string) (*Snapshot, error) {
	folded := component.FoldTag(tag)
	if folded == "" {
		return nil, ErrMalformed
	}
	var ids []ecs.EntityID
	b.crowd.ForEach(func(id ecs.EntityID, a *component.Agent) bool {
		if a.Tags.Has(folded) {
			ids = append(ids, id)
		}
		return true
	})
	return b.snapshot(Query{Kind: QueryTag, Tag: folded}, ids), nil
}

// DumpFull returns every live agent.
func (b *Bridge) DumpFull() *Snapshot {
	ids := make([]ecs.EntityID, 0, b.crowd.Count())
	b.crowd.ForEach(func(id ecs.EntityID, _ *component.Agent) bool {
		ids = append(ids, id)
		return true
	})
	return b.snapshot(Query{Kind: QueryDump}, ids)
}

// Stats returns the store-wide counters.
func (b *Bridge) Stats() *Snapshot {
	st := b.collectStats()
	s := b.snapshot(Query{Kind: QueryStats}, nil)
	s.Stats = &st
	return s
}

func (b *Bridge) collectStats() Stats {
	st := Stats{
		Tick:               b.tick(),
		Live:               b.crowd.Count(),
		Pooled:             b.crowd.PooledSlots(),
		PendingDestruction: b.crowd.PendingDestruction(),
		Tiers: TierCounts{
			High:   b.crowd.TierCount(component.TierHigh),
			Medium: b.crowd.TierCount(component.TierMedium),
			Low:    b.crowd.TierCount(component.TierLow),
			Off:    b.crowd.TierCount(component.TierOff),
		},
	}
	if b.stats != nil {
		b.stats(&st)
	}
	return st
}

// Path resolves the agent's remaining waypoints for visualisation.
func (b *Bridge) Path(h ecs.EntityID) *Snapshot {
	s := b.SelectHandle(h)
	s.Query.Kind = QueryPath
	if s.NotFound() {
		return s
	}
	a, _ := b.crowd.Get(h)
	pv := &PathView{
		Handle:    h,
		Cursor:    a.Nav.Cursor,
		Position:  pointOf(a.Transform.Pos),
		Waypoints: []Point{},
	}
	s.Path = pv
	if a.Nav.Path.IsZero() || b.nav == nil {
		pv.Status = PathNone
		return s
	}
	pts, err := nav.Remaining(b.nav, a.Nav.Path, a.Nav.Cursor, pathPreview)
	for _, p := range pts {
		pv.Waypoints = append(pv.Waypoints, pointOf(p))
	}
	switch {
	case errors.Is(err, nav.ErrInvalidPath):
		pv.Status = PathInvalid
	case len(pts) == 0:
		pv.Status = PathExhausted
	default:
		pv.Status = PathOK
	}
	return s
}
