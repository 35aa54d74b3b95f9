package nav

import (
	"fmt"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/data"
)

type route struct {
	name       string
	loop       bool
	acceptance float64
	points     []component.Vec2
	revision   uint32
	removed    bool
}

// RouteProvider serves the static route table. Route ids start at 1 so the
// zero PathRef means "no path". Invalidate bumps a route's revision, which
// turns every outstanding reference to it stale.
type RouteProvider struct {
	routes []route
	byName map[string]uint32
}

func NewRouteProvider(t *data.RouteTable) *RouteProvider {
	p := &RouteProvider{byName: make(map[string]uint32)}
	if t != nil {
		for _, e := range t.All() {
			p.Put(e.Name, e.Waypoints, e.Loop, e.Acceptance)
		}
	}
	return p
}

// Put adds or replaces a route. Replacing invalidates earlier references.
func (p *RouteProvider) Put(name string, points []component.Vec2, loop bool, acceptance float64) uint32 {
	pts := make([]component.Vec2, len(points))
	copy(pts, points)
	if id, ok := p.byName[name]; ok {
		r := &p.routes[id-1]
		r.points, r.loop, r.acceptance, r.removed = pts, loop, acceptance, false
		r.revision++
		return id
	}
	p.routes = append(p.routes, route{name: name, loop: loop, acceptance: acceptance, points: pts, revision: 1})
	id := uint32(len(p.routes))
	p.byName[name] = id
	return id
}

// Acquire returns a reference to the current revision of a named route.
func (p *RouteProvider) Acquire(name string) (component.PathRef, error) {
	id, ok := p.byName[name]
	if !ok || p.routes[id-1].removed {
		return component.PathRef{}, fmt.Errorf("route %q: %w", name, ErrInvalidPath)
	}
	return component.PathRef{Route: id, Revision: p.routes[id-1].revision}, nil
}

// Acceptance returns the route's arrival radius override, 0 when unset.
func (p *RouteProvider) Acceptance(ref component.PathRef) float64 {
	r, ok := p.lookup(ref)
	if !ok {
		return 0
	}
	return r.acceptance
}

// Invalidate drops a route; outstanding references resolve as invalid.
func (p *RouteProvider) Invalidate(name string) bool {
	id, ok := p.byName[name]
	if !ok {
		return false
	}
	r := &p.routes[id-1]
	r.revision++
	r.removed = true
	return true
}

// Name returns the route name behind a reference, or "" when stale.
func (p *RouteProvider) Name(ref component.PathRef) string {
	r, ok := p.lookup(ref)
	if !ok {
		return ""
	}
	return r.name
}

// Count returns the number of live routes.
func (p *RouteProvider) Count() int {
	n := 0
	for i := range p.routes {
		if !p.routes[i].removed {
			n++
		}
	}
	return n
}

func (p *RouteProvider) lookup(ref component.PathRef) (*route, bool) {
	if ref.Route == 0 || int(ref.Route) > len(p.routes) {
		return nil, false
	}
	r := &p.routes[ref.Route-1]
	if r.removed || r.revision != ref.Revision {
		return nil, false
	}
	return r, true
}

func (p *RouteProvider) ResolveNextWaypoint(ref component.PathRef, cursor int) (component.Vec2, error) {
	r, ok := p.lookup(ref)
	if !ok || cursor < 0 {
		return component.Vec2{}, ErrInvalidPath
	}
	if r.loop {
		return r.points[cursor%len(r.points)], nil
	}
	if cursor >= len(r.points) {
		return component.Vec2{}, ErrExhausted
	}
	return r.points[cursor], nil
}
