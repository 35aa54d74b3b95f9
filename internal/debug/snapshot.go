// Package debug builds immutable point-in-time views of the crowd for
// debugger clients, and encodes them deterministically.
package debug

import (
	"fmt"
	"math"
	"strconv"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
)

// QueryKind names the debug queries.
type QueryKind uint8

const (
	QueryStats QueryKind = iota
	QueryHandle
	QueryRegion
	QueryRadius
	QueryTag
	QueryDump
	QueryPath
)

func (k QueryKind) String() string {
	switch k {
	case QueryStats:
		return "stats"
	case QueryHandle:
		return "select"
	case QueryRegion:
		return "region"
	case QueryRadius:
		return "radius"
	case QueryTag:
		return "tag"
	case QueryDump:
		return "dump"
	case QueryPath:
		return "path"
	default:
		return fmt.Sprintf("query(%d)", uint8(k))
	}
}

func (k QueryKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *QueryKind) UnmarshalText(b []byte) error {
	for q := QueryStats; q <= QueryPath; q++ {
		if q.String() == string(b) {
			*k = q
			return nil
		}
	}
	return fmt.Errorf("unknown query %q", b)
}

// Float is a float64 whose JSON form survives NaN and infinities, which show
// up for pinned agents.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"NaN"`:
		*f = Float(math.NaN())
		return nil
	case `"+Inf"`:
		*f = Float(math.Inf(1))
		return nil
	case `"-Inf"`:
		*f = Float(math.Inf(-1))
		return nil
	case "null":
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse float %s: %w", b, err)
	}
	*f = Float(v)
	return nil
}

// Point is a Vec2 in snapshot form.
type Point struct {
	X Float `json:"x" yaml:"x"`
	Y Float `json:"y" yaml:"y"`
}

func pointOf(v component.Vec2) Point { return Point{X: Float(v.X), Y: Float(v.Y)} }

func (p Point) Vec2() component.Vec2 { return component.Vec2{X: float64(p.X), Y: float64(p.Y)} }

// Query records what produced a snapshot.
type Query struct {
	Kind   QueryKind    `json:"kind" yaml:"kind"`
	Handle ecs.EntityID `json:"handle,omitempty" yaml:"handle,omitempty"`
	Min    *Point       `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *Point       `json:"max,omitempty" yaml:"max,omitempty"`
	Center *Point       `json:"center,omitempty" yaml:"center,omitempty"`
	Radius Float        `json:"radius,omitempty" yaml:"radius,omitempty"`
	Tag    string       `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// AgentView is a copy of one agent record plus its debug slot.
type AgentView struct {
	Handle      ecs.EntityID `json:"handle" yaml:"handle"`
	Slot        int          `json:"slot" yaml:"slot"`
	Seq         uint64       `json:"seq" yaml:"seq"`
	Pos         Point        `json:"pos" yaml:"pos"`
	Heading     Float        `json:"heading" yaml:"heading"`
	Vel         Point        `json:"vel" yaml:"vel"`
	DesiredVel  Point        `json:"desired_vel" yaml:"desired_vel"`
	MaxSpeed    Float        `json:"max_speed" yaml:"max_speed"`
	State       string       `json:"state" yaml:"state"`
	Route       uint32       `json:"route" yaml:"route"`
	Revision    uint32       `json:"revision" yaml:"revision"`
	Cursor      int          `json:"cursor" yaml:"cursor"`
	HasWaypoint bool         `json:"has_waypoint" yaml:"has_waypoint"`
	Waypoint    Point        `json:"waypoint" yaml:"waypoint"`
	Acceptance  Float        `json:"acceptance" yaml:"acceptance"`
	Tier        string       `json:"tier" yaml:"tier"`
	Score       Float        `json:"score" yaml:"score"`
	LastPass    uint64       `json:"last_pass" yaml:"last_pass"`
	SpawnTick   uint64       `json:"spawn_tick" yaml:"spawn_tick"`
	SpawnedAtMs int64        `json:"spawned_at_ms" yaml:"spawned_at_ms"`
	Origin      Point        `json:"origin" yaml:"origin"`
	RequestID   uint64       `json:"request_id" yaml:"request_id"`
	Tags        []string     `json:"tags" yaml:"tags"`
}

func viewOf(id ecs.EntityID, a *component.Agent) AgentView {
	tags := make([]string, len(a.Tags))
	copy(tags, a.Tags) // TagSet is kept sorted
	return AgentView{
		Handle:      id,
		Slot:        a.Life.Slot,
		Seq:         a.Life.Seq,
		Pos:         pointOf(a.Transform.Pos),
		Heading:     Float(a.Transform.Heading),
		Vel:         pointOf(a.Motion.Vel),
		DesiredVel:  pointOf(a.Motion.DesiredVel),
		MaxSpeed:    Float(a.Motion.MaxSpeed),
		State:       a.Motion.State.String(),
		Route:       a.Nav.Path.Route,
		Revision:    a.Nav.Path.Revision,
		Cursor:      a.Nav.Cursor,
		HasWaypoint: a.Nav.HasWaypoint,
		Waypoint:    pointOf(a.Nav.Waypoint),
		Acceptance:  Float(a.Nav.Acceptance),
		Tier:        a.LOD.Tier.String(),
		Score:       Float(a.LOD.Score),
		LastPass:    a.LOD.LastPass,
		SpawnTick:   a.Life.SpawnTick,
		SpawnedAtMs: a.Life.SpawnedAt.Milliseconds(),
		Origin:      pointOf(a.Life.Origin),
		RequestID:   a.Life.RequestID,
		Tags:        tags,
	}
}

// TierCounts is the number of agents per tier.
type TierCounts struct {
	High   int `json:"high" yaml:"high"`
	Medium int `json:"medium" yaml:"medium"`
	Low    int `json:"low" yaml:"low"`
	Off    int `json:"off" yaml:"off"`
}

// Stats are the store-wide counters.
type Stats struct {
	Tick               uint64     `json:"tick" yaml:"tick"`
	Live               int        `json:"live" yaml:"live"`
	Pooled             int        `json:"pooled" yaml:"pooled"`
	Tiers              TierCounts `json:"tiers" yaml:"tiers"`
	PendingRequests    int        `json:"pending_requests" yaml:"pending_requests"`
	PendingDestruction int        `json:"pending_destruction" yaml:"pending_destruction"`
	Spawned            uint64     `json:"spawned" yaml:"spawned"`
	LODPasses          uint64     `json:"lod_passes" yaml:"lod_passes"`
}

// Path status values.
const (
	PathOK        = "ok"
	PathNone      = "none"
	PathExhausted = "exhausted"
	PathInvalid   = "invalid"
)

// PathView lists an agent's remaining waypoints.
type PathView struct {
	Handle    ecs.EntityID `json:"handle" yaml:"handle"`
	Status    string       `json:"status" yaml:"status"`
	Cursor    int          `json:"cursor" yaml:"cursor"`
	Position  Point        `json:"position" yaml:"position"`
	Waypoints []Point      `json:"waypoints" yaml:"waypoints"`
}

// Snapshot is an immutable result of one debug query. Agents are ordered
// by insertion sequence.
type Snapshot struct {
	Tick    uint64         `json:"tick" yaml:"tick"`
	Query   Query          `json:"query" yaml:"query"`
	Agents  []AgentView    `json:"agents" yaml:"agents"`
	Missing []ecs.EntityID `json:"missing,omitempty" yaml:"missing,omitempty"`
	Stats   *Stats         `json:"stats,omitempty" yaml:"stats,omitempty"`
	Path    *PathView      `json:"path,omitempty" yaml:"path,omitempty"`
}

// NotFound reports whether the snapshot answered a handle query with nothing.
func (s *Snapshot) NotFound() bool { return len(s.Missing) > 0 }
