package component

import "time"

// Transform is the agent's placement in the world.
type Transform struct {
	Pos     Vec2
	Heading float64 // radians
}

// Motion holds the last integrated velocity and the steering target velocity.
type Motion struct {
	Vel        Vec2
	DesiredVel Vec2
	MaxSpeed   float64
	State      MoveState
}

// PathRef is a weak reference into the navigation provider's path cache.
// The provider may invalidate it at any time.
type PathRef struct {
	Route    uint32
	Revision uint32
}

func (p PathRef) IsZero() bool { return p.Route == 0 }

// Nav tracks progress along a path.
type Nav struct {
	Path        PathRef
	Cursor      int
	Waypoint    Vec2
	HasWaypoint bool
	Acceptance  float64 // metres; 0 uses the configured tolerance
}

// LOD holds the classifier's last decision for the agent.
type LOD struct {
	Tier     Tier
	Score    float64
	LastPass uint64
}

// Life records where and when the agent entered the simulation.
type Life struct {
	Seq       uint64 // insertion order, unique and monotonically increasing
	Slot      int    // stable debug slot
	SpawnTick uint64
	SpawnedAt time.Duration // simulation time
	Origin    Vec2
	RequestID uint64
}

// Agent is one row of the crowd store.
// Pure data, zero methods. All mutations happen in systems.
type Agent struct {
	Transform Transform
	Motion    Motion
	Nav       Nav
	LOD       LOD
	Life      Life
	Tags      TagSet
}
