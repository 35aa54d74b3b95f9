package system

import (
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/scripting"
)

// AgentContext builds the read-only script view of an agent.
func AgentContext(id ecs.EntityID, a *component.Agent, now time.Duration) scripting.AgentContext {
	return scripting.AgentContext{
		Handle:       id.String(),
		X:            a.Transform.Pos.X,
		Y:            a.Transform.Pos.Y,
		Speed:        a.Motion.Vel.Len(),
		Tier:         a.LOD.Tier.String(),
		State:        a.Motion.State.String(),
		Tags:         a.Tags,
		AgeSeconds:   (now - a.Life.SpawnedAt).Seconds(),
		DistToOrigin: a.Transform.Pos.Dist(a.Life.Origin),
		Cursor:       a.Nav.Cursor,
	}
}
