package event

import (
	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
)

// AgentSpawned is emitted once per allocated agent.
type AgentSpawned struct {
	Handle    ecs.EntityID
	RequestID uint64
	Tags      component.TagSet
}

// AgentDespawned is emitted when an agent is queued for destruction.
type AgentDespawned struct {
	Handle ecs.EntityID
	Reason string
}

// TierChanged is emitted by a classification pass for every agent whose tier moved.
type TierChanged struct {
	Handle ecs.EntityID
	From   component.Tier
	To     component.Tier
}

// SpawnRejected reports agents dropped by the reject overflow policy.
type SpawnRejected struct {
	RequestID uint64
	Dropped   int
}

// SpawnExpired reports a request discarded because its deadline passed.
type SpawnExpired struct {
	RequestID uint64
	Remaining int
}

// SpawnFulfilled reports a request whose remaining count reached zero.
type SpawnFulfilled struct {
	RequestID uint64
	Spawned   int
}
