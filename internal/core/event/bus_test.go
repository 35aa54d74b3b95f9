package event

import (
	"testing"

	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/stretchr/testify/assert"
)

func TestBus_EventsVisibleNextTick(t *testing.T) {
	b := NewBus()
	var got []ecs.EntityID
	Subscribe(b, func(e AgentDespawned) { got = append(got, e.Handle) })

	Emit(b, AgentDespawned{Handle: ecs.NewEntityID(1, 1), Reason: "lifetime"})
	assert.Equal(t, 1, b.Pending())
	b.DispatchAll()
	assert.Empty(t, got, "not delivered before swap")

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []ecs.EntityID{ecs.NewEntityID(1, 1)}, got)
	assert.Equal(t, 0, b.Pending())

	b.SwapBuffers()
	b.DispatchAll()
	assert.Len(t, got, 1, "front cleared after the next swap")
}

func TestBus_DispatchOrderFollowsFirstSeen(t *testing.T) {
	b := NewBus()
	var order []string
	Subscribe(b, func(SpawnRejected) { order = append(order, "rejected") })
	Subscribe(b, func(SpawnExpired) { order = append(order, "expired") })

	Emit(b, SpawnExpired{RequestID: 1})
	Emit(b, SpawnRejected{RequestID: 2})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []string{"rejected", "expired"}, order)
}

func TestBus_DispatchedCountsEventsNotHandlers(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, func(TierChanged) { calls++ })
	Subscribe(b, func(TierChanged) { calls++ })

	Emit(b, TierChanged{})
	Emit(b, TierChanged{})
	Emit(b, SpawnFulfilled{RequestID: 7})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 4, calls)
	assert.Equal(t, uint64(3), b.Dispatched(), "unsubscribed types still count")
}
