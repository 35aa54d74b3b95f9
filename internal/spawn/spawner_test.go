package spawn

import (
	"errors"
	"testing"
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/core/event"
	"github.com/crowdlod/server/internal/data"
	"github.com/crowdlod/server/internal/nav"
	"github.com/crowdlod/server/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const tick = 50 * time.Millisecond

func newSpawner(t *testing.T, l Limits) (*Spawner, *world.Crowd, *event.Bus) {
	t.Helper()
	crowd := world.NewCrowd(ecs.NewWorld(), 4)
	bus := event.NewBus()
	routes := nav.NewRouteProvider(nil)
	routes.Put("patrol", []component.Vec2{{X: 5, Y: 5}}, false, 0.75)
	return NewSpawner(crowd, routes, bus, l, 42, zap.NewNop()), crowd, bus
}

func fill(t *testing.T, c *world.Crowd, n int) []ecs.EntityID {
	t.Helper()
	var ids []ecs.EntityID
	for i := 0; i < n; i++ {
		ids = append(ids, c.Allocate(component.Agent{}))
	}
	return ids
}

func TestDrain_CapacityRetain(t *testing.T) {
	s, crowd, _ := newSpawner(t, Limits{MaxLive: 10})
	ids := fill(t, crowd, 7)

	id, err := s.Enqueue(Request{Count: 5})
	require.NoError(t, err)
	res := s.Drain(tick, 1)
	assert.Equal(t, 3, res.Spawned)
	assert.Equal(t, 10, crowd.Count())

	pend := s.Pending()
	require.Len(t, pend, 1)
	assert.Equal(t, id, pend[0].ID)
	assert.Equal(t, 2, pend[0].Remaining)

	// remainder lands once room frees up
	crowd.Free(ids[0])
	crowd.Free(ids[1])
	res = s.Drain(2*tick, 2)
	assert.Equal(t, 2, res.Spawned)
	assert.Equal(t, 1, res.Fulfilled)
	assert.Zero(t, s.PendingCount())
}

func TestDrain_CapacityReject(t *testing.T) {
	s, crowd, bus := newSpawner(t, Limits{MaxLive: 10, Overflow: OverflowReject})
	fill(t, crowd, 7)
	var rejected []event.SpawnRejected
	event.Subscribe(bus, func(e event.SpawnRejected) { rejected = append(rejected, e) })

	var got []ecs.EntityID
	id, err := s.Enqueue(Request{Count: 5, OnSpawned: func(h []ecs.EntityID) { got = h }})
	require.NoError(t, err)
	res := s.Drain(tick, 1)
	assert.Equal(t, 3, res.Spawned)
	assert.Equal(t, 2, res.Rejected)
	assert.Equal(t, 10, crowd.Count())
	assert.Zero(t, s.PendingCount())
	assert.Len(t, got, 3)

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []event.SpawnRejected{{RequestID: id, Dropped: 2}}, rejected)
}

func TestDrain_RejectKeepsInCapacityPartQueued(t *testing.T) {
	s, crowd, bus := newSpawner(t, Limits{MaxLive: 10, MaxPerTick: 1, Overflow: OverflowReject})
	fill(t, crowd, 7)
	var rejected []event.SpawnRejected
	event.Subscribe(bus, func(e event.SpawnRejected) { rejected = append(rejected, e) })

	var got []ecs.EntityID
	id, err := s.Enqueue(Request{Count: 5, OnSpawned: func(h []ecs.EntityID) { got = h }})
	require.NoError(t, err)

	res := s.Drain(tick, 1)
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, 2, res.Rejected)
	require.Len(t, s.Pending(), 1)
	assert.Equal(t, 2, s.Pending()[0].Remaining)

	total := res.Spawned
	for i := 2; i <= 5; i++ {
		res = s.Drain(time.Duration(i)*tick, uint64(i))
		assert.Zero(t, res.Rejected)
		total += res.Spawned
	}
	assert.Equal(t, 3, total)
	assert.Equal(t, 10, crowd.Count())
	assert.Zero(t, s.PendingCount())
	assert.Len(t, got, 3)

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []event.SpawnRejected{{RequestID: id, Dropped: 2}}, rejected)
}

func TestDrain_RejectCountsRoomPromisedToEarlierRequests(t *testing.T) {
	s, crowd, _ := newSpawner(t, Limits{MaxLive: 6, MaxPerTick: 2, Overflow: OverflowReject})
	first, err := s.Enqueue(Request{Count: 4})
	require.NoError(t, err)
	_, err = s.Enqueue(Request{Count: 4})
	require.NoError(t, err)

	res := s.Drain(tick, 1)
	assert.Equal(t, 2, res.Spawned)
	assert.Equal(t, 2, res.Rejected, "only the second request overflows")
	pend := s.Pending()
	require.Len(t, pend, 2)
	assert.Equal(t, first, pend[0].ID)
	assert.Equal(t, 2, pend[0].Remaining)
	assert.Equal(t, 2, pend[1].Remaining)

	for i := 2; i <= 4; i++ {
		s.Drain(time.Duration(i)*tick, uint64(i))
	}
	assert.Equal(t, 6, crowd.Count())
	assert.Zero(t, s.PendingCount())
}

func TestDrain_CallbacksMayEnqueueAndCancel(t *testing.T) {
	s, crowd, _ := newSpawner(t, Limits{})
	var dropped, follow uint64
	expired, err := s.Enqueue(Request{Count: 1, ExpiresAt: tick})
	require.NoError(t, err)
	_, err = s.Enqueue(Request{Count: 1, OnSpawned: func([]ecs.EntityID) {
		dropped, _ = s.Enqueue(Request{Count: 3})
		follow, _ = s.Enqueue(Request{Count: 2})
	}})
	require.NoError(t, err)
	_, err = s.Enqueue(Request{Count: 1, OnSpawned: func([]ecs.EntityID) {
		assert.False(t, s.Cancel(expired), "expired requests already left the queue")
		assert.True(t, s.Cancel(dropped))
	}})
	require.NoError(t, err)

	res := s.Drain(tick, 1)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 2, res.Spawned)
	pend := s.Pending()
	require.Len(t, pend, 1)
	assert.Equal(t, follow, pend[0].ID)

	s.Drain(2*tick, 2)
	assert.Equal(t, 4, crowd.Count())
	assert.Zero(t, s.PendingCount())
}

func TestDrain_PerTickBudgetAndRates(t *testing.T) {
	s, crowd, _ := newSpawner(t, Limits{MaxPerTick: 4})
	_, err := s.Enqueue(Request{Count: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Drain(tick, 1).Spawned)
	assert.Equal(t, 4, s.Drain(2*tick, 2).Spawned)
	assert.Equal(t, 2, s.Drain(3*tick, 3).Spawned)
	assert.Equal(t, 10, crowd.Count())

	// 2 agents/s with burst 2: two immediately, then one per half second
	s, crowd, _ = newSpawner(t, Limits{})
	_, err = s.Enqueue(Request{Count: 6, Rate: 2})
	require.NoError(t, err)
	now := time.Duration(0)
	assert.Equal(t, 2, s.Drain(now, 0).Spawned)
	now += 250 * time.Millisecond
	assert.Equal(t, 0, s.Drain(now, 1).Spawned)
	now += 250 * time.Millisecond
	assert.Equal(t, 1, s.Drain(now, 2).Spawned)
	assert.Equal(t, 3, crowd.Count())
}

func TestDrain_GlobalAndTagRates(t *testing.T) {
	s, crowd, _ := newSpawner(t, Limits{
		GlobalRate:  10,
		GlobalBurst: 3,
		TagRates:    map[string]float64{"Guard": 1},
	})
	_, err := s.Enqueue(Request{Count: 5, Tags: []string{"guard"}})
	require.NoError(t, err)
	_, err = s.Enqueue(Request{Count: 5, Tags: []string{"civilian"}})
	require.NoError(t, err)

	res := s.Drain(0, 0)
	assert.Equal(t, 3, res.Spawned, "global burst caps the tick")
	guards := 0
	crowd.ForEach(func(_ ecs.EntityID, a *component.Agent) bool {
		if a.Tags.Has("guard") {
			guards++
		}
		return true
	})
	assert.Equal(t, 1, guards, "tag bucket allows one guard")
}

func TestDrain_ExpiredRequestsDiscarded(t *testing.T) {
	s, _, bus := newSpawner(t, Limits{MaxPerTick: 1})
	var expired []event.SpawnExpired
	event.Subscribe(bus, func(e event.SpawnExpired) { expired = append(expired, e) })
	id, err := s.Enqueue(Request{Count: 3, ExpiresAt: 2 * tick})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Drain(tick, 1).Spawned)
	res := s.Drain(2*tick, 2)
	assert.Equal(t, 1, res.Expired)
	assert.Zero(t, res.Spawned)
	assert.Zero(t, s.PendingCount())

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []event.SpawnExpired{{RequestID: id, Remaining: 2}}, expired)
}

func TestCancel_Idempotent(t *testing.T) {
	s, _, _ := newSpawner(t, Limits{})
	id, err := s.Enqueue(Request{Count: 1})
	require.NoError(t, err)
	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))
	assert.False(t, s.Cancel(999))
	assert.Zero(t, s.Drain(tick, 1).Spawned)
}

func TestEnqueue_RejectsMalformed(t *testing.T) {
	s, _, _ := newSpawner(t, Limits{})
	for _, req := range []Request{
		{Count: 0},
		{Count: 1, Radius: -1},
		{Count: 1, Location: component.Vec2{X: nan()}},
	} {
		_, err := s.Enqueue(req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Zero(t, s.PendingCount())
}

func TestSpawnNow_CapacityIsAllOrNothing(t *testing.T) {
	s, crowd, _ := newSpawner(t, Limits{MaxLive: 4})
	fill(t, crowd, 2)
	_, err := s.SpawnNow(Request{Count: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacity))
	assert.Equal(t, 2, crowd.Count())

	ids, err := s.SpawnNow(Request{Count: 2})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestAllocate_RecordFields(t *testing.T) {
	s, crowd, _ := newSpawner(t, Limits{InitialTier: component.TierLow, DefaultSpeed: 1.5})
	ids, err := s.SpawnNow(Request{
		Location: component.Vec2{X: 10, Y: 10},
		Radius:   3,
		Count:    20,
		Tags:     []string{"Guard", "guard"},
		Route:    "patrol",
	})
	require.NoError(t, err)
	for _, id := range ids {
		a, ok := crowd.Get(id)
		require.True(t, ok)
		assert.LessOrEqual(t, a.Transform.Pos.Dist(component.Vec2{X: 10, Y: 10}), 3.0+1e-9)
		assert.Equal(t, a.Transform.Pos, a.Life.Origin)
		assert.Equal(t, component.TierLow, a.LOD.Tier)
		assert.Equal(t, 1.5, a.Motion.MaxSpeed)
		assert.Equal(t, component.MoveMoving, a.Motion.State)
		assert.False(t, a.Nav.Path.IsZero())
		assert.Equal(t, 0.75, a.Nav.Acceptance)
		assert.Equal(t, component.TagSet{"guard"}, a.Tags)
	}
}

func TestScatter_DeterministicForSeed(t *testing.T) {
	place := func() []component.Vec2 {
		s, crowd, _ := newSpawner(t, Limits{})
		ids, err := s.SpawnNow(Request{Radius: 5, Count: 8})
		require.NoError(t, err)
		var out []component.Vec2
		for _, id := range ids {
			a, _ := crowd.Get(id)
			out = append(out, a.Transform.Pos)
		}
		return out
	}
	assert.Equal(t, place(), place())
}

func TestEnqueueAll_FromSpawnList(t *testing.T) {
	s, _, _ := newSpawner(t, Limits{})
	ids, errs := s.EnqueueAll([]data.SpawnEntry{
		{Name: "plaza", Count: 4, TTL: time.Minute},
		{Name: "broken", Count: 0},
	})
	assert.Len(t, ids, 1)
	assert.Len(t, errs, 1)
	pend := s.Pending()
	require.Len(t, pend, 1)
	assert.Equal(t, time.Minute, pend[0].ExpiresAt)
}
