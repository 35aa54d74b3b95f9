package spawn

import (
	"math"
	"testing"
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/core/event"
	"github.com/crowdlod/server/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nan() float64 { return math.NaN() }

func TestExpirer_Rules(t *testing.T) {
	bounds := component.Rect{Min: component.Vec2{X: -10, Y: -10}, Max: component.Vec2{X: 10, Y: 10}}
	e := NewExpirer(ExpiryPolicy{
		MaxLifetime:      time.Minute,
		MaxDistance:      5,
		Bounds:           bounds,
		OutOfBounds:      true,
		DespawnTags:      []string{"Ghost"},
		DespawnOnArrival: true,
	})
	cases := []struct {
		name   string
		agent  component.Agent
		reason string
	}{
		{"fresh", component.Agent{}, ""},
		{"old", component.Agent{Life: component.Life{SpawnedAt: -2 * time.Minute}}, ReasonLifetime},
		{"wandered", component.Agent{Transform: component.Transform{Pos: component.Vec2{X: 6}}}, ReasonDistance},
		{"outside", component.Agent{
			Transform: component.Transform{Pos: component.Vec2{X: 12}},
			Life:      component.Life{Origin: component.Vec2{X: 12}},
		}, ReasonBounds},
		{"tagged", component.Agent{Tags: component.NewTagSet("ghost")}, ReasonTag},
		{"arrived", component.Agent{Motion: component.Motion{State: component.MoveArrived}}, ReasonArrived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := tc.agent
			ok, reason := e.Check(0, &a, 0)
			assert.Equal(t, tc.reason != "", ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestExpirer_SweepDefersFree(t *testing.T) {
	crowd := world.NewCrowd(ecs.NewWorld(), 4)
	keep := crowd.Allocate(component.Agent{})
	drop := crowd.Allocate(component.Agent{Tags: component.NewTagSet("temp")})
	bus := event.NewBus()
	var despawned []event.AgentDespawned
	event.Subscribe(bus, func(e event.AgentDespawned) { despawned = append(despawned, e) })

	e := NewExpirer(ExpiryPolicy{})
	e.SetHook(func(_ ecs.EntityID, a *component.Agent, _ time.Duration) (bool, string) {
		if a.Tags.Has("temp") {
			return true, "script"
		}
		return false, ""
	})

	out := e.Sweep(crowd, time.Second, bus)
	require.Equal(t, []Expired{{Handle: drop, Reason: "script"}}, out)
	assert.True(t, crowd.Alive(drop), "freed only at cleanup")
	assert.Equal(t, 1, crowd.PendingDestruction())

	assert.Equal(t, 1, crowd.FlushDestroyed())
	assert.False(t, crowd.Alive(drop))
	assert.True(t, crowd.Alive(keep))

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []event.AgentDespawned{{Handle: drop, Reason: "script"}}, despawned)
}
