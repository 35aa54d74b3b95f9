package spawn

import (
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/core/event"
	"github.com/crowdlod/server/internal/world"
)

// Despawn reasons reported in AgentDespawned.
const (
	ReasonLifetime = "lifetime"
	ReasonDistance = "distance"
	ReasonBounds   = "out_of_bounds"
	ReasonTag      = "tag"
	ReasonArrived  = "arrived"
	ReasonManual   = "manual"
)

// ExpiryPolicy lists the built-in retirement rules. Zero values disable a rule.
type ExpiryPolicy struct {
	MaxLifetime      time.Duration
	MaxDistance      float64
	Bounds           component.Rect
	OutOfBounds      bool
	DespawnTags      []string
	DespawnOnArrival bool
}

// ExpiryHook is an extra predicate evaluated after the built-in rules.
type ExpiryHook func(id ecs.EntityID, a *component.Agent, now time.Duration) (bool, string)

// Expired names an agent queued for destruction by a sweep.
type Expired struct {
	Handle ecs.EntityID
	Reason string
}

// Expirer evaluates the expiry predicate over the crowd.
type Expirer struct {
	policy ExpiryPolicy
	hook   ExpiryHook
}

func NewExpirer(p ExpiryPolicy) *Expirer {
	return &Expirer{policy: p}
}

func (e *Expirer) SetPolicy(p ExpiryPolicy) { e.policy = p }
func (e *Expirer) Policy() ExpiryPolicy     { return e.policy }
func (e *Expirer) SetHook(h ExpiryHook)     { e.hook = h }

// Check reports whether a should be retired and why.
func (e *Expirer) Check(id ecs.EntityID, a *component.Agent, now time.Duration) (bool, string) {
	p := &e.policy
	if p.MaxLifetime > 0 && now-a.Life.SpawnedAt >= p.MaxLifetime {
		return true, ReasonLifetime
	}
	if p.MaxDistance > 0 && a.Transform.Pos.Dist(a.Life.Origin) > p.MaxDistance {
		return true, ReasonDistance
	}
	if p.OutOfBounds && p.Bounds.Max.X > p.Bounds.Min.X && !p.Bounds.Contains(a.Transform.Pos) {
		return true, ReasonBounds
	}
	if len(p.DespawnTags) > 0 && a.Tags.HasAny(p.DespawnTags) {
		return true, ReasonTag
	}
	if p.DespawnOnArrival && a.Motion.State == component.MoveArrived {
		return true, ReasonArrived
	}
	if e.hook != nil {
		return e.hook(id, a, now)
	}
	return false, ""
}

// Sweep marks every matching agent for destruction. Nothing is freed here;
// the cleanup phase flushes the queue.
func (e *Expirer) Sweep(crowd *world.Crowd, now time.Duration, bus *event.Bus) []Expired {
	var out []Expired
	crowd.ForEach(func(id ecs.EntityID, a *component.Agent) bool {
		if ok, reason := e.Check(id, a, now); ok {
			out = append(out, Expired{Handle: id, Reason: reason})
		}
		return true
	})
	for _, x := range out {
		crowd.MarkForDestruction(x.Handle)
		if bus != nil {
			event.Emit(bus, event.AgentDespawned{Handle: x.Handle, Reason: x.Reason})
		}
	}
	return out
}
