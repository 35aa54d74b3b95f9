package world

import (
	"container/heap"
	"errors"
	"sort"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
)

// ErrNotFound is returned for handles that are zero, freed or stale.
var ErrNotFound = errors.New("agent not found")

// Crowd is the agent store: a dense table of agent records addressed by
// generational handles, with per-tier membership lists and a spatial grid.
// Single-writer: only the simulation goroutine touches it.
//
// Pointers returned by Get stay valid until the next Allocate; handles stay
// valid until the agent is freed.
type Crowd struct {
	ecs    *ecs.World
	agents *ecs.Table[component.Agent]
	grid   *Grid

	order      []ecs.EntityID // insertion order, may hold freed handles until rebuilt
	tiers      [component.TierCount][]ecs.EntityID
	tiersDirty bool

	nextSeq   uint64
	nextSlot  int
	freeSlots slotHeap
}

// NewCrowd creates an empty store on top of w. cellSize sets the spatial grid resolution.
func NewCrowd(w *ecs.World, cellSize float64) *Crowd {
	c := &Crowd{
		ecs:    w,
		agents: ecs.NewTable[component.Agent](1024),
		grid:   NewGrid(cellSize),
		order:  make([]ecs.EntityID, 0, 1024),
	}
	w.Registry().Register("agents", c.agents)
	w.OnDestroy(c.release)
	return c
}

// ECS returns the underlying entity world.
func (c *Crowd) ECS() *ecs.World { return c.ecs }

// Allocate inserts a new agent and returns its handle. The record's insertion
// sequence and debug slot are assigned here; everything else is taken from init.
func (c *Crowd) Allocate(init component.Agent) ecs.EntityID {
	id := c.ecs.CreateEntity()
	c.nextSeq++
	init.Life.Seq = c.nextSeq
	init.Life.Slot = c.takeSlot()
	if init.LOD.Tier >= component.TierCount {
		init.LOD.Tier = component.TierOff
	}
	c.agents.Set(id, init)
	c.order = append(c.order, id)
	if !c.tiersDirty {
		c.tiers[init.LOD.Tier] = append(c.tiers[init.LOD.Tier], id)
	}
	c.grid.Add(id, init.Transform.Pos)
	return id
}

// Free removes an agent immediately. Returns false for stale handles.
// Only the cleanup phase calls this; everyone else uses MarkForDestruction.
func (c *Crowd) Free(id ecs.EntityID) bool {
	return c.ecs.DestroyEntity(id)
}

// MarkForDestruction defers freeing until FlushDestroyed.
func (c *Crowd) MarkForDestruction(id ecs.EntityID) {
	c.ecs.MarkForDestruction(id)
}

// FlushDestroyed frees every queued agent. Returns the number freed.
func (c *Crowd) FlushDestroyed() int {
	return c.ecs.FlushDestroyQueue()
}

// PendingDestruction returns the number of agents queued for freeing.
func (c *Crowd) PendingDestruction() int {
	return c.ecs.PendingDestruction()
}

// release runs from the ECS destroy hook while the row is still readable.
func (c *Crowd) release(id ecs.EntityID) {
	a, ok := c.agents.Get(id)
	if !ok {
		return
	}
	c.grid.Remove(id, a.Transform.Pos)
	heap.Push(&c.freeSlots, a.Life.Slot)
	c.tiersDirty = true
}

// Get returns the agent's record, or false when the handle is not live.
func (c *Crowd) Get(id ecs.EntityID) (*component.Agent, bool) {
	if !c.ecs.Alive(id) {
		return nil, false
	}
	return c.agents.Get(id)
}

// Lookup is Get with an error for callers that report failures.
func (c *Crowd) Lookup(id ecs.EntityID) (*component.Agent, error) {
	a, ok := c.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// Alive reports whether id names a live agent.
func (c *Crowd) Alive(id ecs.EntityID) bool {
	return c.ecs.Alive(id)
}

// Count returns the number of live agents.
func (c *Crowd) Count() int { return c.agents.Len() }

// PooledSlots returns the number of freed slots ready for reuse.
func (c *Crowd) PooledSlots() int { return c.ecs.Pool().Pooled() }

// SetTier moves an agent to tier t. Membership lists are rebuilt lazily in
// insertion order, which drops any earlier explicit reorder.
func (c *Crowd) SetTier(id ecs.EntityID, t component.Tier) bool {
	a, ok := c.Get(id)
	if !ok || t >= component.TierCount {
		return false
	}
	if a.LOD.Tier != t {
		a.LOD.Tier = t
		c.tiersDirty = true
	}
	return true
}

// SetPosition moves an agent and keeps the spatial grid in sync.
func (c *Crowd) SetPosition(id ecs.EntityID, p component.Vec2) bool {
	a, ok := c.Get(id)
	if !ok {
		return false
	}
	c.grid.Move(id, a.Transform.Pos, p)
	a.Transform.Pos = p
	return true
}

func (c *Crowd) ensureTiers() {
	if !c.tiersDirty {
		return
	}
	for i := range c.tiers {
		c.tiers[i] = c.tiers[i][:0]
	}
	n := 0
	for _, id := range c.order {
		a, ok := c.Get(id)
		if !ok {
			continue
		}
		c.order[n] = id
		n++
		c.tiers[a.LOD.Tier] = append(c.tiers[a.LOD.Tier], id)
	}
	clear(c.order[n:])
	c.order = c.order[:n]
	c.tiersDirty = false
}

// ReorderTier sorts tier t's membership list with less. The order holds
// until the next tier change or free.
func (c *Crowd) ReorderTier(t component.Tier, less func(a, b *component.Agent) bool) {
	if t >= component.TierCount {
		return
	}
	c.ensureTiers()
	list := c.tiers[t]
	sort.SliceStable(list, func(i, j int) bool {
		a, _ := c.agents.Get(list[i])
		b, _ := c.agents.Get(list[j])
		return less(a, b)
	})
}

// TierCount returns the number of agents currently in tier t.
func (c *Crowd) TierCount(t component.Tier) int {
	if t >= component.TierCount {
		return 0
	}
	c.ensureTiers()
	return len(c.tiers[t])
}

// TierMembers returns a copy of tier t's membership list.
func (c *Crowd) TierMembers(t component.Tier) []ecs.EntityID {
	if t >= component.TierCount {
		return nil
	}
	c.ensureTiers()
	out := make([]ecs.EntityID, len(c.tiers[t]))
	copy(out, c.tiers[t])
	return out
}

// ForEachInTier visits tier t's agents in membership order. fn must not
// allocate, free or re-tier agents; iteration stops when fn returns false.
func (c *Crowd) ForEachInTier(t component.Tier, fn func(ecs.EntityID, *component.Agent) bool) {
	if t >= component.TierCount {
		return
	}
	c.ensureTiers()
	for _, id := range c.tiers[t] {
		a, ok := c.agents.Get(id)
		if !ok {
			continue
		}
		if !fn(id, a) {
			return
		}
	}
}

// ForEach visits every live agent in insertion order. Same rules as ForEachInTier.
func (c *Crowd) ForEach(fn func(ecs.EntityID, *component.Agent) bool) {
	c.ensureTiers()
	for _, id := range c.order {
		a, ok := c.agents.Get(id)
		if !ok {
			continue
		}
		if !fn(id, a) {
			return
		}
	}
}

// InRegion returns the live agents inside r ordered by insertion sequence.
func (c *Crowd) InRegion(r component.Rect) []ecs.EntityID {
	r = r.Normalized()
	var out []ecs.EntityID
	c.grid.Within(r, func(id ecs.EntityID) bool {
		if a, ok := c.agents.Get(id); ok && r.Contains(a.Transform.Pos) {
			out = append(out, id)
		}
		return true
	})
	c.sortBySeq(out)
	return out
}

// Nearby returns the live agents within radius of center ordered by insertion sequence.
func (c *Crowd) Nearby(center component.Vec2, radius float64) []ecs.EntityID {
	var out []ecs.EntityID
	r2 := radius * radius
	c.grid.Candidates(center, radius, func(id ecs.EntityID) bool {
		if a, ok := c.agents.Get(id); ok && a.Transform.Pos.DistSq(center) <= r2 {
			out = append(out, id)
		}
		return true
	})
	c.sortBySeq(out)
	return out
}

func (c *Crowd) sortBySeq(ids []ecs.EntityID) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := c.agents.Get(ids[i])
		b, _ := c.agents.Get(ids[j])
		return a.Life.Seq < b.Life.Seq
	})
}

// RenderItem is the per-agent projection handed to the presentation layer.
type RenderItem struct {
	Handle  ecs.EntityID
	Pos     component.Vec2
	Heading float64
	Tier    component.Tier
}

// Project visits a render projection of every agent not in the Off tier,
// in insertion order.
func (c *Crowd) Project(fn func(RenderItem)) {
	c.ForEach(func(id ecs.EntityID, a *component.Agent) bool {
		if a.LOD.Tier != component.TierOff {
			fn(RenderItem{Handle: id, Pos: a.Transform.Pos, Heading: a.Transform.Heading, Tier: a.LOD.Tier})
		}
		return true
	})
}

func (c *Crowd) takeSlot() int {
	if c.freeSlots.Len() > 0 {
		return heap.Pop(&c.freeSlots).(int)
	}
	s := c.nextSlot
	c.nextSlot++
	return s
}

// slotHeap hands out the lowest free debug slot first.
type slotHeap []int

func (h slotHeap) Len() int           { return len(h) }
func (h slotHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h slotHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *slotHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *slotHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
