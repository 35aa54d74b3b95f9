// Package lod assigns every agent a level-of-detail tier from a priority
// score under fixed per-tier capacities.
package lod

import (
	"math"
	"sort"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/core/event"
	"github.com/crowdlod/server/internal/world"
)

// ImportanceFunc returns an extra multiplier for an agent's score.
// Non-finite or negative results pin the agent to Off.
type ImportanceFunc func(ecs.EntityID, *component.Agent) float64

// Policy is the classifier's tunable state.
type Policy struct {
	// Capacity per tier; the Off entry is ignored since Off is unbounded.
	Capacity       [component.TierCount]int
	TagImportance  map[string]float64
	ReorderByScore bool
}

// PassResult summarises one classification pass.
type PassResult struct {
	Pass    uint64
	Counts  [component.TierCount]int
	Changed int
	Pinned  int
}

type candidate struct {
	id     ecs.EntityID
	score  float64
	pinned bool
}

// Classifier ranks agents and fills tiers from High down.
// Not safe for concurrent use; it runs inside the simulation loop.
type Classifier struct {
	policy     Policy
	weights    map[string]float64
	viewers    []component.Vec2
	importance ImportanceFunc
	pass       uint64
	scratch    []candidate
}

func NewClassifier(p Policy) *Classifier {
	c := &Classifier{}
	c.SetPolicy(p)
	return c
}

// SetPolicy swaps capacities and weights; takes effect on the next pass.
func (c *Classifier) SetPolicy(p Policy) {
	for i := range p.Capacity {
		if p.Capacity[i] < 0 {
			p.Capacity[i] = 0
		}
	}
	c.policy = p
	c.weights = make(map[string]float64, len(p.TagImportance))
	for tag, w := range p.TagImportance {
		c.weights[component.FoldTag(tag)] = w
	}
}

// Policy returns the active policy.
func (c *Classifier) Policy() Policy { return c.policy }

// SetViewers replaces the points distance is measured from. Non-finite
// viewers are ignored.
func (c *Classifier) SetViewers(vs []component.Vec2) {
	c.viewers = c.viewers[:0]
	for _, v := range vs {
		if v.IsFinite() {
			c.viewers = append(c.viewers, v)
		}
	}
}

// Viewers returns a copy of the active viewer positions.
func (c *Classifier) Viewers() []component.Vec2 {
	out := make([]component.Vec2, len(c.viewers))
	copy(out, c.viewers)
	return out
}

// SetImportance installs an extra scoring hook; nil removes it.
func (c *Classifier) SetImportance(fn ImportanceFunc) { c.importance = fn }

// Passes returns the number of completed passes.
func (c *Classifier) Passes() uint64 { return c.pass }

// tagWeight is the largest configured weight among the agent's tags, 1 when
// none of its tags is weighted.
func (c *Classifier) tagWeight(tags component.TagSet) float64 {
	w, found := 0.0, false
	for _, t := range tags {
		if v, ok := c.weights[t]; ok && (!found || v > w) {
			w, found = v, true
		}
	}
	if !found {
		return 1
	}
	return w
}

// Score computes an agent's priority: importance / (1 + distance to the
// nearest viewer). Returns -Inf for agents that must be pinned to Off.
func (c *Classifier) Score(id ecs.EntityID, a *component.Agent) float64 {
	pos := a.Transform.Pos
	if !pos.IsFinite() {
		return math.Inf(-1)
	}
	d := 0.0
	if len(c.viewers) > 0 {
		d = math.Inf(1)
		for _, v := range c.viewers {
			if dd := pos.Dist(v); dd < d {
				d = dd
			}
		}
	}
	imp := c.tagWeight(a.Tags)
	if c.importance != nil {
		imp *= c.importance(id, a)
	}
	if math.IsNaN(imp) || math.IsInf(imp, 0) || imp < 0 {
		return math.Inf(-1)
	}
	s := imp / (1 + d)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return math.Inf(-1)
	}
	return s
}

// Run performs one pass over every live agent. Each agent's tier is set
// exactly once; ties in score keep insertion order. bus may be nil.
func (c *Classifier) Run(crowd *world.Crowd, bus *event.Bus) PassResult {
	c.pass++
	cands := c.scratch[:0]
	crowd.ForEach(func(id ecs.EntityID, a *component.Agent) bool {
		s := c.Score(id, a)
		cands = append(cands, candidate{id: id, score: s, pinned: math.IsInf(s, -1)})
		return true
	})
	// ForEach yields insertion order, so a stable sort keeps it for ties
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	res := PassResult{Pass: c.pass}
	var remaining [component.TierCount]int
	copy(remaining[:], c.policy.Capacity[:])
	k := component.TierHigh

	for _, cand := range cands {
		tier := component.TierOff
		if cand.pinned {
			res.Pinned++
		} else {
			for k < component.TierOff && remaining[k] == 0 {
				k++
			}
			if k < component.TierOff {
				tier = k
				remaining[k]--
			}
		}
		a, ok := crowd.Get(cand.id)
		if !ok {
			continue
		}
		from := a.LOD.Tier
		a.LOD.Score = cand.score
		a.LOD.LastPass = c.pass
		if from != tier {
			crowd.SetTier(cand.id, tier)
			res.Changed++
			if bus != nil {
				event.Emit(bus, event.TierChanged{Handle: cand.id, From: from, To: tier})
			}
		}
		res.Counts[tier]++
	}
	c.scratch = cands[:0]

	if c.policy.ReorderByScore {
		for _, t := range []component.Tier{component.TierHigh, component.TierMedium, component.TierLow} {
			crowd.ReorderTier(t, func(a, b *component.Agent) bool {
				return a.LOD.Score > b.LOD.Score
			})
		}
	}
	return res
}
