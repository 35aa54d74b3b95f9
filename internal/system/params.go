package system

import (
	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/config"
	"github.com/crowdlod/server/internal/lod"
	"github.com/crowdlod/server/internal/movement"
	"github.com/crowdlod/server/internal/spawn"
)

// Bounds returns the configured world rectangle.
func Bounds(cfg *config.Config) component.Rect {
	return component.Rect{
		Min: component.Vec2{X: cfg.World.MinX, Y: cfg.World.MinY},
		Max: component.Vec2{X: cfg.World.MaxX, Y: cfg.World.MaxY},
	}
}

// Viewers returns the configured viewer positions.
func Viewers(cfg *config.Config) []component.Vec2 {
	out := make([]component.Vec2, 0, len(cfg.LOD.Viewers))
	for _, v := range cfg.LOD.Viewers {
		out = append(out, component.Vec2{X: v.X, Y: v.Y})
	}
	return out
}

func LODPolicy(cfg *config.Config) lod.Policy {
	return lod.Policy{
		Capacity:       [component.TierCount]int{cfg.LOD.HighCapacity, cfg.LOD.MediumCapacity, cfg.LOD.LowCapacity, 0},
		TagImportance:  cfg.LOD.TagImportance,
		ReorderByScore: cfg.LOD.ReorderByScore,
	}
}

// MovementParams maps [movement]. High agents update every tick, Off never.
func MovementParams(cfg *config.Config) movement.Params {
	m := cfg.Movement
	return movement.Params{
		Cadence:           [component.TierCount]int{1, m.MediumEvery, m.LowEvery, 0},
		DefaultSpeed:      m.DefaultSpeed,
		WaypointTolerance: m.WaypointTolerance,
		SlowdownRadius:    m.SlowdownRadius,
		AvoidanceRadius:   m.AvoidanceRadius,
		AvoidanceWeight:   m.AvoidanceWeight,
		MaxNeighbors:      m.MaxNeighbors,
		Bounds:            Bounds(cfg),
		CellSize:          cfg.World.CellSize,
	}
}

func SpawnLimits(cfg *config.Config) (spawn.Limits, error) {
	s := cfg.Spawn
	overflow, err := spawn.ParseOverflow(s.Overflow)
	if err != nil {
		return spawn.Limits{}, err
	}
	tier, err := component.ParseTier(s.InitialTier)
	if err != nil {
		return spawn.Limits{}, err
	}
	return spawn.Limits{
		MaxLive:      s.MaxLive,
		MaxPerTick:   s.MaxPerTick,
		GlobalRate:   s.GlobalRate,
		GlobalBurst:  s.GlobalBurst,
		TagRates:     s.TagRates,
		Overflow:     overflow,
		InitialTier:  tier,
		ScatterScale: s.ScatterScale,
		DefaultSpeed: cfg.Movement.DefaultSpeed,
	}, nil
}

func ExpiryPolicy(cfg *config.Config) spawn.ExpiryPolicy {
	e := cfg.Expiry
	return spawn.ExpiryPolicy{
		MaxLifetime:      e.MaxLifetime,
		MaxDistance:      e.MaxDistance,
		Bounds:           Bounds(cfg),
		OutOfBounds:      e.OutOfBounds,
		DespawnTags:      e.DespawnTags,
		DespawnOnArrival: e.DespawnOnArrival,
	}
}
