package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput     Phase = iota // 0: drain debug command queues (safe point)
	PhasePreUpdate              // 1: dispatch last tick's events
	PhaseClassify               // 2: LOD reclassification pass
	PhaseMovement               // 3: per-tier movement batches
	PhaseSpawn                  // 4: spawn queue drain + expiry
	PhaseOutput                 // 5: flush responses, publish render projection
	PhasePersist                // 6: snapshot archive
	PhaseCleanup                // 7: destroy queued entities

	PhaseCount = iota
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseClassify:
		return "classify"
	case PhaseMovement:
		return "movement"
	case PhaseSpawn:
		return "spawn"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is the interface every ECS system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
