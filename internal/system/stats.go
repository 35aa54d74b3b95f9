package system

import (
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/lod"
	"github.com/crowdlod/server/internal/spawn"
)

// StatsHook fills the spawner and classifier counters of debug.Stats.
func StatsHook(sp *spawn.Spawner, cl *lod.Classifier) func(*debug.Stats) {
	return func(st *debug.Stats) {
		if sp != nil {
			st.PendingRequests = sp.PendingCount()
			st.Spawned = sp.Spawned()
		}
		if cl != nil {
			st.LODPasses = cl.Passes()
		}
	}
}
