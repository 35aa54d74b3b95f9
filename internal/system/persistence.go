package system

import (
	"context"
	"time"

	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/persist"
	"go.uber.org/zap"
)

// ArchiveSystem records a full snapshot every interval ticks. The archive
// is expected to be asynchronous; Record must not block the tick.
// Phase 6 (Persist).
type ArchiveSystem struct {
	bridge    *debug.Bridge
	archive   persist.Archive
	log       *zap.Logger
	tickCount int
	interval  int
	wallClock func() time.Time
}

func NewArchiveSystem(bridge *debug.Bridge, archive persist.Archive, intervalTicks int, log *zap.Logger) *ArchiveSystem {
	return &ArchiveSystem{
		bridge:    bridge,
		archive:   archive,
		log:       log,
		interval:  intervalTicks,
		wallClock: time.Now,
	}
}

func (s *ArchiveSystem) SetInterval(n int) { s.interval = n }

func (s *ArchiveSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *ArchiveSystem) Update(_ time.Duration) {
	if s.archive == nil || s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.RecordNow()
}

// RecordNow archives the current crowd immediately. Also called on shutdown.
func (s *ArchiveSystem) RecordNow() {
	if s.archive == nil {
		return
	}
	snap := s.bridge.DumpFull()
	snap.Stats = s.bridge.Stats().Stats
	rec, err := persist.NewArchivedSnapshot(snap, s.wallClock())
	if err != nil {
		s.log.Error("pack snapshot for archive", zap.Error(err))
		return
	}
	if err := s.archive.Record(context.Background(), rec); err != nil {
		s.log.Error("archive snapshot", zap.Uint64("tick", rec.Tick), zap.Error(err))
	}
}
