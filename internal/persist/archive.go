// Package persist archives debug snapshots of the crowd for offline
// inspection. Backends are postgres and sqlite; AsyncArchiver keeps the
// simulation loop off the database entirely.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crowdlod/server/internal/config"
	"github.com/crowdlod/server/internal/debug"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("archived snapshot not found")
	ErrClosed   = errors.New("archive closed")
)

// ArchiveInfo is the metadata row of an archived snapshot.
type ArchiveInfo struct {
	ID         string
	Tick       uint64
	RecordedAt time.Time
	Live       int
	Tiers      debug.TierCounts
}

// ArchivedSnapshot is an ArchiveInfo plus the zstd-compressed JSON snapshot.
type ArchivedSnapshot struct {
	ArchiveInfo
	Payload []byte
}

// Archive stores and retrieves snapshots. Implementations are safe for
// concurrent use.
type Archive interface {
	Record(ctx context.Context, s ArchivedSnapshot) error
	// List returns the newest limit snapshots, newest first.
	List(ctx context.Context, limit int) ([]ArchiveInfo, error)
	Load(ctx context.Context, id string) (ArchivedSnapshot, error)
	Close() error
}

// NewArchivedSnapshot packs a snapshot for storage. Counters come from
// snap.Stats when present, otherwise from the agent list.
func NewArchivedSnapshot(snap *debug.Snapshot, recordedAt time.Time) (ArchivedSnapshot, error) {
	body, err := debug.EncodeJSON(snap)
	if err != nil {
		return ArchivedSnapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	payload, err := debug.Compress(body)
	if err != nil {
		return ArchivedSnapshot{}, err
	}
	info := ArchiveInfo{
		ID:         uuid.NewString(),
		Tick:       snap.Tick,
		RecordedAt: recordedAt.UTC(),
		Live:       len(snap.Agents),
	}
	if snap.Stats != nil {
		info.Live = snap.Stats.Live
		info.Tiers = snap.Stats.Tiers
	} else {
		for i := range snap.Agents {
			switch snap.Agents[i].Tier {
			case "high":
				info.Tiers.High++
			case "medium":
				info.Tiers.Medium++
			case "low":
				info.Tiers.Low++
			default:
				info.Tiers.Off++
			}
		}
	}
	return ArchivedSnapshot{ArchiveInfo: info, Payload: payload}, nil
}

// Snapshot decompresses and decodes the payload.
func (s ArchivedSnapshot) Snapshot() (*debug.Snapshot, error) {
	body, err := debug.Decompress(s.Payload)
	if err != nil {
		return nil, err
	}
	return debug.DecodeJSON(body)
}

// Open connects the backend named by cfg.Driver. An empty driver disables
// archiving and returns a nil Archive.
func Open(ctx context.Context, cfg config.ArchiveConfig, log *zap.Logger) (Archive, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "postgres":
		return OpenPostgres(ctx, cfg, log)
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
