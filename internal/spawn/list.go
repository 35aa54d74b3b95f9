package spawn

import (
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/data"
)

// FromEntry converts a spawn list entry into a request. A TTL becomes an
// absolute deadline relative to now.
func FromEntry(e data.SpawnEntry, now time.Duration) Request {
	req := Request{
		Location: component.Vec2{X: e.X, Y: e.Y},
		Radius:   e.Radius,
		Count:    e.Count,
		Tags:     append([]string(nil), e.Tags...),
		Rate:     e.Rate,
		Route:    e.Route,
		MaxSpeed: e.Speed,
	}
	if e.TTL > 0 {
		req.ExpiresAt = now + e.TTL
	}
	return req
}

// EnqueueAll queues every entry and returns the ids in list order. Entries
// that fail validation are skipped and reported in errs.
func (s *Spawner) EnqueueAll(entries []data.SpawnEntry) (ids []uint64, errs []error) {
	for _, e := range entries {
		id, err := s.Enqueue(FromEntry(e, s.now))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, errs
}
