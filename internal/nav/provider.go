// Package nav defines the boundary to the navigation provider. The simulation
// never plans paths; it holds weak path references and asks the provider for
// the waypoint at a cursor.
package nav

import (
	"errors"

	"github.com/crowdlod/server/internal/component"
)

var (
	// ErrExhausted means the cursor is past the last waypoint.
	ErrExhausted = errors.New("path exhausted")
	// ErrInvalidPath means the reference is unknown or was invalidated.
	ErrInvalidPath = errors.New("path invalid")
)

// Provider resolves waypoints for path references it handed out.
type Provider interface {
	ResolveNextWaypoint(ref component.PathRef, cursor int) (component.Vec2, error)
}

// MaxRemaining caps Remaining so looping routes terminate.
const MaxRemaining = 1024

// Remaining resolves every waypoint from cursor onward, stopping at the end
// of the path or after limit points (MaxRemaining when limit <= 0).
func Remaining(p Provider, ref component.PathRef, cursor, limit int) ([]component.Vec2, error) {
	if limit <= 0 || limit > MaxRemaining {
		limit = MaxRemaining
	}
	var out []component.Vec2
	for i := cursor; len(out) < limit; i++ {
		wp, err := p.ResolveNextWaypoint(ref, i)
		if errors.Is(err, ErrExhausted) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, wp)
	}
	return out, nil
}
