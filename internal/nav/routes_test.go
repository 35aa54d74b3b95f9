package nav

import (
	"testing"

	"github.com/crowdlod/server/internal/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pts(xs ...float64) []component.Vec2 {
	out := make([]component.Vec2, len(xs))
	for i, x := range xs {
		out[i] = component.Vec2{X: x}
	}
	return out
}

func TestRouteProvider_ResolveAndExhaust(t *testing.T) {
	p := NewRouteProvider(nil)
	p.Put("line", pts(1, 2, 3), false, 0)
	ref, err := p.Acquire("line")
	require.NoError(t, err)

	wp, err := p.ResolveNextWaypoint(ref, 2)
	require.NoError(t, err)
	assert.Equal(t, 3.0, wp.X)
	_, err = p.ResolveNextWaypoint(ref, 3)
	assert.ErrorIs(t, err, ErrExhausted)

	rest, err := Remaining(p, ref, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, pts(2, 3), rest)
}

func TestRouteProvider_LoopNeverExhausts(t *testing.T) {
	p := NewRouteProvider(nil)
	p.Put("loop", pts(1, 2), true, 0.75)
	ref, _ := p.Acquire("loop")
	wp, err := p.ResolveNextWaypoint(ref, 5)
	require.NoError(t, err)
	assert.Equal(t, 2.0, wp.X)
	assert.Equal(t, 0.75, p.Acceptance(ref))

	rest, err := Remaining(p, ref, 0, 5)
	require.NoError(t, err)
	assert.Len(t, rest, 5)
}

func TestRouteProvider_InvalidateMakesRefsStale(t *testing.T) {
	p := NewRouteProvider(nil)
	p.Put("a", pts(1), false, 0)
	old, _ := p.Acquire("a")

	p.Put("a", pts(9), false, 0)
	_, err := p.ResolveNextWaypoint(old, 0)
	assert.ErrorIs(t, err, ErrInvalidPath, "replaced route invalidates old refs")

	cur, _ := p.Acquire("a")
	assert.Equal(t, "a", p.Name(cur))
	require.True(t, p.Invalidate("a"))
	_, err = p.ResolveNextWaypoint(cur, 0)
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = p.Acquire("a")
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.Equal(t, 0, p.Count())

	_, err = p.ResolveNextWaypoint(component.PathRef{}, 0)
	assert.ErrorIs(t, err, ErrInvalidPath)
}
