package main

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdlod/server/internal/component"
)

func TestReadRoutes(t *testing.T) {
	csv := `route,x,y
# platform loop
"platform*", 0, 0
platform, 10, 0
concourse, 1.5, -2e1
garbage line
`
	routes, skipped, err := readRoutes(bufio.NewScanner(strings.NewReader(csv)))
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, routes, 2)

	assert.Equal(t, "concourse", routes[0].Name)
	assert.Equal(t, []component.Vec2{{X: 1.5, Y: -20}}, routes[0].Waypoints)
	assert.False(t, routes[0].Loop)

	assert.Equal(t, "platform", routes[1].Name)
	assert.True(t, routes[1].Loop)
	assert.Equal(t, []component.Vec2{{X: 0, Y: 0}, {X: 10, Y: 0}}, routes[1].Waypoints)
}
