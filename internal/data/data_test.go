package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRouteTable(t *testing.T) {
	tbl, err := ParseRouteTable([]byte(`
- name: plaza_loop
  loop: true
  waypoints:
    - {x: 0, y: 0}
    - {x: 10, y: 0}
- name: gate
  acceptance: 1.5
  waypoints:
    - {x: -5, y: 2}
`))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Count())
	r := tbl.Get("gate")
	require.NotNil(t, r)
	assert.Equal(t, 1.5, r.Acceptance)
	assert.Equal(t, -5.0, r.Waypoints[0].X)
	assert.Nil(t, tbl.Get("missing"))
	assert.Equal(t, "plaza_loop", tbl.All()[0].Name)
}

func TestParseRouteTable_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"no name":      "- waypoints: [{x: 1, y: 1}]\n",
		"no waypoints": "- name: a\n",
		"duplicate":    "- name: a\n  waypoints: [{x: 1, y: 1}]\n- name: a\n  waypoints: [{x: 1, y: 1}]\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRouteTable([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSpawnList(t *testing.T) {
	p := filepath.Join(t.TempDir(), "spawn_list.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
- name: tourists
  x: 3
  y: 4
  radius: 2
  count: 20
  rate: 5
  tags: [tourist]
  route: plaza_loop
  ttl: 30s
`), 0o644))
	list, err := LoadSpawnList(p)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 20, list[0].Count)
	assert.Equal(t, 30*time.Second, list[0].TTL)
	assert.Equal(t, []string{"tourist"}, list[0].Tags)

	require.NoError(t, os.WriteFile(p, []byte("- name: bad\n  count: 0\n"), 0o644))
	_, err = LoadSpawnList(p)
	assert.Error(t, err)
}

func TestShippedTablesResolve(t *testing.T) {
	routes, err := LoadRouteTable("../../data/yaml/routes.yaml")
	require.NoError(t, err)
	spawns, err := LoadSpawnList("../../data/yaml/spawn_list.yaml")
	require.NoError(t, err)
	for _, s := range spawns {
		assert.NotNil(t, routes.Get(s.Route), "spawn %s names route %s", s.Name, s.Route)
	}
}
