package data

import (
	"fmt"
	"os"

	"github.com/crowdlod/server/internal/component"
	"gopkg.in/yaml.v3"
)

// RouteEntry is one named polyline agents can follow.
type RouteEntry struct {
	Name       string           `yaml:"name"`
	Loop       bool             `yaml:"loop"`
	Acceptance float64          `yaml:"acceptance"` // metres, 0 = configured default
	Waypoints  []component.Vec2 `yaml:"waypoints"`
	Note       string           `yaml:"note"`
}

// RouteTable holds the static routes loaded at startup, in file order.
type RouteTable struct {
	entries []RouteEntry
	byName  map[string]int
}

// LoadRouteTable loads routes.yaml.
func LoadRouteTable(path string) (*RouteTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route list: %w", err)
	}
	t, err := ParseRouteTable(raw)
	if err != nil {
		return nil, fmt.Errorf("parse route list: %w", err)
	}
	return t, nil
}

// ParseRouteTable decodes a route list document.
func ParseRouteTable(raw []byte) (*RouteTable, error) {
	var entries []RouteEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	t := &RouteTable{
		entries: entries,
		byName:  make(map[string]int, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		if e.Name == "" {
			return nil, fmt.Errorf("route #%d has no name", i)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate route %q", e.Name)
		}
		if len(e.Waypoints) == 0 {
			return nil, fmt.Errorf("route %q has no waypoints", e.Name)
		}
		t.byName[e.Name] = i
	}
	return t, nil
}

// Get returns the route with the given name, or nil if none.
func (t *RouteTable) Get(name string) *RouteEntry {
	i, ok := t.byName[name]
	if !ok {
		return nil
	}
	return &t.entries[i]
}

// All returns the routes in file order.
func (t *RouteTable) All() []RouteEntry {
	return t.entries
}

// Count returns the total number of routes loaded.
func (t *RouteTable) Count() int {
	return len(t.entries)
}
