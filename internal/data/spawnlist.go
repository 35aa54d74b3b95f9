package data

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SpawnEntry describes a batch of agents requested at startup.
type SpawnEntry struct {
	Name   string        `yaml:"name"`
	X      float64       `yaml:"x"`
	Y      float64       `yaml:"y"`
	Radius float64       `yaml:"radius"`
	Count  int           `yaml:"count"`
	Rate   float64       `yaml:"rate"` // agents per second, 0 = as fast as limits allow
	Tags   []string      `yaml:"tags"`
	Route  string        `yaml:"route"`
	Speed  float64       `yaml:"speed"`
	TTL    time.Duration `yaml:"ttl"` // request deadline, 0 = never
}

// LoadSpawnList loads spawn_list.yaml.
func LoadSpawnList(path string) ([]SpawnEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn list: %w", err)
	}
	var entries []SpawnEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse spawn list: %w", err)
	}
	for i, e := range entries {
		if e.Count <= 0 {
			return nil, fmt.Errorf("spawn entry #%d (%s): count must be positive", i, e.Name)
		}
	}
	return entries, nil
}
