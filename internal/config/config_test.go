package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[sim]
tick_rate = "100ms"

[lod]
high_capacity = 10
reclassify_interval = 1
tag_importance = { vip = 4.0 }

[[lod.viewers]]
name = "camera"
x = 1.5
y = -2

[spawn]
overflow = "reject"
tag_rates = { tourist = 2.5 }
`))
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.Sim.TickRate)
	assert.Equal(t, 10, cfg.LOD.HighCapacity)
	assert.Equal(t, 256, cfg.LOD.MediumCapacity, "untouched default survives")
	assert.Equal(t, 4.0, cfg.LOD.TagImportance["vip"])
	require.Len(t, cfg.LOD.Viewers, 1)
	assert.Equal(t, "camera", cfg.LOD.Viewers[0].Name)
	assert.Equal(t, "reject", cfg.Spawn.Overflow)
	assert.Equal(t, 2.5, cfg.Spawn.TagRates["tourist"])
	assert.NotZero(t, cfg.Sim.StartTime)
}

func TestParse_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"negative capacity": "[lod]\nhigh_capacity = -1\n",
		"zero interval":     "[lod]\nreclassify_interval = 0\n",
		"bad overflow":      "[spawn]\noverflow = \"drop\"\n",
		"bad driver":        "[archive]\ndriver = \"mysql\"\n",
		"empty bounds":      "[world]\nmin_x = 10.0\nmax_x = 10.0\n",
		"negative weight":   "[lod]\ntag_importance = { ghost = -1.0 }\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileWrapsPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.toml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaults_AreValid(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("../../config/crowd.toml")
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Sim.TickRate)
	assert.Len(t, cfg.LOD.Viewers, 2)
	assert.Equal(t, 4.0, cfg.LOD.TagImportance["vip"])
	assert.Equal(t, "sqlite", cfg.Archive.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Expiry.MaxLifetime)
}
