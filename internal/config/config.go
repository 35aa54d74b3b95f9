package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Sim       SimConfig       `toml:"sim"`
	World     WorldConfig     `toml:"world"`
	LOD       LODConfig       `toml:"lod"`
	Movement  MovementConfig  `toml:"movement"`
	Spawn     SpawnConfig     `toml:"spawn"`
	Expiry    ExpiryConfig    `toml:"expiry"`
	Debug     DebugConfig     `toml:"debug"`
	Archive   ArchiveConfig   `toml:"archive"`
	Scripting ScriptingConfig `toml:"scripting"`
	Data      DataConfig      `toml:"data"`
	Logging   LoggingConfig   `toml:"logging"`
}

type SimConfig struct {
	Name      string        `toml:"name"`
	TickRate  time.Duration `toml:"tick_rate"`
	Seed      int64         `toml:"seed"`
	StartTime int64         // set at boot, not from config
}

type WorldConfig struct {
	MinX     float64 `toml:"min_x"`
	MinY     float64 `toml:"min_y"`
	MaxX     float64 `toml:"max_x"`
	MaxY     float64 `toml:"max_y"`
	CellSize float64 `toml:"cell_size"` // spatial grid cell edge, metres
}

// Viewer is a point of interest the classifier scores distance against.
type Viewer struct {
	Name string  `toml:"name"`
	X    float64 `toml:"x"`
	Y    float64 `toml:"y"`
}

type LODConfig struct {
	HighCapacity       int                `toml:"high_capacity"`
	MediumCapacity     int                `toml:"medium_capacity"`
	LowCapacity        int                `toml:"low_capacity"`
	ReclassifyInterval int                `toml:"reclassify_interval"` // ticks between passes
	ReorderByScore     bool               `toml:"reorder_by_score"`
	TagImportance      map[string]float64 `toml:"tag_importance"`
	Viewers            []Viewer           `toml:"viewers"`
}

type MovementConfig struct {
	MediumEvery       int     `toml:"medium_every"` // ticks between Medium updates, 0 = never
	LowEvery          int     `toml:"low_every"`    // ticks between Low updates, 0 = never
	DefaultSpeed      float64 `toml:"default_speed"`
	WaypointTolerance float64 `toml:"waypoint_tolerance"`
	SlowdownRadius    float64 `toml:"slowdown_radius"`
	AvoidanceRadius   float64 `toml:"avoidance_radius"`
	AvoidanceWeight   float64 `toml:"avoidance_weight"`
	MaxNeighbors      int     `toml:"max_neighbors"`
}

type SpawnConfig struct {
	MaxLive      int                `toml:"max_live"`
	MaxPerTick   int                `toml:"max_per_tick"`
	GlobalRate   float64            `toml:"global_rate"` // agents per second, 0 = unlimited
	GlobalBurst  int                `toml:"global_burst"`
	TagRates     map[string]float64 `toml:"tag_rates"`
	Overflow     string             `toml:"overflow"` // "retain" or "reject"
	InitialTier  string             `toml:"initial_tier"`
	ScatterScale float64            `toml:"scatter_scale"`
}

type ExpiryConfig struct {
	Interval         int           `toml:"interval"` // ticks between expiry sweeps
	MaxLifetime      time.Duration `toml:"max_lifetime"`
	MaxDistance      float64       `toml:"max_distance"`
	DespawnTags      []string      `toml:"despawn_tags"`
	DespawnOnArrival bool          `toml:"despawn_on_arrival"`
	OutOfBounds      bool          `toml:"out_of_bounds"`
}

type DebugConfig struct {
	BindAddress       string        `toml:"bind_address"`
	WSAddress         string        `toml:"ws_address"` // empty disables the websocket gateway
	PasswordHash      string        `toml:"password_hash"`
	InQueueSize       int           `toml:"in_queue_size"`
	OutQueueSize      int           `toml:"out_queue_size"`
	MaxPacketsPerTick int           `toml:"max_packets_per_tick"`
	PacketsPerSecond  int           `toml:"packets_per_second"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	MaxSessions       int           `toml:"max_sessions"` // 0 = unlimited
	AllowRemote       bool          `toml:"allow_remote"`
	CompressThreshold int           `toml:"compress_threshold"` // bytes; 0 disables compression
	RenderEvery       int           `toml:"render_every"`
	Categories        []string      `toml:"categories"`
}

type ArchiveConfig struct {
	Driver          string        `toml:"driver"` // "", "postgres" or "sqlite"
	DSN             string        `toml:"dsn"`
	EveryTicks      int           `toml:"every_ticks"`
	QueueSize       int           `toml:"queue_size"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type ScriptingConfig struct {
	Dir     string `toml:"dir"`
	Enabled bool   `toml:"enabled"`
}

type DataConfig struct {
	Routes    string `toml:"routes"`
	SpawnList string `toml:"spawn_list"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Sim.StartTime = time.Now().Unix()
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Sim.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("sim.tick_rate must be positive"))
	}
	if c.LOD.HighCapacity < 0 || c.LOD.MediumCapacity < 0 || c.LOD.LowCapacity < 0 {
		errs = append(errs, fmt.Errorf("lod capacities must not be negative"))
	}
	if c.LOD.ReclassifyInterval < 1 {
		errs = append(errs, fmt.Errorf("lod.reclassify_interval must be at least 1"))
	}
	if c.Movement.MediumEvery < 0 || c.Movement.LowEvery < 0 {
		errs = append(errs, fmt.Errorf("movement cadences must not be negative"))
	}
	if c.World.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("world.cell_size must be positive"))
	}
	if c.World.MinX >= c.World.MaxX || c.World.MinY >= c.World.MaxY {
		errs = append(errs, fmt.Errorf("world bounds are empty"))
	}
	if c.Spawn.MaxLive < 0 || c.Spawn.MaxPerTick < 0 || c.Spawn.GlobalRate < 0 {
		errs = append(errs, fmt.Errorf("spawn limits must not be negative"))
	}
	switch c.Spawn.Overflow {
	case "retain", "reject":
	default:
		errs = append(errs, fmt.Errorf("spawn.overflow must be \"retain\" or \"reject\", got %q", c.Spawn.Overflow))
	}
	switch c.Archive.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown archive.driver %q", c.Archive.Driver))
	}
	for tag, w := range c.LOD.TagImportance {
		if w < 0 {
			errs = append(errs, fmt.Errorf("lod.tag_importance[%s] must not be negative", tag))
		}
	}
	return errors.Join(errs...)
}

// Defaults returns the built-in configuration used beneath any file.
func Defaults() *Config {
	return &Config{
		Sim: SimConfig{
			Name:     "crowd-sim",
			TickRate: 50 * time.Millisecond,
			Seed:     1337,
		},
		World: WorldConfig{
			MinX:     -500,
			MinY:     -500,
			MaxX:     500,
			MaxY:     500,
			CellSize: 8,
		},
		LOD: LODConfig{
			HighCapacity:       64,
			MediumCapacity:     256,
			LowCapacity:        1024,
			ReclassifyInterval: 10,
		},
		Movement: MovementConfig{
			MediumEvery:       2,
			LowEvery:          8,
			DefaultSpeed:      1.4,
			WaypointTolerance: 0.5,
			SlowdownRadius:    1.2,
			AvoidanceRadius:   1.0,
			AvoidanceWeight:   1.5,
			MaxNeighbors:      8,
		},
		Spawn: SpawnConfig{
			MaxLive:      4096,
			MaxPerTick:   32,
			GlobalRate:   0,
			GlobalBurst:  64,
			Overflow:     "retain",
			InitialTier:  "off",
			ScatterScale: 0.15,
		},
		Expiry: ExpiryConfig{
			Interval:    5,
			OutOfBounds: true,
		},
		Debug: DebugConfig{
			BindAddress:       "127.0.0.1:7400",
			InQueueSize:       64,
			OutQueueSize:      128,
			MaxPacketsPerTick: 16,
			PacketsPerSecond:  120,
			WriteTimeout:      10 * time.Second,
			MaxSessions:       8,
			CompressThreshold: 16 * 1024,
			RenderEvery:       4,
			Categories:        []string{"movement", "navigation"},
		},
		Archive: ArchiveConfig{
			EveryTicks:      1200,
			QueueSize:       16,
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Scripting: ScriptingConfig{
			Dir:     "scripts",
			Enabled: true,
		},
		Data: DataConfig{
			Routes:    "data/yaml/routes.yaml",
			SpawnList: "data/yaml/spawn_list.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
