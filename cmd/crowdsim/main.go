package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crowdlod/server/internal/config"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/core/event"
	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/data"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/handler"
	"github.com/crowdlod/server/internal/lod"
	"github.com/crowdlod/server/internal/movement"
	"github.com/crowdlod/server/internal/nav"
	gonet "github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"github.com/crowdlod/server/internal/persist"
	"github.com/crowdlod/server/internal/scripting"
	"github.com/crowdlod/server/internal/spawn"
	"github.com/crowdlod/server/internal/system"
	"github.com/crowdlod/server/internal/transport/ws"
	"github.com/crowdlod/server/internal/world"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string, seed int64) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             crowdsim  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      LOD crowd simulation · debug server  \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mWorld:\033[0m %s \033[90m(seed: %d)\033[0m\n\n", name, seed)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := humanize.Comma(int64(count))
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main simulation logic ─────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/crowd.toml"
	if p := os.Getenv("CROWD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Sim.Name, cfg.Sim.Seed)

	// 3. Load data
	printSection("Data")
	routeTable, err := data.LoadRouteTable(cfg.Data.Routes)
	if err != nil {
		return fmt.Errorf("load routes: %w", err)
	}
	printStat("Routes", routeTable.Count())

	var spawnList []data.SpawnEntry
	if cfg.Data.SpawnList != "" {
		spawnList, err = data.LoadSpawnList(cfg.Data.SpawnList)
		if err != nil {
			return fmt.Errorf("load spawn list: %w", err)
		}
	}
	printStat("Spawn entries", len(spawnList))

	// 3a. Lua policy hooks
	var luaEngine *scripting.Engine
	if cfg.Scripting.Enabled {
		luaEngine, err = scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer luaEngine.Close()
		printOK(fmt.Sprintf("Lua hooks loaded (importance: %t, expiry: %t)",
			luaEngine.HasImportance(), luaEngine.HasExpire()))
	}
	fmt.Println()

	// 4. Snapshot archive
	printSection("Archive")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	backend, err := persist.Open(ctx, cfg.Archive, log)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	var archive *persist.AsyncArchiver
	if backend != nil {
		archive = persist.NewAsyncArchiver(backend, cfg.Archive.QueueSize, log)
		printOK(fmt.Sprintf("%s archive ready, every %s ticks", cfg.Archive.Driver,
			humanize.Comma(int64(cfg.Archive.EveryTicks))))
	} else {
		printOK("archiving disabled")
	}
	fmt.Println()

	// 5. Crowd store and simulation components
	clock := &system.Clock{}
	bus := event.NewBus()
	crowd := world.NewCrowd(ecs.NewWorld(), cfg.World.CellSize)
	routes := nav.NewRouteProvider(routeTable)

	limits, err := system.SpawnLimits(cfg)
	if err != nil {
		return fmt.Errorf("spawn limits: %w", err)
	}
	spawner := spawn.NewSpawner(crowd, routes, bus, limits, cfg.Sim.Seed, log)
	classifier := lod.NewClassifier(system.LODPolicy(cfg))
	classifier.SetViewers(system.Viewers(cfg))
	pipeline := movement.NewPipeline(system.MovementParams(cfg), routes, log)
	expirer := spawn.NewExpirer(system.ExpiryPolicy(cfg))

	bridge := debug.NewBridge(crowd, routes)
	bridge.SetClock(clock.Tick)
	bridge.SetStatsHook(system.StatsHook(spawner, classifier))

	ids, errs := spawner.EnqueueAll(spawnList)
	for _, err := range errs {
		log.Warn("spawn list entry skipped", zap.Error(err))
	}

	printSection("Crowd")
	printStat("Queued requests", len(ids))
	printStat("Capacity high", cfg.LOD.HighCapacity)
	printStat("Capacity medium", cfg.LOD.MediumCapacity)
	printStat("Capacity low", cfg.LOD.LowCapacity)
	printStat("Max live", cfg.Spawn.MaxLive)
	for _, st := range crowd.ECS().Registry().StoreRows() {
		printStat("Store "+st.Name, st.Rows)
	}
	fmt.Println()

	// 6. Debug packet handlers
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		Config:     cfg,
		Log:        log,
		Bridge:     bridge,
		Classifier: classifier,
		Tick:       clock.Tick,
	}
	handler.RegisterAll(pktReg, deps)

	// 7. Debug listeners
	netServer, err := gonet.NewServer(cfg.Debug.BindAddress, gonet.Options{
		InQueueSize:      cfg.Debug.InQueueSize,
		OutQueueSize:     cfg.Debug.OutQueueSize,
		PacketsPerSecond: cfg.Debug.PacketsPerSecond,
		WriteTimeout:     cfg.Debug.WriteTimeout,
		MaxSessions:      cfg.Debug.MaxSessions,
		AllowRemote:      cfg.Debug.AllowRemote,
	}, log)
	if err != nil {
		return fmt.Errorf("debug server: %w", err)
	}
	go netServer.AcceptLoop()
	sessions := gonet.NewSessionStore()

	var gateway *ws.Gateway
	if cfg.Debug.WSAddress != "" {
		gateway, err = ws.NewGateway(bridge, ws.Options{
			Addr:         cfg.Debug.WSAddress,
			PasswordHash: cfg.Debug.PasswordHash,
			QueueSize:    cfg.Debug.InQueueSize,
			Categories:   cfg.Debug.Categories,
		}, log)
		if err != nil {
			return fmt.Errorf("websocket gateway: %w", err)
		}
		if err := gateway.Start(); err != nil {
			return fmt.Errorf("websocket gateway: %w", err)
		}
	}

	// 8. Systems
	inputSys := system.NewInputSystem(netServer, pktReg, sessions, cfg.Debug.MaxPacketsPerTick, log)
	outputSys := system.NewOutputSystem(sessions, crowd, clock, cfg.Debug.RenderEvery)
	if gateway != nil {
		inputSys.Attach(gateway)
		outputSys.AddSink(gateway)
	}
	classifySys := system.NewClassifierSystem(crowd, classifier, bus, clock, cfg.LOD.ReclassifyInterval, log)
	expirySys := system.NewExpirySystem(crowd, expirer, bus, clock, cfg.Expiry.Interval, log)
	classifySys.UseScripts(luaEngine)
	expirySys.UseScripts(luaEngine)

	var archiveTarget persist.Archive
	if archive != nil {
		archiveTarget = archive
	}
	archiveSys := system.NewArchiveSystem(bridge, archiveTarget, cfg.Archive.EveryTicks, log)
	eventSys := system.NewEventSystem(bus, log)
	cleanupSys := system.NewCleanupSystem(crowd)
	reloadSys := system.NewReloadSystem(cfg, system.Tunables{
		Classifier:  classifier,
		Pipeline:    pipeline,
		Spawner:     spawner,
		Expirer:     expirer,
		ClassifySys: classifySys,
		ExpirySys:   expirySys,
		OutputSys:   outputSys,
		ArchiveSys:  archiveSys,
	}, log)

	runner := coresys.NewRunner()
	runner.Register(reloadSys)
	runner.Register(inputSys)
	runner.Register(eventSys)
	runner.Register(classifySys)
	movementSys := system.NewMovementSystem(crowd, pipeline)
	runner.Register(movementSys)
	runner.Register(system.NewSpawnSystem(spawner, clock, log))
	runner.Register(expirySys)
	runner.Register(outputSys)
	runner.Register(archiveSys)
	runner.Register(cleanupSys)

	// 9. Start simulation loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)

	tickRate := cfg.Sim.TickRate
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("debug bridge on %s", netServer.Addr().String()))
	if gateway != nil {
		printReady(fmt.Sprintf("websocket gateway on ws://%s/debug/ws", gateway.Addr().String()))
	}
	printReady(fmt.Sprintf("simulation loop started (tick: %s)", tickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(tickRate)
			clock.Advance(tickRate)
			if t := runner.LastTick(); t.Total() > tickRate {
				phase, d := t.Slowest()
				log.Warn("tick overran",
					zap.Uint64("tick", clock.Tick()),
					zap.Duration("took", t.Total()),
					zap.Stringer("slowest", phase),
					zap.Duration("slowest_took", d))
			}
			if cfg.Sim.TickRate != tickRate {
				tickRate = cfg.Sim.TickRate
				ticker.Reset(tickRate)
			}
		case <-reloadCh:
			next, err := config.Load(cfgPath)
			if err != nil {
				log.Error("config reload failed, keeping current settings", zap.Error(err))
				continue
			}
			reloadSys.Request(next)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			archiveSys.RecordNow()
			netServer.Shutdown()
			if gateway != nil {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := gateway.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
					log.Warn("websocket gateway shutdown", zap.Error(err))
				}
				scancel()
			}
			if archive != nil {
				if err := archive.Close(); err != nil {
					log.Warn("archive close", zap.Error(err))
				}
				log.Info("archive closed",
					zap.Uint64("written", archive.Written()),
					zap.Uint64("dropped", archive.Dropped()))
			}
			arrived, navFailures := movementSys.Totals()
			log.Info("simulation stopped",
				zap.Uint64("ticks", clock.Tick()),
				zap.String("started", humanize.Time(time.Unix(cfg.Sim.StartTime, 0))),
				zap.String("spawned", humanize.Comma(int64(spawner.Spawned()))),
				zap.String("freed", humanize.Comma(int64(cleanupSys.Freed()))),
				zap.Uint64("arrived", arrived),
				zap.Uint64("nav_failures", navFailures),
				zap.Uint64("events", eventSys.Counters().Total),
				zap.Uint64("debug_commands", pktReg.Stats().Dispatched))
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
