package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const (
	fnImportance = "lod_importance"
	fnExpire     = "expire_agent"
)

// Engine wraps a single gopher-lua VM for policy hooks.
// Single-goroutine access only (simulation loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
// Missing directories are skipped; a syntax error in any script fails startup.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)

	// Load core helpers first, then hook scripts
	for _, sub := range []string{"core", "lod", "expiry"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			e.vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return e, nil
}

// NewEngineFromString builds an engine from inline source.
func NewEngineFromString(src string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	if err := e.vm.DoString(src); err != nil {
		e.vm.Close()
		return nil, fmt.Errorf("load inline script: %w", err)
	}
	return e, nil
}

func newEngine(log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	return &Engine{vm: vm, log: log}
}

// loadDir loads all .lua files in a directory in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// AgentContext is the read-only view of an agent passed to hooks.
type AgentContext struct {
	Handle       string
	X, Y         float64
	Speed        float64
	Tier         string
	State        string
	Tags         []string
	AgeSeconds   float64
	DistToOrigin float64
	Cursor       int
}

func (e *Engine) agentTable(ctx AgentContext) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("handle", lua.LString(ctx.Handle))
	t.RawSetString("x", lua.LNumber(ctx.X))
	t.RawSetString("y", lua.LNumber(ctx.Y))
	t.RawSetString("speed", lua.LNumber(ctx.Speed))
	t.RawSetString("tier", lua.LString(ctx.Tier))
	t.RawSetString("state", lua.LString(ctx.State))
	t.RawSetString("age", lua.LNumber(ctx.AgeSeconds))
	t.RawSetString("dist_to_origin", lua.LNumber(ctx.DistToOrigin))
	t.RawSetString("cursor", lua.LNumber(ctx.Cursor))

	tags := e.vm.NewTable()
	for _, tag := range ctx.Tags {
		tags.RawSetString(tag, lua.LTrue)
	}
	t.RawSetString("tags", tags)
	return t
}

// HasImportance reports whether a lod_importance hook is loaded.
func (e *Engine) HasImportance() bool {
	return e.vm.GetGlobal(fnImportance) != lua.LNil
}

// HasExpire reports whether an expire_agent hook is loaded.
func (e *Engine) HasExpire() bool {
	return e.vm.GetGlobal(fnExpire) != lua.LNil
}

// Importance calls lod_importance(agent). Returns 1 when the hook is missing,
// errors, or returns something other than a finite non-negative number.
func (e *Engine) Importance(ctx AgentContext) float64 {
	fn := e.vm.GetGlobal(fnImportance)
	if fn == lua.LNil {
		return 1
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.agentTable(ctx)); err != nil {
		e.log.Error("lua lod_importance error", zap.String("agent", ctx.Handle), zap.Error(err))
		return 1
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		return 1
	}
	v := float64(n)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 1
	}
	return v
}

// ShouldExpire calls expire_agent(agent). The hook may return a boolean or a
// reason string; nil/false keeps the agent.
func (e *Engine) ShouldExpire(ctx AgentContext) (bool, string) {
	fn := e.vm.GetGlobal(fnExpire)
	if fn == lua.LNil {
		return false, ""
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.agentTable(ctx)); err != nil {
		e.log.Error("lua expire_agent error", zap.String("agent", ctx.Handle), zap.Error(err))
		return false, ""
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	switch v := result.(type) {
	case lua.LBool:
		if v {
			return true, "script"
		}
	case lua.LString:
		if v != "" {
			return true, string(v)
		}
	}
	return false, ""
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}
