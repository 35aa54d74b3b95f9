package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestImportance_UsesHookAndFallsBack(t *testing.T) {
	e, err := NewEngineFromString(`
function lod_importance(agent)
  if agent.tags.vip then return 5 end
  if agent.tags.broken then error("boom") end
  if agent.tags.weird then return "high" end
  return 1 + agent.speed
end
`, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	assert.True(t, e.HasImportance())
	assert.False(t, e.HasExpire())
	assert.Equal(t, 5.0, e.Importance(AgentContext{Tags: []string{"vip"}}))
	assert.Equal(t, 2.5, e.Importance(AgentContext{Speed: 1.5}))
	assert.Equal(t, 1.0, e.Importance(AgentContext{Tags: []string{"broken"}}))
	assert.Equal(t, 1.0, e.Importance(AgentContext{Tags: []string{"weird"}}))
}

func TestShouldExpire(t *testing.T) {
	e, err := NewEngineFromString(`
function expire_agent(agent)
  if agent.age > 10 then return "too old" end
  if agent.state == "arrived" then return true end
  return false
end
`, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	ok, reason := e.ShouldExpire(AgentContext{AgeSeconds: 11})
	assert.True(t, ok)
	assert.Equal(t, "too old", reason)

	ok, reason = e.ShouldExpire(AgentContext{State: "arrived"})
	assert.True(t, ok)
	assert.Equal(t, "script", reason)

	ok, _ = e.ShouldExpire(AgentContext{State: "moving"})
	assert.False(t, ok)
}

func TestNewEngine_LoadsDirsAndSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lod"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lod", "importance.lua"),
		[]byte("function lod_importance(a) return 3 end\n"), 0o644))

	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, 3.0, e.Importance(AgentContext{}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lod", "broken.lua"), []byte("function ("), 0o644))
	_, err = NewEngine(dir, zap.NewNop())
	assert.Error(t, err)
}

func TestShippedScripts(t *testing.T) {
	e, err := NewEngine("../../scripts", zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 3.0, e.Importance(AgentContext{Tags: []string{"vip"}, Speed: 1.0}))
	assert.Equal(t, 0.5, e.Importance(AgentContext{State: "arrived"}))

	ok, reason := e.ShouldExpire(AgentContext{State: "idle", AgeSeconds: 601})
	assert.True(t, ok)
	assert.Equal(t, "stuck", reason)
	ok, _ = e.ShouldExpire(AgentContext{Tags: []string{"staff"}, DistToOrigin: 1000})
	assert.False(t, ok)
}
