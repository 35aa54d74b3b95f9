package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/config"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/handler"
	"github.com/crowdlod/server/internal/lod"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"github.com/crowdlod/server/internal/system"
	"github.com/crowdlod/server/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type server struct {
	addr string
	ids  []ecs.EntityID
}

// startServer runs a real listener and ticks the input system in a goroutine,
// which is the only goroutine touching the crowd.
func startServer(t *testing.T, password string) *server {
	t.Helper()
	cfg := config.Defaults()
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		cfg.Debug.PasswordHash = string(hash)
	}

	crowd := world.NewCrowd(ecs.NewWorld(), 4)
	srv := &server{}
	for i := 0; i < 4; i++ {
		srv.ids = append(srv.ids, crowd.Allocate(component.Agent{
			Transform: component.Transform{Pos: component.Vec2{X: float64(i * 10), Y: 0}},
			LOD:       component.LOD{Tier: component.TierMedium},
			Tags:      component.NewTagSet("walker"),
		}))
	}
	var clock system.Clock
	bridge := debug.NewBridge(crowd, nil)
	bridge.SetClock(clock.Tick)
	deps := &handler.Deps{
		Config:     cfg,
		Log:        zap.NewNop(),
		Bridge:     bridge,
		Classifier: lod.NewClassifier(lod.Policy{Capacity: [component.TierCount]int{1, 1, 1, 0}}),
		Tick:       clock.Tick,
	}
	reg := packet.NewRegistry(zap.NewNop())
	handler.RegisterAll(reg, deps)

	ns, err := net.NewServer("127.0.0.1:0", net.Options{WriteTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	go ns.AcceptLoop()
	input := system.NewInputSystem(ns, reg, net.NewSessionStore(), 16, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tk := time.NewTicker(2 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				input.Update(2 * time.Millisecond)
				clock.Advance(2 * time.Millisecond)
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		ns.Shutdown()
	})
	srv.addr = ns.Addr().String()
	return srv
}

func dial(t *testing.T, addr, password string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "tester", password)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Queries(t *testing.T) {
	srv := startServer(t, "")
	c := dial(t, srv.addr, "")

	st, err := c.Stats()
	require.NoError(t, err)
	require.NotNil(t, st.Stats)
	assert.Equal(t, 4, st.Stats.Live)

	snap, err := c.Select(srv.ids[2])
	require.NoError(t, err)
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, srv.ids[2], snap.Agents[0].Handle)
	assert.Equal(t, debug.Float(20), snap.Agents[0].Pos.X)

	_, err = c.Select(ecs.EntityID(0))
	assert.ErrorIs(t, err, ErrNotFound)

	snap, err = c.Region(component.Rect{Min: component.Vec2{X: -1, Y: -1}, Max: component.Vec2{X: 11, Y: 1}})
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 2)

	snap, err = c.Radius(component.Vec2{X: 30}, 0.5)
	require.NoError(t, err)
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, srv.ids[3], snap.Agents[0].Handle)

	snap, err = c.Tag("walker")
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 4)

	snap, err = c.Dump()
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 4)

	snap, err = c.Path(srv.ids[0])
	require.NoError(t, err)
	require.NotNil(t, snap.Path)
	assert.Equal(t, debug.PathNone, snap.Path.Status)

	_, tick, err := c.Ping(77)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, tick, c.HelloTick())
}

func TestClient_CategoriesAndViewers(t *testing.T) {
	srv := startServer(t, "")
	c := dial(t, srv.addr, "")

	cats, err := c.Toggle(debug.CategoryLife, true)
	require.NoError(t, err)
	assert.Contains(t, cats, debug.CategoryLife)

	cats, err = c.Toggle(debug.CategoryLife, false)
	require.NoError(t, err)
	assert.NotContains(t, cats, debug.CategoryLife)

	got, err := c.Categories()
	require.NoError(t, err)
	assert.Equal(t, cats, got)

	st, err := c.SetViewers([]component.Vec2{{X: 0, Y: 0}})
	require.NoError(t, err)
	require.NotNil(t, st.Stats)
	assert.Equal(t, 4, st.Stats.Live)
}

func TestClient_WrongPassword(t *testing.T) {
	srv := startServer(t, "s3cret")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, srv.addr, "tester", "nope")
	var se *ServerError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, packet.C_HELLO, se.Request)
	assert.Equal(t, packet.ErrCodeAuth, se.Code)

	c := dial(t, srv.addr, "s3cret")
	_, err = c.Stats()
	assert.NoError(t, err)
}
