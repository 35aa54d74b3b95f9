package handler

import (
	gonet "net"
	"testing"
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/config"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/lod"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"github.com/crowdlod/server/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	deps  *Deps
	reg   *packet.Registry
	crowd *world.Crowd
	sess  *net.Session
	ids   []ecs.EntityID
}

func newHarness(t *testing.T, passwordHash string) *harness {
	t.Helper()
	cfg := config.Defaults()
	cfg.Debug.PasswordHash = passwordHash
	crowd := world.NewCrowd(ecs.NewWorld(), 4)
	h := &harness{crowd: crowd}
	for i := 0; i < 5; i++ {
		h.ids = append(h.ids, crowd.Allocate(component.Agent{
			Transform: component.Transform{Pos: component.Vec2{X: float64(i), Y: 0}},
			Tags:      component.NewTagSet("walker"),
		}))
	}
	h.deps = &Deps{
		Config:     cfg,
		Log:        zap.NewNop(),
		Bridge:     debug.NewBridge(crowd, nil),
		Classifier: lod.NewClassifier(lod.Policy{}),
		Tick:       func() uint64 { return 12 },
	}
	h.reg = packet.NewRegistry(zap.NewNop())
	RegisterAll(h.reg, h.deps)

	server, client := gonet.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	h.sess = net.NewSession(server, 1, 8, 64, 0, time.Second, zap.NewNop())
	return h
}

func (h *harness) send(t *testing.T, w *packet.Writer) {
	t.Helper()
	_ = h.reg.Dispatch(h.sess, h.sess.State(), w.Bytes())
}

// replies flushes the session and collects what it queued.
func (h *harness) replies() [][]byte {
	h.sess.FlushOutput()
	var out [][]byte
	for {
		select {
		case f := <-h.sess.OutQueue:
			if f != nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func hello(password string) *packet.Writer {
	w := packet.NewWriterWithOpcode(packet.C_HELLO)
	w.WriteH(packet.ProtocolVersion)
	w.WriteS("tester")
	w.WriteS(password)
	return w
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	h.send(t, hello(""))
	out := h.replies()
	require.Len(t, out, 1)
	require.Equal(t, packet.S_HELLO, out[0][0])
	require.Equal(t, packet.StateAuthenticated, h.sess.State())
}

func TestHello_PasswordAndLockout(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	h := newHarness(t, hash)

	h.send(t, packet.NewWriterWithOpcode(packet.C_DUMP))
	assert.Empty(t, h.replies(), "queries are refused before hello")

	for i := 0; i < 2; i++ {
		h.send(t, hello("wrong"))
		out := h.replies()
		require.Len(t, out, 1)
		assert.Equal(t, []byte{packet.S_ERROR, packet.C_HELLO, packet.ErrCodeAuth}, out[0][:3])
	}
	assert.Equal(t, packet.StateHandshake, h.sess.State())

	h.send(t, hello("s3cret"))
	out := h.replies()
	require.Len(t, out, 1)
	r := packet.NewReader(out[0])
	assert.Equal(t, packet.ProtocolVersion, r.ReadH())
	assert.Equal(t, uint64(12), r.ReadQ())
	assert.Equal(t, "tester", h.sess.Operator)
	assert.True(t, h.sess.Categories[debug.CategoryMovement], "defaults from config")
}

func TestHello_ThirdFailureDisconnects(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	h := newHarness(t, hash)
	for i := 0; i < maxAuthFails; i++ {
		h.send(t, hello("nope"))
	}
	assert.Equal(t, packet.StateDisconnecting, h.sess.State())
}

func TestHello_VersionMismatch(t *testing.T) {
	h := newHarness(t, "")
	w := packet.NewWriterWithOpcode(packet.C_HELLO)
	w.WriteH(packet.ProtocolVersion + 1)
	w.WriteS("old")
	w.WriteS("")
	h.send(t, w)
	out := h.replies()
	require.NotEmpty(t, out)
	assert.Equal(t, []byte{packet.S_ERROR, packet.C_HELLO, packet.ErrCodeVersion}, out[0][:3])
	assert.Equal(t, packet.StateDisconnecting, h.sess.State())
}

func TestSelectHandle_FoundAndFreed(t *testing.T) {
	h := newHarness(t, "")
	h.login(t)

	w := packet.NewWriterWithOpcode(packet.C_SELECT_HANDLE)
	w.WriteQ(uint64(h.ids[2]))
	h.send(t, w)
	out := h.replies()
	require.Len(t, out, 1)
	require.Equal(t, packet.S_SNAPSHOT, out[0][0])
	snap, err := DecodeSnapshotFrame(out[0])
	require.NoError(t, err)
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, h.ids[2], snap.Agents[0].Handle)

	h.crowd.Free(h.ids[2])
	h.send(t, w)
	out = h.replies()
	require.Len(t, out, 1)
	r := packet.NewReader(out[0])
	assert.Equal(t, packet.S_NOTFOUND, r.Opcode())
	assert.Equal(t, packet.C_SELECT_HANDLE, r.ReadC())
	assert.Equal(t, uint64(h.ids[2]), r.ReadQ())
}

func TestDump_CompressedAboveThresholdAndDeterministic(t *testing.T) {
	h := newHarness(t, "")
	h.deps.Config.Debug.CompressThreshold = 64
	h.login(t)

	h.send(t, packet.NewWriterWithOpcode(packet.C_DUMP))
	h.send(t, packet.NewWriterWithOpcode(packet.C_DUMP))
	out := h.replies()
	require.Len(t, out, 2)
	assert.Equal(t, out[0], out[1])
	assert.Equal(t, packet.FlagZstd, out[0][1])

	snap, err := DecodeSnapshotFrame(out[0])
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 5)
}

func TestMalformedQueriesReplyError(t *testing.T) {
	h := newHarness(t, "")
	h.login(t)

	short := packet.NewWriterWithOpcode(packet.C_SELECT_RADIUS)
	short.WriteF(1)
	h.send(t, short)

	neg := packet.NewWriterWithOpcode(packet.C_SELECT_RADIUS)
	neg.WriteF(0)
	neg.WriteF(0)
	neg.WriteF(-3)
	h.send(t, neg)

	out := h.replies()
	require.Len(t, out, 2)
	for _, f := range out {
		assert.Equal(t, []byte{packet.S_ERROR, packet.C_SELECT_RADIUS, packet.ErrCodeMalformed}, f[:3])
	}
	assert.Equal(t, packet.StateAuthenticated, h.sess.State(), "errors never drop the session")
}

func TestToggleCategoryAndViewers(t *testing.T) {
	h := newHarness(t, "")
	h.login(t)

	w := packet.NewWriterWithOpcode(packet.C_TOGGLE_CATEGORY)
	w.WriteS("LOD")
	w.WriteC(1)
	h.send(t, w)
	out := h.replies()
	require.Len(t, out, 1)
	r := packet.NewReader(out[0])
	require.Equal(t, packet.S_CATEGORIES, r.Opcode())
	n := int(r.ReadC())
	var cats []string
	for i := 0; i < n; i++ {
		cats = append(cats, r.ReadS())
	}
	assert.Equal(t, []string{"movement", "navigation", "lod"}, cats)

	v := packet.NewWriterWithOpcode(packet.C_SET_VIEWERS)
	v.WriteH(2)
	v.WriteF(1)
	v.WriteF(2)
	v.WriteF(-5)
	v.WriteF(0)
	h.send(t, v)
	out = h.replies()
	require.Len(t, out, 1)
	assert.Equal(t, packet.S_STATS, out[0][0])
	assert.Equal(t, []component.Vec2{{X: 1, Y: 2}, {X: -5, Y: 0}}, h.deps.Classifier.Viewers())
}
