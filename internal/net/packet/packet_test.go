package packet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriterReader_Fields(t *testing.T) {
	w := NewWriterWithOpcode(C_SELECT_RADIUS)
	w.WriteC(7)
	w.WriteH(0xBEEF)
	w.WriteD(-5)
	w.WriteQ(1<<40 | 3)
	w.WriteF(-1.25)
	w.WriteF(math.Inf(-1))
	w.WriteS("héllo")
	w.WriteBool(true)

	r := NewReader(w.Bytes())
	assert.Equal(t, C_SELECT_RADIUS, r.Opcode())
	assert.Equal(t, byte(7), r.ReadC())
	assert.Equal(t, uint16(0xBEEF), r.ReadH())
	assert.Equal(t, int32(-5), r.ReadD())
	assert.Equal(t, uint64(1<<40|3), r.ReadQ())
	assert.Equal(t, -1.25, r.ReadF())
	assert.True(t, math.IsInf(r.ReadF(), -1))
	assert.Equal(t, "héllo", r.ReadS())
	assert.Equal(t, byte(1), r.ReadC())
	assert.Zero(t, r.Remaining())
	assert.False(t, r.Short())
}

func TestReader_ShortPayload(t *testing.T) {
	r := NewReader([]byte{C_SELECT_HANDLE, 1, 2})
	assert.Zero(t, r.ReadQ())
	assert.True(t, r.Short())
	assert.Zero(t, r.ReadC())
}

func TestWriter_EmbeddedNulTruncates(t *testing.T) {
	w := NewWriter()
	w.WriteS("ab\x00cd")
	assert.Equal(t, []byte{'a', 'b', 0}, w.Bytes())
}

func TestRegistry_StatesAndPanics(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	called := 0
	reg.Register(C_STATS, []SessionState{StateAuthenticated}, func(any, *Reader) { called++ })
	reg.Register(C_DUMP, []SessionState{StateAuthenticated}, func(any, *Reader) { panic("boom") })

	require.NoError(t, reg.Dispatch(nil, StateAuthenticated, []byte{C_STATS}))
	assert.Equal(t, 1, called)

	err := reg.Dispatch(nil, StateHandshake, []byte{C_STATS})
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Equal(t, 1, called)

	assert.Error(t, reg.Dispatch(nil, StateAuthenticated, []byte{C_DUMP}))
	assert.NoError(t, reg.Dispatch(nil, StateAuthenticated, []byte{0x55}), "unknown opcodes are ignored")
	assert.Error(t, reg.Dispatch(nil, StateAuthenticated, nil))
	assert.Error(t, reg.Dispatch(nil, StateDisconnecting, []byte{C_STATS}))

	assert.Equal(t, Stats{Dispatched: 2, Unknown: 1, Refused: 2, Panics: 1}, reg.Stats())
	assert.Equal(t, uint64(1), reg.Count(C_STATS))
	assert.Equal(t, uint64(1), reg.Count(C_DUMP))
}

func TestOpcodeName(t *testing.T) {
	assert.Equal(t, "C_SELECT_RADIUS", OpcodeName(C_SELECT_RADIUS))
	assert.Equal(t, "S_BYE", OpcodeName(S_BYE))
	assert.Equal(t, "0x55", OpcodeName(0x55))
}
