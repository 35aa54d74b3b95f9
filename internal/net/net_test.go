package net

import (
	"bytes"
	gonet "net"
	"testing"
	"time"

	"github.com/crowdlod/server/internal/net/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFrame_RoundTripAndLimits(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{packet.C_STATS, 1, 2}))
	assert.Equal(t, []byte{3, 0, 0, 0, packet.C_STATS, 1, 2}, buf.Bytes())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{packet.C_STATS, 1, 2}, got)

	assert.Error(t, WriteFrame(&buf, nil))
	_, err = ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.Error(t, err)
	_, err = ReadFrame(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0x7F}))
	assert.Error(t, err)
}

func TestSession_QueuesAndFlush(t *testing.T) {
	server, client := gonet.Pipe()
	defer client.Close()
	s := NewSession(server, 1, 4, 4, 0, time.Second, zap.NewNop())
	s.Start()
	assert.Equal(t, packet.StateHandshake, s.State())

	go func() { _ = WriteFrame(client, []byte{packet.C_PING, 9, 0, 0, 0}) }()
	select {
	case got := <-s.InQueue:
		assert.Equal(t, []byte{packet.C_PING, 9, 0, 0, 0}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not queued")
	}

	s.Send([]byte{packet.S_PONG})
	assert.Equal(t, 1, s.Pending())
	s.FlushOutput()
	assert.Zero(t, s.Pending())
	got, err := ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, []byte{packet.S_PONG}, got)

	s.Send([]byte{packet.S_BYE})
	s.Shutdown()
	got, err = ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, []byte{packet.S_BYE}, got)
	assert.Eventually(t, s.IsClosed, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, packet.StateDisconnecting, s.State())
	assert.Eventually(t, func() bool { return s.Traffic().FramesOut == 2 }, 2*time.Second, 10*time.Millisecond)
	tr := s.Traffic()
	assert.Equal(t, uint64(1), tr.FramesIn)
	assert.Equal(t, uint64(5), tr.BytesIn)
	assert.Equal(t, uint64(2), tr.BytesOut)
}

func TestSessionStore_StableOrder(t *testing.T) {
	st := NewSessionStore()
	for _, id := range []uint64{5, 2, 9, 2} {
		c, _ := gonet.Pipe()
		defer c.Close()
		st.Add(NewSession(c, id, 1, 1, 0, 0, zap.NewNop()))
	}
	var seen []uint64
	st.ForEach(func(s *Session) { seen = append(seen, s.ID) })
	assert.Equal(t, []uint64{2, 5, 9}, seen)

	st.Remove(5)
	st.Remove(5)
	assert.Equal(t, 2, st.Count())
	assert.Nil(t, st.Get(5))
}

func TestServer_MaxSessions(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", Options{MaxSessions: 1, WriteTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	go srv.AcceptLoop()
	defer srv.Shutdown()

	first, err := gonet.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	var sess *Session
	select {
	case sess = <-srv.NewSessions():
	case <-time.After(2 * time.Second):
		t.Fatal("first debugger not accepted")
	}
	assert.Equal(t, 1, srv.Live())

	second, err := gonet.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = second.Read(make([]byte, 1))
	assert.Error(t, err, "second debugger is closed by the server")

	srv.NotifyDead(sess.ID)
	assert.Equal(t, 0, srv.Live())
	third, err := gonet.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer third.Close()
	select {
	case <-srv.NewSessions():
	case <-time.After(2 * time.Second):
		t.Fatal("slot not released")
	}
}

func TestSession_RateLimitDisconnects(t *testing.T) {
	server, client := gonet.Pipe()
	defer client.Close()
	s := NewSession(server, 1, 8, 4, 1, time.Second, zap.NewNop())
	s.Start()

	go func() {
		for i := 0; i < 3; i++ {
			if WriteFrame(client, []byte{packet.C_PING, byte(i), 0, 0, 0}) != nil {
				return
			}
		}
	}()
	assert.Eventually(t, s.IsClosed, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, s.InQueue, 1, "only the burst got through")
}
