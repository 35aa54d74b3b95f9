package net

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crowdlod/server/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Traffic counts frames and payload bytes moved by one session.
type Traffic struct {
	FramesIn, FramesOut uint64
	BytesIn, BytesOut   uint64
}

// Session represents a single debugger connection. Network I/O runs in
// dedicated goroutines; simulation state is accessed only from the tick loop.
type Session struct {
	ID   uint64
	conn net.Conn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // tick loop reads frames from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	// Tick-loop-only fields.
	Operator   string          // name given in C_HELLO
	Categories map[string]bool // overhead categories toggled on for this session
	AuthFails  int

	outBuf [][]byte // buffered frames, flushed by the output system

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	limiter *rate.Limiter // nil = unlimited; readLoop only

	framesIn, framesOut atomic.Uint64
	bytesIn, bytesOut   atomic.Uint64

	writeTimeout time.Duration

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, inSize, outSize, pktPerSec int, writeTimeout time.Duration, log *zap.Logger) *Session {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, inSize),
		OutQueue:     make(chan []byte, outSize),
		IP:           conn.RemoteAddr().String(),
		Categories:   make(map[string]bool),
		closeCh:      make(chan struct{}),
		writeTimeout: writeTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	if pktPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(pktPerSec), pktPerSec)
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Traffic returns the counters so far. Safe from any goroutine.
func (s *Session) Traffic() Traffic {
	return Traffic{
		FramesIn:  s.framesIn.Load(),
		FramesOut: s.framesOut.Load(),
		BytesIn:   s.bytesIn.Load(),
		BytesOut:  s.bytesOut.Load(),
	}
}

// Log returns the session-scoped logger.
func (s *Session) Log() *zap.Logger { return s.log }

// Start launches the reader and writer goroutines. The client speaks first
// with C_HELLO.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a frame for sending. Nothing reaches TCP until FlushOutput.
// Called only from the tick loop goroutine, so outBuf needs no lock.
func (s *Session) Send(data []byte) {
	if s.closed.Load() || len(data) == 0 {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// Pending returns the number of buffered frames not yet flushed.
func (s *Session) Pending() int { return len(s.outBuf) }

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow debugger")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Shutdown flushes whatever is buffered, then closes once the writer has
// sent it. Tick loop only.
func (s *Session) Shutdown() {
	s.SetState(packet.StateDisconnecting)
	s.FlushOutput()
	select {
	case s.OutQueue <- nil:
	default:
		s.Close()
	}
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
		t := s.Traffic()
		s.log.Debug("session closed",
			zap.Uint64("frames_in", t.FramesIn), zap.Uint64("frames_out", t.FramesOut),
			zap.Uint64("bytes_in", t.BytesIn), zap.Uint64("bytes_out", t.BytesOut))
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads frames from the connection and pushes them onto InQueue
// for the tick loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		s.framesIn.Add(1)
		s.bytesIn.Add(uint64(len(payload)))
		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("packet rate exceeded, disconnecting",
				zap.Float64("limit", float64(s.limiter.Limit())))
			return
		}

		// Blocking here only stalls this debugger's connection.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop writes frames from OutQueue to the connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if data == nil || !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	if ce := s.log.Check(zap.DebugLevel, "TX"); ce != nil {
		ce.Write(zap.String("op", packet.OpcodeName(data[0])), zap.Int("len", len(data)))
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := WriteFrame(s.conn, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	s.framesOut.Add(1)
	s.bytesOut.Add(uint64(len(data)))
	return true
}
