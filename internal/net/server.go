package net

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Options sizes per-session queues and limits.
type Options struct {
	InQueueSize      int
	OutQueueSize     int
	PacketsPerSecond int
	WriteTimeout     time.Duration
	MaxSessions      int  // concurrent debuggers, 0 = unlimited
	AllowRemote      bool // accept peers outside loopback
}

// Server accepts debugger TCP connections and creates Sessions.
// New and dead sessions reach the tick loop through channels.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	live     atomic.Int64
	newConns chan *Session
	deadCh   chan uint64 // session IDs of dead sessions
	opts     Options
	log      *zap.Logger
	closeCh  chan struct{}
}

func NewServer(bindAddr string, opts Options, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	if opts.InQueueSize <= 0 {
		opts.InQueueSize = 64
	}
	if opts.OutQueueSize <= 0 {
		opts.OutQueueSize = 128
	}
	s := &Server{
		listener: ln,
		newConns: make(chan *Session, 64),
		deadCh:   make(chan uint64, 64),
		opts:     opts,
		log:      log,
		closeCh:  make(chan struct{}),
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine. It accepts connections, starts
// their sessions and hands them to the tick loop.
func (s *Server) AcceptLoop() {
	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff < time.Second {
				backoff *= 2
			}
			s.log.Error("accept failed", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.opts.AllowRemote && !isLoopback(conn.RemoteAddr()) {
			s.log.Warn("refusing remote debugger", zap.Stringer("addr", conn.RemoteAddr()))
			conn.Close()
			continue
		}
		if limit := int64(s.opts.MaxSessions); limit > 0 && s.live.Load() >= limit {
			s.log.Warn("debugger limit reached, refusing",
				zap.Stringer("addr", conn.RemoteAddr()), zap.Int64("limit", limit))
			conn.Close()
			continue
		}

		id := s.nextID.Add(1)
		sess := NewSession(conn, id, s.opts.InQueueSize, s.opts.OutQueueSize,
			s.opts.PacketsPerSecond, s.opts.WriteTimeout, s.log)

		select {
		case s.newConns <- sess:
			s.live.Add(1)
			sess.Start()
			s.log.Info("debugger connected", zap.Uint64("session", id), zap.String("ip", sess.IP))
		default:
			s.log.Warn("connection queue full, refusing debugger")
			conn.Close()
		}
	}
}

func isLoopback(addr net.Addr) bool {
	tcp, ok := addr.(*net.TCPAddr)
	return ok && tcp.IP.IsLoopback()
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead reports a dead session ID to the tick loop and frees its slot
// under MaxSessions. Call once per session.
func (s *Server) NotifyDead(sessionID uint64) {
	s.live.Add(-1)
	select {
	case s.deadCh <- sessionID:
	default:
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.deadCh
}

// Live returns the number of sessions handed to the tick loop and not yet
// reported dead.
func (s *Server) Live() int { return int(s.live.Load()) }

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
