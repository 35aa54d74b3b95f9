package system

import (
	"time"

	coresys "github.com/crowdlod/server/internal/core/system"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"go.uber.org/zap"
)

// CommandQueue is a debug front end whose commands are answered inside the
// simulation loop, such as the websocket gateway.
type CommandQueue interface {
	Service(limit int) int
}

// InputSystem drains debug command queues from every TCP session and any
// attached CommandQueue, dispatching them against a quiescent crowd.
// Phase 0 (Input).
type InputSystem struct {
	netServer  *net.Server
	registry   *packet.Registry
	store      *net.SessionStore
	queues     []CommandQueue
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(netServer *net.Server, registry *packet.Registry, store *net.SessionStore, maxPerTick int, log *zap.Logger) *InputSystem {
	return &InputSystem{
		netServer:  netServer,
		registry:   registry,
		store:      store,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

// Attach adds a CommandQueue serviced after the TCP sessions.
func (s *InputSystem) Attach(q CommandQueue) {
	s.queues = append(s.queues, q)
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	if s.netServer != nil {
		s.acceptAndReap()
	}

	var closed []uint64
	s.store.ForEach(func(sess *net.Session) {
		if sess.IsClosed() {
			// Drain what arrived before the disconnect so a trailing C_QUIT
			// still gets its S_BYE logged.
			s.drain(sess)
			sess.FlushOutput()
			closed = append(closed, sess.ID)
			return
		}
		s.drain(sess)
	})
	for _, id := range closed {
		s.store.Remove(id)
		if s.netServer != nil {
			s.netServer.NotifyDead(id)
		}
		s.log.Info("debugger disconnected", zap.Uint64("session", id))
	}

	for _, q := range s.queues {
		q.Service(s.maxPerTick * 4)
	}

	// Early flush: replies produced here can reach the writer goroutines
	// while the rest of the tick runs.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

func (s *InputSystem) acceptAndReap() {
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			return
		}
	}
}

func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug("packet dispatch error",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}
