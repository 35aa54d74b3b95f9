package packet

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNotAllowed is returned when an opcode arrives in a state that may not use it.
var ErrNotAllowed = errors.New("opcode not allowed in session state")

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateHandshake     SessionState = iota // connected, awaiting C_HELLO
	StateAuthenticated                     // may query
	StateDisconnecting                     // S_BYE sent or lockout; nothing more is dispatched
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateAuthenticated:
		return "Authenticated"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc handles one command frame. sess is the *net.Session; it is
// passed as any because net imports this package.
type HandlerFunc func(sess any, r *Reader)

type route struct {
	fn      HandlerFunc
	allowed [StateDisconnecting + 1]bool
}

// Stats counts dispatch outcomes since the registry was built.
type Stats struct {
	Dispatched uint64
	Unknown    uint64
	Refused    uint64 // opcode not allowed in the session's state
	Panics     uint64
}

// Registry maps command opcodes to handlers with per-state access control.
// Dispatch runs on the simulation goroutine only.
type Registry struct {
	routes [256]*route
	perOp  [256]uint64
	stats  Stats
	log    *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{log: log}
}

// Register maps an opcode to a handler, restricted to the given session states.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	rt := &route{fn: fn}
	for _, s := range states {
		if s >= 0 && int(s) < len(rt.allowed) {
			rt.allowed[s] = true
		}
	}
	reg.routes[opcode] = rt
}

// Has reports whether an opcode has a handler.
func (reg *Registry) Has(opcode byte) bool {
	return reg.routes[opcode] != nil
}

// Stats returns the dispatch counters.
func (reg *Registry) Stats() Stats { return reg.stats }

// Count returns how many frames with this opcode reached their handler.
func (reg *Registry) Count(opcode byte) uint64 { return reg.perOp[opcode] }

// Dispatch validates the session state for the opcode in data[0] and calls
// its handler. Unknown opcodes are counted and ignored.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty frame")
	}
	opcode := data[0]
	rt := reg.routes[opcode]
	if rt == nil {
		reg.stats.Unknown++
		reg.log.Debug("unknown opcode",
			zap.String("opcode", OpcodeName(opcode)),
			zap.Stringer("state", state))
		return nil
	}
	if state < 0 || int(state) >= len(rt.allowed) || !rt.allowed[state] {
		reg.stats.Refused++
		reg.log.Warn("opcode not allowed in this state",
			zap.String("opcode", OpcodeName(opcode)),
			zap.Stringer("state", state))
		return fmt.Errorf("%s in state %s: %w", OpcodeName(opcode), state, ErrNotAllowed)
	}

	reg.log.Debug("command",
		zap.String("opcode", OpcodeName(opcode)),
		zap.Int("size", len(data)))
	reg.stats.Dispatched++
	reg.perOp[opcode]++
	return reg.safeCall(rt.fn, sess, NewReader(data), opcode)
}

// safeCall runs a handler with panic recovery so a single bad frame cannot
// take down the simulation loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, opcode byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.stats.Panics++
			reg.log.Error("handler panic recovered",
				zap.String("opcode", OpcodeName(opcode)),
				zap.Any("panic", rec))
			err = fmt.Errorf("handler panic for %s: %v", OpcodeName(opcode), rec)
		}
	}()
	fn(sess, r)
	return nil
}
