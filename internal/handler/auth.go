package handler

import (
	"fmt"

	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// maxAuthFails is how many bad passwords a session gets before it is dropped.
const maxAuthFails = 3

// HashPassword returns the bcrypt hash to put in debug.password_hash.
func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether raw matches hash. An empty hash accepts anything.
func CheckPassword(hash, raw string) bool {
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// HandleHello processes C_HELLO.
// Format: [opcode][version H][operator\0][password\0]
func HandleHello(sess *net.Session, r *packet.Reader, deps *Deps) {
	version := r.ReadH()
	operator := r.ReadS()
	password := r.ReadS()
	if r.Short() {
		sendError(sess, packet.C_HELLO, packet.ErrCodeMalformed, "malformed hello")
		return
	}

	if version != packet.ProtocolVersion {
		deps.Log.Info("debugger protocol mismatch",
			zap.Uint64("session", sess.ID), zap.Uint16("version", version))
		sendError(sess, packet.C_HELLO, packet.ErrCodeVersion,
			fmt.Sprintf("protocol %d not supported, want %d", version, packet.ProtocolVersion))
		sess.Shutdown()
		return
	}

	if !CheckPassword(deps.Config.Debug.PasswordHash, password) {
		sess.AuthFails++
		deps.Log.Warn("debugger authentication failed",
			zap.Uint64("session", sess.ID), zap.String("ip", sess.IP), zap.Int("attempt", sess.AuthFails))
		sendError(sess, packet.C_HELLO, packet.ErrCodeAuth, "authentication failed")
		if sess.AuthFails >= maxAuthFails {
			sess.Shutdown()
		}
		return
	}

	sess.Operator = operator
	for _, c := range deps.Config.Debug.Categories {
		if debug.ValidCategory(c) {
			sess.Categories[c] = true
		}
	}
	sess.SetState(packet.StateAuthenticated)
	deps.Log.Info("debugger authenticated",
		zap.Uint64("session", sess.ID), zap.String("operator", operator))

	w := packet.NewWriterWithOpcode(packet.S_HELLO)
	w.WriteH(packet.ProtocolVersion)
	w.WriteQ(deps.tick())
	sess.Send(w.Bytes())
}

// HandlePing processes C_PING. Format: [opcode][nonce DU]
func HandlePing(sess *net.Session, r *packet.Reader, deps *Deps) {
	nonce := r.ReadDU()
	w := packet.NewWriterWithOpcode(packet.S_PONG)
	w.WriteDU(nonce)
	w.WriteQ(deps.tick())
	sess.Send(w.Bytes())
}

// HandleQuit processes C_QUIT: says goodbye, then closes once flushed.
func HandleQuit(sess *net.Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Info("debugger quit", zap.Uint64("session", sess.ID), zap.String("operator", sess.Operator))
	sess.Send([]byte{packet.S_BYE})
	sess.Shutdown()
}
