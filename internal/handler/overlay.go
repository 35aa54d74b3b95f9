package handler

import (
	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"go.uber.org/zap"
)

// maxViewers bounds C_SET_VIEWERS.
const maxViewers = 64

// HandleToggleCategory processes C_TOGGLE_CATEGORY. Format: [opcode][category\0][on C]
// Replies with the session's categories.
func HandleToggleCategory(sess *net.Session, r *packet.Reader, deps *Deps) {
	name := component.FoldTag(r.ReadS())
	on := r.ReadC() != 0
	if r.Short() || !debug.ValidCategory(name) {
		sendError(sess, packet.C_TOGGLE_CATEGORY, packet.ErrCodeMalformed, "unknown category "+name)
		return
	}
	if on {
		sess.Categories[name] = true
	} else {
		delete(sess.Categories, name)
	}
	HandleCategories(sess, r, deps)
}

// HandleCategories processes C_CATEGORIES.
func HandleCategories(sess *net.Session, _ *packet.Reader, _ *Deps) {
	var on []string
	for _, c := range debug.Categories {
		if sess.Categories[c] {
			on = append(on, c)
		}
	}
	w := packet.NewWriterWithOpcode(packet.S_CATEGORIES)
	w.WriteC(byte(len(on)))
	for _, c := range on {
		w.WriteS(c)
	}
	sess.Send(w.Bytes())
}

// HandleSetViewers processes C_SET_VIEWERS. Format: [opcode][n H] n × [x F][y F]
// Replaces the classifier's viewers; takes effect on the next pass.
func HandleSetViewers(sess *net.Session, r *packet.Reader, deps *Deps) {
	n := int(r.ReadH())
	if n > maxViewers {
		sendError(sess, packet.C_SET_VIEWERS, packet.ErrCodeMalformed, "too many viewers")
		return
	}
	vs := make([]component.Vec2, 0, n)
	for i := 0; i < n; i++ {
		v := component.Vec2{X: r.ReadF(), Y: r.ReadF()}
		if !v.IsFinite() {
			sendError(sess, packet.C_SET_VIEWERS, packet.ErrCodeMalformed, "non-finite viewer")
			return
		}
		vs = append(vs, v)
	}
	if r.Short() {
		sendError(sess, packet.C_SET_VIEWERS, packet.ErrCodeMalformed, "short viewer list")
		return
	}
	deps.Classifier.SetViewers(vs)
	deps.Log.Info("viewers replaced", zap.Uint64("session", sess.ID), zap.Int("count", n))
	HandleStats(sess, r, deps)
}
