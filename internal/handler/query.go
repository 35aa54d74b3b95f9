package handler

import (
	"errors"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"go.uber.org/zap"
)

// HandleStats processes C_STATS.
func HandleStats(sess *net.Session, _ *packet.Reader, deps *Deps) {
	sendSnapshot(sess, deps, packet.S_STATS, deps.Bridge.Stats())
}

// HandleSelectHandle processes C_SELECT_HANDLE. Format: [opcode][handle Q]
func HandleSelectHandle(sess *net.Session, r *packet.Reader, deps *Deps) {
	h := ecs.EntityID(r.ReadQ())
	if r.Short() {
		sendError(sess, packet.C_SELECT_HANDLE, packet.ErrCodeMalformed, "missing handle")
		return
	}
	s := deps.Bridge.SelectHandle(h)
	if s.NotFound() {
		sendNotFound(sess, packet.C_SELECT_HANDLE, h)
		return
	}
	sendSnapshot(sess, deps, packet.S_SNAPSHOT, s)
}

// HandleSelectRegion processes C_SELECT_REGION.
// Format: [opcode][minX F][minY F][maxX F][maxY F]
func HandleSelectRegion(sess *net.Session, r *packet.Reader, deps *Deps) {
	rect := component.Rect{
		Min: component.Vec2{X: r.ReadF(), Y: r.ReadF()},
		Max: component.Vec2{X: r.ReadF(), Y: r.ReadF()},
	}
	if r.Short() {
		sendError(sess, packet.C_SELECT_REGION, packet.ErrCodeMalformed, "short region")
		return
	}
	s, err := deps.Bridge.SelectRegion(rect)
	if err != nil {
		replyErr(sess, deps, packet.C_SELECT_REGION, err)
		return
	}
	sendSnapshot(sess, deps, packet.S_SNAPSHOT, s)
}

// HandleSelectRadius processes C_SELECT_RADIUS. Format: [opcode][x F][y F][radius F]
func HandleSelectRadius(sess *net.Session, r *packet.Reader, deps *Deps) {
	center := component.Vec2{X: r.ReadF(), Y: r.ReadF()}
	radius := r.ReadF()
	if r.Short() {
		sendError(sess, packet.C_SELECT_RADIUS, packet.ErrCodeMalformed, "short radius query")
		return
	}
	s, err := deps.Bridge.SelectRadius(center, radius)
	if err != nil {
		replyErr(sess, deps, packet.C_SELECT_RADIUS, err)
		return
	}
	sendSnapshot(sess, deps, packet.S_SNAPSHOT, s)
}

// HandleListTag processes C_LIST_TAG. Format: [opcode][tag\0]
func HandleListTag(sess *net.Session, r *packet.Reader, deps *Deps) {
	s, err := deps.Bridge.ListByTag(r.ReadS())
	if err != nil {
		replyErr(sess, deps, packet.C_LIST_TAG, err)
		return
	}
	sendSnapshot(sess, deps, packet.S_SNAPSHOT, s)
}

// HandleDump processes C_DUMP.
func HandleDump(sess *net.Session, _ *packet.Reader, deps *Deps) {
	sendSnapshot(sess, deps, packet.S_SNAPSHOT, deps.Bridge.DumpFull())
}

// HandlePath processes C_PATH. Format: [opcode][handle Q]
func HandlePath(sess *net.Session, r *packet.Reader, deps *Deps) {
	h := ecs.EntityID(r.ReadQ())
	if r.Short() {
		sendError(sess, packet.C_PATH, packet.ErrCodeMalformed, "missing handle")
		return
	}
	s := deps.Bridge.Path(h)
	if s.NotFound() {
		sendNotFound(sess, packet.C_PATH, h)
		return
	}
	sendSnapshot(sess, deps, packet.S_PATH, s)
}

func replyErr(sess *net.Session, deps *Deps, req byte, err error) {
	if errors.Is(err, debug.ErrMalformed) {
		sendError(sess, req, packet.ErrCodeMalformed, err.Error())
		return
	}
	deps.Log.Error("debug query failed", zap.Uint64("session", sess.ID), zap.Uint8("opcode", req), zap.Error(err))
	sendError(sess, req, packet.ErrCodeInternal, "internal error")
}
