package handler

import (
	"github.com/crowdlod/server/internal/config"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/lod"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config     *config.Config
	Log        *zap.Logger
	Bridge     *debug.Bridge
	Classifier *lod.Classifier
	Tick       func() uint64
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	// Handshake phase
	reg.Register(packet.C_HELLO,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleHello(sess.(*net.Session), r, deps)
		},
	)

	anyState := []packet.SessionState{packet.StateHandshake, packet.StateAuthenticated}
	reg.Register(packet.C_PING, anyState,
		func(sess any, r *packet.Reader) {
			HandlePing(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_QUIT, anyState,
		func(sess any, r *packet.Reader) {
			HandleQuit(sess.(*net.Session), r, deps)
		},
	)

	// Queries
	authStates := []packet.SessionState{packet.StateAuthenticated}

	reg.Register(packet.C_STATS, authStates,
		func(sess any, r *packet.Reader) {
			HandleStats(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_SELECT_HANDLE, authStates,
		func(sess any, r *packet.Reader) {
			HandleSelectHandle(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_SELECT_REGION, authStates,
		func(sess any, r *packet.Reader) {
			HandleSelectRegion(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_SELECT_RADIUS, authStates,
		func(sess any, r *packet.Reader) {
			HandleSelectRadius(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_LIST_TAG, authStates,
		func(sess any, r *packet.Reader) {
			HandleListTag(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_DUMP, authStates,
		func(sess any, r *packet.Reader) {
			HandleDump(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_PATH, authStates,
		func(sess any, r *packet.Reader) {
			HandlePath(sess.(*net.Session), r, deps)
		},
	)

	// Overlay controls
	reg.Register(packet.C_TOGGLE_CATEGORY, authStates,
		func(sess any, r *packet.Reader) {
			HandleToggleCategory(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_CATEGORIES, authStates,
		func(sess any, r *packet.Reader) {
			HandleCategories(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_SET_VIEWERS, authStates,
		func(sess any, r *packet.Reader) {
			HandleSetViewers(sess.(*net.Session), r, deps)
		},
	)
}

func (d *Deps) tick() uint64 {
	if d.Tick == nil {
		return 0
	}
	return d.Tick()
}
