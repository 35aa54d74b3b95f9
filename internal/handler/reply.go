package handler

import (
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
	"go.uber.org/zap"
)

// sendSnapshot writes [opcode][flags C][body]. Bodies above the configured
// threshold are zstd-compressed and flagged.
func sendSnapshot(sess *net.Session, deps *Deps, opcode byte, s *debug.Snapshot) {
	body := debug.EncodeBinary(s)
	var flags byte
	if limit := deps.Config.Debug.CompressThreshold; limit > 0 && len(body) > limit {
		z, err := debug.Compress(body)
		if err != nil {
			deps.Log.Error("snapshot compression failed", zap.Error(err))
		} else {
			body, flags = z, packet.FlagZstd
		}
	}
	w := packet.NewWriterWithOpcode(opcode)
	w.WriteC(flags)
	w.WriteBytes(body)
	sess.Send(w.Bytes())
}

// DecodeSnapshotFrame parses an S_SNAPSHOT, S_STATS or S_PATH frame.
func DecodeSnapshotFrame(frame []byte) (*debug.Snapshot, error) {
	r := packet.NewReader(frame)
	flags := r.ReadC()
	body := r.ReadBytes(r.Remaining())
	if flags&packet.FlagZstd != 0 {
		raw, err := debug.Decompress(body)
		if err != nil {
			return nil, err
		}
		body = raw
	}
	return debug.DecodeBinary(body)
}

func sendNotFound(sess *net.Session, req byte, h ecs.EntityID) {
	w := packet.NewWriterWithOpcode(packet.S_NOTFOUND)
	w.WriteC(req)
	w.WriteQ(uint64(h))
	sess.Send(w.Bytes())
}

func sendError(sess *net.Session, req, code byte, msg string) {
	w := packet.NewWriterWithOpcode(packet.S_ERROR)
	w.WriteC(req)
	w.WriteC(code)
	w.WriteS(msg)
	sess.Send(w.Bytes())
}
