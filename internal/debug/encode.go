package debug

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/net/packet"
)

const (
	queryHasBox    byte = 1 << 0
	queryHasCenter byte = 1 << 1
)

// EncodeBinary renders s in the wire format. Equal snapshots always encode
// to equal bytes.
func EncodeBinary(s *Snapshot) []byte {
	w := packet.NewWriter()
	w.WriteQ(s.Tick)
	writeQuery(w, &s.Query)

	w.WriteDU(uint32(len(s.Agents)))
	for i := range s.Agents {
		writeAgent(w, &s.Agents[i])
	}

	w.WriteDU(uint32(len(s.Missing)))
	for _, h := range s.Missing {
		w.WriteQ(uint64(h))
	}

	w.WriteBool(s.Stats != nil)
	if st := s.Stats; st != nil {
		w.WriteQ(st.Tick)
		w.WriteDU(uint32(st.Live))
		w.WriteDU(uint32(st.Pooled))
		w.WriteDU(uint32(st.Tiers.High))
		w.WriteDU(uint32(st.Tiers.Medium))
		w.WriteDU(uint32(st.Tiers.Low))
		w.WriteDU(uint32(st.Tiers.Off))
		w.WriteDU(uint32(st.PendingRequests))
		w.WriteDU(uint32(st.PendingDestruction))
		w.WriteQ(st.Spawned)
		w.WriteQ(st.LODPasses)
	}

	w.WriteBool(s.Path != nil)
	if p := s.Path; p != nil {
		w.WriteQ(uint64(p.Handle))
		w.WriteS(p.Status)
		w.WriteD(int32(p.Cursor))
		writePoint(w, p.Position)
		w.WriteDU(uint32(len(p.Waypoints)))
		for _, wp := range p.Waypoints {
			writePoint(w, wp)
		}
	}
	return w.Bytes()
}

func writePoint(w *packet.Writer, p Point) {
	w.WriteF(float64(p.X))
	w.WriteF(float64(p.Y))
}

func writeQuery(w *packet.Writer, q *Query) {
	w.WriteC(byte(q.Kind))
	w.WriteQ(uint64(q.Handle))
	var flags byte
	if q.Min != nil && q.Max != nil {
		flags |= queryHasBox
	}
	if q.Center != nil {
		flags |= queryHasCenter
	}
	w.WriteC(flags)
	if flags&queryHasBox != 0 {
		writePoint(w, *q.Min)
		writePoint(w, *q.Max)
	}
	if flags&queryHasCenter != 0 {
		writePoint(w, *q.Center)
	}
	w.WriteF(float64(q.Radius))
	w.WriteS(q.Tag)
}

func writeAgent(w *packet.Writer, a *AgentView) {
	w.WriteQ(uint64(a.Handle))
	w.WriteD(int32(a.Slot))
	w.WriteQ(a.Seq)
	writePoint(w, a.Pos)
	w.WriteF(float64(a.Heading))
	writePoint(w, a.Vel)
	writePoint(w, a.DesiredVel)
	w.WriteF(float64(a.MaxSpeed))
	w.WriteS(a.State)
	w.WriteDU(a.Route)
	w.WriteDU(a.Revision)
	w.WriteD(int32(a.Cursor))
	w.WriteBool(a.HasWaypoint)
	writePoint(w, a.Waypoint)
	w.WriteF(float64(a.Acceptance))
	w.WriteS(a.Tier)
	w.WriteF(float64(a.Score))
	w.WriteQ(a.LastPass)
	w.WriteQ(a.SpawnTick)
	w.WriteQ(uint64(a.SpawnedAtMs))
	writePoint(w, a.Origin)
	w.WriteQ(a.RequestID)
	w.WriteH(uint16(len(a.Tags)))
	for _, t := range a.Tags {
		w.WriteS(t)
	}
}

// DecodeBinary parses the output of EncodeBinary.
func DecodeBinary(b []byte) (*Snapshot, error) {
	r := packet.NewBodyReader(b)
	s := &Snapshot{Tick: r.ReadQ()}
	readQuery(r, &s.Query)

	n, err := count(r, r.ReadDU(), 8)
	if err != nil {
		return nil, err
	}
	s.Agents = make([]AgentView, n)
	for i := range s.Agents {
		readAgent(r, &s.Agents[i])
	}

	n, err = count(r, r.ReadDU(), 8)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		s.Missing = append(s.Missing, ecs.EntityID(r.ReadQ()))
	}

	if r.ReadC() != 0 {
		st := &Stats{Tick: r.ReadQ()}
		st.Live = int(r.ReadDU())
		st.Pooled = int(r.ReadDU())
		st.Tiers.High = int(r.ReadDU())
		st.Tiers.Medium = int(r.ReadDU())
		st.Tiers.Low = int(r.ReadDU())
		st.Tiers.Off = int(r.ReadDU())
		st.PendingRequests = int(r.ReadDU())
		st.PendingDestruction = int(r.ReadDU())
		st.Spawned = r.ReadQ()
		st.LODPasses = r.ReadQ()
		s.Stats = st
	}

	if r.ReadC() != 0 {
		p := &PathView{Handle: ecs.EntityID(r.ReadQ())}
		p.Status = r.ReadS()
		p.Cursor = int(r.ReadD())
		p.Position = readPoint(r)
		n, err = count(r, r.ReadDU(), 16)
		if err != nil {
			return nil, err
		}
		p.Waypoints = make([]Point, n)
		for i := range p.Waypoints {
			p.Waypoints[i] = readPoint(r)
		}
		s.Path = p
	}

	if r.Short() {
		return nil, fmt.Errorf("decode snapshot: truncated payload")
	}
	return s, nil
}

// count rejects element counts the remaining payload cannot hold.
func count(r *packet.Reader, n uint32, minSize int) (int, error) {
	if int(n) > r.Remaining()/minSize {
		return 0, fmt.Errorf("decode snapshot: count %d exceeds payload", n)
	}
	return int(n), nil
}

func readPoint(r *packet.Reader) Point {
	return Point{X: Float(r.ReadF()), Y: Float(r.ReadF())}
}

func readQuery(r *packet.Reader, q *Query) {
	q.Kind = QueryKind(r.ReadC())
	q.Handle = ecs.EntityID(r.ReadQ())
	flags := r.ReadC()
	if flags&queryHasBox != 0 {
		lo, hi := readPoint(r), readPoint(r)
		q.Min, q.Max = &lo, &hi
	}
	if flags&queryHasCenter != 0 {
		c := readPoint(r)
		q.Center = &c
	}
	q.Radius = Float(r.ReadF())
	q.Tag = r.ReadS()
}

func readAgent(r *packet.Reader, a *AgentView) {
	a.Handle = ecs.EntityID(r.ReadQ())
	a.Slot = int(r.ReadD())
	a.Seq = r.ReadQ()
	a.Pos = readPoint(r)
	a.Heading = Float(r.ReadF())
	a.Vel = readPoint(r)
	a.DesiredVel = readPoint(r)
	a.MaxSpeed = Float(r.ReadF())
	a.State = r.ReadS()
	a.Route = r.ReadDU()
	a.Revision = r.ReadDU()
	a.Cursor = int(r.ReadD())
	a.HasWaypoint = r.ReadC() != 0
	a.Waypoint = readPoint(r)
	a.Acceptance = Float(r.ReadF())
	a.Tier = r.ReadS()
	a.Score = Float(r.ReadF())
	a.LastPass = r.ReadQ()
	a.SpawnTick = r.ReadQ()
	a.SpawnedAtMs = int64(r.ReadQ())
	a.Origin = readPoint(r)
	a.RequestID = r.ReadQ()
	n := int(r.ReadH())
	a.Tags = make([]string, 0, min(n, r.Remaining()))
	for i := 0; i < n && !r.Short(); i++ {
		a.Tags = append(a.Tags, r.ReadS())
	}
}

// EncodeJSON renders s as compact JSON. Struct field order and sorted tags
// make the output deterministic.
func EncodeJSON(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeJSON parses the output of EncodeJSON.
func DecodeJSON(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}
