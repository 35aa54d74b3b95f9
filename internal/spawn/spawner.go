// Package spawn admits new agents into the crowd under rate and capacity
// limits, and retires agents whose expiry predicate matches.
package spawn

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/core/event"
	"github.com/crowdlod/server/internal/world"
	"github.com/ojrac/opensimplex-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrCapacity is returned when an immediate spawn would exceed the live ceiling.
	ErrCapacity = errors.New("spawn capacity exceeded")
	// ErrInvalidRequest is returned for requests that can never be fulfilled.
	ErrInvalidRequest = errors.New("invalid spawn request")
)

// Overflow selects what happens to the part of a request that does not fit
// under the live ceiling.
type Overflow uint8

const (
	OverflowRetain Overflow = iota // keep the remainder queued
	OverflowReject                 // drop the remainder
)

func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "", "retain":
		return OverflowRetain, nil
	case "reject":
		return OverflowReject, nil
	}
	return 0, fmt.Errorf("unknown overflow policy %q", s)
}

func (o Overflow) String() string {
	if o == OverflowReject {
		return "reject"
	}
	return "retain"
}

// Request asks for Count agents around Location.
type Request struct {
	ID        uint64 // assigned by Enqueue
	Location  component.Vec2
	Radius    float64
	Count     int
	Remaining int // assigned by Enqueue, decremented as agents are allocated
	Tags      []string
	Rate      float64 // agents per second, 0 = no per-request limit
	Route     string
	MaxSpeed  float64
	ExpiresAt time.Duration // simulation time, 0 = never

	// OnSpawned runs once when the request leaves the queue, with every
	// handle it produced.
	OnSpawned func([]ecs.EntityID)
}

// RequestStatus is a read-only view of a queued request.
type RequestStatus struct {
	ID        uint64
	Count     int
	Remaining int
	Tags      []string
	Route     string
	ExpiresAt time.Duration
}

// Limits bound how fast and how far the crowd may grow.
type Limits struct {
	MaxLive      int     // 0 = unbounded
	MaxPerTick   int     // 0 = unbounded
	GlobalRate   float64 // agents per second, 0 = unlimited
	GlobalBurst  int
	TagRates     map[string]float64
	Overflow     Overflow
	InitialTier  component.Tier
	ScatterScale float64
	DefaultSpeed float64
}

// RouteSource hands out path references by route name.
type RouteSource interface {
	Acquire(name string) (component.PathRef, error)
	Acceptance(ref component.PathRef) float64
}

// DrainResult counts what one Drain did.
type DrainResult struct {
	Spawned   int
	Fulfilled int
	Expired   int
	Rejected  int
}

type pending struct {
	req     Request
	limiter *rate.Limiter
	handles []ecs.EntityID
	issued  int // agents produced so far, feeds the scatter
	dropped int // agents rejected at capacity
}

// Spawner owns the request queue. Single-goroutine access only.
type Spawner struct {
	crowd  *world.Crowd
	routes RouteSource
	bus    *event.Bus
	log    *zap.Logger

	limits  Limits
	noise   opensimplex.Noise
	global  *rate.Limiter
	perTag  map[string]*rate.Limiter
	queue   []*pending
	nextID  uint64
	now     time.Duration
	tick    uint64
	spawned uint64
}

// epoch anchors simulation time for the token buckets.
var epoch = time.Unix(0, 0).UTC()

func NewSpawner(crowd *world.Crowd, routes RouteSource, bus *event.Bus, limits Limits, seed int64, log *zap.Logger) *Spawner {
	s := &Spawner{
		crowd:  crowd,
		routes: routes,
		bus:    bus,
		log:    log,
		noise:  opensimplex.NewNormalized(seed),
	}
	s.SetLimits(limits)
	return s
}

// SetLimits swaps the limits. Token buckets restart full.
func (s *Spawner) SetLimits(l Limits) {
	if l.InitialTier >= component.TierCount {
		l.InitialTier = component.TierOff
	}
	s.limits = l
	s.global = nil
	if l.GlobalRate > 0 {
		s.global = rate.NewLimiter(rate.Limit(l.GlobalRate), burstFor(l.GlobalRate, l.GlobalBurst))
	}
	s.perTag = make(map[string]*rate.Limiter, len(l.TagRates))
	for tag, r := range l.TagRates {
		if r > 0 {
			s.perTag[component.FoldTag(tag)] = rate.NewLimiter(rate.Limit(r), burstFor(r, 0))
		}
	}
}

func (s *Spawner) Limits() Limits { return s.limits }

func burstFor(r float64, burst int) int {
	if burst > 0 {
		return burst
	}
	return max(1, int(math.Ceil(r)))
}

// Enqueue validates and queues a request, returning its id.
func (s *Spawner) Enqueue(req Request) (uint64, error) {
	if err := validate(req); err != nil {
		return 0, err
	}
	s.nextID++
	req.ID = s.nextID
	req.Remaining = req.Count
	req.Tags = append([]string(nil), req.Tags...)
	p := &pending{req: req}
	if req.Rate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(req.Rate), burstFor(req.Rate, 0))
	}
	s.queue = append(s.queue, p)
	s.log.Debug("spawn request queued",
		zap.Uint64("request", req.ID), zap.Int("count", req.Count), zap.Strings("tags", req.Tags))
	return req.ID, nil
}

func validate(req Request) error {
	switch {
	case req.Count <= 0:
		return fmt.Errorf("%w: count %d", ErrInvalidRequest, req.Count)
	case !req.Location.IsFinite():
		return fmt.Errorf("%w: location %v", ErrInvalidRequest, req.Location)
	case req.Radius < 0 || math.IsNaN(req.Radius) || math.IsInf(req.Radius, 0):
		return fmt.Errorf("%w: radius %v", ErrInvalidRequest, req.Radius)
	case req.Rate < 0 || math.IsNaN(req.Rate):
		return fmt.Errorf("%w: rate %v", ErrInvalidRequest, req.Rate)
	}
	return nil
}

// Pending lists queued requests in FIFO order.
func (s *Spawner) Pending() []RequestStatus {
	out := make([]RequestStatus, 0, len(s.queue))
	for _, p := range s.queue {
		out = append(out, RequestStatus{
			ID:        p.req.ID,
			Count:     p.req.Count,
			Remaining: p.req.Remaining,
			Tags:      append([]string(nil), p.req.Tags...),
			Route:     p.req.Route,
			ExpiresAt: p.req.ExpiresAt,
		})
	}
	return out
}

// PendingCount returns the number of queued requests.
func (s *Spawner) PendingCount() int { return len(s.queue) }

// Spawned returns the number of agents allocated since start.
func (s *Spawner) Spawned() uint64 { return s.spawned }

// Cancel removes a queued request. Cancelling twice, or cancelling a request
// that already left the queue, reports false and changes nothing.
func (s *Spawner) Cancel(id uint64) bool {
	for i, p := range s.queue {
		if p.req.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.finish(p)
			return true
		}
	}
	return false
}

// SpawnNow allocates a whole request immediately, bypassing the queue and the
// rate limits. It allocates nothing and returns ErrCapacity if the request does
// not fit under the live ceiling.
func (s *Spawner) SpawnNow(req Request) ([]ecs.EntityID, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if room := s.room(); room >= 0 && req.Count > room {
		return nil, fmt.Errorf("%w: want %d, room for %d", ErrCapacity, req.Count, room)
	}
	s.nextID++
	req.ID = s.nextID
	req.Remaining = req.Count
	p := &pending{req: req}
	s.allocate(p, req.Count)
	s.finish(p)
	return p.handles, nil
}

// room returns how many agents fit under the ceiling, or -1 when unbounded.
func (s *Spawner) room() int {
	if s.limits.MaxLive <= 0 {
		return -1
	}
	return max(0, s.limits.MaxLive-s.crowd.Count())
}

// Drain advances simulation time to now and allocates what the limits allow,
// oldest request first. Under OverflowReject only the part of a request beyond
// the live ceiling is dropped; the part that fits but is held back by the
// per-tick budget or a rate limit stays queued. Completion callbacks run after
// the queue is settled, so they may enqueue or cancel requests.
func (s *Spawner) Drain(now time.Duration, tick uint64) DrainResult {
	s.now, s.tick = now, tick
	at := epoch.Add(now)
	var res DrainResult
	budget := s.limits.MaxPerTick
	if budget <= 0 {
		budget = math.MaxInt
	}

	var done []*pending
	reserved := 0 // room already promised to earlier requests still queued
	kept := s.queue[:0]
	for _, p := range s.queue {
		if p.req.ExpiresAt > 0 && now >= p.req.ExpiresAt {
			res.Expired++
			if s.bus != nil {
				event.Emit(s.bus, event.SpawnExpired{RequestID: p.req.ID, Remaining: p.req.Remaining})
			}
			s.log.Debug("spawn request expired",
				zap.Uint64("request", p.req.ID), zap.Int("remaining", p.req.Remaining))
			done = append(done, p)
			continue
		}

		room := s.room()
		if room >= 0 && s.limits.Overflow == OverflowReject {
			if over := p.req.Remaining - max(0, room-reserved); over > 0 {
				s.reject(p, over, &res)
			}
		}

		n := p.req.Remaining
		if room >= 0 {
			n = min(n, room)
		}
		n = min(n, budget)
		n = min(n, tokens(p.limiter, at))
		n = min(n, tokens(s.global, at))
		tagLimiters := s.tagLimiters(p.req.Tags)
		for _, l := range tagLimiters {
			n = min(n, tokens(l, at))
		}

		if n > 0 {
			take(p.limiter, at, n)
			take(s.global, at, n)
			for _, l := range tagLimiters {
				take(l, at, n)
			}
			s.allocate(p, n)
			budget -= n
			res.Spawned += n
		}

		if p.req.Remaining > 0 {
			reserved += p.req.Remaining
			kept = append(kept, p)
			continue
		}
		if p.dropped == 0 {
			res.Fulfilled++
			if s.bus != nil {
				event.Emit(s.bus, event.SpawnFulfilled{RequestID: p.req.ID, Spawned: len(p.handles)})
			}
		}
		done = append(done, p)
	}
	clear(s.queue[len(kept):])
	s.queue = kept

	for _, p := range done {
		s.finish(p)
	}
	return res
}

// reject drops n agents from the tail of p.
func (s *Spawner) reject(p *pending, n int, res *DrainResult) {
	p.req.Remaining -= n
	p.dropped += n
	res.Rejected += n
	if s.bus != nil {
		event.Emit(s.bus, event.SpawnRejected{RequestID: p.req.ID, Dropped: n})
	}
	s.log.Info("spawn request overflow rejected at capacity",
		zap.Uint64("request", p.req.ID), zap.Int("dropped", n), zap.Int("kept", p.req.Remaining))
}

func (s *Spawner) tagLimiters(tags []string) []*rate.Limiter {
	if len(s.perTag) == 0 {
		return nil
	}
	var out []*rate.Limiter
	for _, t := range component.NewTagSet(tags...) {
		if l, ok := s.perTag[t]; ok {
			out = append(out, l)
		}
	}
	return out
}

func tokens(l *rate.Limiter, at time.Time) int {
	if l == nil {
		return math.MaxInt
	}
	return max(0, int(math.Floor(l.TokensAt(at))))
}

func take(l *rate.Limiter, at time.Time, n int) {
	if l != nil {
		l.AllowN(at, n)
	}
}

// allocate creates n agents for p.
func (s *Spawner) allocate(p *pending, n int) {
	req := &p.req
	tags := component.NewTagSet(req.Tags...)
	speed := req.MaxSpeed
	if speed <= 0 {
		speed = s.limits.DefaultSpeed
	}

	var path component.PathRef
	var accept float64
	if req.Route != "" && s.routes != nil {
		ref, err := s.routes.Acquire(req.Route)
		if err != nil {
			s.log.Warn("spawn route unavailable, agents will idle",
				zap.Uint64("request", req.ID), zap.String("route", req.Route), zap.Error(err))
		} else {
			path, accept = ref, s.routes.Acceptance(ref)
		}
	}
	state := component.MoveIdle
	if !path.IsZero() {
		state = component.MoveMoving
	}

	for i := 0; i < n; i++ {
		pos := s.scatter(req, p.issued)
		p.issued++
		id := s.crowd.Allocate(component.Agent{
			Transform: component.Transform{Pos: pos},
			Motion:    component.Motion{MaxSpeed: speed, State: state},
			Nav:       component.Nav{Path: path, Acceptance: accept},
			LOD:       component.LOD{Tier: s.limits.InitialTier},
			Life: component.Life{
				SpawnTick: s.tick,
				SpawnedAt: s.now,
				Origin:    pos,
				RequestID: req.ID,
			},
			Tags: tags.Clone(),
		})
		p.handles = append(p.handles, id)
		if s.bus != nil {
			event.Emit(s.bus, event.AgentSpawned{Handle: id, RequestID: req.ID, Tags: tags.Clone()})
		}
	}
	req.Remaining -= n
	s.spawned += uint64(n)
}

// scatter places the k-th agent of a request inside its radius. The same
// seed, request id and k always give the same point.
func (s *Spawner) scatter(req *Request, k int) component.Vec2 {
	if req.Radius <= 0 {
		return req.Location
	}
	scale := s.limits.ScatterScale
	if scale <= 0 {
		scale = 0.15
	}
	x := float64(k)*scale + float64(req.ID)*7.31
	u := clamp01(s.noise.Eval2(x, 0.5))
	v := clamp01(s.noise.Eval2(x, 101.5))
	r := req.Radius * math.Sqrt(u)
	theta := 2 * math.Pi * v
	return req.Location.Add(component.Vec2{X: r * math.Cos(theta), Y: r * math.Sin(theta)})
}

func clamp01(f float64) float64 {
	return math.Min(math.Max(f, 0), 1)
}

func (s *Spawner) finish(p *pending) {
	if p.req.OnSpawned != nil {
		p.req.OnSpawned(p.handles)
	}
}
