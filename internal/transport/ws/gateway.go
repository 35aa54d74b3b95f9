// Package ws is the websocket face of the debug bridge. Connections are
// loopback-only; commands are validated against a JSON Schema, queued, and
// answered by the simulation loop at its input phase.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/world"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Command is one decoded client message.
type Command struct {
	Type     string      `json:"type"`
	ID       string      `json:"id,omitempty"`
	Password string      `json:"password,omitempty"`
	Handle   string      `json:"handle,omitempty"`
	Min      *[2]float64 `json:"min,omitempty"`
	Max      *[2]float64 `json:"max,omitempty"`
	Center   *[2]float64 `json:"center,omitempty"`
	Radius   float64     `json:"radius,omitempty"`
	Tag      string      `json:"tag,omitempty"`
	Category string      `json:"category,omitempty"`
	On       bool        `json:"on,omitempty"`
}

// Response statuses.
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// Response is one server message. Render frames use Type "render".
type Response struct {
	ID         string              `json:"id,omitempty"`
	Type       string              `json:"type"`
	Status     string              `json:"status"`
	Error      string              `json:"error,omitempty"`
	Session    string              `json:"session,omitempty"`
	Snapshot   json.RawMessage     `json:"snapshot,omitempty"`
	Categories []string            `json:"categories,omitempty"`
	Overhead   []debug.OverheadRow `json:"overhead,omitempty"`
	Render     *RenderFrame        `json:"render,omitempty"`
}

// RenderFrame is the published render projection.
type RenderFrame struct {
	Tick   uint64       `json:"tick"`
	Agents []RenderItem `json:"agents"`
}

type RenderItem struct {
	Handle  ecs.EntityID `json:"handle"`
	X       debug.Float  `json:"x"`
	Y       debug.Float  `json:"y"`
	Heading debug.Float  `json:"heading"`
	Tier    string       `json:"tier"`
}

// Options configures the gateway.
type Options struct {
	Addr         string
	PasswordHash string
	QueueSize    int
	Categories   []string
}

type session struct {
	id  string
	out chan []byte

	// Tick-loop-only fields.
	categories map[string]bool
	render     bool
}

type request struct {
	sess *session
	cmd  Command
}

// Gateway serves websocket debuggers.
type Gateway struct {
	bridge   *debug.Bridge
	log      *zap.Logger
	opts     Options
	schema   *jsonschema.Schema
	upgrader websocket.Upgrader

	requests chan request

	mu       sync.Mutex
	sessions map[string]*session

	srv *http.Server
	ln  net.Listener
}

func NewGateway(bridge *debug.Bridge, opts Options, log *zap.Logger) (*Gateway, error) {
	schema, err := compileCommandSchema()
	if err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	g := &Gateway{
		bridge: bridge,
		log:    log,
		opts:   opts,
		schema: schema,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return isLoopbackRemote(r.RemoteAddr) },
		},
		requests: make(chan request, opts.QueueSize),
		sessions: make(map[string]*session),
	}
	return g, nil
}

// Handler returns the websocket endpoint.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/ws", g.serveWS)
	return mux
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", g.opts.Addr, err)
	}
	g.ln = ln
	g.srv = &http.Server{Handler: g.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error("websocket gateway stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	if g.ln == nil {
		return nil
	}
	return g.ln.Addr()
}

// Shutdown stops the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.srv == nil {
		return nil
	}
	return g.srv.Shutdown(ctx)
}

// Sessions returns the number of connected debuggers.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gateway) serveWS(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := g.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := &session{
		id:         uuid.NewString(),
		out:        make(chan []byte, 64),
		categories: make(map[string]bool),
	}
	for _, c := range g.opts.Categories {
		if debug.ValidCategory(c) {
			sess.categories[c] = true
		}
	}
	log := g.log.With(zap.String("ws_session", sess.id))

	authed := g.opts.PasswordHash == ""
	if authed {
		g.join(sess)
	}
	defer g.leave(sess)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b := <-sess.out:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		cmd, err := g.decode(msg)
		if err != nil {
			g.reply(sess, Response{Type: "error", Status: StatusError, Error: err.Error()})
			continue
		}
		if cmd.Type == "hello" {
			if !authed && bcrypt.CompareHashAndPassword([]byte(g.opts.PasswordHash), []byte(cmd.Password)) != nil {
				log.Warn("websocket authentication failed", zap.String("ip", r.RemoteAddr))
				g.reply(sess, Response{ID: cmd.ID, Type: cmd.Type, Status: StatusError, Error: "authentication failed"})
				continue
			}
			if !authed {
				authed = true
				g.join(sess)
			}
			g.reply(sess, Response{ID: cmd.ID, Type: cmd.Type, Status: StatusOK, Session: sess.id})
			continue
		}
		if !authed {
			g.reply(sess, Response{ID: cmd.ID, Type: cmd.Type, Status: StatusError, Error: "hello required"})
			continue
		}
		select {
		case g.requests <- request{sess: sess, cmd: cmd}:
		default:
			g.reply(sess, Response{ID: cmd.ID, Type: cmd.Type, Status: StatusError, Error: "server busy"})
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
}

func (g *Gateway) decode(msg []byte) (Command, error) {
	var cmd Command
	var raw any
	if err := json.Unmarshal(msg, &raw); err != nil {
		return cmd, fmt.Errorf("invalid json: %w", err)
	}
	if err := g.schema.Validate(raw); err != nil {
		return cmd, fmt.Errorf("invalid command: %w", err)
	}
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return cmd, fmt.Errorf("invalid command: %w", err)
	}
	return cmd, nil
}

func (g *Gateway) join(s *session) {
	g.mu.Lock()
	g.sessions[s.id] = s
	g.mu.Unlock()
}

func (g *Gateway) leave(s *session) {
	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()
}

// reply queues a response without blocking; slow clients lose messages.
func (g *Gateway) reply(s *session, resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		g.log.Error("encode websocket response", zap.Error(err))
		return
	}
	select {
	case s.out <- b:
	default:
		g.log.Debug("websocket client behind, response dropped", zap.String("ws_session", s.id))
	}
}

// Service answers up to limit queued commands (all when limit <= 0). Simulation loop only, at the
// input phase. Returns the number answered.
func (g *Gateway) Service(limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		select {
		case req := <-g.requests:
			g.reply(req.sess, g.execute(req.sess, req.cmd))
			n++
		default:
			return n
		}
	}
	return n
}

func (g *Gateway) execute(s *session, cmd Command) Response {
	resp := Response{ID: cmd.ID, Type: cmd.Type, Status: StatusOK}
	var snap *debug.Snapshot
	var err error

	switch cmd.Type {
	case "stats":
		snap = g.bridge.Stats()
	case "select", "path":
		h, perr := ecs.ParseEntityID(cmd.Handle)
		if perr != nil {
			return failed(resp, perr)
		}
		if cmd.Type == "select" {
			snap = g.bridge.SelectHandle(h)
		} else {
			snap = g.bridge.Path(h)
		}
		if snap.NotFound() {
			resp.Status = StatusNotFound
			resp.Error = world.ErrNotFound.Error()
			return resp
		}
	case "region":
		snap, err = g.bridge.SelectRegion(component.Rect{Min: vec(cmd.Min), Max: vec(cmd.Max)})
	case "radius":
		snap, err = g.bridge.SelectRadius(vec(cmd.Center), cmd.Radius)
	case "tag":
		snap, err = g.bridge.ListByTag(cmd.Tag)
	case "dump":
		snap = g.bridge.DumpFull()
	case "overhead":
		if cmd.Min != nil && cmd.Max != nil {
			snap, err = g.bridge.SelectRegion(component.Rect{Min: vec(cmd.Min), Max: vec(cmd.Max)})
		} else {
			snap = g.bridge.DumpFull()
		}
		if err != nil {
			return failed(resp, err)
		}
		resp.Overhead = debug.Overhead(snap, s.categories)
		return resp
	case "toggle_category":
		if cmd.On {
			s.categories[cmd.Category] = true
		} else {
			delete(s.categories, cmd.Category)
		}
		resp.Categories = s.enabled()
		return resp
	case "categories":
		resp.Categories = s.enabled()
		return resp
	case "subscribe_render":
		s.render = true
		return resp
	case "unsubscribe_render":
		s.render = false
		return resp
	default:
		return failed(resp, fmt.Errorf("unsupported command %q", cmd.Type))
	}
	if err != nil {
		return failed(resp, err)
	}
	body, err := debug.EncodeJSON(snap)
	if err != nil {
		return failed(resp, err)
	}
	resp.Snapshot = body
	return resp
}

func failed(resp Response, err error) Response {
	resp.Status = StatusError
	resp.Error = err.Error()
	return resp
}

func (s *session) enabled() []string {
	out := []string{}
	for _, c := range debug.Categories {
		if s.categories[c] {
			out = append(out, c)
		}
	}
	return out
}

func vec(p *[2]float64) component.Vec2 {
	if p == nil {
		return component.Vec2{}
	}
	return component.Vec2{X: p[0], Y: p[1]}
}

// Publish sends the render projection to every subscribed session.
// Simulation loop only.
func (g *Gateway) Publish(tick uint64, items []world.RenderItem) {
	g.mu.Lock()
	var subs []*session
	for _, s := range g.sessions {
		if s.render {
			subs = append(subs, s)
		}
	}
	g.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	frame := &RenderFrame{Tick: tick, Agents: make([]RenderItem, 0, len(items))}
	for _, it := range items {
		frame.Agents = append(frame.Agents, RenderItem{
			Handle:  it.Handle,
			X:       debug.Float(it.Pos.X),
			Y:       debug.Float(it.Pos.Y),
			Heading: debug.Float(it.Heading),
			Tier:    it.Tier.String(),
		})
	}
	b, err := json.Marshal(Response{Type: "render", Status: StatusOK, Render: frame})
	if err != nil {
		g.log.Error("encode render frame", zap.Error(err))
		return
	}
	for _, s := range subs {
		select {
		case s.out <- b:
		default:
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
