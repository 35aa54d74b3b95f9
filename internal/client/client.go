// Package client speaks the debug bridge TCP protocol. It backs crowdctl
// and the protocol tests.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	gonet "net"
	"time"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/handler"
	"github.com/crowdlod/server/internal/net"
	"github.com/crowdlod/server/internal/net/packet"
)

// ErrNotFound is returned when the server reports a handle as not found.
var ErrNotFound = errors.New("agent not found")

// ServerError is an S_ERROR reply.
type ServerError struct {
	Request byte
	Code    byte
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d for opcode 0x%02X: %s", e.Code, e.Request, e.Message)
}

// Client is one authenticated debugger connection. Not safe for concurrent use.
type Client struct {
	conn    gonet.Conn
	r       *bufio.Reader
	timeout time.Duration
	tick    uint64
}

// Dial connects and performs the hello handshake.
func Dial(ctx context.Context, addr, operator, password string) (*Client, error) {
	var d gonet.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn), timeout: 10 * time.Second}

	w := packet.NewWriterWithOpcode(packet.C_HELLO)
	w.WriteH(packet.ProtocolVersion)
	w.WriteS(operator)
	w.WriteS(password)
	reply, err := c.roundTrip(w.Bytes())
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply[0] != packet.S_HELLO {
		conn.Close()
		return nil, fmt.Errorf("unexpected hello reply 0x%02X", reply[0])
	}
	r := packet.NewReader(reply)
	r.ReadH()
	c.tick = r.ReadQ()
	return c, nil
}

// HelloTick is the server tick reported at handshake.
func (c *Client) HelloTick() uint64 { return c.tick }

// SetTimeout bounds each request/reply exchange.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

func (c *Client) send(frame []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	return net.WriteFrame(c.conn, frame)
}

func (c *Client) recv() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	return net.ReadFrame(c.r)
}

// roundTrip sends one request and returns its reply, converting S_ERROR
// and S_NOTFOUND into errors.
func (c *Client) roundTrip(frame []byte) ([]byte, error) {
	if err := c.send(frame); err != nil {
		return nil, err
	}
	reply, err := c.recv()
	if err != nil {
		return nil, err
	}
	switch reply[0] {
	case packet.S_ERROR:
		r := packet.NewReader(reply)
		e := &ServerError{Request: r.ReadC(), Code: r.ReadC()}
		e.Message = r.ReadS()
		return nil, e
	case packet.S_NOTFOUND:
		r := packet.NewReader(reply)
		r.ReadC()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ecs.EntityID(r.ReadQ()))
	}
	return reply, nil
}

func (c *Client) snapshot(frame []byte) (*debug.Snapshot, error) {
	reply, err := c.roundTrip(frame)
	if err != nil {
		return nil, err
	}
	switch reply[0] {
	case packet.S_SNAPSHOT, packet.S_STATS, packet.S_PATH:
		return handler.DecodeSnapshotFrame(reply)
	}
	return nil, fmt.Errorf("unexpected reply 0x%02X", reply[0])
}

func (c *Client) Stats() (*debug.Snapshot, error) {
	return c.snapshot([]byte{packet.C_STATS})
}

func (c *Client) Select(h ecs.EntityID) (*debug.Snapshot, error) {
	w := packet.NewWriterWithOpcode(packet.C_SELECT_HANDLE)
	w.WriteQ(uint64(h))
	return c.snapshot(w.Bytes())
}

func (c *Client) Region(r component.Rect) (*debug.Snapshot, error) {
	w := packet.NewWriterWithOpcode(packet.C_SELECT_REGION)
	w.WriteF(r.Min.X)
	w.WriteF(r.Min.Y)
	w.WriteF(r.Max.X)
	w.WriteF(r.Max.Y)
	return c.snapshot(w.Bytes())
}

func (c *Client) Radius(center component.Vec2, radius float64) (*debug.Snapshot, error) {
	w := packet.NewWriterWithOpcode(packet.C_SELECT_RADIUS)
	w.WriteF(center.X)
	w.WriteF(center.Y)
	w.WriteF(radius)
	return c.snapshot(w.Bytes())
}

func (c *Client) Tag(tag string) (*debug.Snapshot, error) {
	w := packet.NewWriterWithOpcode(packet.C_LIST_TAG)
	w.WriteS(tag)
	return c.snapshot(w.Bytes())
}

func (c *Client) Dump() (*debug.Snapshot, error) {
	return c.snapshot([]byte{packet.C_DUMP})
}

func (c *Client) Path(h ecs.EntityID) (*debug.Snapshot, error) {
	w := packet.NewWriterWithOpcode(packet.C_PATH)
	w.WriteQ(uint64(h))
	return c.snapshot(w.Bytes())
}

func (c *Client) categories(frame []byte) ([]string, error) {
	reply, err := c.roundTrip(frame)
	if err != nil {
		return nil, err
	}
	if reply[0] != packet.S_CATEGORIES {
		return nil, fmt.Errorf("unexpected reply 0x%02X", reply[0])
	}
	r := packet.NewReader(reply)
	n := int(r.ReadC())
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.ReadS())
	}
	return out, nil
}

// Categories returns the session's enabled overhead categories.
func (c *Client) Categories() ([]string, error) {
	return c.categories([]byte{packet.C_CATEGORIES})
}

// Toggle switches one overhead category and returns the enabled set.
func (c *Client) Toggle(category string, on bool) ([]string, error) {
	w := packet.NewWriterWithOpcode(packet.C_TOGGLE_CATEGORY)
	w.WriteS(category)
	w.WriteBool(on)
	return c.categories(w.Bytes())
}

// SetViewers replaces the classifier's viewers and returns fresh stats.
func (c *Client) SetViewers(vs []component.Vec2) (*debug.Snapshot, error) {
	w := packet.NewWriterWithOpcode(packet.C_SET_VIEWERS)
	w.WriteH(uint16(len(vs)))
	for _, v := range vs {
		w.WriteF(v.X)
		w.WriteF(v.Y)
	}
	return c.snapshot(w.Bytes())
}

// Ping measures a round trip and returns the server tick.
func (c *Client) Ping(nonce uint32) (time.Duration, uint64, error) {
	start := time.Now()
	w := packet.NewWriterWithOpcode(packet.C_PING)
	w.WriteDU(nonce)
	reply, err := c.roundTrip(w.Bytes())
	if err != nil {
		return 0, 0, err
	}
	if reply[0] != packet.S_PONG {
		return 0, 0, fmt.Errorf("unexpected reply 0x%02X", reply[0])
	}
	r := packet.NewReader(reply)
	if got := r.ReadDU(); got != nonce {
		return 0, 0, fmt.Errorf("pong nonce %d, want %d", got, nonce)
	}
	return time.Since(start), r.ReadQ(), nil
}

// Close says goodbye and closes the connection.
func (c *Client) Close() error {
	if err := c.send([]byte{packet.C_QUIT}); err == nil {
		_, _ = c.recv()
	}
	return c.conn.Close()
}
