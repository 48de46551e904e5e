// Package daide implements the framing and transport layer of a binary
// message protocol carried over non-blocking TCP sockets.
//
// A Conn reassembles frames from any number of partial reads and drains its
// outgoing queue whenever the socket has room. It never blocks: an external
// reactor (or the Poller on Linux) reports readiness through the Registry and
// every handler runs to completion on that single goroutine.
package daide

import (
	"io"
	"math"
	"net/netip"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrInvalidAddress is returned by Connect when the address is not a dotted
// IPv4 literal or the port is out of range.
var ErrInvalidAddress = errors.New("invalid address")

// State is the lifecycle state of a Conn.
type State int

const (
	// StateDisconnected is the state of a Conn that has no endpoint yet.
	StateDisconnected State = iota
	// StateConnecting means the asynchronous connect has been initiated.
	StateConnecting
	// StateConnected means frames may be sent and received.
	StateConnected
	// StateClosed is terminal. Only Destroy moves a Conn here.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is one framed TCP endpoint.
//
// A Conn is not safe for concurrent use. All of its methods, including the
// notification handlers, must run on the goroutine driving the reactor.
type Conn struct {
	id       string
	endpoint Endpoint
	handle   Handle
	registry *Registry
	logger   Logger

	opts options

	state      State
	err        error
	failed     bool // connect reported an error
	peerClosed bool
	closed     bool // a close notification was handled
	destroyed  bool

	scratch []byte
	recv    assembler

	outgoing fifo[*Frame]
	inflight []byte // wire-order bytes of the frame being sent
	sent     int

	incoming fifo[*Frame]
}

// Connect initiates an asynchronous connect to address:port and registers the
// new Conn in reg. It returns once the connect has been started; the result is
// delivered later through OnConnect.
//
// A malformed address fails immediately without creating or registering
// anything.
func Connect(reg *Registry, address string, port int, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	addr, err := parseAddr(address, port)
	if err != nil {
		opts.logger.Error("invalid address", "address", address, "port", port, "error", err)
		return nil, err
	}

	ep, err := opts.dialer.Dial(addr)
	if err != nil {
		opts.logger.Error("dial failed", "addr", addr, "error", err)
		return nil, err
	}

	c := newConn(reg, ep, opts)
	c.state = StateConnecting
	reg.Insert(c)

	c.logger.Debug("connecting", "conn", c.id, "handle", c.handle, "addr", addr,
		"read_buffer_size", opts.readBufferSize)

	return c, nil
}

func parseAddr(address string, port int) (netip.AddrPort, error) {
	ip, err := netip.ParseAddr(address)
	if err != nil || !ip.Is4() {
		return netip.AddrPort{}, errors.Wrapf(ErrInvalidAddress, "%q is not an IPv4 address", address)
	}
	if port < 0 || port > math.MaxUint16 {
		return netip.AddrPort{}, errors.Wrapf(ErrInvalidAddress, "port %d out of range", port)
	}
	return netip.AddrPortFrom(ip, uint16(port)), nil
}

func newConn(reg *Registry, ep Endpoint, opts options) *Conn {
	c := &Conn{
		id:       uuid.NewString(),
		endpoint: ep,
		handle:   ep.Handle(),
		registry: reg,
		logger:   opts.logger,
		opts:     opts,
		scratch:  make([]byte, opts.readBufferSize),
	}
	c.recv.reset()
	return c
}

// ID returns the identifier used in log records.
func (c *Conn) ID() string {
	return c.id
}

// Handle returns the native handle of the endpoint.
func (c *Conn) Handle() Handle {
	return c.handle
}

// State returns the lifecycle state.
func (c *Conn) State() State {
	return c.state
}

// Err returns the last transport error reported to the Conn, or nil.
func (c *Conn) Err() error {
	return c.err
}

// PeerClosed reports whether a read has seen the peer close the connection.
func (c *Conn) PeerClosed() bool {
	return c.peerClosed
}

// Closed reports whether a close notification has been handled.
func (c *Conn) Closed() bool {
	return c.closed
}

// OnConnect handles the result of the asynchronous connect. A nil err moves
// the Conn to StateConnected and flushes anything already queued. Otherwise
// the Conn is only good for Destroy.
func (c *Conn) OnConnect(err error) {
	if err != nil {
		c.failed = true
		c.err = err
		c.logger.Error("connect failed", "conn", c.id, "handle", c.handle, "error", err)
	} else {
		c.state = StateConnected
		c.logger.Info("connected", "conn", c.id, "handle", c.handle)
		c.sendData()
	}

	if c.opts.onConnect != nil {
		c.opts.onConnect(c, err)
	}
}

// OnClose handles the close notification. It records err, if any. The state
// is left alone: events still queued behind the close are handled as usual,
// and tearing the Conn down is left to the owner.
func (c *Conn) OnClose(err error) {
	if err != nil {
		c.err = err
		c.logger.Error("close notification", "conn", c.id, "handle", c.handle, "error", err)
	} else {
		c.logger.Info("connection closed", "conn", c.id, "handle", c.handle)
	}
	c.closed = true

	if c.opts.onClose != nil {
		c.opts.onClose(c, err)
	}
}

// OnReadable handles a readable notification.
func (c *Conn) OnReadable(err error) {
	if err != nil {
		c.err = err
		c.logger.Error("readable notification", "conn", c.id, "handle", c.handle, "error", err)
		return
	}
	c.receiveData()
}

// OnWritable handles a writable notification.
func (c *Conn) OnWritable(err error) {
	if err != nil {
		c.err = err
		c.logger.Error("writable notification", "conn", c.id, "handle", c.handle, "error", err)
		return
	}
	c.sendData()
}

// Send queues f for transmission and takes ownership of it: f is reordered
// in place for the wire and must not be used afterwards. If the Conn is
// connected and idle the frame is written right away.
func (c *Conn) Send(f *Frame) {
	c.outgoing.push(f)
	if c.inflight == nil && c.state == StateConnected {
		c.sendData()
	}
}

// Pull removes the oldest received frame and hands it to the caller.
// It reports false when no frame is waiting.
func (c *Conn) Pull() (*Frame, bool) {
	return c.incoming.pop()
}

// Incoming returns the number of frames waiting to be pulled.
func (c *Conn) Incoming() int {
	return c.incoming.len()
}

// Outgoing returns the number of frames not yet fully written, including the
// one in flight.
func (c *Conn) Outgoing() int {
	n := c.outgoing.len()
	if c.inflight != nil {
		n++
	}
	return n
}

// Destroy removes the Conn from its Registry, drops every queued or partial
// frame and closes the endpoint. Safe to call multiple times.
func (c *Conn) Destroy() error {
	if c.destroyed {
		return nil
	}
	c.destroyed = true

	c.logger.Debug("destroying connection", "conn", c.id, "handle", c.handle,
		"outgoing", c.Outgoing(), "incoming", c.Incoming(), "partial_bytes", c.recv.pending())

	c.registry.Remove(c)
	c.outgoing.clear()
	c.incoming.clear()
	c.inflight = nil
	c.sent = 0
	c.recv.reset()
	c.state = StateClosed

	return c.endpoint.Close()
}

// hasOutput reports whether a writable notification would have work to do.
func (c *Conn) hasOutput() bool {
	return c.inflight != nil || c.outgoing.len() > 0
}

func (c *Conn) mustBeConnected(op string) {
	if c.state != StateConnected {
		panic(errors.Errorf("daide: %s on %s connection %s", op, c.state, c.id))
	}
}

// receiveData performs one read and turns the bytes into zero or more frames.
func (c *Conn) receiveData() {
	c.mustBeConnected("receive")

	n, err := c.endpoint.Read(c.scratch)
	if n == 0 && err == nil {
		err = io.EOF
	}
	if n > 0 {
		c.assemble(c.scratch[:n])
	}

	switch {
	case err == nil, errors.Is(err, ErrWouldBlock):
	case errors.Is(err, io.EOF):
		c.peerClosed = true
		c.logger.Warn("peer closed connection during read", "conn", c.id, "handle", c.handle)
	default:
		c.err = err
		c.logger.Error("read failed", "conn", c.id, "handle", c.handle, "error", err)
	}
}

// assemble feeds data through the assembler and queues every completed frame.
func (c *Conn) assemble(data []byte) {
	queued := 0
	for len(data) > 0 {
		used, f := c.recv.feed(data)
		data = data[used:]
		if f != nil {
			c.incoming.push(f)
			queued++
		}
	}

	if queued > 0 {
		c.logger.Debug("frames received", "conn", c.id, "handle", c.handle,
			"count", queued, "queued", c.incoming.len())
		if c.opts.onIncoming != nil {
			c.opts.onIncoming(c)
		}
	}
}

// sendData writes queued frames until the queue is empty or the transport
// stops accepting bytes.
func (c *Conn) sendData() {
	c.mustBeConnected("send")

	for {
		if c.inflight == nil {
			f, ok := c.outgoing.pop()
			if !ok {
				return
			}
			length := f.Length()
			AdjustOrdering(f.buf, length)
			c.inflight = f.buf[:HeaderSize+length]
			c.sent = 0
		}

		n, err := c.endpoint.Write(c.inflight[c.sent:])
		if n > 0 {
			c.sent += n
		}
		if err != nil {
			if !errors.Is(err, ErrWouldBlock) {
				c.err = err
				c.logger.Error("write failed", "conn", c.id, "handle", c.handle, "error", err)
			}
			return
		}
		if c.sent < len(c.inflight) {
			return
		}

		c.inflight = nil
		c.sent = 0
	}
}
