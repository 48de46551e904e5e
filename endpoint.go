package daide

import (
	"net/netip"

	"github.com/pkg/errors"
)

// Handle identifies a native transport endpoint, a socket descriptor on unix.
type Handle int

// ErrWouldBlock is returned by an Endpoint when it has no data or no capacity
// right now. It is not a failure: the operation is retried on the next
// readiness notification.
var ErrWouldBlock = errors.New("operation would block")

// Endpoint is a non-blocking transport endpoint.
type Endpoint interface {
	// Handle returns the native handle used to route readiness events.
	Handle() Handle
	// Read reads available bytes into p. It returns io.EOF once the peer has
	// closed and ErrWouldBlock when nothing is available. As with io.Reader,
	// n > 0 may come with an error; the bytes are used before the error.
	Read(p []byte) (int, error)
	// Write writes as much of p as the transport accepts. It returns
	// ErrWouldBlock when nothing can be written.
	Write(p []byte) (int, error)
	// Close releases the endpoint.
	Close() error
}

// Dialer creates endpoints and starts an asynchronous connect on them.
// Dial returns as soon as the connect has been initiated; completion is
// reported later through Conn.OnConnect.
type Dialer interface {
	Dial(addr netip.AddrPort) (Endpoint, error)
}
