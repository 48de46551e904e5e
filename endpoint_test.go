package daide

import (
	"bytes"
	"io"
	"log/slog"
	"net/netip"
)

// readResult is one scripted Read outcome.
type readResult struct {
	data []byte
	err  error
}

// fakeEndpoint is an in-memory Endpoint. Reads replay a script and report
// ErrWouldBlock once it is exhausted; writes accept at most perWrite bytes
// per call and budget bytes in total.
type fakeEndpoint struct {
	handle Handle
	reads  []readResult

	written  bytes.Buffer
	perWrite int // 0 means unlimited
	budget   int // negative means unlimited
	writeErr error
	writes   int

	closed bool
}

func newFakeEndpoint(h Handle) *fakeEndpoint {
	return &fakeEndpoint{handle: h, budget: -1}
}

func (e *fakeEndpoint) Handle() Handle {
	return e.handle
}

func (e *fakeEndpoint) deliver(chunks ...[]byte) {
	for _, c := range chunks {
		e.reads = append(e.reads, readResult{data: c})
	}
}

func (e *fakeEndpoint) fail(err error) {
	e.reads = append(e.reads, readResult{err: err})
}

// deliverWithError scripts a read returning data together with err.
func (e *fakeEndpoint) deliverWithError(data []byte, err error) {
	e.reads = append(e.reads, readResult{data: data, err: err})
}

func (e *fakeEndpoint) Read(p []byte) (int, error) {
	if len(e.reads) == 0 {
		return 0, ErrWouldBlock
	}

	// The error, if any, comes with the last bytes of its chunk.
	r := e.reads[0]
	n := copy(p, r.data)
	if n < len(r.data) {
		e.reads[0].data = r.data[n:]
		return n, nil
	}
	e.reads = e.reads[1:]
	return n, r.err
}

func (e *fakeEndpoint) Write(p []byte) (int, error) {
	e.writes++
	if e.writeErr != nil {
		return 0, e.writeErr
	}
	if e.budget == 0 {
		return 0, ErrWouldBlock
	}

	n := len(p)
	if e.perWrite > 0 && n > e.perWrite {
		n = e.perWrite
	}
	if e.budget > 0 && n > e.budget {
		n = e.budget
	}
	if e.budget > 0 {
		e.budget -= n
	}

	e.written.Write(p[:n])
	return n, nil
}

func (e *fakeEndpoint) Close() error {
	e.closed = true
	return nil
}

// fakeDialer hands out a prepared endpoint.
type fakeDialer struct {
	ep     *fakeEndpoint
	err    error
	dialed []netip.AddrPort
}

func (d *fakeDialer) Dial(addr netip.AddrPort) (Endpoint, error) {
	d.dialed = append(d.dialed, addr)
	if d.err != nil {
		return nil, d.err
	}
	return d.ep, nil
}

func discardLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wire encodes a frame exactly as it travels on the network.
func wire(typ, pad byte, body []byte) []byte {
	b := make([]byte, HeaderSize+len(body))
	b[0] = typ
	b[1] = pad
	b[2] = byte(len(body) >> 8)
	b[3] = byte(len(body))
	copy(b[HeaderSize:], body)
	return b
}
