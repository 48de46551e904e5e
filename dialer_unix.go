//go:build unix

package daide

import (
	"io"
	"net/netip"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// sysDialer opens non-blocking IPv4 TCP sockets with keep-alive enabled.
type sysDialer struct{}

func defaultDialer() Dialer {
	return sysDialer{}
}

func (sysDialer) Dial(addr netip.AddrPort) (Endpoint, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, errors.Wrap(err, "socket")
	}
	unix.CloseOnExec(fd)

	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "set non-blocking")
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "set keep-alive")
	}

	sa := &unix.SockaddrInet4{Port: int(addr.Port()), Addr: addr.Addr().As4()}
	if err = unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "connect %s", addr)
	}

	return &sysEndpoint{fd: fd}, nil
}

// sysEndpoint is a non-blocking socket descriptor.
type sysEndpoint struct {
	fd int
}

func (e *sysEndpoint) Handle() Handle {
	return Handle(e.fd)
}

func (e *sysEndpoint) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(e.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (e *sysEndpoint) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(e.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		}
		return n, nil
	}
}

func (e *sysEndpoint) Close() error {
	return unix.Close(e.fd)
}
