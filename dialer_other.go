//go:build !unix

package daide

import (
	"net/netip"

	"github.com/pkg/errors"
)

// ErrUnsupportedPlatform is returned by the default dialer on platforms
// without a native non-blocking socket implementation.
var ErrUnsupportedPlatform = errors.New("no native dialer on this platform")

type unsupportedDialer struct{}

func defaultDialer() Dialer {
	return unsupportedDialer{}
}

func (unsupportedDialer) Dial(addr netip.AddrPort) (Endpoint, error) {
	return nil, errors.Wrapf(ErrUnsupportedPlatform, "dial %s", addr)
}
