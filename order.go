package daide

import (
	"encoding/binary"
	"math/bits"
)

// littleEndianHost reports whether the host stores multi-byte values least
// significant byte first. Network order is big-endian, so only such hosts
// need any reordering.
var littleEndianHost = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// AdjustOrdering16 converts x between host and network byte order.
// The conversion is its own inverse.
func AdjustOrdering16(x uint16) uint16 {
	return adjust16(x, littleEndianHost)
}

// AdjustOrdering converts frame in place between host and network byte order.
//
// The header's length field and every whole 16-bit word of the body are
// reordered; type and pad are single bytes and are left alone, as is the last
// byte of an odd-length body. bodyLen must be the true body length, because
// the length field inside frame may or may not be in host order at the time
// of the call.
func AdjustOrdering(frame []byte, bodyLen int) {
	adjustFrame(frame, bodyLen, littleEndianHost)
}

func adjust16(x uint16, swap bool) uint16 {
	if !swap {
		return x
	}
	return bits.ReverseBytes16(x)
}

func adjustFrame(frame []byte, bodyLen int, swap bool) {
	if !swap {
		return
	}
	frame[2], frame[3] = frame[3], frame[2]
	body := frame[HeaderSize : HeaderSize+bodyLen]
	swapWords(body)
}

// swapWords swaps the bytes of each whole 16-bit word in b.
func swapWords(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}
