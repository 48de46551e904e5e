package daide

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the size of the fixed frame header: type, pad and a
	// 16-bit body length.
	HeaderSize = 4
	// MaxBodyLength is the largest body the 16-bit length field can announce.
	MaxBodyLength = math.MaxUint16
)

// ErrFrameTooLarge is returned when a body does not fit the 16-bit length field.
var ErrFrameTooLarge = errors.New("frame body too large")

// Frame is one complete protocol message: a header followed by its body.
//
// A Frame holds its bytes in host order: the length field and every whole
// 16-bit body word read naturally on this machine. The wire carries the same
// fields in network order; Conn converts on the way in and out.
type Frame struct {
	buf []byte
}

// NewFrame builds a Frame whose body is given exactly as it should appear on
// the wire.
func NewFrame(typ, pad byte, body []byte) (*Frame, error) {
	if len(body) > MaxBodyLength {
		return nil, errors.Wrapf(ErrFrameTooLarge, "body of %d bytes", len(body))
	}

	buf := make([]byte, HeaderSize+len(body))
	buf[0] = typ
	buf[1] = pad
	binary.BigEndian.PutUint16(buf[2:HeaderSize], uint16(len(body)))
	copy(buf[HeaderSize:], body)
	AdjustOrdering(buf, len(body))

	return &Frame{buf: buf}, nil
}

// NewWordFrame builds a Frame from a body of host-order 16-bit words.
func NewWordFrame(typ, pad byte, words []uint16) (*Frame, error) {
	if len(words)*2 > MaxBodyLength {
		return nil, errors.Wrapf(ErrFrameTooLarge, "body of %d words", len(words))
	}

	buf := make([]byte, HeaderSize+len(words)*2)
	buf[0] = typ
	buf[1] = pad
	binary.NativeEndian.PutUint16(buf[2:HeaderSize], uint16(len(words)*2))
	for i, w := range words {
		binary.NativeEndian.PutUint16(buf[HeaderSize+i*2:], w)
	}

	return &Frame{buf: buf}, nil
}

// Type returns the message type. It is opaque to this package.
func (f *Frame) Type() byte {
	return f.buf[0]
}

// Pad returns the reserved header byte.
func (f *Frame) Pad() byte {
	return f.buf[1]
}

// Length returns the body length in bytes.
func (f *Frame) Length() int {
	return int(binary.NativeEndian.Uint16(f.buf[2:HeaderSize]))
}

// Size returns the total frame size, header included.
func (f *Frame) Size() int {
	return len(f.buf)
}

// Words returns the body as host-order 16-bit words.
// The last byte of an odd-length body is not included.
func (f *Frame) Words() []uint16 {
	body := f.buf[HeaderSize:]
	words := make([]uint16, len(body)/2)
	for i := range words {
		words[i] = binary.NativeEndian.Uint16(body[i*2:])
	}
	return words
}

// Body returns a copy of the body as it appears on the wire.
func (f *Frame) Body() []byte {
	body := make([]byte, len(f.buf)-HeaderSize)
	copy(body, f.buf[HeaderSize:])
	if littleEndianHost {
		swapWords(body)
	}
	return body
}

// Bytes returns the underlying host-order buffer, header included.
func (f *Frame) Bytes() []byte {
	return f.buf
}

// recvPhase selects which buffer the assembler is currently filling.
type recvPhase uint8

const (
	// awaitingHeader fills the inline header slot; the body length is unknown.
	awaitingHeader recvPhase = iota
	// awaitingBody fills a buffer sized for the whole frame.
	awaitingBody
)

// assembler rebuilds frames from a byte stream delivered in arbitrary pieces.
// Nothing is allocated until a header has arrived and the body length is known.
type assembler struct {
	phase  recvPhase
	header [HeaderSize]byte
	frame  []byte
	next   int
}

// reset prepares the assembler for the next header.
func (a *assembler) reset() {
	a.phase = awaitingHeader
	a.frame = nil
	a.next = 0
}

// current returns the buffer being filled.
func (a *assembler) current() []byte {
	if a.phase == awaitingHeader {
		return a.header[:]
	}
	return a.frame
}

// feed copies as much of p as the current frame still needs. It returns the
// number of bytes consumed and the frame completed by them, if any.
func (a *assembler) feed(p []byte) (int, *Frame) {
	n := copy(a.current()[a.next:], p)
	a.next += n

	if a.phase == awaitingHeader && a.next == HeaderSize {
		length := int(AdjustOrdering16(binary.NativeEndian.Uint16(a.header[2:HeaderSize])))
		a.frame = make([]byte, HeaderSize+length)
		copy(a.frame, a.header[:])
		a.phase = awaitingBody
	}

	if a.phase == awaitingBody && a.next == len(a.frame) {
		AdjustOrdering(a.frame, len(a.frame)-HeaderSize)
		f := &Frame{buf: a.frame}
		a.reset()
		return n, f
	}

	return n, nil
}

// pending returns the number of bytes of the current frame received so far.
func (a *assembler) pending() int {
	return a.next
}
