package daide

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjustOrdering16_SelfInverse(t *testing.T) {
	for _, x := range []uint16{0, 1, 0x00ff, 0xff00, 0x1234, 0xda10, 0xffff} {
		assert.Equal(t, x, AdjustOrdering16(AdjustOrdering16(x)))
	}
}

func TestAdjustOrdering16_Host(t *testing.T) {
	if littleEndianHost {
		assert.Equal(t, uint16(0x3412), AdjustOrdering16(0x1234))
	} else {
		assert.Equal(t, uint16(0x1234), AdjustOrdering16(0x1234))
	}
}

func TestAdjustFrame_Swap(t *testing.T) {
	frame := []byte{0x01, 0x00, 0x00, 0x02, 0xAA, 0xBB}
	adjustFrame(frame, 2, true)
	assert.Equal(t, []byte{0x01, 0x00, 0x02, 0x00, 0xBB, 0xAA}, frame)
}

func TestAdjustFrame_NoSwap(t *testing.T) {
	frame := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	adjustFrame(frame, 2, false)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, frame)
}

func TestAdjustFrame_OddBodyLeavesLastByte(t *testing.T) {
	frame := []byte{0x07, 0x09, 0x00, 0x03, 0x10, 0x20, 0x30}
	adjustFrame(frame, 3, true)
	assert.Equal(t, []byte{0x07, 0x09, 0x03, 0x00, 0x20, 0x10, 0x30}, frame)
}

func TestAdjustFrame_SelfInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, bodyLen := range []int{0, 1, 2, 3, 16, 255, 1024, 4097} {
		frame := make([]byte, HeaderSize+bodyLen)
		rng.Read(frame)
		orig := bytes.Clone(frame)

		for _, swap := range []bool{true, false} {
			adjustFrame(frame, bodyLen, swap)
			adjustFrame(frame, bodyLen, swap)
			assert.Equal(t, orig, frame, "body length %d swap %v", bodyLen, swap)
		}

		AdjustOrdering(frame, bodyLen)
		assert.Equal(t, orig[:2], frame[:2], "type and pad must not move")
		AdjustOrdering(frame, bodyLen)
		assert.Equal(t, orig, frame)
	}
}
