package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Protocol constants
const (
	// Int32Size is the width of one channel value in a binary snapshot packet
	Int32Size = 4

	// DefaultChannels is the number of channel values the sensor emits per packet
	DefaultChannels = 10

	// Byte order names accepted by ParseByteOrder
	ByteOrderLittle = "little"
	ByteOrderBig    = "big"
)

var (
	// ErrLengthMismatch is returned when a binary packet is not exactly channels*4 bytes
	ErrLengthMismatch = errors.New("packet length mismatch")

	// ErrInvalidSample is returned when a text payload is not a finite decimal number
	ErrInvalidSample = errors.New("invalid text sample")
)

// SnapshotSize returns the exact packet size for the given channel count
func SnapshotSize(channels int) int {
	return channels * Int32Size
}

// DecodeSnapshot decodes a binary snapshot packet into channel values.
// Layout: [ch0:4][ch1:4]...[chN-1:4], each a signed 32-bit integer.
func DecodeSnapshot(data []byte, channels int, order binary.ByteOrder) ([]int32, error) {
	expected := SnapshotSize(channels)
	if len(data) != expected {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrLengthMismatch, expected, len(data))
	}

	values := make([]int32, channels)
	for i := range values {
		off := i * Int32Size
		values[i] = int32(order.Uint32(data[off : off+Int32Size]))
	}

	return values, nil
}

// EncodeSnapshot is the inverse of DecodeSnapshot
func EncodeSnapshot(values []int32, order binary.ByteOrder) []byte {
	buf := make([]byte, len(values)*Int32Size)
	for i, v := range values {
		order.PutUint32(buf[i*Int32Size:], uint32(v))
	}
	return buf
}

// ParseTextSample parses a single decimal number from a text payload.
// A trailing NUL terminator and surrounding whitespace are ignored.
func ParseTextSample(data []byte) (float64, error) {
	text := strings.TrimSpace(strings.TrimRight(string(data), "\x00"))
	if text == "" {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidSample)
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSample, text)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite value %q", ErrInvalidSample, text)
	}

	return v, nil
}

// ParseByteOrder maps a configured byte order name to its binary.ByteOrder
func ParseByteOrder(name string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ByteOrderLittle, "":
		return binary.LittleEndian, nil
	case ByteOrderBig:
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q (allowed: little, big)", name)
	}
}
