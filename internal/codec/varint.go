package codec

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxVarintLen is the maximum encoded length of a 32-bit value.
const MaxVarintLen = 5

var (
	// ErrVarintOverflow is returned when no terminal byte is found within
	// MaxVarintLen bytes, or the decoded value does not fit in 32 bits.
	ErrVarintOverflow = errors.New("codec: varint overflow")

	// ErrTruncated is returned when the stream ends in the middle of a value
	// or before a declared number of values has been read.
	ErrTruncated = fmt.Errorf("codec: truncated stream: %w", io.ErrUnexpectedEOF)
)

const (
	terminalBit = 0x80
	payloadMask = 0x7f
)

// Size returns the number of bytes needed to encode v.
func Size(v uint32) int {
	switch {
	case v <= 0x7f:
		return 1
	case v <= 0x3fff:
		return 2
	case v <= 0x1fffff:
		return 3
	case v <= 0x0fffffff:
		return 4
	default:
		return 5
	}
}

// AppendUvarint appends the encoding of v to dst and returns the extended buffer.
func AppendUvarint(dst []byte, v uint32) []byte {
	for v > payloadMask {
		dst = append(dst, byte(v&payloadMask))
		v >>= 7
	}
	return append(dst, byte(v)|terminalBit)
}

// Uvarint decodes a value from the start of buf and returns it together with
// the number of bytes consumed.
func Uvarint(buf []byte) (uint32, int, error) {
	var x uint64
	for i := 0; i < MaxVarintLen; i++ {
		if i >= len(buf) {
			return 0, 0, ErrTruncated
		}
		b := buf[i]
		x |= uint64(b&payloadMask) << (7 * i)
		if b&terminalBit != 0 {
			if x > math.MaxUint32 {
				return 0, 0, ErrVarintOverflow
			}
			return uint32(x), i + 1, nil
		}
	}
	return 0, 0, ErrVarintOverflow
}

// ReadUvarint reads a single value from r. It returns io.EOF only when the
// stream ends before the first byte; a partial value yields ErrTruncated.
func ReadUvarint(r io.ByteReader) (uint32, error) {
	var x uint64
	for i := 0; i < MaxVarintLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if i == 0 {
					return 0, io.EOF
				}
				return 0, ErrTruncated
			}
			return 0, err
		}
		x |= uint64(b&payloadMask) << (7 * i)
		if b&terminalBit != 0 {
			if x > math.MaxUint32 {
				return 0, ErrVarintOverflow
			}
			return uint32(x), nil
		}
	}
	return 0, ErrVarintOverflow
}
