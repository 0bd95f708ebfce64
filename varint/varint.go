// Package varint implements the variable-length integer encoding used
// throughout the container format: little-endian base-128, with each byte's
// high bit signaling that another byte follows.
//
// Signed values are mapped to unsigned values before encoding: the magnitude
// is shifted left one bit and the low bit carries the sign. The supported
// signed range is therefore [-math.MaxInt64, math.MaxInt64].
package varint

import (
	"math"

	"github.com/cloudcmds/lazybin/errz"
)

// MaxLen is the maximum number of bytes in the encoding of a 64-bit value.
const MaxLen = 10

// AppendUvarint appends the encoding of v to dst and returns the result.
func AppendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendVarint appends the encoding of the signed value v to dst and returns
// the result. The most negative int64 is not representable in this encoding;
// passing it panics.
func AppendVarint(dst []byte, v int64) []byte {
	if v == math.MinInt64 {
		panic("varint: value out of range")
	}
	var u uint64
	if v < 0 {
		u = uint64(-v)<<1 | 1
	} else {
		u = uint64(v) << 1
	}
	return AppendUvarint(dst, u)
}

// Uvarint decodes an unsigned value from the start of buf. It returns the
// value and the number of bytes consumed. The error is non-nil if the stream
// ends before a terminating byte or the value overflows 64 bits.
func Uvarint(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i, b := range buf {
		if i >= MaxLen {
			return 0, 0, errz.New(errz.ErrMalformedVarint, "value overflows 64 bits")
		}
		if b < 0x80 {
			if i == MaxLen-1 && b > 1 {
				return 0, 0, errz.New(errz.ErrMalformedVarint, "value overflows 64 bits")
			}
			return v | uint64(b)<<shift, i + 1, nil
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
	}
	return 0, 0, errz.New(errz.ErrMalformedVarint, "stream ended before terminating byte")
}

// Varint decodes a signed value from the start of buf. It returns the value
// and the number of bytes consumed.
func Varint(buf []byte) (int64, int, error) {
	u, n, err := Uvarint(buf)
	if err != nil {
		return 0, 0, err
	}
	mag := u >> 1
	if mag > math.MaxInt64 {
		return 0, 0, errz.New(errz.ErrMalformedVarint, "magnitude overflows int64")
	}
	if u&1 != 0 {
		return -int64(mag), n, nil
	}
	return int64(mag), n, nil
}

// UvarintLen returns the number of bytes AppendUvarint would use for v.
func UvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// VarintLen returns the number of bytes AppendVarint would use for v.
func VarintLen(v int64) int {
	if v < 0 {
		return UvarintLen(uint64(-v)<<1 | 1)
	}
	return UvarintLen(uint64(v) << 1)
}
