// Package varint implements the LEB128-style variable-length integer
// encoding used by dune OP_RETURN payloads: each byte carries 7 value
// bits plus a continuation bit in the high position, little-endian
// group order.
package varint

import (
	"errors"

	"github.com/rawblock/dogeindexer/internal/u128"
)

// maxGroups is ceil(128/7): the most 7-bit groups a valid 128-bit value
// can ever need.
const maxGroups = 19

// ErrIncomplete is returned when the input ends before a terminating
// byte (high bit clear) is seen.
var ErrIncomplete = errors.New("varint: truncated")

// ErrOverlong is returned when the encoded value cannot fit in 128 bits,
// either because it uses more than maxGroups groups or because the
// final group carries bits beyond bit 127. Dune decoding treats this the
// same as any other malformed payload: the transaction carries no
// dunestone.
var ErrOverlong = errors.New("varint: value exceeds 128 bits")

// Encode renders n as a varint.
func Encode(n u128.Uint128) []byte {
	var buf []byte
	for {
		b := byte(n.Lo & 0x7f)
		n = n.Rsh(7)
		if n.IsZero() {
			buf = append(buf, b)
			return buf
		}
		buf = append(buf, b|0x80)
	}
}

// EncodeUint64 is a convenience wrapper for the common case of encoding
// a value that's known to fit in 64 bits.
func EncodeUint64(n uint64) []byte { return Encode(u128.FromUint64(n)) }

// Decode reads one varint from the front of data, returning the decoded
// value and the number of bytes consumed.
func Decode(data []byte) (u128.Uint128, int, error) {
	n := u128.Zero
	for i, b := range data {
		if i >= maxGroups {
			return u128.Zero, 0, ErrOverlong
		}
		group := uint64(b & 0x7f)
		if i == maxGroups-1 && group > 0x03 {
			// Only 2 bits remain at the 19th group (128 - 18*7 = 2); any
			// higher bit set here can't be represented in 128 bits.
			return u128.Zero, 0, ErrOverlong
		}
		chunk := u128.FromUint64(group).Lsh(uint(7 * i))
		n = n.Or(chunk)
		if b&0x80 == 0 {
			return n, i + 1, nil
		}
	}
	return u128.Zero, 0, ErrIncomplete
}

// DecodeAll splits data into a sequence of varints, stopping (without
// error) once the remaining bytes are exhausted. A malformed trailing
// varint invalidates the whole sequence, not just its tail.
func DecodeAll(data []byte) ([]u128.Uint128, error) {
	var out []u128.Uint128
	for i := 0; i < len(data); {
		n, length, err := Decode(data[i:])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		i += length
	}
	return out, nil
}
