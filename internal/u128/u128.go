// Package u128 implements fixed-width 128-bit unsigned integer
// arithmetic. Sat numbers, dune ids, dune amounts, and edict fields are
// all 128-bit, and supply arithmetic must never wrap silently, so every
// operation here reports overflow explicitly.
package u128

import (
	"fmt"
	"math/bits"
)

// Uint128 is a 128-bit unsigned integer stored as two 64-bit words,
// Hi being the most significant.
type Uint128 struct {
	Hi, Lo uint64
}

// Max is the largest representable value (2^128 - 1).
var Max = Uint128{Hi: ^uint64(0), Lo: ^uint64(0)}

// Zero is the additive identity.
var Zero = Uint128{}

// FromUint64 widens a uint64 to Uint128.
func FromUint64(v uint64) Uint128 { return Uint128{Lo: v} }

// IsZero reports whether v is 0.
func (v Uint128) IsZero() bool { return v.Hi == 0 && v.Lo == 0 }

// Fits64 reports whether v fits in a uint64.
func (v Uint128) Fits64() bool { return v.Hi == 0 }

// Uint64 returns the low 64 bits, truncating silently. Callers should
// check Fits64 first when truncation would be a bug.
func (v Uint128) Uint64() uint64 { return v.Lo }

// Cmp returns -1, 0, or 1 as v is less than, equal to, or greater than w.
func (v Uint128) Cmp(w Uint128) int {
	if v.Hi != w.Hi {
		if v.Hi < w.Hi {
			return -1
		}
		return 1
	}
	if v.Lo != w.Lo {
		if v.Lo < w.Lo {
			return -1
		}
		return 1
	}
	return 0
}

func (v Uint128) Equal(w Uint128) bool    { return v.Hi == w.Hi && v.Lo == w.Lo }
func (v Uint128) LessThan(w Uint128) bool { return v.Cmp(w) < 0 }
func (v Uint128) GreaterThan(w Uint128) bool { return v.Cmp(w) > 0 }

// Add returns v+w and whether the addition overflowed 128 bits.
func (v Uint128) Add(w Uint128) (Uint128, bool) {
	lo, carry := bits.Add64(v.Lo, w.Lo, 0)
	hi, carry2 := bits.Add64(v.Hi, w.Hi, carry)
	return Uint128{Hi: hi, Lo: lo}, carry2 != 0
}

// AddChecked adds w to v, saturating at Max on overflow. Used where the
// wire format calls for saturation rather than error propagation, such
// as edict id delta decoding.
func (v Uint128) AddChecked(w Uint128) Uint128 {
	sum, overflow := v.Add(w)
	if overflow {
		return Max
	}
	return sum
}

// Sub returns v-w and whether the subtraction underflowed.
func (v Uint128) Sub(w Uint128) (Uint128, bool) {
	lo, borrow := bits.Sub64(v.Lo, w.Lo, 0)
	hi, borrow2 := bits.Sub64(v.Hi, w.Hi, borrow)
	return Uint128{Hi: hi, Lo: lo}, borrow2 != 0
}

// Mul returns v*w and whether the multiplication overflowed 128 bits.
func (v Uint128) Mul(w Uint128) (Uint128, bool) {
	// Full 128x128 -> 256 multiply, keeping only the low 128 bits and
	// reporting overflow if any of the discarded high bits are nonzero.
	hiLo, loLo := bits.Mul64(v.Lo, w.Lo)
	hiHi1, loHi1 := bits.Mul64(v.Hi, w.Lo)
	hiHi2, loHi2 := bits.Mul64(v.Lo, w.Hi)

	lo := loLo
	mid1Sum, c1 := bits.Add64(hiLo, loHi1, 0)
	mid2Sum, c2 := bits.Add64(mid1Sum, loHi2, 0)
	hi := mid2Sum

	overflow := c1 != 0 || c2 != 0 || hiHi1 != 0 || hiHi2 != 0 || v.Hi != 0 && w.Hi != 0

	return Uint128{Hi: hi, Lo: lo}, overflow
}

// MulUint64 multiplies v by a uint64 scalar, reporting overflow.
func (v Uint128) MulUint64(w uint64) (Uint128, bool) {
	return v.Mul(FromUint64(w))
}

// Lsh returns v shifted left by n bits (0..127); n outside that range
// returns Zero.
func (v Uint128) Lsh(n uint) Uint128 {
	switch {
	case n == 0:
		return v
	case n >= 128:
		return Zero
	case n >= 64:
		return Uint128{Hi: v.Lo << (n - 64), Lo: 0}
	default:
		return Uint128{Hi: (v.Hi << n) | (v.Lo >> (64 - n)), Lo: v.Lo << n}
	}
}

// Rsh returns v shifted right by n bits (0..127); n outside that range
// returns Zero.
func (v Uint128) Rsh(n uint) Uint128 {
	switch {
	case n == 0:
		return v
	case n >= 128:
		return Zero
	case n >= 64:
		return Uint128{Hi: 0, Lo: v.Hi >> (n - 64)}
	default:
		return Uint128{Hi: v.Hi >> n, Lo: (v.Lo >> n) | (v.Hi << (64 - n))}
	}
}

// Or returns the bitwise OR of v and w.
func (v Uint128) Or(w Uint128) Uint128 { return Uint128{Hi: v.Hi | w.Hi, Lo: v.Lo | w.Lo} }

// And returns the bitwise AND of v and w.
func (v Uint128) And(w Uint128) Uint128 { return Uint128{Hi: v.Hi & w.Hi, Lo: v.Lo & w.Lo} }

// Min returns the smaller of v and w.
func Min(v, w Uint128) Uint128 {
	if v.LessThan(w) {
		return v
	}
	return w
}

// String renders v in decimal.
func (v Uint128) String() string {
	if v.Hi == 0 {
		return fmt.Sprintf("%d", v.Lo)
	}
	return v.decimalString()
}

// decimalString implements long division by repeatedly dividing by 10,
// which is simple and correct, if not the fastest possible approach; 128
// bit values only ever get formatted for logs and API responses, not on
// any hot path.
func (v Uint128) decimalString() string {
	if v.IsZero() {
		return "0"
	}
	var buf [39]byte // ceil(log10(2^128))
	i := len(buf)
	cur := v
	ten := FromUint64(10)
	for !cur.IsZero() {
		q, r := cur.divMod(ten)
		i--
		buf[i] = byte('0' + r.Lo)
		cur = q
	}
	return string(buf[i:])
}

// FromString parses a decimal string.
func FromString(s string) (Uint128, error) {
	if s == "" {
		return Zero, fmt.Errorf("u128: empty decimal string")
	}
	n := Zero
	ten := FromUint64(10)
	for _, c := range s {
		if c < '0' || c > '9' {
			return Zero, fmt.Errorf("u128: invalid decimal string %q", s)
		}
		product, overflow := n.Mul(ten)
		if overflow {
			return Zero, fmt.Errorf("u128: %q out of range", s)
		}
		sum, overflow := product.Add(FromUint64(uint64(c - '0')))
		if overflow {
			return Zero, fmt.Errorf("u128: %q out of range", s)
		}
		n = sum
	}
	return n, nil
}

// MarshalJSON renders the value as a decimal string; 128-bit values do
// not survive float64 round-trips, so a JSON number is not an option.
func (v Uint128) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON accepts the decimal-string form written by MarshalJSON.
func (v *Uint128) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("u128: expected decimal string, got %s", data)
	}
	parsed, err := FromString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// QuoRem divides v by w, returning quotient and remainder. A naive
// bit-by-bit long division; fine for the occasional epoch/rarity
// computation this package is used for, not meant for hot paths.
func (v Uint128) QuoRem(w Uint128) (q, r Uint128) { return v.divMod(w) }

// divMod is the unexported implementation shared by QuoRem and
// decimalString.
func (v Uint128) divMod(w Uint128) (q, r Uint128) {
	if w.IsZero() {
		panic("u128: division by zero")
	}
	for i := 127; i >= 0; i-- {
		r = r.Lsh(1)
		if bitAt(v, uint(i)) {
			r.Lo |= 1
		}
		if r.Cmp(w) >= 0 {
			r, _ = r.Sub(w)
			q = setBit(q, uint(i))
		}
	}
	return q, r
}

func bitAt(v Uint128, i uint) bool {
	if i >= 64 {
		return (v.Hi>>(i-64))&1 == 1
	}
	return (v.Lo>>i)&1 == 1
}

func setBit(v Uint128, i uint) Uint128 {
	if i >= 64 {
		v.Hi |= 1 << (i - 64)
	} else {
		v.Lo |= 1 << i
	}
	return v
}
