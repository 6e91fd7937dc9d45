package drc20

import (
	"fmt"
	"strings"

	"github.com/rawblock/dogeindexer/internal/u128"
)

// MaxDecimalWidth caps the dec field of a deploy.
const MaxDecimalWidth uint8 = 18

// MaxWholeSupply caps declared supplies and per-mint limits, in whole
// tokens before decimal scaling.
var MaxWholeSupply = u128.FromUint64(^uint64(0))

// ParseAmount parses a decimal token amount string and scales it into
// smallest units for a token with dec decimal places. Accepted grammar
// is plain decimal only: digits, at most one interior dot. No leading
// or trailing dot, no signs, no exponents. The fractional part may not
// be wider than dec.
func ParseAmount(s string, dec uint8) (u128.Uint128, error) {
	if s == "" {
		return u128.Zero, fmt.Errorf("drc20: empty amount")
	}

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if hasDot && (intPart == "" || fracPart == "") {
		return u128.Zero, fmt.Errorf("drc20: invalid amount %q", s)
	}
	if len(fracPart) > int(dec) {
		return u128.Zero, fmt.Errorf("drc20: amount %q has more than %d decimal places", s, dec)
	}

	digits := intPart + fracPart
	if len(digits) > 39 {
		return u128.Zero, fmt.Errorf("drc20: amount %q out of range", s)
	}

	n := u128.Zero
	ten := u128.FromUint64(10)
	for _, c := range digits {
		if c < '0' || c > '9' {
			return u128.Zero, fmt.Errorf("drc20: invalid amount %q", s)
		}
		product, overflow := n.Mul(ten)
		if overflow {
			return u128.Zero, fmt.Errorf("drc20: amount %q out of range", s)
		}
		sum, overflow := product.Add(u128.FromUint64(uint64(c - '0')))
		if overflow {
			return u128.Zero, fmt.Errorf("drc20: amount %q out of range", s)
		}
		n = sum
	}

	// Scale the remaining decimal places up to smallest units.
	for i := len(fracPart); i < int(dec); i++ {
		product, overflow := n.Mul(ten)
		if overflow {
			return u128.Zero, fmt.Errorf("drc20: amount %q out of range", s)
		}
		n = product
	}
	return n, nil
}

// ParseWhole parses an integer-valued field (max supply, mint limit,
// dec) that allows no fractional part at all.
func ParseWhole(s string) (u128.Uint128, error) {
	if strings.ContainsRune(s, '.') {
		return u128.Zero, fmt.Errorf("drc20: %q must be an integer", s)
	}
	return ParseAmount(s, 0)
}

// Pow10 returns 10^n as a 128-bit value, saturating to u128.Max when
// 10^n does not fit in 128 bits (n >= 39).
func Pow10(n uint8) u128.Uint128 {
	v := u128.FromUint64(1)
	ten := u128.FromUint64(10)
	for i := uint8(0); i < n; i++ {
		product, overflow := v.Mul(ten)
		if overflow {
			return u128.Max
		}
		v = product
	}
	return v
}
