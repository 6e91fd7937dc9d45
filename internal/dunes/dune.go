// Package dunes implements the fungible-token protocol carried in
// OP_RETURN outputs: names, ids, the per-transaction dunestone payload,
// and the persisted dune entry records. The allocation state machine
// that applies dunestones to balances lives in internal/updater.
package dunes

import (
	"fmt"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/u128"
)

// Dune is a dune name: a 128-bit integer whose base-26 rendering (with a
// leading-zero offset, so 0 = "A", 25 = "Z", 26 = "AA") is the
// human-readable ticker.
type Dune struct {
	N u128.Uint128
}

// reserved is the lower bound of the reserved name region. Names at or
// above it can only be minted by the indexer itself when an etching
// carries no explicit name.
var reserved = u128.Uint128{Hi: 0x4d10cef280da966, Lo: 0xfa0704602570a3d6}

// steps[n] is the smallest dune value whose name is n+1 letters long.
// steps[12] is the minimum before the unlock schedule begins.
var steps = []u128.Uint128{
	{Hi: 0x0, Lo: 0x0},
	{Hi: 0x0, Lo: 0x1a},
	{Hi: 0x0, Lo: 0x2be},
	{Hi: 0x0, Lo: 0x4766},
	{Hi: 0x0, Lo: 0x74076},
	{Hi: 0x0, Lo: 0xbc8c16},
	{Hi: 0x0, Lo: 0x13263a56},
	{Hi: 0x0, Lo: 0x1f1e1ecd6},
	{Hi: 0x0, Lo: 0x3290f20dd6},
	{Hi: 0x0, Lo: 0x522b89567d6},
	{Hi: 0x0, Lo: 0x8586bf2c8bd6},
	{Hi: 0x0, Lo: 0xd8faf6a8633d6},
	{Hi: 0x0, Lo: 0x16097d0d1a143d6},
	{Hi: 0x0, Lo: 0x23cf6b354a60e3d6},
	{Hi: 0x3, Lo: 0xa310e3698dd723d6},
	{Hi: 0x5e, Lo: 0x8fb718b867d9a3d6},
	{Hi: 0x99a, Lo: 0x989882ba8c1aa3d6},
	{Hi: 0xf9b3, Lo: 0x7f7d46f23ab4a3d6},
	{Hi: 0x195c3a, Lo: 0xf2b93499f658a3d6},
	{Hi: 0x2935dfc, Lo: 0xa6cf57a30500a3d6},
	{Hi: 0x42f78ba8, Lo: 0xf10ee68e8210a3d6},
	{Hi: 0x6cd242f28, Lo: 0x7b836a7935b0a3d6},
	{Hi: 0xb0d5acca1c, Lo: 0x8b58d04f73f0a3d6},
	{Hi: 0x11f5b38c86e6, Lo: 0x27052811c670a3d6},
	{Hi: 0x1d2f43c45b35f, Lo: 0xf68611ce2770a3d6},
	{Hi: 0x2f6cce1f1437bf, Lo: 0x99dcef00170a3d6},
	{Hi: 0x4d10cef280da966, Lo: 0xfa0704602570a3d6},
	{Hi: 0x7d3b504a11633475, Lo: 0x64b671c3cd70a3d6},
}

// unlockInterval is the number of blocks between successive one-letter
// drops in the minimum-name-length schedule.
const (
	unlockPeriod   = 2_100_000 // total blocks over which names unlock
	unlockInterval = unlockPeriod / 12
)

// MinimumAtHeight returns the smallest allowed (non-reserved) dune name
// for an etching confirmed at height. Before the unlock window opens only
// 13-letter-and-up names are allowed; the floor then slides down one
// letter length every unlockInterval blocks until every name is fair
// game.
func MinimumAtHeight(firstDuneHeight uint64, height chain.Height) Dune {
	offset := uint64(height) + 1

	start := firstDuneHeight
	end := start + unlockPeriod

	if offset < start {
		return Dune{N: steps[12]}
	}
	if offset >= end {
		return Dune{}
	}

	progress := offset - start
	length := 12 - uint32(progress)/unlockInterval

	stepEnd := steps[length-1]
	stepStart := steps[length]
	remainder := u128.FromUint64(progress % unlockInterval)

	span, _ := stepStart.Sub(stepEnd)
	scaled, _ := span.Mul(remainder)
	q, _ := scaled.QuoRem(u128.FromUint64(unlockInterval))
	min, _ := stepStart.Sub(q)
	return Dune{N: min}
}

// IsReserved reports whether d lies in the reserved name region.
func (d Dune) IsReserved() bool { return d.N.Cmp(reserved) >= 0 }

// Reserved mints the nth reserved name.
func Reserved(n uint64) Dune {
	v, _ := reserved.Add(u128.FromUint64(n))
	return Dune{N: v}
}

// String renders the name as uppercase letters.
func (d Dune) String() string {
	n := d.N
	if n.Equal(u128.Max) {
		return "BCGDENLQRQWDSLRUGSNLBTMFIJAV"
	}

	n, _ = n.Add(u128.FromUint64(1))
	var buf [28]byte
	i := len(buf)
	for !n.IsZero() {
		m, _ := n.Sub(u128.FromUint64(1))
		q, r := m.QuoRem(u128.FromUint64(26))
		i--
		buf[i] = byte('A' + r.Lo)
		n = q
	}
	return string(buf[i:])
}

// ParseDune parses an uppercase-letters name back into its integer form.
func ParseDune(s string) (Dune, error) {
	if s == "" {
		return Dune{}, fmt.Errorf("dunes: empty dune name")
	}
	x := u128.Zero
	for i, c := range s {
		if i > 0 {
			sum, overflow := x.Add(u128.FromUint64(1))
			if overflow {
				return Dune{}, fmt.Errorf("dunes: name %q out of range", s)
			}
			x = sum
		}
		product, overflow := x.Mul(u128.FromUint64(26))
		if overflow {
			return Dune{}, fmt.Errorf("dunes: name %q out of range", s)
		}
		x = product
		if c < 'A' || c > 'Z' {
			return Dune{}, fmt.Errorf("dunes: invalid character %q in dune name", c)
		}
		sum, overflow := x.Add(u128.FromUint64(uint64(c - 'A')))
		if overflow {
			return Dune{}, fmt.Errorf("dunes: name %q out of range", s)
		}
		x = sum
	}
	return Dune{N: x}, nil
}
