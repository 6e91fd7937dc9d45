package chain

import (
	"fmt"
	"strconv"

	"github.com/rawblock/dogeindexer/internal/u128"
)

// Sat identifies a single satoshi (base unit) by its ordinal number:
// the count of base units minted strictly before it, genesis block
// included.
type Sat struct {
	n u128.Uint128
}

// SatFromUint128 wraps a raw 128-bit ordinal as a Sat.
func SatFromUint128(n u128.Uint128) Sat { return Sat{n: n} }

// SatFromUint64 wraps a uint64 ordinal as a Sat.
func SatFromUint64(n uint64) Sat { return Sat{n: u128.FromUint64(n)} }

// Uint128 returns the underlying 128-bit ordinal.
func (s Sat) Uint128() u128.Uint128 { return s.n }

// Cmp returns -1, 0, or 1 as s is less than, equal to, or greater than o.
func (s Sat) Cmp(o Sat) int { return s.n.Cmp(o.n) }

func (s Sat) LessThan(o Sat) bool    { return s.n.LessThan(o.n) }
func (s Sat) GreaterThan(o Sat) bool { return s.n.GreaterThan(o.n) }
func (s Sat) Equal(o Sat) bool       { return s.n.Equal(o.n) }

// Add returns s+delta. Sat numbers never need to represent more than the
// total achievable supply, so overflow here indicates a caller bug rather
// than a protocol condition; it is reported rather than silently wrapped.
func (s Sat) Add(delta uint64) (Sat, bool) {
	sum, overflow := s.n.Add(u128.FromUint64(delta))
	return Sat{n: sum}, overflow
}

// Sub returns s-delta and whether it underflowed.
func (s Sat) Sub(delta uint64) (Sat, bool) {
	diff, underflow := s.n.Sub(u128.FromUint64(delta))
	return Sat{n: diff}, underflow
}

// Epoch returns the halving epoch during which s was mined.
func (s Sat) Epoch() Epoch { return EpochFromSat(s) }

// Height returns the block height at which s was mined.
func (s Sat) Height() Height {
	epoch := s.Epoch()
	start := epoch.StartingSat()
	subsidy := epoch.Subsidy()
	if subsidy == 0 {
		return epoch.StartingHeight()
	}
	offset, _ := s.n.Sub(start.n)
	// offset / subsidy, truncated; both operands fit comfortably within
	// a uint64 for any realistic epoch, so the low word suffices once we
	// know there's no overflow beyond it.
	blocksIn := offset.Uint64() / subsidy
	if !offset.Fits64() {
		// Defensive: a later epoch table entry with an enormous subsidy
		// span could in principle need the high word; fall back to a
		// 128-bit division rather than silently truncating.
		q, _ := offset.QuoRem(u128.FromUint64(subsidy))
		blocksIn = q.Uint64()
	}
	return epoch.StartingHeight() + Height(blocksIn)
}

// EpochPosition returns s's zero-based position within its epoch, i.e.
// how many sats were minted in this epoch strictly before s.
func (s Sat) EpochPosition() u128.Uint128 {
	start := s.Epoch().StartingSat()
	pos, _ := s.n.Sub(start.n)
	return pos
}

// Third returns s's zero-based position within the block that mined
// it.
func (s Sat) Third() uint64 {
	subsidy := s.Epoch().Subsidy()
	if subsidy == 0 {
		return 0
	}
	pos := s.EpochPosition()
	if pos.Fits64() {
		return pos.Uint64() % subsidy
	}
	_, r := pos.QuoRem(u128.FromUint64(subsidy))
	return r.Uint64()
}

// IsCommon reports whether s is a "common" sat: every sat that is not the
// first of its block.
func (s Sat) IsCommon() bool { return s.Third() != 0 }

// Rarity classifies s per the standard ordinal rarity ladder.
func (s Sat) Rarity() Rarity { return rarityOf(s) }

// String renders the sat's ordinal number in decimal, matching the wire
// and JSON representation used throughout the query API.
func (s Sat) String() string { return s.n.String() }

// ParseSat parses a decimal sat number, as accepted by the query API and
// by inscription/dune test fixtures.
func ParseSat(s string) (Sat, error) {
	// Fast path for values that fit a uint64, which is the overwhelming
	// majority in any test or API call.
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return SatFromUint64(v), nil
	}
	n, err := u128.FromString(s)
	if err != nil {
		return Sat{}, fmt.Errorf("chain: invalid sat number %q", s)
	}
	return Sat{n: n}, nil
}
