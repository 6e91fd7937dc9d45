package dunes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rawblock/dogeindexer/internal/u128"
)

// ClaimBit marks an edict id as a mint claim against the referenced open
// etching rather than a balance transfer.
var ClaimBit = u128.Uint128{Lo: 1 << 48}

// Claim returns the claimed dune id when the claim bit is set on id.
func Claim(id u128.Uint128) (u128.Uint128, bool) {
	if id.And(ClaimBit).IsZero() {
		return u128.Zero, false
	}
	return u128.Uint128{Hi: id.Hi, Lo: id.Lo &^ (1 << 48)}, true
}

// DuneId locates a dune by the block that etched it and the etching
// transaction's index within that block. The packed integer form is
// height<<16 | index.
type DuneId struct {
	Height uint64
	Index  uint32
}

// DuneIdFromUint128 unpacks an integer id, rejecting values whose height
// part exceeds 64 bits. Only the low 16 bits of the index field are ever
// populated by a valid id.
func DuneIdFromUint128(n u128.Uint128) (DuneId, error) {
	height := n.Rsh(16)
	if !height.Fits64() {
		return DuneId{}, fmt.Errorf("dunes: id %s out of range", n)
	}
	return DuneId{
		Height: height.Uint64(),
		Index:  uint32(n.Lo & 0xFFFF),
	}, nil
}

// Uint128 packs the id back into its integer form.
func (id DuneId) Uint128() u128.Uint128 {
	return u128.FromUint64(id.Height).Lsh(16).Or(u128.FromUint64(uint64(id.Index)))
}

func (id DuneId) String() string {
	return fmt.Sprintf("%d:%d", id.Height, id.Index)
}

// ParseDuneId parses the "height:index" display form.
func ParseDuneId(s string) (DuneId, error) {
	height, index, ok := strings.Cut(s, ":")
	if !ok {
		return DuneId{}, fmt.Errorf("dunes: invalid dune id %q", s)
	}
	h, err := strconv.ParseUint(height, 10, 64)
	if err != nil {
		return DuneId{}, fmt.Errorf("dunes: invalid dune id %q: %w", s, err)
	}
	i, err := strconv.ParseUint(index, 10, 16)
	if err != nil {
		return DuneId{}, fmt.Errorf("dunes: invalid dune id %q: %w", s, err)
	}
	return DuneId{Height: h, Index: uint32(i)}, nil
}
