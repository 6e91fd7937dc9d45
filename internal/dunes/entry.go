package dunes

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/dogeindexer/internal/u128"
	"github.com/rawblock/dogeindexer/internal/varint"
)

// DuneEntry is the persisted record for one etched dune. Everything but
// Supply, Mints, and Burned is immutable after etching.
type DuneEntry struct {
	Block        uint64
	Burned       u128.Uint128
	Divisibility uint8
	Etching      chainhash.Hash
	Mints        uint64
	Number       uint64
	Premine      u128.Uint128
	Terms        *Terms
	Dune         Dune
	Spacers      uint32
	Supply       u128.Uint128
	Symbol       *rune
	Timestamp    uint32
	Turbo        bool
}

// SpacedDune pairs the entry's name with its display spacers.
func (e *DuneEntry) SpacedDune() SpacedDune {
	return SpacedDune{Dune: e.Dune, Spacers: e.Spacers}
}

// Mintable returns the per-mint limit if an open mint against this entry
// is currently allowed, or the reason it isn't.
func (e *DuneEntry) Mintable(height uint64) (u128.Uint128, error) {
	t := e.Terms
	if t == nil || t.Limit == nil {
		return u128.Zero, fmt.Errorf("dunes: %s is not mintable", e.SpacedDune())
	}
	if t.HeightStart != nil && height < *t.HeightStart {
		return u128.Zero, fmt.Errorf("dunes: mint of %s starts at block %d", e.SpacedDune(), *t.HeightStart)
	}
	if t.HeightEnd != nil && height >= *t.HeightEnd {
		return u128.Zero, fmt.Errorf("dunes: mint of %s ended at block %d", e.SpacedDune(), *t.HeightEnd)
	}
	if t.OffsetStart != nil && height < e.Block+*t.OffsetStart {
		return u128.Zero, fmt.Errorf("dunes: mint of %s starts at block %d", e.SpacedDune(), e.Block+*t.OffsetStart)
	}
	if t.OffsetEnd != nil && height >= e.Block+*t.OffsetEnd {
		return u128.Zero, fmt.Errorf("dunes: mint of %s ended at block %d", e.SpacedDune(), e.Block+*t.OffsetEnd)
	}
	if t.Cap != nil && u128.FromUint64(e.Mints).Cmp(*t.Cap) >= 0 {
		return u128.Zero, fmt.Errorf("dunes: %s is limited to %s mints", e.SpacedDune(), t.Cap)
	}
	return *t.Limit, nil
}

// Entry encoding: fixed little-endian fields followed by a presence
// bitmask and the optional fields it declares. The layout is part of the
// schema version; changing it requires a bump.

const (
	entryHasTerms uint8 = 1 << iota
	entryHasSymbol
	entryHasLimit
	entryHasCap
	entryHasHeightStart
	entryHasHeightEnd
	entryHasOffsetStart
	entryHasOffsetEnd
)

func putU128(buf []byte, v u128.Uint128) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], v.Lo)
	binary.LittleEndian.PutUint64(b[8:], v.Hi)
	return append(buf, b[:]...)
}

func getU128(data []byte) (u128.Uint128, []byte, error) {
	if len(data) < 16 {
		return u128.Zero, nil, fmt.Errorf("dunes: truncated entry")
	}
	return u128.Uint128{
		Lo: binary.LittleEndian.Uint64(data[:8]),
		Hi: binary.LittleEndian.Uint64(data[8:16]),
	}, data[16:], nil
}

func putU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func getU64(data []byte) (uint64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("dunes: truncated entry")
	}
	return binary.LittleEndian.Uint64(data[:8]), data[8:], nil
}

// Encode renders the entry in its persisted layout.
func (e *DuneEntry) Encode() []byte {
	buf := make([]byte, 0, 160)
	buf = putU64(buf, e.Block)
	buf = putU128(buf, e.Burned)
	buf = append(buf, e.Divisibility)
	buf = append(buf, e.Etching[:]...)
	buf = putU64(buf, e.Mints)
	buf = putU64(buf, e.Number)
	buf = putU128(buf, e.Premine)
	buf = putU128(buf, e.Dune.N)
	buf = binary.LittleEndian.AppendUint32(buf, e.Spacers)
	buf = putU128(buf, e.Supply)
	buf = binary.LittleEndian.AppendUint32(buf, e.Timestamp)
	if e.Turbo {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	var mask uint8
	if e.Symbol != nil {
		mask |= entryHasSymbol
	}
	if t := e.Terms; t != nil {
		mask |= entryHasTerms
		if t.Limit != nil {
			mask |= entryHasLimit
		}
		if t.Cap != nil {
			mask |= entryHasCap
		}
		if t.HeightStart != nil {
			mask |= entryHasHeightStart
		}
		if t.HeightEnd != nil {
			mask |= entryHasHeightEnd
		}
		if t.OffsetStart != nil {
			mask |= entryHasOffsetStart
		}
		if t.OffsetEnd != nil {
			mask |= entryHasOffsetEnd
		}
	}
	buf = append(buf, mask)

	if e.Symbol != nil {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(*e.Symbol))
	}
	if t := e.Terms; t != nil {
		if t.Limit != nil {
			buf = putU128(buf, *t.Limit)
		}
		if t.Cap != nil {
			buf = putU128(buf, *t.Cap)
		}
		if t.HeightStart != nil {
			buf = putU64(buf, *t.HeightStart)
		}
		if t.HeightEnd != nil {
			buf = putU64(buf, *t.HeightEnd)
		}
		if t.OffsetStart != nil {
			buf = putU64(buf, *t.OffsetStart)
		}
		if t.OffsetEnd != nil {
			buf = putU64(buf, *t.OffsetEnd)
		}
	}
	return buf
}

// DecodeEntry parses an entry written by Encode.
func DecodeEntry(data []byte) (*DuneEntry, error) {
	var e DuneEntry
	var err error

	if e.Block, data, err = getU64(data); err != nil {
		return nil, err
	}
	if e.Burned, data, err = getU128(data); err != nil {
		return nil, err
	}
	if len(data) < 1+chainhash.HashSize {
		return nil, fmt.Errorf("dunes: truncated entry")
	}
	e.Divisibility = data[0]
	copy(e.Etching[:], data[1:1+chainhash.HashSize])
	data = data[1+chainhash.HashSize:]

	if e.Mints, data, err = getU64(data); err != nil {
		return nil, err
	}
	if e.Number, data, err = getU64(data); err != nil {
		return nil, err
	}
	if e.Premine, data, err = getU128(data); err != nil {
		return nil, err
	}
	if e.Dune.N, data, err = getU128(data); err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("dunes: truncated entry")
	}
	e.Spacers = binary.LittleEndian.Uint32(data)
	data = data[4:]
	if e.Supply, data, err = getU128(data); err != nil {
		return nil, err
	}
	if len(data) < 6 {
		return nil, fmt.Errorf("dunes: truncated entry")
	}
	e.Timestamp = binary.LittleEndian.Uint32(data)
	e.Turbo = data[4] == 1
	mask := data[5]
	data = data[6:]

	if mask&entryHasSymbol != 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("dunes: truncated entry")
		}
		r := rune(binary.LittleEndian.Uint32(data))
		e.Symbol = &r
		data = data[4:]
	}
	if mask&entryHasTerms != 0 {
		t := &Terms{}
		if mask&entryHasLimit != 0 {
			var v u128.Uint128
			if v, data, err = getU128(data); err != nil {
				return nil, err
			}
			t.Limit = &v
		}
		if mask&entryHasCap != 0 {
			var v u128.Uint128
			if v, data, err = getU128(data); err != nil {
				return nil, err
			}
			t.Cap = &v
		}
		if mask&entryHasHeightStart != 0 {
			var v uint64
			if v, data, err = getU64(data); err != nil {
				return nil, err
			}
			t.HeightStart = &v
		}
		if mask&entryHasHeightEnd != 0 {
			var v uint64
			if v, data, err = getU64(data); err != nil {
				return nil, err
			}
			t.HeightEnd = &v
		}
		if mask&entryHasOffsetStart != 0 {
			var v uint64
			if v, data, err = getU64(data); err != nil {
				return nil, err
			}
			t.OffsetStart = &v
		}
		if mask&entryHasOffsetEnd != 0 {
			var v uint64
			if v, data, err = getU64(data); err != nil {
				return nil, err
			}
			t.OffsetEnd = &v
		}
		e.Terms = t
	}
	return &e, nil
}

// EncodeBalances renders an id-sorted balance list as alternating
// varint(id) varint(amount) pairs, the on-disk outpoint balance format.
func EncodeBalances(balances map[u128.Uint128]u128.Uint128) []byte {
	ids := make([]u128.Uint128, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sortUint128s(ids)

	var buf []byte
	for _, id := range ids {
		buf = appendVarint(buf, id)
		buf = appendVarint(buf, balances[id])
	}
	return buf
}

// DecodeBalances parses a balance buffer back into (id, amount) pairs in
// stored order.
func DecodeBalances(data []byte) ([]BalanceEntry, error) {
	var out []BalanceEntry
	for len(data) > 0 {
		id, n, err := decodeVarint(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		amount, n, err := decodeVarint(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		out = append(out, BalanceEntry{Id: id, Amount: amount})
	}
	return out, nil
}

// BalanceEntry is one (dune id, amount) pair of an outpoint's balance
// buffer.
type BalanceEntry struct {
	Id     u128.Uint128
	Amount u128.Uint128
}

func appendVarint(buf []byte, v u128.Uint128) []byte {
	return append(buf, varint.Encode(v)...)
}

func decodeVarint(data []byte) (u128.Uint128, int, error) {
	return varint.Decode(data)
}

func sortUint128s(ids []u128.Uint128) {
	// Insertion sort; balance lists are tiny.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].LessThan(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
