package ordinals

import (
	"encoding/binary"
	"fmt"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/u128"
)

// RangeSize is the encoded size of one sat range: u128 start + u64
// length.
const RangeSize = 24

// SatRange is a half-open run of consecutive sat numbers: [Start,
// Start+Len).
type SatRange struct {
	Start u128.Uint128
	Len   uint64
}

// End returns the first sat number past the range.
func (r SatRange) End() u128.Uint128 {
	end, _ := r.Start.Add(u128.FromUint64(r.Len))
	return end
}

// EncodeRanges concatenates ranges into their 24-byte-per-record form.
func EncodeRanges(ranges []SatRange) []byte {
	buf := make([]byte, 0, len(ranges)*RangeSize)
	for _, r := range ranges {
		var rec [RangeSize]byte
		binary.LittleEndian.PutUint64(rec[0:8], r.Start.Lo)
		binary.LittleEndian.PutUint64(rec[8:16], r.Start.Hi)
		binary.LittleEndian.PutUint64(rec[16:24], r.Len)
		buf = append(buf, rec[:]...)
	}
	return buf
}

// DecodeRanges parses a concatenated range buffer.
func DecodeRanges(data []byte) ([]SatRange, error) {
	if len(data)%RangeSize != 0 {
		return nil, fmt.Errorf("ordinals: range buffer length %d not a multiple of %d", len(data), RangeSize)
	}
	ranges := make([]SatRange, 0, len(data)/RangeSize)
	for i := 0; i < len(data); i += RangeSize {
		ranges = append(ranges, SatRange{
			Start: u128.Uint128{
				Lo: binary.LittleEndian.Uint64(data[i : i+8]),
				Hi: binary.LittleEndian.Uint64(data[i+8 : i+16]),
			},
			Len: binary.LittleEndian.Uint64(data[i+16 : i+24]),
		})
	}
	return ranges, nil
}

// SubsidyRange returns the fresh sat range a coinbase at height nominally
// claims.
func SubsidyRange(height chain.Height) SatRange {
	return SatRange{
		Start: height.StartingSat().Uint128(),
		Len:   height.Subsidy(),
	}
}

// Stream is a FIFO of sat ranges consumed front-first: a transaction's
// concatenated input ranges, or a coinbase's subsidy-plus-fees pool.
type Stream struct {
	ranges []SatRange
	head   int
}

// NewStream wraps ranges without copying; the caller must not reuse the
// slice.
func NewStream(ranges []SatRange) *Stream {
	return &Stream{ranges: ranges}
}

// Push appends ranges to the back of the stream.
func (s *Stream) Push(ranges ...SatRange) {
	s.ranges = append(s.ranges, ranges...)
}

// Take removes the first value sats from the stream, splitting the range
// at the boundary when the cut lands mid-range. It returns fewer sats
// than requested only when the stream runs dry.
func (s *Stream) Take(value uint64) []SatRange {
	var out []SatRange
	for value > 0 && s.head < len(s.ranges) {
		r := s.ranges[s.head]
		if r.Len == 0 {
			s.head++
			continue
		}
		if r.Len <= value {
			out = append(out, r)
			value -= r.Len
			s.head++
			continue
		}
		// Split: the front value sats leave, the tail stays.
		out = append(out, SatRange{Start: r.Start, Len: value})
		tailStart, _ := r.Start.Add(u128.FromUint64(value))
		s.ranges[s.head] = SatRange{Start: tailStart, Len: r.Len - value}
		value = 0
	}
	return out
}

// Remaining drains and returns whatever the stream still holds.
func (s *Stream) Remaining() []SatRange {
	var out []SatRange
	for _, r := range s.ranges[s.head:] {
		if r.Len > 0 {
			out = append(out, r)
		}
	}
	s.head = len(s.ranges)
	return out
}

// Total sums the sats left in the stream.
func (s *Stream) Total() uint64 {
	var total uint64
	for _, r := range s.ranges[s.head:] {
		total += r.Len
	}
	return total
}

// SatAtOffset walks ranges as a concatenated stream and returns the sat
// at the given byte offset, if the ranges reach that far.
func SatAtOffset(ranges []SatRange, offset uint64) (chain.Sat, bool) {
	var walked uint64
	for _, r := range ranges {
		if walked+r.Len > offset {
			n, _ := r.Start.Add(u128.FromUint64(offset - walked))
			return chain.SatFromUint128(n), true
		}
		walked += r.Len
	}
	return chain.Sat{}, false
}

// TotalSats sums the lengths of ranges.
func TotalSats(ranges []SatRange) uint64 {
	var total uint64
	for _, r := range ranges {
		total += r.Len
	}
	return total
}
