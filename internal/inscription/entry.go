package inscription

import (
	"encoding/binary"
	"fmt"

	"github.com/rawblock/dogeindexer/internal/u128"
)

// Entry is the persisted per-inscription record.
type Entry struct {
	Fee       uint64
	Height    uint64
	Number    uint64
	Sat       *u128.Uint128 // nil for unbound inscriptions
	Timestamp uint32
}

// entrySize is the fixed encoded size: three u64s, a u128 with an
// all-ones sentinel for "no sat", and a u32 timestamp.
const entrySize = 8 + 8 + 8 + 16 + 4

// Encode renders the entry in its fixed layout.
func (e *Entry) Encode() []byte {
	buf := make([]byte, entrySize)
	binary.LittleEndian.PutUint64(buf[0:8], e.Fee)
	binary.LittleEndian.PutUint64(buf[8:16], e.Height)
	binary.LittleEndian.PutUint64(buf[16:24], e.Number)
	sat := u128.Max
	if e.Sat != nil {
		sat = *e.Sat
	}
	binary.LittleEndian.PutUint64(buf[24:32], sat.Lo)
	binary.LittleEndian.PutUint64(buf[32:40], sat.Hi)
	binary.LittleEndian.PutUint32(buf[40:44], e.Timestamp)
	return buf
}

// DecodeEntry parses an entry written by Encode.
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) != entrySize {
		return nil, fmt.Errorf("inscription: entry must be %d bytes, got %d", entrySize, len(data))
	}
	e := &Entry{
		Fee:       binary.LittleEndian.Uint64(data[0:8]),
		Height:    binary.LittleEndian.Uint64(data[8:16]),
		Number:    binary.LittleEndian.Uint64(data[16:24]),
		Timestamp: binary.LittleEndian.Uint32(data[40:44]),
	}
	sat := u128.Uint128{
		Lo: binary.LittleEndian.Uint64(data[24:32]),
		Hi: binary.LittleEndian.Uint64(data[32:40]),
	}
	if !sat.Equal(u128.Max) {
		e.Sat = &sat
	}
	return e, nil
}
