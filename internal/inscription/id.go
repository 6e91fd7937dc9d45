// Package inscription reconstructs content envelopes from transaction
// input script-sigs. An envelope may span several transactions; the
// parser reports Partial until the countdown completes, and the updater
// persists the in-flight chain between blocks.
package inscription

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// IdSize is the canonical encoded size: 32-byte txid + u32 index.
const IdSize = 36

// Id identifies an inscription by the transaction that began its
// envelope and its index within that transaction.
type Id struct {
	Txid  chainhash.Hash
	Index uint32
}

// Encode renders the id in its 36-byte canonical form. The index is
// big-endian so ids from the same transaction sort adjacently.
func (id Id) Encode() [IdSize]byte {
	var buf [IdSize]byte
	copy(buf[:32], id.Txid[:])
	binary.BigEndian.PutUint32(buf[32:], id.Index)
	return buf
}

// DecodeId parses a 36-byte canonical inscription id.
func DecodeId(data []byte) (Id, error) {
	if len(data) != IdSize {
		return Id{}, fmt.Errorf("inscription: id must be %d bytes, got %d", IdSize, len(data))
	}
	var id Id
	copy(id.Txid[:], data[:32])
	id.Index = binary.BigEndian.Uint32(data[32:])
	return id, nil
}

func (id Id) String() string {
	return fmt.Sprintf("%si%d", id.Txid, id.Index)
}

// MarshalJSON renders the id in its display form.
func (id Id) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON accepts the display form.
func (id *Id) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("inscription: expected id string, got %s", data)
	}
	parsed, err := ParseId(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseId parses the "txidiN" display form.
func ParseId(s string) (Id, error) {
	sep := strings.LastIndexByte(s, 'i')
	if sep < 0 {
		return Id{}, fmt.Errorf("inscription: invalid id %q", s)
	}
	if sep != chainhash.MaxHashStringSize {
		return Id{}, fmt.Errorf("inscription: invalid id %q", s)
	}
	hash, err := chainhash.NewHashFromStr(s[:sep])
	if err != nil {
		return Id{}, fmt.Errorf("inscription: invalid id %q: %w", s, err)
	}
	index, err := strconv.ParseUint(s[sep+1:], 10, 32)
	if err != nil {
		return Id{}, fmt.Errorf("inscription: invalid id %q: %w", s, err)
	}
	return Id{Txid: *hash, Index: uint32(index)}, nil
}
