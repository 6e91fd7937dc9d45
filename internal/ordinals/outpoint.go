// Package ordinals tracks individual satoshis: the canonical encodings
// for outpoints, satpoints, and sat ranges, and the range arithmetic
// that follows sats from coinbase subsidies through spends into outputs,
// fees, and losses.
package ordinals

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// OutPointSize is the canonical encoded size: 32-byte txid + u32 vout.
const OutPointSize = 36

// SatPointSize appends a u64 offset to an outpoint.
const SatPointSize = OutPointSize + 8

// EncodeOutPoint renders op in its 36-byte canonical form.
func EncodeOutPoint(op wire.OutPoint) [OutPointSize]byte {
	var buf [OutPointSize]byte
	copy(buf[:32], op.Hash[:])
	binary.LittleEndian.PutUint32(buf[32:], op.Index)
	return buf
}

// DecodeOutPoint parses a 36-byte canonical outpoint.
func DecodeOutPoint(data []byte) (wire.OutPoint, error) {
	if len(data) != OutPointSize {
		return wire.OutPoint{}, fmt.Errorf("ordinals: outpoint must be %d bytes, got %d", OutPointSize, len(data))
	}
	var op wire.OutPoint
	copy(op.Hash[:], data[:32])
	op.Index = binary.LittleEndian.Uint32(data[32:])
	return op, nil
}

// NullOutPoint is the coinbase-style null outpoint: an all-zero txid
// with index 0xFFFFFFFF. Sat ranges the coinbase fails to claim are
// credited to it.
func NullOutPoint() wire.OutPoint {
	return wire.OutPoint{Index: ^uint32(0)}
}

// IsNull reports whether op is the null outpoint (a coinbase previous
// output).
func IsNull(op wire.OutPoint) bool {
	return op.Index == ^uint32(0) && op.Hash == (chainhash.Hash{})
}

// SatPoint identifies a single sat inside an output: the outpoint plus
// the byte offset into the output's concatenated sat-range stream.
type SatPoint struct {
	OutPoint wire.OutPoint
	Offset   uint64
}

// Encode renders sp in its 44-byte canonical form.
func (sp SatPoint) Encode() [SatPointSize]byte {
	var buf [SatPointSize]byte
	op := EncodeOutPoint(sp.OutPoint)
	copy(buf[:OutPointSize], op[:])
	binary.LittleEndian.PutUint64(buf[OutPointSize:], sp.Offset)
	return buf
}

// DecodeSatPoint parses a 44-byte canonical satpoint.
func DecodeSatPoint(data []byte) (SatPoint, error) {
	if len(data) != SatPointSize {
		return SatPoint{}, fmt.Errorf("ordinals: satpoint must be %d bytes, got %d", SatPointSize, len(data))
	}
	op, err := DecodeOutPoint(data[:OutPointSize])
	if err != nil {
		return SatPoint{}, err
	}
	return SatPoint{
		OutPoint: op,
		Offset:   binary.LittleEndian.Uint64(data[OutPointSize:]),
	}, nil
}

func (sp SatPoint) String() string {
	return fmt.Sprintf("%s:%d:%d", sp.OutPoint.Hash, sp.OutPoint.Index, sp.Offset)
}

// ParseSatPoint parses the "txid:vout:offset" display form.
func ParseSatPoint(s string) (SatPoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return SatPoint{}, fmt.Errorf("ordinals: invalid satpoint %q", s)
	}
	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return SatPoint{}, fmt.Errorf("ordinals: invalid satpoint %q: %w", s, err)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return SatPoint{}, fmt.Errorf("ordinals: invalid satpoint %q: %w", s, err)
	}
	offset, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return SatPoint{}, fmt.Errorf("ordinals: invalid satpoint %q: %w", s, err)
	}
	return SatPoint{
		OutPoint: wire.OutPoint{Hash: *hash, Index: uint32(vout)},
		Offset:   offset,
	}, nil
}

// ParseOutPoint parses the "txid:vout" display form.
func ParseOutPoint(s string) (wire.OutPoint, error) {
	txid, vout, ok := strings.Cut(s, ":")
	if !ok {
		return wire.OutPoint{}, fmt.Errorf("ordinals: invalid outpoint %q", s)
	}
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("ordinals: invalid outpoint %q: %w", s, err)
	}
	index, err := strconv.ParseUint(vout, 10, 32)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("ordinals: invalid outpoint %q: %w", s, err)
	}
	return wire.OutPoint{Hash: *hash, Index: uint32(index)}, nil
}
