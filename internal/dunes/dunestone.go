package dunes

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/u128"
	"github.com/rawblock/dogeindexer/internal/varint"
)

// Magic is the single-byte push that marks an OP_RETURN output as a dune
// payload.
const Magic = 0x44 // "D"

// MaxDivisibility bounds the divisibility tag.
const MaxDivisibility = 38

// MaxLimit caps per-mint limits at u64::MAX.
var MaxLimit = u128.FromUint64(^uint64(0))

// Tags of the payload's (tag, value) prefix. Body terminates the prefix;
// everything after it is edict triples.
const (
	TagBody          = 0
	TagFlags         = 1
	TagDune          = 2
	TagLimit         = 3
	TagOffsetEnd     = 4
	TagDeadline      = 5 // reserved; value ignored
	TagPointer       = 6
	TagHeightStart   = 7
	TagHeightEnd     = 8
	TagOffsetStart   = 9
	TagCap           = 10
	TagPremine       = 11
	TagSpacers       = 13
	TagSymbol        = 14
	TagDivisibility  = 15
	TagCenotaphForce = 126 // any even unknown tag works; this one is ours for tests
)

// Flag bits of the Flags tag.
const (
	FlagEtching = 1 << 0
	FlagTerms   = 1 << 1
	FlagTurbo   = 1 << 2
)

// ErrScript reports a malformed script encountered while scanning for a
// dune payload. The transaction simply has no dunestone; the block is
// unaffected.
var ErrScript = errors.New("dunes: malformed script")

// Edict is one transfer instruction: move amount of dune id to
// transaction output index output.
type Edict struct {
	Id     u128.Uint128
	Amount u128.Uint128
	Output u128.Uint128
}

// edictFromIntegers validates one decoded (id, amount, output) triple. A
// false result marks the enclosing message as a cenotaph.
func edictFromIntegers(tx *wire.MsgTx, id, amount, output u128.Uint128) (Edict, bool) {
	duneId, err := DuneIdFromUint128(id)
	if err != nil {
		return Edict{}, false
	}
	if duneId.Height == 0 && duneId.Index > 0 {
		return Edict{}, false
	}
	if output.GreaterThan(u128.FromUint64(uint64(len(tx.TxOut)))) {
		return Edict{}, false
	}
	return Edict{Id: id, Amount: amount, Output: output}, true
}

// Terms are the open-mint conditions attached to an etching.
type Terms struct {
	Limit       *u128.Uint128
	Cap         *u128.Uint128
	HeightStart *uint64
	HeightEnd   *uint64
	OffsetStart *uint64
	OffsetEnd   *uint64
}

// Etching declares a new dune.
type Etching struct {
	Divisibility *uint8
	Terms        *Terms
	Premine      *u128.Uint128
	Dune         *Dune
	Spacers      *uint32
	Symbol       *rune
	Turbo        bool
}

// Dunestone is the parsed per-transaction payload.
type Dunestone struct {
	Edicts   []Edict
	Etching  *Etching
	Pointer  *uint32
	Cenotaph bool
}

// message is the raw field/edict split before tag interpretation.
type message struct {
	cenotaph bool
	fields   map[uint64]u128.Uint128
	edicts   []Edict
}

// messageFromIntegers walks the decoded integer sequence as (tag, value)
// pairs until the body tag, then as edict triples with delta-encoded,
// saturating ids. Duplicate tags keep the first value.
func messageFromIntegers(tx *wire.MsgTx, payload []u128.Uint128) message {
	var edicts []Edict
	fields := make(map[uint64]u128.Uint128)
	cenotaph := false
	highTags := false

	for i := 0; i < len(payload); i += 2 {
		tag := payload[i]

		if tag.IsZero() {
			id := u128.Zero
			rest := payload[i+1:]
			for j := 0; j+3 <= len(rest); j += 3 {
				id = id.AddChecked(rest[j])
				edict, ok := edictFromIntegers(tx, id, rest[j+1], rest[j+2])
				if ok {
					edicts = append(edicts, edict)
				} else {
					cenotaph = true
				}
			}
			break
		}

		if i+1 >= len(payload) {
			break
		}

		if !tag.Fits64() {
			// A tag beyond 64 bits can't be any known tag; its parity
			// still decides cenotaph below, keyed off the low bit.
			if tag.Lo%2 == 0 {
				highTags = true
			}
			continue
		}
		if _, ok := fields[tag.Lo]; !ok {
			fields[tag.Lo] = payload[i+1]
		}
	}

	return message{cenotaph: cenotaph || highTags, fields: fields, edicts: edicts}
}

func takeTag(fields map[uint64]u128.Uint128, tag uint64) (u128.Uint128, bool) {
	v, ok := fields[tag]
	if ok {
		delete(fields, tag)
	}
	return v, ok
}

func takeU64(fields map[uint64]u128.Uint128, tag uint64) *uint64 {
	v, ok := takeTag(fields, tag)
	if !ok || !v.Fits64() {
		return nil
	}
	n := v.Uint64()
	return &n
}

func takeU32(fields map[uint64]u128.Uint128, tag uint64) *uint32 {
	v, ok := takeTag(fields, tag)
	if !ok || !v.Fits64() || v.Lo > 0xFFFFFFFF {
		return nil
	}
	n := uint32(v.Lo)
	return &n
}

// DunestoneFromTx finds and parses the transaction's dune payload.
// Returns (nil, nil) when the transaction carries none; a script error
// means the same to callers but is surfaced for logging.
func DunestoneFromTx(tx *wire.MsgTx) (*Dunestone, error) {
	payload, err := payloadFromTx(tx)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	integers, err := varint.DecodeAll(payload)
	if err != nil {
		// A bad varint invalidates the whole payload, not just its tail.
		return nil, fmt.Errorf("dunes: %w", err)
	}

	msg := messageFromIntegers(tx, integers)
	fields := msg.fields
	edicts := msg.edicts

	takeTag(fields, TagDeadline) // reserved, value discarded

	pointer := takeU32(fields, TagPointer)

	divisibility := func() *uint8 {
		v, ok := takeTag(fields, TagDivisibility)
		if !ok || !v.Fits64() || v.Lo > MaxDivisibility {
			return nil
		}
		d := uint8(v.Lo)
		return &d
	}()

	var limit *u128.Uint128
	if v, ok := takeTag(fields, TagLimit); ok {
		clamped := u128.Min(v, MaxLimit)
		limit = &clamped
	}

	var dune *Dune
	if v, ok := takeTag(fields, TagDune); ok {
		dune = &Dune{N: v}
	}

	var capTag *u128.Uint128
	if v, ok := takeTag(fields, TagCap); ok {
		capTag = &v
	}

	var premine *u128.Uint128
	if v, ok := takeTag(fields, TagPremine); ok {
		premine = &v
	}

	// A declared premine is delivered as an implicit edict so it flows
	// through the same allocation path as explicit transfers.
	if premine != nil && !premine.IsZero() {
		edicts = append(edicts, Edict{
			Id:     u128.Zero,
			Amount: *premine,
			Output: u128.FromUint64(1),
		})
	}

	spacers := func() *uint32 {
		v := takeU32(fields, TagSpacers)
		if v == nil || *v > MaxSpacers {
			return nil
		}
		return v
	}()

	symbol := func() *rune {
		v, ok := takeTag(fields, TagSymbol)
		if !ok || !v.Fits64() || v.Lo > 0x10FFFF {
			return nil
		}
		r := rune(v.Lo)
		if r >= 0xD800 && r <= 0xDFFF {
			return nil
		}
		return &r
	}()

	heightStart := takeU64(fields, TagHeightStart)
	heightEnd := takeU64(fields, TagHeightEnd)
	offsetStart := takeU64(fields, TagOffsetStart)
	offsetEnd := takeU64(fields, TagOffsetEnd)

	flags, _ := takeTag(fields, TagFlags)
	etch := !flags.And(u128.FromUint64(FlagEtching)).IsZero()
	terms := !flags.And(u128.FromUint64(FlagTerms)).IsZero()
	turbo := !flags.And(u128.FromUint64(FlagTurbo)).IsZero()
	leftoverFlags := flags.And(u128.FromUint64(^uint64(FlagEtching | FlagTerms | FlagTurbo))).Or(u128.Uint128{Hi: flags.Hi})

	// premine + cap * limit must fit in 128 bits or the dunestone is a
	// cenotaph: minting it out would overflow supply.
	overflow := func() bool {
		var p, c, l u128.Uint128
		if premine != nil {
			p = *premine
		}
		if capTag != nil {
			c = *capTag
		}
		if limit != nil {
			l = *limit
		}
		product, over := c.Mul(l)
		if over {
			return true
		}
		_, over = p.Add(product)
		return over
	}()

	var etching *Etching
	if etch {
		etching = &Etching{
			Divisibility: divisibility,
			Dune:         dune,
			Spacers:      spacers,
			Symbol:       symbol,
			Premine:      premine,
			Turbo:        turbo,
		}
		if terms {
			etching.Terms = &Terms{
				Cap:         capTag,
				Limit:       limit,
				HeightStart: heightStart,
				HeightEnd:   heightEnd,
				OffsetStart: offsetStart,
				OffsetEnd:   offsetEnd,
			}
		}
	}

	evenUnknown := false
	for tag := range fields {
		if tag%2 == 0 {
			evenUnknown = true
			break
		}
	}

	return &Dunestone{
		Cenotaph: msg.cenotaph || overflow || !leftoverFlags.IsZero() || evenUnknown,
		Pointer:  pointer,
		Edicts:   edicts,
		Etching:  etching,
	}, nil
}

// payloadFromTx scans outputs for the first OP_RETURN whose second
// instruction pushes the magic byte, then concatenates every subsequent
// data push. Non-push opcodes in the tail are skipped; a tokenizer error
// aborts the search.
func payloadFromTx(tx *wire.MsgTx) ([]byte, error) {
	for _, out := range tx.TxOut {
		tokenizer := txscript.MakeScriptTokenizer(0, out.PkScript)

		if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
			if tokenizer.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrScript, tokenizer.Err())
			}
			continue
		}

		if !tokenizer.Next() || !bytes.Equal(tokenizer.Data(), []byte{Magic}) {
			if tokenizer.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrScript, tokenizer.Err())
			}
			continue
		}

		var payload []byte
		for tokenizer.Next() {
			if data := tokenizer.Data(); data != nil {
				payload = append(payload, data...)
			}
		}
		if tokenizer.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrScript, tokenizer.Err())
		}
		return payload, nil
	}
	return nil, nil
}

// Encipher renders the dunestone back into an OP_RETURN script. Only
// used by tests and tooling; the indexer itself never writes payloads.
func (d *Dunestone) Encipher() ([]byte, error) {
	var payload []byte

	appendTag := func(tag uint64, value u128.Uint128) {
		payload = append(payload, varint.EncodeUint64(tag)...)
		payload = append(payload, varint.Encode(value)...)
	}

	if e := d.Etching; e != nil {
		flags := uint64(FlagEtching)
		if e.Terms != nil {
			flags |= FlagTerms
		}
		if e.Turbo {
			flags |= FlagTurbo
		}
		appendTag(TagFlags, u128.FromUint64(flags))

		if e.Dune != nil {
			appendTag(TagDune, e.Dune.N)
		}
		if e.Divisibility != nil {
			appendTag(TagDivisibility, u128.FromUint64(uint64(*e.Divisibility)))
		}
		if e.Spacers != nil {
			appendTag(TagSpacers, u128.FromUint64(uint64(*e.Spacers)))
		}
		if e.Symbol != nil {
			appendTag(TagSymbol, u128.FromUint64(uint64(*e.Symbol)))
		}
		if e.Premine != nil {
			appendTag(TagPremine, *e.Premine)
		}
		if t := e.Terms; t != nil {
			if t.Limit != nil {
				appendTag(TagLimit, *t.Limit)
			}
			if t.Cap != nil {
				appendTag(TagCap, *t.Cap)
			}
			if t.HeightStart != nil {
				appendTag(TagHeightStart, u128.FromUint64(*t.HeightStart))
			}
			if t.HeightEnd != nil {
				appendTag(TagHeightEnd, u128.FromUint64(*t.HeightEnd))
			}
			if t.OffsetStart != nil {
				appendTag(TagOffsetStart, u128.FromUint64(*t.OffsetStart))
			}
			if t.OffsetEnd != nil {
				appendTag(TagOffsetEnd, u128.FromUint64(*t.OffsetEnd))
			}
		}
	}

	if d.Pointer != nil {
		appendTag(TagPointer, u128.FromUint64(uint64(*d.Pointer)))
	}

	if d.Cenotaph {
		appendTag(TagCenotaphForce, u128.Zero)
	}

	if len(d.Edicts) > 0 {
		payload = append(payload, varint.EncodeUint64(TagBody)...)
		prev := u128.Zero
		for _, edict := range d.Edicts {
			delta, _ := edict.Id.Sub(prev)
			payload = append(payload, varint.Encode(delta)...)
			payload = append(payload, varint.Encode(edict.Amount)...)
			payload = append(payload, varint.Encode(edict.Output)...)
			prev = edict.Id
		}
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData([]byte{Magic})
	for i := 0; i < len(payload); i += txscript.MaxScriptElementSize {
		end := i + txscript.MaxScriptElementSize
		if end > len(payload) {
			end = len(payload)
		}
		builder.AddData(payload[i:end])
	}
	return builder.Script()
}
