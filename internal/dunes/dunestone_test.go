package dunes

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/u128"
	"github.com/rawblock/dogeindexer/internal/varint"
)

// payloadTx wraps raw payload integers in an OP_RETURN "D" output with
// the given number of ordinary outputs preceding it.
func payloadTx(t *testing.T, outputs int, integers ...u128.Uint128) *wire.MsgTx {
	t.Helper()
	var payload []byte
	for _, n := range integers {
		payload = append(payload, varint.Encode(n)...)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData([]byte{Magic})
	if len(payload) > 0 {
		builder.AddData(payload)
	}
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for i := 0; i < outputs; i++ {
		tx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_DUP}))
	}
	tx.AddTxOut(wire.NewTxOut(0, script))
	return tx
}

func u64s(values ...uint64) []u128.Uint128 {
	out := make([]u128.Uint128, len(values))
	for i, v := range values {
		out[i] = u128.FromUint64(v)
	}
	return out
}

func TestDunestoneAbsent(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_DUP}))

	stone, err := DunestoneFromTx(tx)
	if err != nil || stone != nil {
		t.Fatalf("expected no dunestone, got %v, %v", stone, err)
	}
}

func TestDunestoneNoOutputs(t *testing.T) {
	stone, err := DunestoneFromTx(wire.NewMsgTx(wire.TxVersion))
	if err != nil || stone != nil {
		t.Fatalf("expected no dunestone, got %v, %v", stone, err)
	}
}

func TestDunestoneWrongMagicIgnored(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData([]byte{'E'})
	script, _ := builder.Script()

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, script))

	stone, err := DunestoneFromTx(tx)
	if err != nil || stone != nil {
		t.Fatalf("expected no dunestone, got %v, %v", stone, err)
	}
}

func TestDunestoneEdicts(t *testing.T) {
	// Two edicts with delta-encoded ids: absolute ids 2:1 and 2:2.
	first := DuneId{Height: 2, Index: 1}.Uint128()
	tx := payloadTx(t, 2,
		append(u64s(TagBody), first, u128.FromUint64(100), u128.FromUint64(0),
			u128.FromUint64(1), u128.FromUint64(200), u128.FromUint64(1))...)

	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if stone == nil || stone.Cenotaph {
		t.Fatalf("unexpected result: %+v", stone)
	}
	if len(stone.Edicts) != 2 {
		t.Fatalf("expected 2 edicts, got %d", len(stone.Edicts))
	}
	if !stone.Edicts[0].Id.Equal(first) {
		t.Errorf("edict 0 id = %s", stone.Edicts[0].Id)
	}
	want1 := DuneId{Height: 2, Index: 2}.Uint128()
	if !stone.Edicts[1].Id.Equal(want1) {
		t.Errorf("edict 1 id = %s, want %s", stone.Edicts[1].Id, want1)
	}
}

func TestDunestoneIdDeltasSaturate(t *testing.T) {
	tx := payloadTx(t, 1,
		append(u64s(TagBody),
			u128.Max, u128.FromUint64(1), u128.FromUint64(0),
			u128.Max, u128.FromUint64(2), u128.FromUint64(0))...)

	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	// Both ids saturate to u128::MAX; its height part overflows a u64,
	// so both edicts are invalid and the dunestone is a cenotaph.
	if !stone.Cenotaph {
		t.Fatal("expected cenotaph from saturated invalid ids")
	}
	if len(stone.Edicts) != 0 {
		t.Fatalf("expected no valid edicts, got %d", len(stone.Edicts))
	}
}

func TestDunestoneEtching(t *testing.T) {
	name, _ := ParseDune("TESTDUNE")
	tx := payloadTx(t, 1, append(
		u64s(TagFlags, FlagEtching|FlagTerms),
		append([]u128.Uint128{u128.FromUint64(TagDune), name.N},
			u64s(TagDivisibility, 2, TagLimit, 1000, TagCap, 10, TagSymbol, 'D')...)...)...)

	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if stone.Cenotaph {
		t.Fatal("valid etching must not be a cenotaph")
	}
	e := stone.Etching
	if e == nil {
		t.Fatal("expected etching")
	}
	if e.Dune == nil || !e.Dune.N.Equal(name.N) {
		t.Errorf("etching dune = %+v", e.Dune)
	}
	if e.Divisibility == nil || *e.Divisibility != 2 {
		t.Errorf("divisibility = %+v", e.Divisibility)
	}
	if e.Terms == nil || e.Terms.Limit == nil || !e.Terms.Limit.Equal(u128.FromUint64(1000)) {
		t.Errorf("terms = %+v", e.Terms)
	}
	if e.Terms.Cap == nil || !e.Terms.Cap.Equal(u128.FromUint64(10)) {
		t.Errorf("cap = %+v", e.Terms.Cap)
	}
	if e.Symbol == nil || *e.Symbol != 'D' {
		t.Errorf("symbol = %+v", e.Symbol)
	}
}

func TestDunestonePremineAppendsImplicitEdict(t *testing.T) {
	tx := payloadTx(t, 2, u64s(TagFlags, FlagEtching, TagPremine, 500)...)

	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if len(stone.Edicts) != 1 {
		t.Fatalf("expected implicit premine edict, got %d edicts", len(stone.Edicts))
	}
	edict := stone.Edicts[0]
	if !edict.Id.IsZero() || !edict.Amount.Equal(u128.FromUint64(500)) || !edict.Output.Equal(u128.FromUint64(1)) {
		t.Errorf("premine edict = %+v", edict)
	}
}

func TestDunestoneUnknownEvenTagIsCenotaph(t *testing.T) {
	tx := payloadTx(t, 1, u64s(126, 0)...)
	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if !stone.Cenotaph {
		t.Fatal("unknown even tag must force cenotaph")
	}
}

func TestDunestoneUnknownOddTagIgnored(t *testing.T) {
	tx := payloadTx(t, 1, u64s(127, 0)...)
	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if stone.Cenotaph {
		t.Fatal("unknown odd tag must be ignored")
	}
}

func TestDunestoneDeadlineTagIgnored(t *testing.T) {
	tx := payloadTx(t, 1, u64s(TagDeadline, 12345)...)
	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if stone.Cenotaph {
		t.Fatal("deadline tag is reserved but must not poison the dunestone")
	}
}

func TestDunestoneOverflowForcesCenotaph(t *testing.T) {
	// premine + cap * limit overflows 128 bits.
	tx := payloadTx(t, 1, []u128.Uint128{
		u128.FromUint64(TagFlags), u128.FromUint64(FlagEtching | FlagTerms),
		u128.FromUint64(TagPremine), u128.Max,
		u128.FromUint64(TagCap), u128.FromUint64(2),
		u128.FromUint64(TagLimit), u128.FromUint64(1 << 40),
	}...)

	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if !stone.Cenotaph {
		t.Fatal("supply overflow must force cenotaph")
	}
}

func TestDunestoneDuplicateTagKeepsFirst(t *testing.T) {
	tx := payloadTx(t, 1, u64s(TagPointer, 0, TagPointer, 9)...)
	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if stone.Pointer == nil || *stone.Pointer != 0 {
		t.Errorf("pointer = %+v, want first value 0", stone.Pointer)
	}
}

func TestDunestoneInvalidVarintErrors(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData([]byte{Magic})
	builder.AddData([]byte{0x80}) // truncated varint
	script, _ := builder.Script()

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, script))

	if _, err := DunestoneFromTx(tx); err == nil {
		t.Fatal("truncated varint must surface an error")
	}
}

func TestDunestoneEncipherRoundTrip(t *testing.T) {
	name, _ := ParseDune("ROUNDTRIP")
	div := uint8(3)
	limit := u128.FromUint64(777)
	pointer := uint32(1)

	original := &Dunestone{
		Etching: &Etching{
			Dune:         &name,
			Divisibility: &div,
			Terms:        &Terms{Limit: &limit},
		},
		Pointer: &pointer,
		Edicts: []Edict{
			{Id: DuneId{Height: 5, Index: 1}.Uint128(), Amount: u128.FromUint64(10), Output: u128.FromUint64(0)},
		},
	}

	script, err := original.Encipher()
	if err != nil {
		t.Fatalf("encipher: %v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_DUP}))
	tx.AddTxOut(wire.NewTxOut(0, script))

	stone, err := DunestoneFromTx(tx)
	if err != nil {
		t.Fatalf("decipher: %v", err)
	}
	if stone.Cenotaph {
		t.Fatal("round-tripped dunestone must not be a cenotaph")
	}
	if stone.Etching == nil || stone.Etching.Dune == nil || !stone.Etching.Dune.N.Equal(name.N) {
		t.Errorf("etching = %+v", stone.Etching)
	}
	if stone.Pointer == nil || *stone.Pointer != 1 {
		t.Errorf("pointer = %+v", stone.Pointer)
	}
	if len(stone.Edicts) != 1 || !stone.Edicts[0].Amount.Equal(u128.FromUint64(10)) {
		t.Errorf("edicts = %+v", stone.Edicts)
	}
}

func TestBalancesEncodeRoundTrip(t *testing.T) {
	balances := map[u128.Uint128]u128.Uint128{
		u128.FromUint64(200): u128.FromUint64(5),
		u128.FromUint64(100): u128.Max,
	}
	buf := EncodeBalances(balances)
	decoded, err := DecodeBalances(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(decoded))
	}
	// Sorted by id.
	if !decoded[0].Id.Equal(u128.FromUint64(100)) || !decoded[0].Amount.Equal(u128.Max) {
		t.Errorf("entry 0 = %+v", decoded[0])
	}

	// Re-encoding the decoded list is byte-identical.
	again := EncodeBalances(map[u128.Uint128]u128.Uint128{
		decoded[0].Id: decoded[0].Amount,
		decoded[1].Id: decoded[1].Amount,
	})
	if !bytes.Equal(buf, again) {
		t.Error("balance buffer must re-encode byte-identically")
	}
}

func TestDuneEntryEncodeRoundTrip(t *testing.T) {
	limit := u128.FromUint64(21)
	capV := u128.FromUint64(42)
	hs := uint64(10)
	symbol := 'Ð'

	entry := &DuneEntry{
		Block:        7,
		Burned:       u128.FromUint64(3),
		Divisibility: 8,
		Mints:        2,
		Number:       11,
		Premine:      u128.FromUint64(1000),
		Terms:        &Terms{Limit: &limit, Cap: &capV, HeightStart: &hs},
		Dune:         Dune{N: u128.FromUint64(99246114928149462)},
		Spacers:      0b101,
		Supply:       u128.Max,
		Symbol:       &symbol,
		Timestamp:    1700000000,
		Turbo:        true,
	}
	entry.Etching[0] = 0xaa

	decoded, err := DecodeEntry(entry.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Block != 7 || decoded.Mints != 2 || decoded.Number != 11 || !decoded.Turbo {
		t.Errorf("fixed fields mismatch: %+v", decoded)
	}
	if !decoded.Supply.Equal(u128.Max) || !decoded.Premine.Equal(u128.FromUint64(1000)) {
		t.Errorf("supply/premine mismatch: %+v", decoded)
	}
	if decoded.Symbol == nil || *decoded.Symbol != 'Ð' {
		t.Errorf("symbol = %+v", decoded.Symbol)
	}
	if decoded.Terms == nil || decoded.Terms.Limit == nil || !decoded.Terms.Limit.Equal(limit) {
		t.Errorf("terms = %+v", decoded.Terms)
	}
	if decoded.Terms.HeightStart == nil || *decoded.Terms.HeightStart != 10 {
		t.Errorf("height start = %+v", decoded.Terms.HeightStart)
	}
	if decoded.Terms.HeightEnd != nil || decoded.Terms.OffsetStart != nil {
		t.Errorf("absent optionals decoded as present: %+v", decoded.Terms)
	}
	if decoded.Etching[0] != 0xaa {
		t.Error("etching txid mismatch")
	}
}

func TestMintable(t *testing.T) {
	limit := u128.FromUint64(100)
	capV := u128.FromUint64(2)
	hs, he := uint64(10), uint64(20)
	os, oe := uint64(5), uint64(15)

	entry := &DuneEntry{
		Block: 100,
		Terms: &Terms{
			Limit:       &limit,
			Cap:         &capV,
			HeightStart: &hs,
			HeightEnd:   &he,
			OffsetStart: &os,
			OffsetEnd:   &oe,
		},
	}

	// Offset window is [105, 115); height window is [10, 20). The
	// height window has long passed at block 110, so mint fails on it.
	if _, err := entry.Mintable(110); err == nil {
		t.Fatal("expected height-window failure")
	}

	// Clear the height bounds; offsets alone govern.
	entry.Terms.HeightStart, entry.Terms.HeightEnd = nil, nil
	if got, err := entry.Mintable(110); err != nil || !got.Equal(limit) {
		t.Fatalf("Mintable(110) = %s, %v", got, err)
	}
	if _, err := entry.Mintable(104); err == nil {
		t.Fatal("expected offset-start failure")
	}
	if _, err := entry.Mintable(115); err == nil {
		t.Fatal("expected offset-end failure")
	}

	// Cap exhaustion.
	entry.Mints = 2
	if _, err := entry.Mintable(110); err == nil {
		t.Fatal("expected cap failure")
	}

	// No terms at all means not mintable.
	if _, err := (&DuneEntry{}).Mintable(1); err == nil {
		t.Fatal("expected unmintable failure")
	}
}
