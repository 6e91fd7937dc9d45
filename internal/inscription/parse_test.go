package inscription

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/u128"
)

// push builds a raw script from pushes: an empty element becomes OP_0,
// up to 75 bytes an OP_PUSHBYTES push, anything longer OP_PUSHDATA1.
func push(data ...[]byte) []byte {
	var script []byte
	for _, d := range data {
		switch {
		case len(d) == 0:
			script = append(script, 0x00)
		case len(d) <= 75:
			script = append(script, byte(len(d)))
			script = append(script, d...)
		default:
			script = append(script, 0x4c, byte(len(d)))
			script = append(script, d...)
		}
	}
	return script
}

func num(n byte) []byte { return []byte{n} }

func txWithSigScript(sigScript []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{SignatureScript: sigScript})
	return tx
}

func TestParseEmptyScript(t *testing.T) {
	if got := ParseTransactions([]*wire.MsgTx{txWithSigScript(nil)}); got.State != ParseNone {
		t.Fatalf("state = %v", got.State)
	}
}

func TestParseNoInputs(t *testing.T) {
	if got := ParseTransactions([]*wire.MsgTx{wire.NewMsgTx(wire.TxVersion)}); got.State != ParseNone {
		t.Fatalf("state = %v", got.State)
	}
}

func TestParseOrdinarySigScript(t *testing.T) {
	// A standard P2PKH sig script: signature push + pubkey push.
	sig := push(make([]byte, 71), make([]byte, 33))
	if got := ParseTransactions([]*wire.MsgTx{txWithSigScript(sig)}); got.State != ParseNone {
		t.Fatalf("state = %v", got.State)
	}
}

func TestParseCompleteSingleChunk(t *testing.T) {
	// PUSH("ord") PUSH(1) PUSH("text/plain") PUSH(0) PUSH("woof")
	sig := push([]byte("ord"), num(1), []byte("text/plain"), nil, []byte("woof"))
	got := ParseTransactions([]*wire.MsgTx{txWithSigScript(sig)})
	if got.State != ParseComplete {
		t.Fatalf("state = %v", got.State)
	}
	if got.Inscription.ContentTypeString() != "text/plain" {
		t.Errorf("content type = %q", got.Inscription.ContentType)
	}
	if !bytes.Equal(got.Inscription.Body, []byte("woof")) {
		t.Errorf("body = %q", got.Inscription.Body)
	}
}

func TestParseCompleteSmallIntOpcodes(t *testing.T) {
	// OP_1 encodes the count 1 the same way a one-byte push of 0x01
	// does.
	sig := []byte{
		3, 'o', 'r', 'd',
		0x51, // OP_1: npieces = 1
		24,
	}
	sig = append(sig, []byte("text/plain;charset=utf-8")...)
	sig = append(sig, 0x00) // OP_0: countdown 0
	sig = append(sig, 4, 'w', 'o', 'o', 'f')

	got := ParseTransactions([]*wire.MsgTx{txWithSigScript(sig)})
	if got.State != ParseComplete {
		t.Fatalf("state = %v", got.State)
	}
	if !bytes.Equal(got.Inscription.Body, []byte("woof")) {
		t.Errorf("body = %q", got.Inscription.Body)
	}
}

func TestParseZeroPiecesIsInvalid(t *testing.T) {
	sig := push([]byte("ord"), nil, []byte("text/plain"))
	if got := ParseTransactions([]*wire.MsgTx{txWithSigScript(sig)}); got.State != ParseNone {
		t.Fatalf("state = %v", got.State)
	}
}

func TestParsePartialThenComplete(t *testing.T) {
	// Tx1 declares two pieces and carries the first chunk; tx2 carries
	// the final chunk. Body is the chunks concatenated in order.
	tx1 := txWithSigScript(push([]byte("ord"), num(2), []byte("text/plain"), num(1), []byte("woof")))

	if got := ParseTransactions([]*wire.MsgTx{tx1}); got.State != ParsePartial {
		t.Fatalf("tx1 alone: state = %v", got.State)
	}

	tx2 := txWithSigScript(push(nil, []byte(" woof")))
	got := ParseTransactions([]*wire.MsgTx{tx1, tx2})
	if got.State != ParseComplete {
		t.Fatalf("tx1+tx2: state = %v", got.State)
	}
	if string(got.Inscription.Body) != "woof woof" {
		t.Errorf("body = %q", got.Inscription.Body)
	}
}

func TestParseWrongCountdownPoisonsChain(t *testing.T) {
	tx1 := txWithSigScript(push([]byte("ord"), num(3), []byte("text/plain"), num(2), []byte("a")))
	// The continuation must lead with countdown 1; leading with 0
	// breaks the chain for good.
	tx2 := txWithSigScript(push(nil, []byte("b")))
	if got := ParseTransactions([]*wire.MsgTx{tx1, tx2}); got.State != ParseNone {
		t.Fatalf("state = %v", got.State)
	}
}

func TestParseTruncatedPushIsInvalid(t *testing.T) {
	sig := []byte{10, 'o', 'r'} // declares 10 bytes, has 2
	if got := ParseTransactions([]*wire.MsgTx{txWithSigScript(sig)}); got.State != ParseNone {
		t.Fatalf("state = %v", got.State)
	}
}

func TestParsePushdataVariants(t *testing.T) {
	body := bytes.Repeat([]byte{'x'}, 200)

	var sig []byte
	sig = append(sig, 3, 'o', 'r', 'd')
	sig = append(sig, 1, 1) // npieces 1
	sig = append(sig, 10)
	sig = append(sig, []byte("text/plain")...)
	sig = append(sig, 0x00) // countdown 0
	sig = append(sig, 0x4c, byte(len(body)))
	sig = append(sig, body...)

	got := ParseTransactions([]*wire.MsgTx{txWithSigScript(sig)})
	if got.State != ParseComplete {
		t.Fatalf("state = %v", got.State)
	}
	if !bytes.Equal(got.Inscription.Body, body) {
		t.Error("pushdata1 body mismatch")
	}
}

func TestIdRoundTrip(t *testing.T) {
	var txid chainhash.Hash
	txid[0] = 0x99
	id := Id{Txid: txid, Index: 3}

	enc := id.Encode()
	back, err := DecodeId(enc[:])
	if err != nil || back != id {
		t.Fatalf("round trip = %v, %v", back, err)
	}

	parsed, err := ParseId(id.String())
	if err != nil || parsed != id {
		t.Fatalf("string round trip = %v, %v", parsed, err)
	}

	for _, s := range []string{"", "i0", "zzi0", id.Txid.String()} {
		if _, err := ParseId(s); err == nil {
			t.Errorf("ParseId(%q) should fail", s)
		}
	}
}

func TestEntryRoundTrip(t *testing.T) {
	sat := u128.FromUint64(123456)
	entry := &Entry{
		Fee:       500,
		Height:    42,
		Number:    7,
		Sat:       &sat,
		Timestamp: 1700000000,
	}
	decoded, err := DecodeEntry(entry.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Fee != 500 || decoded.Height != 42 || decoded.Number != 7 || decoded.Timestamp != 1700000000 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Sat == nil || !decoded.Sat.Equal(sat) {
		t.Errorf("sat = %+v", decoded.Sat)
	}

	// The unbound form round-trips its nil sat.
	unbound := &Entry{Number: 8}
	decoded, err = DecodeEntry(unbound.Encode())
	if err != nil || decoded.Sat != nil {
		t.Fatalf("unbound decode = %+v, %v", decoded, err)
	}
}
