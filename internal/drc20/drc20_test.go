package drc20

import (
	"strings"
	"testing"

	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/u128"
)

func TestParseTick(t *testing.T) {
	tick, err := ParseTick("TeSt")
	if err != nil {
		t.Fatalf("ParseTick: %v", err)
	}
	if tick.String() != "TeSt" {
		t.Errorf("display casing lost: %q", tick)
	}
	if tick.Lower() != "test" {
		t.Errorf("Lower() = %q", tick.Lower())
	}

	lower, _ := ParseTick("test")
	if tick.KeyHex() != lower.KeyHex() {
		t.Error("tick keys must be case-insensitive")
	}

	for _, s := range []string{"", "abc", "abcde"} {
		if _, err := ParseTick(s); err == nil {
			t.Errorf("ParseTick(%q) should fail", s)
		}
	}
}

func TestTickKeyHexBounds(t *testing.T) {
	tick, _ := ParseTick("zzzz")
	if tick.KeyHex() <= MinTickKeyHex() {
		t.Error("tick key must sort above the range minimum")
	}
	if tick.KeyHex() >= MaxTickKeyHex() {
		t.Error("tick key must sort below the range maximum")
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		dec  uint8
		want uint64
	}{
		{"10", 2, 1000},
		{"10.5", 2, 1050},
		{"0.01", 2, 1},
		{"1000", 0, 1000},
		{"5", 18, 5_000_000_000_000_000_000},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.in, c.dec)
		if err != nil {
			t.Fatalf("ParseAmount(%q, %d): %v", c.in, c.dec, err)
		}
		if !got.Equal(u128.FromUint64(c.want)) {
			t.Errorf("ParseAmount(%q, %d) = %s, want %d", c.in, c.dec, got, c.want)
		}
	}
}

func TestParseAmountRejectsBadGrammar(t *testing.T) {
	bad := []string{"", ".", ".5", "5.", "1e5", "1E5", "-1", "+1", "1.2.3", "1,0", "abc"}
	for _, s := range bad {
		if _, err := ParseAmount(s, 18); err == nil {
			t.Errorf("ParseAmount(%q) should fail", s)
		}
	}

	// Fractional part wider than dec.
	if _, err := ParseAmount("1.123", 2); err == nil {
		t.Error("over-wide fraction should fail")
	}

	// Far beyond 128 bits.
	if _, err := ParseAmount(strings.Repeat("9", 40), 0); err == nil {
		t.Error("overflow should fail")
	}
}

func TestParseWhole(t *testing.T) {
	if _, err := ParseWhole("1.5"); err == nil {
		t.Error("ParseWhole must reject fractions")
	}
	got, err := ParseWhole("18")
	if err != nil || !got.Equal(u128.FromUint64(18)) {
		t.Fatalf("ParseWhole(18) = %s, %v", got, err)
	}
}

func TestPow10(t *testing.T) {
	if !Pow10(0).Equal(u128.FromUint64(1)) {
		t.Error("Pow10(0) != 1")
	}
	if !Pow10(18).Equal(u128.FromUint64(1_000_000_000_000_000_000)) {
		t.Error("Pow10(18) mismatch")
	}
}

func ins(contentType, body string) *inscription.Inscription {
	return &inscription.Inscription{
		ContentType: []byte(contentType),
		Body:        []byte(body),
	}
}

func TestParseOperationDeploy(t *testing.T) {
	body := `{"p":"drc-20","op":"deploy","tick":"TEST","max":"1000","lim":"10","dec":"2"}`
	op, err := ParseOperation(ins("text/plain;charset=utf-8", body), ActionNew)
	if err != nil {
		t.Fatalf("ParseOperation: %v", err)
	}
	if op == nil || op.Kind != OpDeploy {
		t.Fatalf("op = %+v", op)
	}
	if op.Deploy.Tick != "TEST" || op.Deploy.Max != "1000" || op.Deploy.Lim != "10" || op.Deploy.Dec != "2" {
		t.Errorf("deploy = %+v", op.Deploy)
	}
}

func TestParseOperationTransferByAction(t *testing.T) {
	body := `{"p":"drc-20","op":"transfer","tick":"TEST","amt":"5","pad":"____"}`

	op, err := ParseOperation(ins("application/json", body), ActionNew)
	if err != nil || op == nil || op.Kind != OpInscribeTransfer {
		t.Fatalf("new-action transfer = %+v, %v", op, err)
	}

	op, err = ParseOperation(ins("application/json", body), ActionTransfer)
	if err != nil || op == nil || op.Kind != OpTransfer {
		t.Fatalf("transfer-action transfer = %+v, %v", op, err)
	}
}

func TestParseOperationRejectsNonProtocol(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		action      ActionKind
	}{
		{"wrong protocol", "text/plain", `{"p":"brc-20","op":"mint","tick":"TEST","amt":"5","x":"y"}`, ActionNew},
		{"wrong content type", "image/png", `{"p":"drc-20","op":"mint","tick":"TEST","amt":"5","x":"y"}`, ActionNew},
		{"unknown op", "text/plain", `{"p":"drc-20","op":"burn","tick":"TEST","amt":"50","x":"y"}`, ActionNew},
		{"deploy via transfer action", "text/plain", `{"p":"drc-20","op":"deploy","tick":"TEST","max":"100"}`, ActionTransfer},
		{"not json", "text/plain", strings.Repeat("x", 50), ActionNew},
	}
	for _, c := range cases {
		op, err := ParseOperation(ins(c.contentType, c.body), c.action)
		if err != nil || op != nil {
			t.Errorf("%s: expected silent rejection, got %+v, %v", c.name, op, err)
		}
	}
}

func TestParseOperationRejectsShortBody(t *testing.T) {
	op, err := ParseOperation(ins("text/plain", `{"p":"drc-20"}`), ActionNew)
	if err != nil || op != nil {
		t.Fatalf("short body must be rejected silently, got %+v, %v", op, err)
	}
}

func TestParseOperationValidatesShape(t *testing.T) {
	// Six-byte tick fails struct validation, which is an explicit
	// error rather than silence.
	body := `{"p":"drc-20","op":"mint","tick":"TOOBIG","amt":"5","x":"y"}`
	if _, err := ParseOperation(ins("text/plain", body), ActionNew); err == nil {
		t.Fatal("expected validation error for oversized tick")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	info := &TokenInfo{
		Tick:         "TEST",
		Supply:       u128.FromUint64(100000),
		LimitPerMint: u128.FromUint64(1000),
		Decimal:      2,
		Minted:       u128.FromUint64(42),
		DeployBy:     ScriptKey("DTestAddress"),
	}
	var decoded TokenInfo
	if err := DecodeRecord(EncodeRecord(info), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Tick != "TEST" || !decoded.Supply.Equal(info.Supply) || decoded.Decimal != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if err := DecodeRecord([]byte("{"), &decoded); err == nil {
		t.Error("corrupt record must fail")
	}
}
