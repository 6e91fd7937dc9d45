package dunes

import (
	"testing"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/u128"
)

func TestDuneNameRoundTrip(t *testing.T) {
	cases := []struct {
		n    uint64
		name string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
	}
	for _, c := range cases {
		d := Dune{N: u128.FromUint64(c.n)}
		if got := d.String(); got != c.name {
			t.Errorf("Dune(%d).String() = %q, want %q", c.n, got, c.name)
		}
		parsed, err := ParseDune(c.name)
		if err != nil {
			t.Fatalf("ParseDune(%q): %v", c.name, err)
		}
		if !parsed.N.Equal(d.N) {
			t.Errorf("ParseDune(%q) = %s, want %d", c.name, parsed.N, c.n)
		}
	}
}

func TestDuneNameMaxValue(t *testing.T) {
	d := Dune{N: u128.Max}
	if got := d.String(); got != "BCGDENLQRQWDSLRUGSNLBTMFIJAV" {
		t.Fatalf("max dune name = %q", got)
	}
}

func TestParseDuneRejectsInvalid(t *testing.T) {
	for _, s := range []string{"", "a", "A1", "A.B", "ABCDEFGHIJKLMNOPQRSTUVWXYZABC"} {
		if _, err := ParseDune(s); err == nil {
			t.Errorf("ParseDune(%q) should fail", s)
		}
	}
}

func TestReservedNames(t *testing.T) {
	if Reserved(0).String() != "AAAAAAAAAAAAAAAAAAAAAAAAAAA" {
		t.Errorf("first reserved name = %q", Reserved(0))
	}
	if !Reserved(0).IsReserved() {
		t.Error("Reserved(0) must report reserved")
	}
	below, _ := reserved.Sub(u128.FromUint64(1))
	if (Dune{N: below}).IsReserved() {
		t.Error("value below the reserved floor must not report reserved")
	}
}

func TestMinimumAtHeight(t *testing.T) {
	// Before the unlock window the floor is the 13-letter step.
	min := MinimumAtHeight(1000, 0)
	if !min.N.Equal(steps[12]) {
		t.Errorf("pre-window minimum = %s, want steps[12]", min.N)
	}

	// Far past the window every name is allowed.
	min = MinimumAtHeight(1000, 1000+unlockPeriod+1)
	if !min.N.IsZero() {
		t.Errorf("post-window minimum = %s, want 0", min.N)
	}

	// At the exact start of the window the floor begins sliding from
	// steps[12] toward steps[11].
	min = MinimumAtHeight(1000, 999)
	if !min.N.Equal(steps[12]) {
		t.Errorf("window-start minimum = %s, want steps[12]", min.N)
	}

	// Monotonically non-increasing across the window.
	prev := MinimumAtHeight(1000, 999)
	for _, h := range []uint64{1000, 200_000, 500_000, 1_000_000, 2_000_000} {
		cur := MinimumAtHeight(1000, chain.Height(h))
		if cur.N.GreaterThan(prev.N) {
			t.Fatalf("minimum increased between heights: %s -> %s at %d", prev.N, cur.N, h)
		}
		prev = cur
	}
}

func TestSpacedDuneRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		mask uint32
	}{
		{"A.B", "A•B", 0b1},
		{"A.B.C", "A•B•C", 0b11},
		{"A•B", "A•B", 0b1},
		{"AB", "AB", 0},
	}
	for _, c := range cases {
		sd, err := ParseSpacedDune(c.in)
		if err != nil {
			t.Fatalf("ParseSpacedDune(%q): %v", c.in, err)
		}
		if sd.Spacers != c.mask {
			t.Errorf("ParseSpacedDune(%q).Spacers = %b, want %b", c.in, sd.Spacers, c.mask)
		}
		if got := sd.String(); got != c.out {
			t.Errorf("ParseSpacedDune(%q).String() = %q, want %q", c.in, got, c.out)
		}
	}
}

func TestSpacedDuneRejectsBadSpacers(t *testing.T) {
	for _, s := range []string{".A", "A..B", "A.", "Ax"} {
		if _, err := ParseSpacedDune(s); err == nil {
			t.Errorf("ParseSpacedDune(%q) should fail", s)
		}
	}
}

func TestDuneIdRoundTrip(t *testing.T) {
	cases := []DuneId{
		{Height: 0, Index: 0},
		{Height: 2, Index: 1},
		{Height: 3, Index: 1},
		{Height: 1 << 40, Index: 0xFFFF},
	}
	for _, id := range cases {
		packed := id.Uint128()
		back, err := DuneIdFromUint128(packed)
		if err != nil {
			t.Fatalf("DuneIdFromUint128(%s): %v", packed, err)
		}
		if back != id {
			t.Errorf("round trip %v -> %s -> %v", id, packed, back)
		}
	}

	// height 3, index 1 packs to 0b11_0000_0000_0000_0001.
	if got := (DuneId{Height: 3, Index: 1}).Uint128(); got.Lo != 0b11_0000_0000_0000_0001 {
		t.Errorf("packed id = %s", got)
	}
}

func TestDuneIdFromUint128RejectsOversizedHeight(t *testing.T) {
	// A value whose height part needs more than 64 bits is invalid.
	too := u128.FromUint64(1).Lsh(81)
	if _, err := DuneIdFromUint128(too); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestParseDuneId(t *testing.T) {
	id, err := ParseDuneId("1:2")
	if err != nil || id.Height != 1 || id.Index != 2 {
		t.Fatalf("ParseDuneId(1:2) = %v, %v", id, err)
	}
	for _, s := range []string{":", "1:", ":2", "a:2", "1:a", "12"} {
		if _, err := ParseDuneId(s); err == nil {
			t.Errorf("ParseDuneId(%q) should fail", s)
		}
	}
}

func TestClaimBit(t *testing.T) {
	if _, ok := Claim(u128.FromUint64(1)); ok {
		t.Error("id without claim bit must not claim")
	}
	claimed, ok := Claim(u128.FromUint64(1).Or(ClaimBit))
	if !ok || !claimed.Equal(u128.FromUint64(1)) {
		t.Errorf("Claim(1|bit) = %s, %v", claimed, ok)
	}
}
