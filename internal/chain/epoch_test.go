package chain

import "testing"

func TestSubsidySchedule(t *testing.T) {
	cases := []struct {
		height Height
		want   uint64
	}{
		{0, 1_000_000 * CoinValue},
		{99_999, 1_000_000 * CoinValue},
		{100_000, 500_000 * CoinValue},
		{600_000, 10_000 * CoinValue},
		{10_000_000, 10_000 * CoinValue},
	}
	for _, c := range cases {
		if got := Subsidy(c.height); got != c.want {
			t.Errorf("Subsidy(%d) = %d, want %d", c.height, got, c.want)
		}
	}
}

func TestHeightStartingSatRoundTrip(t *testing.T) {
	for _, h := range []Height{0, 1, 99_999, 100_000, 100_001, 600_000, 600_001} {
		sat := h.StartingSat()
		if got := sat.Height(); got != h {
			t.Errorf("StartingSat(%d).Height() = %d, want %d", h, got, h)
		}
		if sat.Third() != 0 {
			t.Errorf("height %d: first sat of block should have Third()==0", h)
		}
	}
}

func TestEpochFromHeightBoundaries(t *testing.T) {
	if EpochFromHeight(0) != 0 {
		t.Fatalf("height 0 should be epoch 0")
	}
	if EpochFromHeight(99_999) != 0 {
		t.Fatalf("height 99999 should still be epoch 0")
	}
	if EpochFromHeight(100_000) != 1 {
		t.Fatalf("height 100000 should be epoch 1")
	}
	if EpochFromHeight(600_000) != Epoch(EpochCount()-1) {
		t.Fatalf("height 600000 should be the final epoch")
	}
}

func TestParseSatRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "100000000", "340282366920938463463374607431768211455"}
	for _, c := range cases {
		sat, err := ParseSat(c)
		if err != nil {
			t.Fatalf("ParseSat(%q): %v", c, err)
		}
		if sat.String() != c {
			t.Errorf("ParseSat(%q).String() = %q", c, sat.String())
		}
	}
	if _, err := ParseSat("not-a-number"); err == nil {
		t.Fatalf("expected error for malformed sat number")
	}
}

func TestRarityFirstSatOfEpochIsRare(t *testing.T) {
	sat := Epoch(1).StartingSat()
	if got := sat.Rarity(); got != RarityRare {
		t.Errorf("first sat of epoch 1 should be rare, got %s", got)
	}
}

func TestRarityGenesisIsMythic(t *testing.T) {
	if got := SatFromUint64(0).Rarity(); got != RarityMythic {
		t.Errorf("sat 0 should be mythic, got %s", got)
	}
}
