package varint

import (
	"testing"

	"github.com/rawblock/dogeindexer/internal/u128"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 255, 16384, 1 << 32, 1<<64 - 1}
	for _, v := range values {
		encoded := EncodeUint64(v)
		got, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%d): %v", v, err)
		}
		if n != len(encoded) {
			t.Errorf("Decode(%d) consumed %d bytes, want %d", v, n, len(encoded))
		}
		if got.Uint64() != v || !got.Fits64() {
			t.Errorf("Decode(%d) = %s", v, got)
		}
	}
}

func TestEncodeMax128(t *testing.T) {
	encoded := Encode(u128.Max)
	got, n, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode(Max): %v", err)
	}
	if n != len(encoded) {
		t.Errorf("consumed %d of %d bytes", n, len(encoded))
	}
	if !got.Equal(u128.Max) {
		t.Errorf("round trip mismatch: got %s", got)
	}
}

func TestDecodeIncomplete(t *testing.T) {
	_, _, err := Decode([]byte{0x80})
	if err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestDecodeOverlong(t *testing.T) {
	// 19 continuation bytes followed by a terminator overflows 128 bits.
	buf := make([]byte, 20)
	for i := 0; i < 19; i++ {
		buf[i] = 0xff
	}
	buf[19] = 0x7f
	_, _, err := Decode(buf)
	if err != ErrOverlong {
		t.Fatalf("expected ErrOverlong, got %v", err)
	}
}

func TestDecodeAllStopsOnBadTrailingVarint(t *testing.T) {
	good := EncodeUint64(4)
	payload := append(good, 0x80) // truncated second varint
	if _, err := DecodeAll(payload); err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestDecodeAllSequence(t *testing.T) {
	payload := append(EncodeUint64(0), EncodeUint64(1)...)
	payload = append(payload, EncodeUint64(2)...)
	payload = append(payload, EncodeUint64(3)...)

	got, err := DecodeAll(payload)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 integers, got %d", len(got))
	}
	for i, want := range []uint64{0, 1, 2, 3} {
		if got[i].Uint64() != want {
			t.Errorf("integer %d = %s, want %d", i, got[i], want)
		}
	}
}
