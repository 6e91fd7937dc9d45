package u128

import "testing"

func TestAddOverflow(t *testing.T) {
	sum, overflow := Max.Add(FromUint64(1))
	if !overflow {
		t.Fatalf("expected overflow adding 1 to Max")
	}
	if !sum.Equal(Zero) {
		t.Fatalf("expected wraparound to zero, got %s", sum)
	}

	sum, overflow = FromUint64(1).Add(FromUint64(2))
	if overflow {
		t.Fatalf("unexpected overflow")
	}
	if sum.Uint64() != 3 {
		t.Fatalf("expected 3, got %s", sum)
	}
}

func TestAddCheckedSaturates(t *testing.T) {
	got := Max.AddChecked(FromUint64(1))
	if !got.Equal(Max) {
		t.Fatalf("expected saturation at Max, got %s", got)
	}
}

func TestMulOverflow(t *testing.T) {
	// 2^64 * 2^64 overflows 128 bits.
	huge := FromUint64(1).Lsh(64)
	_, overflow := huge.Mul(huge)
	if !overflow {
		t.Fatalf("expected overflow for 2^64 * 2^64")
	}

	product, overflow := FromUint64(1000).Mul(FromUint64(2000))
	if overflow {
		t.Fatalf("unexpected overflow")
	}
	if product.Uint64() != 2_000_000 {
		t.Fatalf("expected 2000000, got %s", product)
	}
}

func TestCmpAndString(t *testing.T) {
	a := FromUint64(100)
	b := FromUint64(200)
	if a.Cmp(b) >= 0 {
		t.Fatalf("expected a < b")
	}
	if a.String() != "100" {
		t.Fatalf("expected \"100\", got %q", a.String())
	}
	if Max.String() != "340282366920938463463374607431768211455" {
		t.Fatalf("unexpected Max string: %s", Max.String())
	}
}

func TestShifts(t *testing.T) {
	one := FromUint64(1)
	shifted := one.Lsh(64)
	if shifted.Hi != 1 || shifted.Lo != 0 {
		t.Fatalf("expected Hi=1 Lo=0, got %+v", shifted)
	}
	back := shifted.Rsh(64)
	if !back.Equal(one) {
		t.Fatalf("round trip failed: %s", back)
	}
}

func TestDivModRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 9, 10, 12345, 999999999}
	for _, v := range vals {
		s := FromUint64(v).String()
		var want string
		if v == 0 {
			want = "0"
		} else {
			want = itoa(v)
		}
		if s != want {
			t.Errorf("FromUint64(%d).String() = %q, want %q", v, s, want)
		}
	}
}

func TestFromString(t *testing.T) {
	got, err := FromString("340282366920938463463374607431768211455")
	if err != nil || !got.Equal(Max) {
		t.Fatalf("FromString(Max) = %s, %v", got, err)
	}
	for _, s := range []string{"", "-1", "1.5", "abc", "340282366920938463463374607431768211456"} {
		if _, err := FromString(s); err == nil {
			t.Errorf("FromString(%q) should fail", s)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	data, err := FromUint64(12345).MarshalJSON()
	if err != nil || string(data) != `"12345"` {
		t.Fatalf("MarshalJSON = %s, %v", data, err)
	}
	var v Uint128
	if err := v.UnmarshalJSON(data); err != nil || v.Uint64() != 12345 {
		t.Fatalf("UnmarshalJSON = %s, %v", v, err)
	}
	if err := v.UnmarshalJSON([]byte("12345")); err == nil {
		t.Fatal("bare number must be rejected")
	}
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
