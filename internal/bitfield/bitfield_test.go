package bitfield

import "testing"

func TestNewByteLength(t *testing.T) {
	cases := []struct {
		numPieces int
		wantBytes int
	}{
		{0, 0},
		{1, 1},
		{7, 1},
		{8, 1},
		{9, 2},
		{16, 2},
		{17, 3},
	}

	for _, tc := range cases {
		bf := New(tc.numPieces)
		if got := len(bf.ToBytes()); got != tc.wantBytes {
			t.Fatalf("New(%d) bytes = %d; want %d", tc.numPieces, got, tc.wantBytes)
		}
	}
}

func TestSetHasAndBounds(t *testing.T) {
	bf := New(10) // 2 bytes, bits 10..15 reserved

	if bf.Has(-1) || bf.Has(100) {
		t.Fatalf("Has out-of-range should be false")
	}

	for _, i := range []int{0, 7, 8, 9} {
		if err := bf.Set(i); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}
	for _, i := range []int{0, 7, 8, 9} {
		if !bf.Has(i) {
			t.Fatalf("bit %d should be set", i)
		}
	}

	if err := bf.Set(10); err != ErrIndexOutOfRange {
		t.Fatalf("Set(10) = %v, want ErrIndexOutOfRange", err)
	}
	if err := bf.Set(-1); err != ErrIndexOutOfRange {
		t.Fatalf("Set(-1) = %v, want ErrIndexOutOfRange", err)
	}
}

func TestCountSet(t *testing.T) {
	bf := New(12)
	if bf.CountSet() != 0 {
		t.Fatalf("fresh bitfield should have 0 set bits")
	}

	for _, i := range []int{0, 3, 11} {
		_ = bf.Set(i)
	}
	if got := bf.CountSet(); got != 3 {
		t.Fatalf("CountSet() = %d, want 3", got)
	}
}

func TestRoundTrip(t *testing.T) {
	numPieces := 20
	bf := New(numPieces)
	for _, i := range []int{0, 1, 5, 19} {
		_ = bf.Set(i)
	}

	raw := bf.ToBytes()
	decoded, err := FromBytes(raw, numPieces)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}

	for i := 0; i < numPieces; i++ {
		if bf.Has(i) != decoded.Has(i) {
			t.Fatalf("bit %d mismatch after round-trip", i)
		}
	}
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	if _, err := FromBytes([]byte{0x00}, 20); err != ErrBadLength {
		t.Fatalf("FromBytes with wrong length = %v, want ErrBadLength", err)
	}
}

func TestToBytesIsDefensiveCopy(t *testing.T) {
	bf := New(8)
	_ = bf.Set(0)

	raw := bf.ToBytes()
	raw[0] = 0xFF

	if bf.Has(1) {
		t.Fatalf("mutating ToBytes() output must not affect the bitfield")
	}
}

func TestMostSignificantBitFirst(t *testing.T) {
	bf := New(3)
	_ = bf.Set(0)

	raw := bf.ToBytes()
	if raw[0] != 0b10000000 {
		t.Fatalf("bit 0 should occupy the MSB, got %08b", raw[0])
	}
}
