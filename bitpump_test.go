package rawcore

import "testing"

// TestS2SignExtendTable is spec.md §8 scenario S2.
func TestS2SignExtendTable(t *testing.T) {
	cases := []struct {
		diff uint32
		len  int
		want int32
	}{
		{0b00, 2, -3},
		{0b01, 2, -2},
		{0b10, 2, 2},
		{0b11, 2, 3},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := SignExtended(c.diff, c.len); got != c.want {
			t.Errorf("SignExtended(%#b, %d) = %d, want %d", c.diff, c.len, got, c.want)
		}
	}
}

// TestSignExtendRoundTripLaw is spec.md §8 law 5: the top-bit cases
// round-trip across every field width.
func TestSignExtendRoundTripLaw(t *testing.T) {
	for length := 1; length <= 16; length++ {
		max := uint32(1)<<uint(length) - 1
		if got := SignExtended(0, length); got != -int32(max) {
			t.Errorf("len=%d: SignExtended(0,len) = %d, want %d", length, got, -int32(max))
		}
		if got := SignExtended(max, length); got != int32(max) {
			t.Errorf("len=%d: SignExtended(max,len) = %d, want %d", length, got, max)
		}
		if got := SignExtended(1<<uint(length), length); got != 1 {
			t.Errorf("len=%d: SignExtended(1<<len,len) = %d, want 1", length, got)
		}
	}
}

// TestS6JPEGEscape is spec.md §8 scenario S6: FF 00 collapses to a single
// data byte 0xFF, and a subsequent FF D9 stops the pump with bufferPosition
// left at the marker's leading FF.
func TestS6JPEGEscape(t *testing.T) {
	buf := BorrowBuffer([]byte{0xFF, 0x00, 0xAB, 0xFF, 0xD9})
	s := NewByteStream(buf, BigEndian)
	pump := NewBitPumpJPEG(s)

	v, err := pump.GetBits(16)
	if err != nil {
		t.Fatalf("GetBits(16): %v", err)
	}
	if v != 0xFFAB {
		t.Fatalf("GetBits(16) = %#x, want 0xFFAB", v)
	}
	if pos := pump.BufferPosition(); pos != 3 {
		t.Fatalf("BufferPosition() = %d, want 3 (index of the terminating FF)", pos)
	}
}

func TestBitPumpJPEGFastPathNoEscape(t *testing.T) {
	buf := BorrowBuffer([]byte{0x12, 0x34, 0x56, 0x78})
	pump := NewBitPumpJPEG(NewByteStream(buf, BigEndian))
	v, err := pump.GetBits(32)
	if err != nil {
		t.Fatalf("GetBits(32): %v", err)
	}
	if v != 0x12345678 {
		t.Fatalf("GetBits(32) = %#x, want 0x12345678", v)
	}
}

func TestBitPumpMSB32RoundTrip(t *testing.T) {
	buf := BorrowBuffer([]byte{0xF0, 0x0F, 0xAA, 0x55})
	pump := NewBitPumpMSB32(NewByteStream(buf, BigEndian))
	a, err := pump.GetBits(4)
	if err != nil {
		t.Fatalf("GetBits(4): %v", err)
	}
	if a != 0xF {
		t.Fatalf("first nibble = %#x, want 0xF", a)
	}
	b, err := pump.GetBits(4)
	if err != nil {
		t.Fatalf("GetBits(4): %v", err)
	}
	if b != 0x0 {
		t.Fatalf("second nibble = %#x, want 0x0", b)
	}
}

func TestBitPumpLSBUsesLittleEndianRefill(t *testing.T) {
	buf := BorrowBuffer([]byte{0x01, 0x02, 0x03, 0x04})
	pump := NewBitPumpLSB(NewByteStream(buf, BigEndian))
	v, err := pump.GetBits(32)
	if err != nil {
		t.Fatalf("GetBits(32): %v", err)
	}
	if v != 0x04030201 {
		t.Fatalf("GetBits(32) = %#x, want 0x04030201", v)
	}
}

func TestBitPumpPeekIsNonDestructive(t *testing.T) {
	buf := BorrowBuffer([]byte{0xAB, 0xCD, 0xEF, 0x01})
	pump := NewBitPumpMSB32(NewByteStream(buf, BigEndian))
	a, err := pump.PeekBits(8)
	if err != nil {
		t.Fatalf("PeekBits(8): %v", err)
	}
	b, err := pump.PeekBits(8)
	if err != nil {
		t.Fatalf("PeekBits(8) again: %v", err)
	}
	if a != b || a != 0xAB {
		t.Fatalf("PeekBits not idempotent: %#x then %#x, want 0xAB both times", a, b)
	}
	got, _ := pump.GetBits(8)
	if got != 0xAB {
		t.Fatalf("GetBits(8) after peeks = %#x, want 0xAB", got)
	}
}

func TestBitPumpGetBitsPastEndOfStreamFails(t *testing.T) {
	buf := BorrowBuffer([]byte{0x01})
	pump := NewBitPumpMSB32(NewByteStream(buf, BigEndian))
	if _, err := pump.GetBits(32); err == nil {
		t.Fatal("GetBits(32) on a 1-byte stream succeeded, want an error")
	}
}
