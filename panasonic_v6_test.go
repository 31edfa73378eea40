package rawcore

import (
	"context"
	"testing"
)

// zeroBitSource is a BitSource stub that always yields 0 bits, used to
// drive decodePanasonicBlock through spec.md §8 scenario S4 without
// constructing a real bit-packed fixture by hand.
type zeroBitSource struct{}

func (zeroBitSource) Fill(n int) error              { return nil }
func (zeroBitSource) GetBits(n int) (uint32, error)  { return 0, nil }
func (zeroBitSource) PeekBits(n int) (uint32, error) { return 0, nil }
func (zeroBitSource) BufferPosition() int            { return 0 }

// TestS4PanasonicV6SingleBlock is spec.md §8 scenario S4: pix_base=0,
// pmul=1, all differentials zero produces 11 pixels of 0xFFF1.
func TestS4PanasonicV6SingleBlock(t *testing.T) {
	var out [11]uint16
	st := &panasonicRowState{}
	if err := decodePanasonicBlock(zeroBitSource{}, st, out[:]); err != nil {
		t.Fatalf("decodePanasonicBlock: %v", err)
	}
	for i, v := range out {
		if v != 0xFFF1 {
			t.Errorf("out[%d] = %#x, want 0xFFF1", i, v)
		}
	}
}

// TestPanasonicV6BlockIndependenceLaw is spec.md §8 law 7: decoding a block
// depends only on that block's own bits and a fresh row state, not on
// whatever came before it.
func TestPanasonicV6BlockIndependenceLaw(t *testing.T) {
	var a, b [11]uint16
	if err := decodePanasonicBlock(zeroBitSource{}, &panasonicRowState{}, a[:]); err != nil {
		t.Fatalf("decodePanasonicBlock a: %v", err)
	}
	if err := decodePanasonicBlock(zeroBitSource{}, &panasonicRowState{}, b[:]); err != nil {
		t.Fatalf("decodePanasonicBlock b: %v", err)
	}
	if a != b {
		t.Fatalf("identical input with fresh state produced different blocks: %v vs %v", a, b)
	}
}

func TestReversePanasonicBlockWordOrder(t *testing.T) {
	block := []byte{
		0x00, 0x00, 0x00, 0x01, // word0 LE
		0x00, 0x00, 0x00, 0x02, // word1 LE
		0x00, 0x00, 0x00, 0x03, // word2 LE
		0x00, 0x00, 0x00, 0x04, // word3 LE
	}
	got := reversePanasonicBlock(block)
	// word0 (LE 0x01000000) lands BE in the last 4 bytes; word3 (LE
	// 0x04000000) lands BE in the first 4 bytes.
	want := [16]byte{
		0x04, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
	}
	if got != want {
		t.Fatalf("reversePanasonicBlock() = %v, want %v", got, want)
	}
}

func TestPanasonicDecompressorV6RejectsBadWidth(t *testing.T) {
	buf := NewBuffer(16)
	dec := NewPanasonicDecompressorV6(buf)
	out, err := NewRawImage(10, 1, 1) // not a multiple of 11
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	rp := NewRowProcessor(1, true)
	if err := dec.Decompress(context.Background(), out, rp); err == nil {
		t.Fatal("Decompress with width not a multiple of 11 succeeded, want an error")
	}
}

func TestPanasonicDecompressorV6RejectsTruncatedStream(t *testing.T) {
	buf := NewBuffer(8) // too short for one 11x1 row (16 bytes needed)
	dec := NewPanasonicDecompressorV6(buf)
	out, err := NewRawImage(11, 1, 1)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	rp := NewRowProcessor(1, true)
	if err := dec.Decompress(context.Background(), out, rp); err == nil {
		t.Fatal("Decompress with a truncated block stream succeeded, want an error")
	}
}

// TestPanasonicDecompressorV6DecodesRealBlockContent drives Decompress end
// to end over a genuine 16-byte block (not zeroBitSource, which returns 0
// for every GetBits call regardless of width and so can't catch a block
// model that reads more bits than the block holds). Byte 14 and 15 are
// nonzero; every earlier byte is zero, so wbuffer(0)=block[15]=0xFF and
// wbuffer(1)=block[14]=0xFC form pixelbuffer[0]'s top 14 bits and every
// other field decodes from zero bytes.
func TestPanasonicDecompressorV6DecodesRealBlockContent(t *testing.T) {
	block := []byte{
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0xFC, 0xFF,
	}
	buf := BorrowBuffer(block)
	dec := NewPanasonicDecompressorV6(buf)
	out, err := NewRawImage(11, 1, 1)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	rp := NewRowProcessor(1, true)
	if err := dec.Decompress(context.Background(), out, rp); err != nil {
		t.Fatalf("Decompress: %v", err)
	}

	want := []uint16{16368, 0xFFF1, 15856, 0xFFF1, 15344, 0xFFF1, 14832, 0xFFF1, 14320, 0xFFF1, 13808}
	row := out.Row(0)
	for i, w := range want {
		if row[i] != w {
			t.Errorf("row[%d] = %d, want %d", i, row[i], w)
		}
	}
}
