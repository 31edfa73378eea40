package rawcore

import (
	"context"
	"errors"
	"testing"
)

func buildZeroDiffHuffmanTable(t *testing.T) *HuffmanTable {
	t.Helper()
	var counts [huffmanMaxCodeLen]uint8
	counts[0] = 1
	table, err := NewHuffmanTable(counts, []uint8{0})
	if err != nil {
		t.Fatalf("NewHuffmanTable: %v", err)
	}
	return table
}

func frameWithSampling(comps ...CompInfo) *LJpegFrame {
	return &LJpegFrame{Width: 8, Height: 8, Precision: 8, CompInfo: comps}
}

func TestNewCr2DecompressorAcceptsUnsampledVariants(t *testing.T) {
	for _, n := range []int{2, 4} {
		comps := make([]CompInfo, n)
		for i := range comps {
			comps[i] = CompInfo{ID: uint8(i), SuperH: 1, SuperV: 1}
		}
		frame := frameWithSampling(comps...)
		if _, err := NewCr2Decompressor(frame, n, []int{8}); err != nil {
			t.Errorf("nComp=%d: NewCr2Decompressor: %v", n, err)
		}
	}
}

func TestNewCr2DecompressorAcceptsSubsampledVariants(t *testing.T) {
	cases := []uint8{1, 2}
	for _, superV := range cases {
		comps := []CompInfo{
			{ID: 0, SuperH: 2, SuperV: superV},
			{ID: 1, SuperH: 1, SuperV: 1},
			{ID: 2, SuperH: 1, SuperV: 1},
		}
		frame := frameWithSampling(comps...)
		dec, err := NewCr2Decompressor(frame, 3, []int{8})
		if err != nil {
			t.Fatalf("superV=%d: NewCr2Decompressor: %v", superV, err)
		}
		if dec.shape != cr2Subsampled {
			t.Errorf("superV=%d: shape = %v, want cr2Subsampled", superV, dec.shape)
		}
	}
}

func TestNewCr2DecompressorRejectsComponentMismatch(t *testing.T) {
	frame := frameWithSampling(CompInfo{ID: 0, SuperH: 1, SuperV: 1}, CompInfo{ID: 1, SuperH: 1, SuperV: 1})
	_, err := NewCr2Decompressor(frame, 3, []int{8})
	var decErr *RawDecoderError
	if !errors.As(err, &decErr) || decErr.Kind != ComponentMismatch {
		t.Fatalf("outCpp mismatch = %v, want ComponentMismatch", err)
	}
}

func TestNewCr2DecompressorRejectsBadChromaSampling(t *testing.T) {
	comps := []CompInfo{
		{ID: 0, SuperH: 2, SuperV: 1},
		{ID: 1, SuperH: 2, SuperV: 1}, // chroma must be 1x1
		{ID: 2, SuperH: 1, SuperV: 1},
	}
	frame := frameWithSampling(comps...)
	_, err := NewCr2Decompressor(frame, 3, []int{8})
	var decErr *RawDecoderError
	if !errors.As(err, &decErr) || decErr.Kind != UnsupportedSubsampling {
		t.Fatalf("bad chroma sampling = %v, want UnsupportedSubsampling", err)
	}
}

func TestNewCr2DecompressorRejectsNoSlices(t *testing.T) {
	frame := frameWithSampling(CompInfo{ID: 0, SuperH: 1, SuperV: 1}, CompInfo{ID: 1, SuperH: 1, SuperV: 1})
	_, err := NewCr2Decompressor(frame, 2, nil)
	var decErr *RawDecoderError
	if !errors.As(err, &decErr) || decErr.Kind != InvalidDimensions {
		t.Fatalf("no slices = %v, want InvalidDimensions", err)
	}
}

func TestCr2BootstrapPhaseAccumulatesFirstColumn(t *testing.T) {
	d := &Cr2Decompressor{frame: &LJpegFrame{Precision: 8}, nComp: 2}
	scratch, err := NewRawImage(4, 3, 2)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	rows := [][2]uint16{{5, 3}, {2, 4}, {1, 1}}
	for y, r := range rows {
		row := scratch.Row(y)
		row[0], row[1] = r[0], r[1]
	}

	d.bootstrapPhase(scratch)

	want := [][2]uint16{{133, 131}, {135, 135}, {136, 136}}
	for y, w := range want {
		row := scratch.Row(y)
		if row[0] != w[0] || row[1] != w[1] {
			t.Errorf("row %d = [%d,%d], want [%d,%d]", y, row[0], row[1], w[0], w[1])
		}
	}
}

func TestCr2PredictPhaseAccumulatesAlongRow(t *testing.T) {
	d := &Cr2Decompressor{frame: &LJpegFrame{Width: 6}, nComp: 2}
	scratch, err := NewRawImage(3, 1, 2)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	row := scratch.Row(0)
	copy(row, []uint16{100, 200, 3, 4, 2, 1})

	rp := NewRowProcessor(1, true)
	if err := d.predictPhase(context.Background(), scratch, rp); err != nil {
		t.Fatalf("predictPhase: %v", err)
	}

	want := []uint16{100, 200, 103, 204, 105, 205}
	for i, w := range want {
		if row[i] != w {
			t.Errorf("row[%d] = %d, want %d", i, row[i], w)
		}
	}
}

func TestCr2BootstrapPhaseSubsampledChainsLumaThroughSlots0And3(t *testing.T) {
	d := &Cr2Decompressor{frame: &LJpegFrame{Precision: 8}, nComp: 3, ySF: 1, shape: cr2Subsampled}
	scratch, err := NewRawImage(2, 3, 3)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	copy(scratch.Row(0), []uint16{5, 3, 2, 4, 0, 0})
	copy(scratch.Row(1), []uint16{1, 1, 1, 1, 0, 0})
	copy(scratch.Row(2), []uint16{0, 0, 0, 0, 0, 0})

	d.bootstrapPhase(scratch)

	want := [][4]uint16{{133, 131, 130, 137}, {138, 132, 131, 139}, {139, 132, 131, 139}}
	for y, w := range want {
		row := scratch.Row(y)
		if row[0] != w[0] || row[1] != w[1] || row[2] != w[2] || row[3] != w[3] {
			t.Errorf("row %d = [%d,%d,%d,%d], want %v", y, row[0], row[1], row[2], row[3], w)
		}
	}
}

func TestCr2PredictPhaseSubsampledWalksMacroblockSlots(t *testing.T) {
	d := &Cr2Decompressor{frame: &LJpegFrame{Width: 12}, nComp: 3, xSF: 2, ySF: 1, shape: cr2Subsampled}
	scratch, err := NewRawImage(4, 1, 3)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	row := scratch.Row(0)
	copy(row, []uint16{100, 50, 60, 110, 0, 0, 5, 2, 3, 7, 0, 0})

	rp := NewRowProcessor(1, true)
	if err := d.predictPhase(context.Background(), scratch, rp); err != nil {
		t.Fatalf("predictPhase: %v", err)
	}

	want := []uint16{100, 50, 60, 110, 0, 0, 105, 52, 63, 112, 0, 0}
	for i, w := range want {
		if row[i] != w {
			t.Errorf("row[%d] = %d, want %d", i, row[i], w)
		}
	}
}

func TestCr2UnslicePhaseWalksSliceMajorScratchIntoRasterOrder(t *testing.T) {
	d := &Cr2Decompressor{frame: &LJpegFrame{Width: 4}, nComp: 1, xSF: 1, ySF: 1, shape: cr2Unsampled}
	scratch, err := NewRawImage(4, 2, 1)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	copy(scratch.Row(0), []uint16{1, 2, 3, 4})
	copy(scratch.Row(1), []uint16{5, 6, 7, 8})

	out, err := NewRawImage(4, 2, 1)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}

	if err := d.unslicePhase(scratch, out, []int{2, 2}, 2); err != nil {
		t.Fatalf("unslicePhase: %v", err)
	}

	wantRow0 := []uint16{1, 2, 3, 4}
	wantRow1 := []uint16{5, 6, 7, 8}
	for i := range wantRow0 {
		if out.Row(0)[i] != wantRow0[i] {
			t.Errorf("out.Row(0)[%d] = %d, want %d", i, out.Row(0)[i], wantRow0[i])
		}
		if out.Row(1)[i] != wantRow1[i] {
			t.Errorf("out.Row(1)[%d] = %d, want %d", i, out.Row(1)[i], wantRow1[i])
		}
	}
}

// TestCr2UnslicePhaseCppScalingMatchesDecodePhase exercises the cpp>1 case
// the previous test can't: it copies whole pixel groups, not raw samples,
// so an off-by-cpp error in the index scaling would land in the padding
// past d.frame.Width instead of the next real pixel group.
func TestCr2UnslicePhaseCppScalingMatchesDecodePhase(t *testing.T) {
	d := &Cr2Decompressor{frame: &LJpegFrame{Width: 4}, nComp: 2, xSF: 1, ySF: 1, shape: cr2Unsampled}
	scratch, err := NewRawImage(4, 1, 2)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}
	copy(scratch.Row(0), []uint16{10, 11, 20, 21})

	out, err := NewRawImage(2, 1, 2)
	if err != nil {
		t.Fatalf("NewRawImage: %v", err)
	}

	if err := d.unslicePhase(scratch, out, []int{4}, 1); err != nil {
		t.Fatalf("unslicePhase: %v", err)
	}

	want := []uint16{10, 11, 20, 21}
	row := out.Row(0)
	for i, w := range want {
		if row[i] != w {
			t.Errorf("out.Row(0)[%d] = %d, want %d", i, row[i], w)
		}
	}
}

// TestCr2DecompressUnsampledZeroDiffsHoldInitialPredictor runs Decompress
// end to end for both unsampled tuples (nComp 2 and 4) against an
// all-zero-length Huffman table, so every decoded difference is zero and
// every output sample must equal the phase-2 bootstrap value
// 1<<(precision-1). This exercises decodePhase's entropy loop together with
// predictPhase and unslicePhase, which per-phase unit tests never do.
func TestCr2DecompressUnsampledZeroDiffsHoldInitialPredictor(t *testing.T) {
	cases := []struct {
		nComp, width, height int
	}{
		{nComp: 2, width: 4, height: 4},
		{nComp: 4, width: 4, height: 8},
	}
	for _, c := range cases {
		table := buildZeroDiffHuffmanTable(t)
		comps := make([]CompInfo, c.nComp)
		for i := range comps {
			comps[i] = CompInfo{ID: uint8(i), SuperH: 1, SuperV: 1, HuffTableIdx: 0}
		}
		frame := &LJpegFrame{Width: c.width, Height: c.height, Precision: 8, CompInfo: comps}
		frame.huffTables[0] = table

		dec, err := NewCr2Decompressor(frame, c.nComp, []int{c.width})
		if err != nil {
			t.Fatalf("nComp=%d: NewCr2Decompressor: %v", c.nComp, err)
		}

		out, err := NewRawImage(c.width/c.nComp, c.height, c.nComp)
		if err != nil {
			t.Fatalf("nComp=%d: NewRawImage: %v", c.nComp, err)
		}

		buf := BorrowBuffer(make([]byte, 16))
		input := NewByteStream(buf, BigEndian)
		rp := NewRowProcessor(1, true)
		if err := dec.Decompress(context.Background(), input, out, rp); err != nil {
			t.Fatalf("nComp=%d: Decompress: %v", c.nComp, err)
		}

		want := uint16(1) << 7
		for y := 0; y < out.DimY; y++ {
			row := out.Row(y)
			for i, v := range row {
				if v != want {
					t.Errorf("nComp=%d: row %d[%d] = %d, want %d", c.nComp, y, i, v, want)
				}
			}
		}
	}
}
