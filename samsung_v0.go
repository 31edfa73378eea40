// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import "context"

// samsungV0MinWidth/MaxWidth/MinHeight/MaxHeight bound the dimensions a
// stripe table is trusted to describe, ahead of ever touching bso/bsr:
// SamsungV0Decompressor.cpp rejects anything outside this range before
// computeStripes runs.
const (
	samsungV0MinWidth  = 16
	samsungV0MaxWidth  = 5546
	samsungV0MinHeight = 1
	samsungV0MaxHeight = 3714
)

// samsungV0OutOrder is the fixed even-then-odd -> interleaved remap spec.md
// §4.6 step 4 describes: raw index i lands at samsungV0OutOrder[i].
var samsungV0OutOrder = [16]int{0, 2, 4, 6, 8, 10, 12, 14, 1, 3, 5, 7, 9, 11, 13, 15}

// SamsungV0Decompressor decodes the Samsung SRW V0 per-row stripe codec:
// an external row offset table (bso) into a contiguous compressed byte
// range (bsr), per spec.md §4.6.
type SamsungV0Decompressor struct {
	bso    []uint32
	bsr    *Buffer
	width  int
	height int
}

// NewSamsungV0Decompressor validates the dimension bounds and the stripe
// offset table (strictly increasing, one entry per row) before returning a
// usable decompressor.
func NewSamsungV0Decompressor(bso []uint32, bsr *Buffer, width, height int) (*SamsungV0Decompressor, error) {
	if width < samsungV0MinWidth || width > samsungV0MaxWidth || width%2 != 0 ||
		height < samsungV0MinHeight || height > samsungV0MaxHeight {
		return nil, decoderErr(InvalidDimensions, "NewSamsungV0Decompressor: dimensions out of range")
	}
	if len(bso) != height {
		return nil, decoderErr(InvalidDimensions, "NewSamsungV0Decompressor: bso length != height")
	}
	prev := uint32(0)
	for i, off := range bso {
		if i > 0 && off <= prev {
			return nil, decoderErr(MalformedStripe, "NewSamsungV0Decompressor: bso not strictly increasing")
		}
		if int(off) > bsr.Size() {
			return nil, decoderErr(MalformedStripe, "NewSamsungV0Decompressor: bso offset past end of bsr")
		}
		prev = off
	}
	return &SamsungV0Decompressor{bso: bso, bsr: bsr, width: width, height: height}, nil
}

func (d *SamsungV0Decompressor) rowExtent(row int) (start, end int) {
	start = int(d.bso[row])
	if row+1 < len(d.bso) {
		end = int(d.bso[row+1])
	} else {
		end = d.bsr.Size()
	}
	return start, end
}

// Decompress writes width*height pixels into out. Row decode is strictly
// sequential: dir=1 blocks (§4.6 step 5, "Upward") read already-decoded
// samples from the row above, so rows are not actually independent despite
// spec.md §5's general "arbitrary order" claim for this codec. rp is used
// only for the final CFA-restoring swap pass, which has no such carry.
func (d *SamsungV0Decompressor) Decompress(ctx context.Context, out *RawImage, rp *RowProcessor) error {
	if out.DimX != d.width || out.DimY != d.height {
		return decoderErr(ComponentMismatch, "SamsungV0Decompressor.Decompress: RawImage dimensions mismatch")
	}

	for row := 0; row < d.height; row++ {
		start, end := d.rowExtent(row)
		view, err := d.bsr.SubView(start, end-start)
		if err != nil {
			return err
		}
		pump := NewBitPumpMSB32(NewByteStream(view, BigEndian))

		length := [4]int{7, 7, 7, 7}
		if row >= 2 {
			length = [4]int{4, 4, 4, 4}
		}

		for col := 0; col < d.width; col += 16 {
			if err := d.decodeBlock(pump, out, row, col, &length); err != nil {
				return err
			}
		}
	}

	return d.swapCFAPass(ctx, out, rp)
}

func (d *SamsungV0Decompressor) decodeBlock(pump BitSource, out *RawImage, row, col int, length *[4]int) error {
	dir, err := pump.GetBits(1)
	if err != nil {
		return err
	}

	for i := 0; i < 4; i++ {
		op, err := pump.GetBits(2)
		if err != nil {
			return err
		}
		switch op {
		case 3:
			n, err := pump.GetBits(4)
			if err != nil {
				return err
			}
			length[i] = int(n)
		case 2:
			length[i]--
		case 1:
			length[i]++
		}
		if length[i] < 0 || length[i] > 16 {
			return decoderErr(MalformedStripe, "SamsungV0Decompressor.decodeBlock: length out of [0,16]")
		}
	}

	var raw [16]int32
	for i := 0; i < 16; i++ {
		bits, err := pump.GetBits(length[i>>2])
		if err != nil {
			return err
		}
		raw[i] = SignExtended(bits, length[i>>2])
	}

	var diff [16]int32
	for i, o := range samsungV0OutOrder {
		diff[o] = raw[i]
	}

	if dir == 1 {
		if row < 2 || col+16 >= d.width {
			return decoderErr(InvalidPrediction, "SamsungV0Decompressor.decodeBlock: upward prediction out of range")
		}
		for c := 0; c < 16; c++ {
			baseline := int32(out.At2D(row-1-(c&1), col+c))
			out.SetAt2D(row, col+c, uint16(baseline+diff[c]))
		}
		return nil
	}

	var pred [2]int32
	if col > 0 {
		pred[0] = int32(out.At2D(row, col-2))
		pred[1] = int32(out.At2D(row, col-1))
	} else {
		pred[0], pred[1] = 128, 128
	}
	count := d.width - col
	if count > 16 {
		count = 16
	}
	if count%2 != 0 {
		return decoderErr(MalformedStripe, "SamsungV0Decompressor.decodeBlock: odd tail width")
	}
	for c := 0; c < count; c++ {
		out.SetAt2D(row, col+c, uint16(pred[c%2]+diff[c]))
	}
	return nil
}

// swapCFAPass restores Bayer order: the per-row codec above interleaves
// two independent streams that land one column and one row off from the
// true CFA grid. Row pairs (r, r+1) are swapped together, so this runs as
// a single serial pass rather than through rp's row-range batching.
func (d *SamsungV0Decompressor) swapCFAPass(ctx context.Context, out *RawImage, rp *RowProcessor) error {
	for r := 0; r+1 < d.height; r += 2 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for c := 0; c+1 < d.width; c += 2 {
			a := out.At2D(r, c+1)
			b := out.At2D(r+1, c)
			out.SetAt2D(r, c+1, b)
			out.SetAt2D(r+1, c, a)
		}
	}
	return nil
}
