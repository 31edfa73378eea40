// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import "context"

// NikonDecompressor decodes Nikon's lossy/lossless NEF codec: a single
// Huffman table over per-pixel differentials, predicted against the left
// neighbor (or the pixel above, at the start of a row), optionally passed
// through a linearisation curve. Nikon picks its Huffman tree from a small
// vendor-defined preset set keyed by a metadata byte (NikonDecompressor.h's
// nikon_tree); this package takes the resolved HuffmanTable as a
// constructor argument rather than embedding the vendor preset tables,
// consistent with how camera-model metadata is treated as an external
// collaborator elsewhere in this package.
type NikonDecompressor struct {
	table   *HuffmanTable
	width   int
	height  int
	bitsPS  int
	curve   []uint16
	curveW  int
	rngSeed uint32
}

// NewNikonDecompressor wraps a resolved Huffman table for a width x height
// plane of bitsPS-bit samples. curve is an optional linearisation table;
// curveWidth is the number of leading curve entries considered non-identity
// (samples beyond it pass through setWithLookUp unchanged since curve has
// no further mapping to apply). rngSeed seeds the per-row dither state.
func NewNikonDecompressor(table *HuffmanTable, width, height, bitsPS int, curve []uint16, curveWidth int, rngSeed uint32) *NikonDecompressor {
	return &NikonDecompressor{table: table, width: width, height: height, bitsPS: bitsPS, curve: curve, curveW: curveWidth, rngSeed: rngSeed}
}

// Decompress writes width*height samples into out, one Huffman-coded
// differential per pixel, predicted left-to-right with a top-of-row
// fallback to the pixel above. Entropy decode and prediction run as one
// serial pass, since column 0 of each row predicts from the row above;
// only the optional curve/dither pass is fanned out across rp.
func (d *NikonDecompressor) Decompress(ctx context.Context, src *ByteStream, out *RawImage, rp *RowProcessor) error {
	if out.DimX != d.width || out.DimY != d.height {
		return decoderErr(ComponentMismatch, "NikonDecompressor.Decompress: RawImage dimensions mismatch")
	}

	pump := NewBitPumpMSB32(src)
	initial := uint16(1) << uint(d.bitsPS-1)

	for row := 0; row < d.height; row++ {
		for col := 0; col < d.width; col++ {
			diff, err := d.table.DecodeNext(pump)
			if err != nil {
				return err
			}
			var base uint16
			switch {
			case row == 0 && col == 0:
				base = initial
			case col == 0:
				base = out.At2D(row-1, 0)
			default:
				base = out.At2D(row, col-1)
			}
			out.SetAt2D(row, col, uint16(int32(base)+diff))
		}
	}

	if d.curve == nil {
		return nil
	}
	return rp.ProcessRows(ctx, d.height, func(start, count int) error {
		for y := start; y < start+count; y++ {
			rng := newXorshiftRNG(d.rngSeed + uint32(y))
			row := out.Row(y)
			for x := range row {
				if int(row[x]) >= d.curveW {
					continue
				}
				row[x] = setWithLookUp(row[x], d.curve, rng)
			}
		}
		return nil
	})
}
