// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import "context"

// cr2Shape selects which of the two per-macroblock loop bodies a
// Cr2Decompressor uses, chosen once at construction time. decodePhase and
// unslicePhase switch on it once per macroblock inside their loops;
// bootstrapPhase and predictPhase switch on it once, outside their loops.
type cr2Shape int

const (
	cr2Unsampled  cr2Shape = iota // <2,1,1> and <4,1,1>
	cr2Subsampled                 // <3,2,1> and <3,2,2>
)

// Cr2Decompressor reconstructs a Canon sliced lossless-JPEG predictor
// stream into a RawImage, per the four-phase algorithm in spec.md §4.4:
// decode, first-column bootstrap, row prediction, unslice.
type Cr2Decompressor struct {
	frame  *LJpegFrame
	nComp  int
	xSF    int
	ySF    int
	shape  cr2Shape
	slices []int
}

// NewCr2Decompressor validates frame's component count and per-component
// sampling factors against the four supported <N_COMP,X_S_F,Y_S_F> tuples
// and binds the Huffman tables the scan header already resolved.
func NewCr2Decompressor(frame *LJpegFrame, outCpp int, slices []int) (*Cr2Decompressor, error) {
	nComp := frame.Cps()
	if nComp != outCpp {
		return nil, decoderErr(ComponentMismatch, "NewCr2Decompressor: frame.cps != RawImage.Cpp")
	}
	if len(slices) == 0 {
		return nil, decoderErr(InvalidDimensions, "NewCr2Decompressor: no slices")
	}

	d := &Cr2Decompressor{frame: frame, nComp: nComp, slices: slices}

	switch nComp {
	case 2, 4:
		for _, ci := range frame.CompInfo {
			if ci.SuperH != 1 || ci.SuperV != 1 {
				return nil, decoderErr(UnsupportedSubsampling, "NewCr2Decompressor: unsampled variant requires 1x1 sampling")
			}
		}
		d.xSF, d.ySF, d.shape = 1, 1, cr2Unsampled
	case 3:
		c0 := frame.CompInfo[0]
		if c0.SuperH == 1 && c0.SuperV == 1 {
			for _, ci := range frame.CompInfo[1:] {
				if ci.SuperH != 1 || ci.SuperV != 1 {
					return nil, decoderErr(UnsupportedSubsampling, "NewCr2Decompressor: mixed 1x1/non-1x1 sampling")
				}
			}
			d.xSF, d.ySF, d.shape = 1, 1, cr2Unsampled
			break
		}
		if c0.SuperH != 2 || (c0.SuperV != 1 && c0.SuperV != 2) {
			return nil, decoderErr(UnsupportedSubsampling, "NewCr2Decompressor: component 0 sampling not (2,1) or (2,2)")
		}
		for _, ci := range frame.CompInfo[1:] {
			if ci.SuperH != 1 || ci.SuperV != 1 {
				return nil, decoderErr(UnsupportedSubsampling, "NewCr2Decompressor: chroma components must be 1x1")
			}
		}
		d.xSF, d.ySF, d.shape = int(c0.SuperH), int(c0.SuperV), cr2Subsampled
	default:
		return nil, decoderErr(ComponentMismatch, "NewCr2Decompressor: unsupported component count")
	}
	return d, nil
}

// Decompress runs the four phases, writing the final unsliced result into
// out. rp parallelizes phase 3 (row prediction) across disjoint row ranges;
// pass a serial RowProcessor for deterministic single-threaded decode.
func (d *Cr2Decompressor) Decompress(ctx context.Context, input *ByteStream, out *RawImage, rp *RowProcessor) error {
	frameHeight := d.frame.Height
	// Canon double-height fix: some sensors (5Ds and similar) lie about
	// frame.h in the SOF3 header for non-3-component frames.
	if d.frame.Cps() != 3 && d.frame.Width*d.frame.Cps() > 2*frameHeight {
		frameHeight *= 2
	}

	slices := d.slices
	if d.xSF == 2 && d.ySF == 1 {
		fixed := make([]int, len(slices))
		for i, s := range slices {
			fixed[i] = s * 3 / 2
		}
		slices = fixed
	}

	fullWidth := 0
	for _, s := range slices {
		fullWidth += s
	}
	fullArea := fullWidth * frameHeight
	fullArea = roundUp(fullArea, d.frame.Width)
	adjustedHeight := fullArea / d.frame.Width

	scratch, err := NewRawImage(d.frame.Width, adjustedHeight, d.nComp)
	if err != nil {
		return err
	}

	ht := [4]*HuffmanTable{}
	for i := 0; i < d.nComp; i++ {
		ht[i] = d.frame.HuffTable(d.frame.CompInfo[i].HuffTableIdx)
	}

	pump := NewBitPumpJPEG(input)
	if err := d.decodePhase(pump, ht, scratch, fullArea); err != nil {
		return err
	}
	// The pump has pulled ahead of the last byte it actually delivered bits
	// from (cache fill, or a stopped-at marker); rewind the outer cursor to
	// match so the caller picks back up at the JPEG end marker.
	if err := input.SetPosition(pump.BufferPosition()); err != nil {
		return err
	}

	d.bootstrapPhase(scratch)

	if err := d.predictPhase(ctx, scratch, rp); err != nil {
		return err
	}

	return d.unslicePhase(scratch, out, slices, frameHeight)
}

// decodePhase is phase 1: sequential entropy decode into scratch, raw diffs
// (not yet accumulated into absolute pixel values).
func (d *Cr2Decompressor) decodePhase(pump BitSource, ht [4]*HuffmanTable, scratch *RawImage, fullArea int) error {
	processed := 0
	nComp := d.nComp
	for y := 0; y < scratch.DimY && processed < fullArea; y += d.ySF {
		row := scratch.Row(y)
		for x := 0; x < d.frame.Width && processed < fullArea; x += nComp * d.xSF {
			switch d.shape {
			case cr2Unsampled:
				for i := 0; i < nComp; i++ {
					diff, err := ht[i].DecodeNext(pump)
					if err != nil {
						return err
					}
					row[x+i] = uint16(diff)
					processed++
				}
			case cr2Subsampled:
				for i := 0; i < d.ySF; i++ {
					r := scratch.Row(y + i)
					d0, err := ht[0].DecodeNext(pump)
					if err != nil {
						return err
					}
					r[x+0] = uint16(d0)
					d1, err := ht[0].DecodeNext(pump)
					if err != nil {
						return err
					}
					r[x+3] = uint16(d1)
					processed += 2
				}
				dC1, err := ht[1].DecodeNext(pump)
				if err != nil {
					return err
				}
				row[x+1] = uint16(dC1)
				dC2, err := ht[2].DecodeNext(pump)
				if err != nil {
					return err
				}
				row[x+2] = uint16(dC2)
				processed += 2
			}
		}
	}
	return nil
}

// bootstrapPhase is phase 2: a single serial pass down the first column of
// every row, turning the raw diff stored there into an absolute value
// relative to a running per-component vertical predictor. The subsampled
// shape's first macroblock spans slots {0,1,2,3}, not {0,..,nComp-1}: the
// luma predictor chains through slots 0 and 3 in sequence (one predictor
// serving both luma samples of the pair), and slots 1/2 (chroma, shared
// across the pair) are predicted once per macroblock row, never per
// sub-row. Slots 4/5 are never written; the second pixel of the pair
// borrows its chroma from the first at unslice time.
func (d *Cr2Decompressor) bootstrapPhase(scratch *RawImage) {
	initial := uint16(1) << uint(d.frame.Precision-1)
	switch d.shape {
	case cr2Unsampled:
		pred := make([]uint16, d.nComp)
		for i := range pred {
			pred[i] = initial
		}
		for y := 0; y < scratch.DimY; y++ {
			row := scratch.Row(y)
			for i := 0; i < d.nComp; i++ {
				pred[i] += row[i]
				row[i] = pred[i]
			}
		}
	case cr2Subsampled:
		pred := [3]uint16{initial, initial, initial}
		for y := 0; y+d.ySF <= scratch.DimY; y += d.ySF {
			row := scratch.Row(y)
			for i := 0; i < d.ySF; i++ {
				r := scratch.Row(y + i)
				pred[0] += r[0]
				r[0] = pred[0]
				pred[0] += r[3]
				r[3] = pred[0]
			}
			pred[1] += row[1]
			row[1] = pred[1]
			pred[2] += row[2]
			row[2] = pred[2]
		}
	}
}

// predictPhase is phase 3: per-row left-to-right accumulation, seeded from
// the absolute first-column values bootstrapPhase finalized. Row groups are
// independent and run across rp's worker pool. The subsampled shape walks
// in xStepSize macroblocks mirroring decodePhase and bootstrapPhase's slot
// pattern rather than a uniform nComp stride.
func (d *Cr2Decompressor) predictPhase(ctx context.Context, scratch *RawImage, rp *RowProcessor) error {
	switch d.shape {
	case cr2Unsampled:
		nComp := d.nComp
		width := d.frame.Width
		return rp.ProcessRows(ctx, scratch.DimY, func(start, count int) error {
			lpred := getRowScratch(nComp)[:nComp]
			defer putRowScratch(lpred)
			for y := start; y < start+count; y++ {
				row := scratch.Row(y)
				for i := 0; i < nComp; i++ {
					lpred[i] = int32(row[i])
				}
				for x := nComp; x < width; x += nComp {
					for i := 0; i < nComp; i++ {
						lpred[i] += int32(row[x+i])
						row[x+i] = uint16(lpred[i])
					}
				}
			}
			return nil
		})
	case cr2Subsampled:
		xStep := d.nComp * d.xSF
		ySF := d.ySF
		groups := (scratch.DimY + ySF - 1) / ySF
		return rp.ProcessRows(ctx, groups, func(start, count int) error {
			for g := start; g < start+count; g++ {
				y := g * ySF
				if y+ySF > scratch.DimY {
					continue
				}
				row := scratch.Row(y)
				var lpred [3]int32
				lpred[0] = int32(row[0])
				lpred[1] = int32(row[1])
				lpred[2] = int32(row[2])
				for x := xStep; x < d.frame.Width; x += xStep {
					for i := 0; i < ySF; i++ {
						r := scratch.Row(y + i)
						lpred[0] += int32(r[x+0])
						r[x+0] = uint16(lpred[0])
						lpred[0] += int32(r[x+3])
						r[x+3] = uint16(lpred[0])
					}
					lpred[1] += int32(row[x+1])
					row[x+1] = uint16(lpred[1])
					lpred[2] += int32(row[x+2])
					row[x+2] = uint16(lpred[2])
				}
			}
			return nil
		})
	}
	return nil
}

// unslicePhase is phase 4: reshapes the flat, slice-major scratch plane
// decodePhase filled into out's raster layout, following the same
// processedLineSlices bookkeeping as original_source's STEP FOUR: a running
// count of scratch rows consumed so far translates into a (srcX,y) read
// position and a (destX,destY) write position via s0 (the first slice's
// width, in the same raw-sample units as d.frame.Width) and cpp. The x loop
// inside each row then walks in xStepSize macroblocks, exactly mirroring
// decodePhase's and predictPhase's slot pattern, so source and destination
// offsets never need an extra unit conversion of their own. Stops once the
// destination column runs out (the Canon mRAW case where the slice table's
// total width times adjustedHeight exceeds the output area).
func (d *Cr2Decompressor) unslicePhase(scratch, out *RawImage, slices []int, frameHeight int) error {
	if len(slices) == 0 {
		return nil
	}
	cpp := d.nComp
	xStep := cpp * d.xSF
	s0 := slices[0]
	rowSpan := d.ySF

	processedLineSlices := 0
	for _, sliceWidth := range slices {
		for y := 0; y+rowSpan <= scratch.DimY; y += rowSpan {
			srcX := processedLineSlices / frameHeight * s0 / cpp
			if srcX >= scratch.DimX {
				break
			}
			destY := processedLineSlices % out.DimY
			destX := processedLineSlices / out.DimY * s0 / cpp
			if destX >= out.DimX || destY+rowSpan > out.DimY {
				break
			}
			srcOff := srcX * cpp
			dstOff := destX * cpp

			for x := 0; x < sliceWidth; x += xStep {
				srcRow0 := scratch.Row(y)
				dstRow0 := out.Row(destY)
				if srcOff+x+xStep > len(srcRow0) || dstOff+x+xStep > len(dstRow0) {
					return decoderErr(MalformedStripe, "Cr2Decompressor.unslicePhase: scratch exhausted")
				}
				switch d.shape {
				case cr2Unsampled:
					copy(dstRow0[dstOff+x:dstOff+x+cpp], srcRow0[srcOff+x:srcOff+x+cpp])
				case cr2Subsampled:
					for i := 0; i < rowSpan; i++ {
						srcRow := scratch.Row(y + i)
						dstRow := out.Row(destY + i)
						dstRow[dstOff+x+0] = srcRow[srcOff+x+0]
						dstRow[dstOff+x+3] = srcRow[srcOff+x+3]
					}
					dstRow0[dstOff+x+1] = srcRow0[srcOff+x+1]
					dstRow0[dstOff+x+2] = srcRow0[srcOff+x+2]
				}
			}
			processedLineSlices += rowSpan
		}
	}
	return nil
}
