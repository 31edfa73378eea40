// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import (
	"context"
	"encoding/binary"
)

const (
	panasonicV6BlockPixels = 11
	panasonicV6BlockBytes  = 16
)

// PanasonicDecompressorV6 decodes the Panasonic RW2 V6 block stream: fixed
// 11-pixel, 16-byte blocks, each independently decodable after a per-block
// byte reversal. Each block packs 14 fields (widths 14,14,2,10,10,10,2,10,
// 10,10,2,10,10,10 - 124 of the block's 128 bits): one 14- or 10-bit
// sample field per output pixel, plus a 2-bit exponent field ahead of
// pixels 2, 5 and 8.
type PanasonicDecompressorV6 struct {
	buf *Buffer
}

// NewPanasonicDecompressorV6 wraps the raw block stream. buf's size must be
// a multiple of panasonicV6BlockBytes.
func NewPanasonicDecompressorV6(buf *Buffer) *PanasonicDecompressorV6 {
	return &PanasonicDecompressorV6{buf: buf}
}

// reversePanasonicBlock splits a 16-byte block into four little-endian
// 32-bit words and writes them back out big-endian and tail-first: word 0
// ends up in the last 4 bytes of the result, word 3 in the first 4. This
// converts the block's native little-endian packing into the sequential,
// most-significant-first order BitPumpPanasonicV6 expects.
func reversePanasonicBlock(block []byte) [panasonicV6BlockBytes]byte {
	var out [panasonicV6BlockBytes]byte
	for i := 0; i < 4; i++ {
		w := binary.LittleEndian.Uint32(block[i*4 : i*4+4])
		binary.BigEndian.PutUint32(out[(3-i)*4:(3-i)*4+4], w)
	}
	return out
}

// panasonicRowState is the decode state of one 11-pixel block: which of the
// two interleaved streams has been primed, the last nonzero value seen on
// each, and the current exponent. Decompress gives every block a fresh
// state, so nothing carries over from one block to the next.
type panasonicRowState struct {
	oddeven   [2]uint32
	nonzero   [2]uint32
	pmul      uint32
	pixelBase uint32
}

func decodePanasonicBlock(pump BitSource, st *panasonicRowState, out []uint16) error {
	for pix := 0; pix < panasonicV6BlockPixels; pix++ {
		if pix%3 == 2 {
			base, err := pump.GetBits(2)
			if err != nil {
				return err
			}
			if base == 3 {
				base = 4
			}
			st.pixelBase = 0x200 << base
			st.pmul = 1 << base
		}

		nbits := 10
		if pix < 2 {
			nbits = 14
		}
		epixel, err := pump.GetBits(nbits)
		if err != nil {
			return err
		}

		k := pix % 2
		if st.oddeven[k] != 0 {
			epixel *= st.pmul
			if st.pixelBase < 0x2000 && st.nonzero[k] > st.pixelBase {
				epixel += st.nonzero[k] - st.pixelBase
			}
			st.nonzero[k] = epixel
		} else {
			st.oddeven[k] = epixel
			if epixel != 0 {
				st.nonzero[k] = epixel
			} else {
				epixel = st.nonzero[k]
			}
		}

		spix := int64(epixel) - 15
		if spix <= 0xFFFF {
			out[pix] = uint16(spix & 0xFFFF)
		} else {
			out[pix] = uint16(((epixel + 0x7FFFFFF1) >> 31) & 0x3FFF)
		}
	}
	return nil
}

// Decompress writes dim.x*dim.y pixels into out. dim.x must be a positive
// multiple of panasonicV6BlockPixels (11). Rows decode independently and
// are fanned out across rp's worker pool; ordering within a row is strict.
func (d *PanasonicDecompressorV6) Decompress(ctx context.Context, out *RawImage, rp *RowProcessor) error {
	if out.DimX <= 0 || out.DimX%panasonicV6BlockPixels != 0 {
		return decoderErr(InvalidDimensions, "PanasonicDecompressorV6.Decompress: width not a positive multiple of 11")
	}
	blocksPerRow := out.DimX / panasonicV6BlockPixels
	bytesPerRow := blocksPerRow * panasonicV6BlockBytes
	if d.buf.Size() < bytesPerRow*out.DimY {
		return ioErr(EndOfStream, "PanasonicDecompressorV6.Decompress: truncated block stream")
	}

	return rp.ProcessRows(ctx, out.DimY, func(start, count int) error {
		for y := start; y < start+count; y++ {
			rowBuf, err := d.buf.SubView(y*bytesPerRow, bytesPerRow)
			if err != nil {
				return err
			}
			rowStream := NewByteStream(rowBuf, BigEndian)
			// Decode into a pooled scratch row rather than out.Row(y)
			// directly: a block decode error must not leave a partially
			// written row visible in the shared output plane.
			scratch := getU16Row(out.DimX)
			for b := 0; b < blocksPerRow; b++ {
				raw, err := rowStream.GetBytes(panasonicV6BlockBytes)
				if err != nil {
					putU16Row(scratch)
					return err
				}
				reversed := reversePanasonicBlock(raw)
				blockBuf := BorrowBuffer(reversed[:])
				pump := NewBitPumpPanasonicV6(NewByteStream(blockBuf, BigEndian))
				if err := decodePanasonicBlock(pump, &panasonicRowState{}, scratch[b*panasonicV6BlockPixels:(b+1)*panasonicV6BlockPixels]); err != nil {
					putU16Row(scratch)
					return err
				}
			}
			copy(out.Row(y), scratch)
			putU16Row(scratch)
		}
		return nil
	})
}
