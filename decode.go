// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import "context"

// FormatKind selects which vendor decompressor a RawVariant carries state
// for.
type FormatKind int

const (
	FormatCr2 FormatKind = iota
	FormatCr3
	FormatPanasonicV6
	FormatSamsungV0
	FormatNikon
)

func (k FormatKind) String() string {
	switch k {
	case FormatCr2:
		return "cr2"
	case FormatCr3:
		return "cr3"
	case FormatPanasonicV6:
		return "panasonic-v6"
	case FormatSamsungV0:
		return "samsung-v0"
	case FormatNikon:
		return "nikon"
	default:
		return "unknown format"
	}
}

// Cr3PayloadInfo is the external dimension collaborator the CR3 path needs:
// the container carries no self-describing frame size the way SOF3 does for
// plain CR2, so the caller resolves width/height/slice widths from the
// stsd/CRX sample description (or wherever its metadata layer keeps camera
// model dimensions) and hands them in here. decodeRawInternal never
// hardcodes a sensor's dimensions.
type Cr3PayloadInfo struct {
	Width, Height int
	Slices        []int
}

// RawVariant is the tagged union decodeRawInternal dispatches on: Kind picks
// which of the fields below are meaningful, in place of a RawDecoder
// base-class hierarchy. Decompressors underneath never see the tag; each
// is a leaf function parameterised by its own frame descriptor.
type RawVariant struct {
	Kind FormatKind

	OutWidth, OutHeight, OutCpp int

	// FormatCr2: frame and entropy-coded input are already resolved by the
	// caller (SOF3/DHT/SOS parsed via ParseLJpegFrame); Slices is the strip
	// width table from wherever the container's strip-offset metadata lives.
	Frame  *LJpegFrame
	Input  *ByteStream
	Slices []int

	// FormatCr3: the ISO-BMFF container plus the external dimension
	// collaborator. decodeRawInternal locates the payload chunk and parses
	// its LJpegFrame itself.
	IsoRoot *IsoMRootBox
	Cr3Info Cr3PayloadInfo

	// FormatPanasonicV6
	PanasonicBuf *Buffer

	// FormatSamsungV0
	SamsungBSO []uint32
	SamsungBSR *Buffer

	// FormatNikon
	NikonTable      *HuffmanTable
	NikonSrc        *ByteStream
	NikonBitsPS     int
	NikonCurve      []uint16
	NikonCurveWidth int
	NikonRNGSeed    uint32
}

// DecodeOptions is the one config surface decodeRawInternal takes: worker
// count, a serial override for determinism-sensitive callers, and the
// Huffman decode LUT width. No functional-options package, no config file,
// same as every knob elsewhere in this package.
type DecodeOptions struct {
	Workers        int
	ForceSerial    bool
	HuffmanLUTBits int
}

func (o DecodeOptions) rowProcessor() *RowProcessor {
	return NewRowProcessor(o.Workers, o.ForceSerial)
}

func (o DecodeOptions) lutBits() int {
	if o.HuffmanLUTBits <= 0 {
		return huffmanLUTBits
	}
	return o.HuffmanLUTBits
}

// decodeRawInternal is the polymorphic driver: given a tagged variant and
// options, it allocates the output RawImage, invokes the matching
// decompressor, and returns the fully decoded plane. On any error the
// partially-decoded RawImage is discarded. decodeRawInternal never returns
// a non-nil image alongside a non-nil error.
func decodeRawInternal(ctx context.Context, variant RawVariant, opts DecodeOptions) (*RawImage, error) {
	rp := opts.rowProcessor()

	switch variant.Kind {
	case FormatCr2:
		return decodeCr2(ctx, variant, rp)

	case FormatCr3:
		return decodeCr3(ctx, variant, opts, rp)

	case FormatPanasonicV6:
		out, err := NewRawImage(variant.OutWidth, variant.OutHeight, 1)
		if err != nil {
			return nil, err
		}
		dec := NewPanasonicDecompressorV6(variant.PanasonicBuf)
		if err := dec.Decompress(ctx, out, rp); err != nil {
			return nil, err
		}
		return out, nil

	case FormatSamsungV0:
		out, err := NewRawImage(variant.OutWidth, variant.OutHeight, 1)
		if err != nil {
			return nil, err
		}
		dec, err := NewSamsungV0Decompressor(variant.SamsungBSO, variant.SamsungBSR, variant.OutWidth, variant.OutHeight)
		if err != nil {
			return nil, err
		}
		if err := dec.Decompress(ctx, out, rp); err != nil {
			return nil, err
		}
		return out, nil

	case FormatNikon:
		out, err := NewRawImage(variant.OutWidth, variant.OutHeight, 1)
		if err != nil {
			return nil, err
		}
		dec := NewNikonDecompressor(variant.NikonTable, variant.OutWidth, variant.OutHeight, variant.NikonBitsPS,
			variant.NikonCurve, variant.NikonCurveWidth, variant.NikonRNGSeed)
		if err := dec.Decompress(ctx, variant.NikonSrc, out, rp); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return nil, decoderErr(ComponentMismatch, "decodeRawInternal: unknown format kind")
	}
}

func decodeCr2(ctx context.Context, variant RawVariant, rp *RowProcessor) (*RawImage, error) {
	out, err := NewRawImage(variant.OutWidth, variant.OutHeight, variant.OutCpp)
	if err != nil {
		return nil, err
	}
	dec, err := NewCr2Decompressor(variant.Frame, variant.OutCpp, variant.Slices)
	if err != nil {
		return nil, err
	}
	if err := dec.Decompress(ctx, variant.Input, out, rp); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeCr3 is the "locates compressed payloads" half of the driver: CR3
// wraps the same generic sliced-LJPEG predictor CR2 uses, but the entropy
// stream lives inside an ISO-BMFF mdat chunk instead of directly in the
// input, so this locates it (LargestChunk's biggest-track heuristic) and
// parses its SOF3/DHT/SOS header before handing off to Cr2Decompressor.
func decodeCr3(ctx context.Context, variant RawVariant, opts DecodeOptions, rp *RowProcessor) (*RawImage, error) {
	if variant.IsoRoot == nil {
		return nil, decoderErr(InvalidDimensions, "decodeRawInternal: cr3 variant missing container root")
	}
	chunk, err := variant.IsoRoot.LargestChunk()
	if err != nil {
		return nil, err
	}
	frame, err := ParseLJpegFrame(chunk, opts.lutBits())
	if err != nil {
		return nil, err
	}

	out, err := NewRawImage(variant.Cr3Info.Width, variant.Cr3Info.Height, frame.Cps())
	if err != nil {
		return nil, err
	}
	dec, err := NewCr2Decompressor(frame, frame.Cps(), variant.Cr3Info.Slices)
	if err != nil {
		return nil, err
	}
	if err := dec.Decompress(ctx, chunk, out, rp); err != nil {
		return nil, err
	}
	return out, nil
}
