// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

// maxHuffmanSymbols bounds the number of codes a JPEG-lossless DHT segment
// may define (16 code lengths, 162 possible AC/DC symbols total).
const maxHuffmanSymbols = 162

// huffmanMaxCodeLen is the longest canonical code length this table
// supports (JPEG DHT segments are limited to 16 bits).
const huffmanMaxCodeLen = 16

// huffmanLUTBits is the width, in bits, of the primary decode lookup
// table. Codes longer than this fall back to the linear scan.
const huffmanLUTBits = 14

type huffmanCode struct {
	code   uint32
	length int
	value  uint8
}

type huffLUTEntry struct {
	value  uint8
	length uint8 // 0 means "no match in this many bits, fall back"
}

// HuffmanTable is a JPEG-style canonical Huffman code-length table built
// once from DHT data and used many times on the decode hot path.
type HuffmanTable struct {
	nCodesPerLength [huffmanMaxCodeLen]uint8
	codeValues      []uint8
	codes           []huffmanCode // sorted by ascending length, canonical order
	lut             []huffLUTEntry
	lutBits         int
}

// NewHuffmanTable builds a canonical Huffman decode table from the DHT-style
// counts (nCodesPerLength[i] is the number of codes of length i+1) and the
// concatenated symbol values, using the default 14-bit LUT width. It
// validates the table is a well-formed prefix code and returns
// InvalidHuffmanTable otherwise.
func NewHuffmanTable(nCodesPerLength [huffmanMaxCodeLen]uint8, codeValues []uint8) (*HuffmanTable, error) {
	return NewHuffmanTableWithLUTWidth(nCodesPerLength, codeValues, huffmanLUTBits)
}

// NewHuffmanTableWithLUTWidth is NewHuffmanTable with an explicit primary
// LUT width, the DecodeOptions.HuffmanLUTBits knob decode.go threads
// through: a wider LUT trades table-build memory for fewer fallback scans
// on the decode hot path.
func NewHuffmanTableWithLUTWidth(nCodesPerLength [huffmanMaxCodeLen]uint8, codeValues []uint8, lutBits int) (*HuffmanTable, error) {
	if lutBits <= 0 || lutBits > huffmanMaxCodeLen {
		lutBits = huffmanLUTBits
	}
	total := 0
	for _, n := range nCodesPerLength {
		total += int(n)
	}
	if total > maxHuffmanSymbols {
		return nil, decoderErr(InvalidHuffmanTable, "NewHuffmanTable: too many symbols")
	}
	if total != len(codeValues) {
		return nil, decoderErr(InvalidHuffmanTable, "NewHuffmanTable: codeValues length mismatch")
	}
	for _, v := range codeValues {
		if v > 16 {
			return nil, decoderErr(InvalidHuffmanTable, "NewHuffmanTable: code value exceeds 16")
		}
	}

	h := &HuffmanTable{nCodesPerLength: nCodesPerLength, codeValues: codeValues, lutBits: lutBits}
	h.codes = make([]huffmanCode, 0, total)

	// Canonical JPEG code assignment (ITU T.81 Annex C): a running code
	// counter starts at 0, gets one code per declared symbol at the
	// current nominal length, and is left-shifted once per length level.
	//
	// The naive version of this algorithm has a known defect: if a level
	// is asked for more codes than there is remaining prefix space (the
	// counter reaches 2^declaredLength before the level's count is
	// exhausted), it silently emits a code that doesn't fit in its
	// declared length. The mathematically correct fix, and what this
	// table does, is to let the emitted code's *actual* length grow to
	// whatever the counter needs, rather than reproduce the broken
	// declared-length code. Only running past 16 bits is a real error.
	code := uint32(0)
	k := 0
	for declaredLength := 1; declaredLength <= huffmanMaxCodeLen; declaredLength++ {
		count := int(nCodesPerLength[declaredLength-1])
		for i := 0; i < count; i++ {
			actualLength := declaredLength
			for code >= (uint32(1) << uint(actualLength)) {
				actualLength++
				if actualLength > huffmanMaxCodeLen {
					return nil, decoderErr(InvalidHuffmanTable, "NewHuffmanTable: code exceeds 16 bits")
				}
			}
			h.codes = append(h.codes, huffmanCode{code: code, length: actualLength, value: codeValues[k]})
			code++
			k++
		}
		code <<= 1
	}

	h.buildLUT()
	return h, nil
}

func (h *HuffmanTable) buildLUT() {
	h.lut = make([]huffLUTEntry, 1<<uint(h.lutBits))
	for _, c := range h.codes {
		if c.length > h.lutBits {
			continue
		}
		shift := h.lutBits - c.length
		start := c.code << uint(shift)
		end := start + (1 << uint(shift))
		for idx := start; idx < end; idx++ {
			h.lut[idx] = huffLUTEntry{value: c.value, length: uint8(c.length)}
		}
	}
}

// DecodeNext consumes a Huffman code from src, then consumes the magnitude
// bits the code's symbol names, sign-extends the result, and returns the
// differential.
func (h *HuffmanTable) DecodeNext(src BitSource) (int32, error) {
	value, _, err := h.decodeSymbol(src)
	if err != nil {
		return 0, err
	}
	diffBits, err := src.GetBits(int(value))
	if err != nil {
		return 0, err
	}
	return SignExtended(diffBits, int(value)), nil
}

func (h *HuffmanTable) decodeSymbol(src BitSource) (value uint8, length int, err error) {
	startLength := 1
	if peeked, perr := src.PeekBits(h.lutBits); perr == nil {
		e := h.lut[peeked]
		if e.length != 0 {
			if _, err := src.GetBits(int(e.length)); err != nil {
				return 0, 0, err
			}
			return e.value, int(e.length), nil
		}
		// A LUT miss means no code of length <= h.lutBits matches this
		// prefix; only the longer codes remain candidates.
		startLength = h.lutBits + 1
	}

	for length := startLength; length <= huffmanMaxCodeLen; length++ {
		bits, perr := src.PeekBits(length)
		if perr != nil {
			continue
		}
		for _, c := range h.codes {
			if c.length != length {
				continue
			}
			if c.code == bits {
				if _, err := src.GetBits(length); err != nil {
					return 0, 0, err
				}
				return c.value, length, nil
			}
		}
	}
	return 0, 0, decoderErr(MissingTable, "HuffmanTable.decodeSymbol: no matching code")
}
