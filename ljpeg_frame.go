// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

// JPEG lossless (ITU T.81 mode 3) marker codes this parser understands.
const (
	markerSOI  = 0xFFD8
	markerSOF3 = 0xFFC3
	markerDHT  = 0xFFC4
	markerSOS  = 0xFFDA
	markerEOI  = 0xFFD9
)

// CompInfo describes one JPEG frame component: its selector, its sampling
// factors relative to the frame's full resolution, and which Huffman table
// the scan header binds it to.
type CompInfo struct {
	ID           uint8
	SuperH       uint8
	SuperV       uint8
	HuffTableIdx uint8
}

// LJpegFrame is the result of parsing a lossless-JPEG SOI..SOS header: the
// frame dimensions, per-component sampling, and the Huffman tables DHT
// segments defined along the way. The entropy-coded segment itself starts
// immediately after SOS and is left for the caller's BitPump.
type LJpegFrame struct {
	Width, Height int
	Precision     int
	CompInfo      []CompInfo
	huffTables    [4]*HuffmanTable // indexed by DHT table selector, 0..3
}

// Cps is the number of components per sample (frame.cps in spec.md §4.4).
func (f *LJpegFrame) Cps() int { return len(f.CompInfo) }

// HuffTable returns the Huffman table bound to DHT selector idx, or nil if
// no DHT segment defined it.
func (f *LJpegFrame) HuffTable(idx uint8) *HuffmanTable {
	if int(idx) >= len(f.huffTables) {
		return nil
	}
	return f.huffTables[idx]
}

// ParseLJpegFrame reads SOI, SOF3, zero or more DHT, and SOS from s,
// leaving s positioned at the first byte of the entropy-coded segment. It
// fails with InvalidDimensions if SOI is missing, SOS precedes SOF3, or a
// segment length is malformed, UnsupportedSubsampling if a sampling factor
// is outside {1,2}, or MissingTable if SOS references a DHT selector never
// defined.
func ParseLJpegFrame(s *ByteStream, lutBits int) (*LJpegFrame, error) {
	soi, err := s.GetU16BE()
	if err != nil {
		return nil, err
	}
	if soi != markerSOI {
		return nil, decoderErr(InvalidDimensions, "ParseLJpegFrame: missing SOI")
	}

	frame := &LJpegFrame{}
	sawSOF := false

	for {
		marker, err := nextMarker(s)
		if err != nil {
			return nil, err
		}

		switch marker {
		case markerSOF3:
			if err := parseSOF3(s, frame); err != nil {
				return nil, err
			}
			sawSOF = true
		case markerDHT:
			if err := parseDHT(s, frame, lutBits); err != nil {
				return nil, err
			}
		case markerSOS:
			if !sawSOF {
				return nil, decoderErr(InvalidDimensions, "ParseLJpegFrame: SOS before SOF3")
			}
			if err := parseSOS(s, frame); err != nil {
				return nil, err
			}
			return frame, nil
		default:
			if err := skipSegment(s); err != nil {
				return nil, err
			}
		}
	}
}

// nextMarker scans forward past fill bytes (0xFF 0xFF is valid padding) to
// the next two-byte marker code.
func nextMarker(s *ByteStream) (uint16, error) {
	for {
		b, err := s.GetByte()
		if err != nil {
			return 0, err
		}
		if b != 0xFF {
			continue
		}
		b2, err := s.GetByte()
		if err != nil {
			return 0, err
		}
		if b2 == 0xFF {
			// Fill byte; the 0xFF we already consumed is not a marker lead,
			// re-treat b2 as the new candidate lead.
			if err := s.SetPosition(s.Position() - 1); err != nil {
				return 0, err
			}
			continue
		}
		if b2 == 0x00 {
			continue
		}
		return uint16(0xFF00) | uint16(b2), nil
	}
}

// skipSegment reads a generic marker-segment length and skips its payload.
func skipSegment(s *ByteStream) error {
	length, err := s.GetU16BE()
	if err != nil {
		return err
	}
	if length < 2 {
		return decoderErr(InvalidDimensions, "skipSegment: bad segment length")
	}
	return s.Skip(int(length) - 2)
}

func parseSOF3(s *ByteStream, frame *LJpegFrame) error {
	length, err := s.GetU16BE()
	if err != nil {
		return err
	}
	precision, err := s.GetByte()
	if err != nil {
		return err
	}
	height, err := s.GetU16BE()
	if err != nil {
		return err
	}
	width, err := s.GetU16BE()
	if err != nil {
		return err
	}
	nComp, err := s.GetByte()
	if err != nil {
		return err
	}
	if int(length) != 8+3*int(nComp) {
		return decoderErr(InvalidDimensions, "parseSOF3: length mismatch")
	}

	frame.Precision = int(precision)
	frame.Width = int(width)
	frame.Height = int(height)
	frame.CompInfo = make([]CompInfo, nComp)
	for i := 0; i < int(nComp); i++ {
		id, err := s.GetByte()
		if err != nil {
			return err
		}
		sampling, err := s.GetByte()
		if err != nil {
			return err
		}
		if _, err := s.GetByte(); err != nil { // quant table selector; unused, lossless mode
			return err
		}
		superH := sampling >> 4
		superV := sampling & 0x0F
		if (superH != 1 && superH != 2) || (superV != 1 && superV != 2) {
			return decoderErr(UnsupportedSubsampling, "parseSOF3: sampling factor out of {1,2}")
		}
		frame.CompInfo[i] = CompInfo{ID: id, SuperH: superH, SuperV: superV}
	}
	return nil
}

func parseDHT(s *ByteStream, frame *LJpegFrame, lutBits int) error {
	length, err := s.GetU16BE()
	if err != nil {
		return err
	}
	end := s.Position() + int(length) - 2
	for s.Position() < end {
		tc, err := s.GetByte()
		if err != nil {
			return err
		}
		tableIdx := tc & 0x0F
		var nCodesPerLength [huffmanMaxCodeLen]uint8
		total := 0
		for i := 0; i < huffmanMaxCodeLen; i++ {
			n, err := s.GetByte()
			if err != nil {
				return err
			}
			nCodesPerLength[i] = n
			total += int(n)
		}
		values, err := s.GetBytes(total)
		if err != nil {
			return err
		}
		valuesCopy := make([]uint8, total)
		copy(valuesCopy, values)
		table, err := NewHuffmanTableWithLUTWidth(nCodesPerLength, valuesCopy, lutBits)
		if err != nil {
			return err
		}
		if int(tableIdx) >= len(frame.huffTables) {
			return decoderErr(InvalidHuffmanTable, "parseDHT: table selector out of range")
		}
		frame.huffTables[tableIdx] = table
	}
	return nil
}

func parseSOS(s *ByteStream, frame *LJpegFrame) error {
	length, err := s.GetU16BE()
	if err != nil {
		return err
	}
	nComp, err := s.GetByte()
	if err != nil {
		return err
	}
	if int(nComp) != len(frame.CompInfo) {
		return decoderErr(ComponentMismatch, "parseSOS: scan component count mismatch")
	}
	if int(length) != 6+2*int(nComp) {
		return decoderErr(InvalidDimensions, "parseSOS: length mismatch")
	}
	for i := 0; i < int(nComp); i++ {
		id, err := s.GetByte()
		if err != nil {
			return err
		}
		td, err := s.GetByte()
		if err != nil {
			return err
		}
		idx := -1
		for j, ci := range frame.CompInfo {
			if ci.ID == id {
				idx = j
				break
			}
		}
		if idx < 0 {
			return decoderErr(ComponentMismatch, "parseSOS: unknown component selector")
		}
		frame.CompInfo[idx].HuffTableIdx = td >> 4
		if frame.HuffTable(frame.CompInfo[idx].HuffTableIdx) == nil {
			return decoderErr(MissingTable, "parseSOS: scan references undefined DHT table")
		}
	}
	// predictor selector, and the two point-transform/spectral-selection
	// bytes mandated by the lossless scan header; predictor must be 1.
	predictor, err := s.GetByte()
	if err != nil {
		return err
	}
	if predictor != 1 {
		return decoderErr(UnsupportedPredictor, "parseSOS: predictor != 1")
	}
	if _, err := s.GetByte(); err != nil { // end-of-spectral-selection, unused in lossless mode
		return err
	}
	if _, err := s.GetByte(); err != nil { // point transform (Pt); Canon flows this package supports use Pt=0
		return err
	}
	return nil
}
