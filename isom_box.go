// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

// FourCC is the four-character ASCII box type tag used by ISO Base Media
// File Format containers.
type FourCC [4]byte

func (f FourCC) String() string { return string(f[:]) }

var (
	fourCCFtyp = FourCC{'f', 't', 'y', 'p'}
	fourCCMoov = FourCC{'m', 'o', 'o', 'v'}
	fourCCMdat = FourCC{'m', 'd', 'a', 't'}
	fourCCTrak = FourCC{'t', 'r', 'a', 'k'}
	fourCCMdia = FourCC{'m', 'd', 'i', 'a'}
	fourCCMinf = FourCC{'m', 'i', 'n', 'f'}
	fourCCStbl = FourCC{'s', 't', 'b', 'l'}
	fourCCStsd = FourCC{'s', 't', 's', 'd'}
	fourCCStsc = FourCC{'s', 't', 's', 'c'}
	fourCCStsz = FourCC{'s', 't', 's', 'z'}
	fourCCCo64 = FourCC{'c', 'o', '6', '4'}
	fourCCUUID = FourCC{'u', 'u', 'i', 'd'}
)

var isomContainerTypes = map[FourCC]bool{
	fourCCMoov: true,
	fourCCTrak: true,
	fourCCMdia: true,
	fourCCMinf: true,
	fourCCStbl: true,
	{'u', 'd', 't', 'a'}: true,
	{'e', 'd', 't', 's'}: true,
}

// IsoMBox is one node of the box tree. Container boxes populate Children;
// leaf boxes populate Payload and are parsed on demand by the typed
// accessors below (stsc/stsz/co64/ftyp).
type IsoMBox struct {
	Type     FourCC
	Offset   int // absolute offset of this box's payload in the root Buffer
	Payload  *ByteStream
	Children []*IsoMBox
}

// Child returns the first direct child of the given type, or nil.
func (b *IsoMBox) Child(t FourCC) *IsoMBox {
	for _, c := range b.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// ChildrenOf returns every direct child of the given type.
func (b *IsoMBox) ChildrenOf(t FourCC) []*IsoMBox {
	var out []*IsoMBox
	for _, c := range b.Children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// parseBox lexes one box header from s and, for a container type, recurses
// into its children; leaf boxes keep their payload as an unparsed
// ByteStream for the typed accessors to consume lazily.
func parseBox(s *ByteStream, root *Buffer) (*IsoMBox, error) {
	headerStart := s.Position()
	size64, err := s.GetU32BE()
	if err != nil {
		return nil, err
	}
	var t [4]byte
	tb, err := s.GetBytes(4)
	if err != nil {
		return nil, err
	}
	copy(t[:], tb)
	typ := FourCC(t)

	size := uint64(size64)
	if size == 1 {
		size, err = s.GetU64BE()
		if err != nil {
			return nil, err
		}
	}
	if typ == fourCCUUID {
		if err := s.Skip(16); err != nil {
			return nil, err
		}
	}
	if size == 0 {
		size = uint64(s.Size() - headerStart)
	}
	payloadLen := int(size) - (s.Position() - headerStart)
	if payloadLen < 0 {
		return nil, isomErr(Malformed, "parseBox: box shorter than its own header")
	}

	payloadOffset := s.Position()
	payload, err := s.GetStream(payloadLen)
	if err != nil {
		return nil, wrapIsomErr(Malformed, "parseBox: truncated payload", err)
	}

	box := &IsoMBox{Type: typ, Offset: payloadOffset, Payload: payload}
	if isomContainerTypes[typ] {
		for payload.GetRemainSize() > 0 {
			child, err := parseBox(payload, root)
			if err != nil {
				return nil, err
			}
			box.Children = append(box.Children, child)
		}
	}
	return box, nil
}

// IsoMRootBox is the top-level ftyp/moov/mdat triple spec.md §4.7 requires,
// plus the root Buffer every absolute chunk offset (co64) is resolved
// against.
type IsoMRootBox struct {
	Ftyp *IsoMBox
	Moov *IsoMBox
	Mdat *IsoMBox
	root *Buffer
}

// ParseIsoMRoot lexes top-level boxes from s and requires ftyp, moov, and
// mdat to appear, in that relative order (other top-level boxes such as
// "free" may appear interspersed and are skipped).
func ParseIsoMRoot(s *ByteStream, root *Buffer) (*IsoMRootBox, error) {
	out := &IsoMRootBox{root: root}
	for s.GetRemainSize() > 0 {
		box, err := parseBox(s, root)
		if err != nil {
			return nil, err
		}
		switch box.Type {
		case fourCCFtyp:
			if out.Ftyp == nil {
				out.Ftyp = box
			}
		case fourCCMoov:
			if out.Ftyp == nil {
				return nil, isomErr(Malformed, "ParseIsoMRoot: moov before ftyp")
			}
			if out.Moov == nil {
				out.Moov = box
			}
		case fourCCMdat:
			if out.Moov == nil {
				return nil, isomErr(Malformed, "ParseIsoMRoot: mdat before moov")
			}
			if out.Mdat == nil {
				out.Mdat = box
			}
		}
	}
	if out.Ftyp == nil || out.Moov == nil || out.Mdat == nil {
		return nil, isomErr(Missing, "ParseIsoMRoot: missing ftyp/moov/mdat")
	}
	return out, nil
}

// MajorBrand parses ftyp's payload and returns its major_brand field.
func (b *IsoMBox) MajorBrand() (FourCC, error) {
	buf, err := b.Payload.PeekBytes(4)
	if err != nil {
		return FourCC{}, wrapIsomErr(Malformed, "ftyp.MajorBrand", err)
	}
	var f [4]byte
	copy(f[:], buf)
	return FourCC(f), nil
}

// RequireBrand fails with UnexpectedBrand unless ftyp's major_brand is one
// of want.
func (r *IsoMRootBox) RequireBrand(want ...FourCC) error {
	brand, err := r.Ftyp.MajorBrand()
	if err != nil {
		return err
	}
	for _, w := range want {
		if brand == w {
			return nil
		}
	}
	return isomErr(UnexpectedBrand, "IsoMRootBox.RequireBrand: "+brand.String())
}

// stblOf resolves moov -> trak -> mdia -> minf -> stbl for the trak-th
// track, failing with Missing if any link in the chain is absent.
func (r *IsoMRootBox) stblOf(trak *IsoMBox) (*IsoMBox, error) {
	mdia := trak.Child(fourCCMdia)
	if mdia == nil {
		return nil, isomErr(Missing, "stblOf: trak has no mdia")
	}
	minf := mdia.Child(fourCCMinf)
	if minf == nil {
		return nil, isomErr(Missing, "stblOf: mdia has no minf")
	}
	stbl := minf.Child(fourCCStbl)
	if stbl == nil {
		return nil, isomErr(Missing, "stblOf: minf has no stbl")
	}
	if stbl.Child(fourCCStsd) == nil || stbl.Child(fourCCStsc) == nil ||
		stbl.Child(fourCCStsz) == nil || stbl.Child(fourCCCo64) == nil {
		return nil, isomErr(Missing, "stblOf: stbl missing stsd/stsc/stsz/co64")
	}
	return stbl, nil
}

// stscEntry is one sample-to-chunk table row.
type stscEntry struct {
	firstChunk      uint32
	samplesPerChunk uint32
}

func parseStsc(box *IsoMBox) ([]stscEntry, error) {
	s := box.Payload
	if err := s.SetPosition(0); err != nil {
		return nil, err
	}
	if _, err := s.GetU32BE(); err != nil { // version+flags
		return nil, err
	}
	count, err := s.GetU32BE()
	if err != nil {
		return nil, err
	}
	entries := make([]stscEntry, count)
	for i := range entries {
		first, err := s.GetU32BE()
		if err != nil {
			return nil, err
		}
		perChunk, err := s.GetU32BE()
		if err != nil {
			return nil, err
		}
		if _, err := s.GetU32BE(); err != nil { // sample description index, unused here
			return nil, err
		}
		entries[i] = stscEntry{firstChunk: first, samplesPerChunk: perChunk}
	}
	return entries, nil
}

func parseStsz(box *IsoMBox) (uniformSize uint32, sizes []uint32, err error) {
	s := box.Payload
	if err := s.SetPosition(0); err != nil {
		return 0, nil, err
	}
	if _, err := s.GetU32BE(); err != nil {
		return 0, nil, err
	}
	uniformSize, err = s.GetU32BE()
	if err != nil {
		return 0, nil, err
	}
	count, err := s.GetU32BE()
	if err != nil {
		return 0, nil, err
	}
	if uniformSize != 0 {
		return uniformSize, nil, nil
	}
	sizes = make([]uint32, count)
	for i := range sizes {
		sizes[i], err = s.GetU32BE()
		if err != nil {
			return 0, nil, err
		}
	}
	return 0, sizes, nil
}

func parseCo64(box *IsoMBox) ([]uint64, error) {
	s := box.Payload
	if err := s.SetPosition(0); err != nil {
		return nil, err
	}
	if _, err := s.GetU32BE(); err != nil {
		return nil, err
	}
	count, err := s.GetU32BE()
	if err != nil {
		return nil, err
	}
	offsets := make([]uint64, count)
	for i := range offsets {
		offsets[i], err = s.GetU64BE()
		if err != nil {
			return nil, err
		}
	}
	return offsets, nil
}

// TrackChunks resolves stsc/stsz/co64 for the trak-th track and returns one
// ByteStream per chunk, each a view into the root Buffer at its absolute
// co64 offset.
func (r *IsoMRootBox) TrackChunks(trak *IsoMBox) ([]*ByteStream, error) {
	stbl, err := r.stblOf(trak)
	if err != nil {
		return nil, err
	}
	stsc, err := parseStsc(stbl.Child(fourCCStsc))
	if err != nil {
		return nil, wrapIsomErr(Malformed, "TrackChunks: stsc", err)
	}
	uniformSize, sizes, err := parseStsz(stbl.Child(fourCCStsz))
	if err != nil {
		return nil, wrapIsomErr(Malformed, "TrackChunks: stsz", err)
	}
	offsets, err := parseCo64(stbl.Child(fourCCCo64))
	if err != nil {
		return nil, wrapIsomErr(Malformed, "TrackChunks: co64", err)
	}
	if len(stsc) == 0 {
		return nil, isomErr(Malformed, "TrackChunks: empty stsc")
	}

	chunks := make([]*ByteStream, 0, len(offsets))
	sampleIdx := 0
	for chunkIdx, off := range offsets {
		chunkNum := uint32(chunkIdx + 1)
		samplesPerChunk := stsc[len(stsc)-1].samplesPerChunk
		for i := len(stsc) - 1; i >= 0; i-- {
			if chunkNum >= stsc[i].firstChunk {
				samplesPerChunk = stsc[i].samplesPerChunk
				break
			}
		}

		var chunkSize int
		if uniformSize != 0 {
			chunkSize = int(uniformSize) * int(samplesPerChunk)
		} else {
			for i := 0; i < int(samplesPerChunk) && sampleIdx < len(sizes); i++ {
				chunkSize += int(sizes[sampleIdx])
				sampleIdx++
			}
		}

		view, err := r.root.SubView(int(off), chunkSize)
		if err != nil {
			return nil, wrapIsomErr(Malformed, "TrackChunks: chunk out of bounds", err)
		}
		chunks = append(chunks, NewByteStream(view, BigEndian))
	}
	return chunks, nil
}

// LargestChunk scans every track under moov and returns the largest chunk
// found, the heuristic the CR3 path uses to pick the raw sensor payload
// out of a container that also carries a JPEG preview and thumbnail track.
func (r *IsoMRootBox) LargestChunk() (*ByteStream, error) {
	var best *ByteStream
	for _, trak := range r.Moov.ChildrenOf(fourCCTrak) {
		chunks, err := r.TrackChunks(trak)
		if err != nil {
			continue
		}
		for _, c := range chunks {
			if best == nil || c.Size() > best.Size() {
				best = c
			}
		}
	}
	if best == nil {
		return nil, isomErr(Missing, "LargestChunk: no track produced any chunk")
	}
	return best, nil
}
