// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import "encoding/binary"

// mcuSize is the refill granularity shared by every BitPump variant: four
// bytes pulled from the ByteStream per cache miss.
const mcuSize = 4

// bitCache is the 64-bit MSB-first cache shared by the whole BitPump
// family. The top fillLevel bits are always valid and left-aligned; bits
// are consumed from the most significant end (CacheRightInLeftOut).
type bitCache struct {
	cache     uint64
	fillLevel int
}

// push appends the low n bits of bits just after the currently valid
// region. Callers must ensure fillLevel+n <= 64.
func (c *bitCache) push(bits uint32, n int) {
	c.cache |= uint64(bits) << uint(64-c.fillLevel-n)
	c.fillLevel += n
}

// peek returns the top n bits without consuming them. Callers must ensure
// n <= fillLevel.
func (c *bitCache) peek(n int) uint32 {
	if n == 0 {
		return 0
	}
	return uint32(c.cache >> uint(64-n))
}

// consume discards the top n bits, shifting the remaining valid bits back
// up to be left-aligned.
func (c *bitCache) consume(n int) {
	c.cache <<= uint(n)
	c.fillLevel -= n
}

// BitSource is the pull-model interface all four BitPump variants satisfy.
type BitSource interface {
	Fill(n int) error
	GetBits(n int) (uint32, error)
	PeekBits(n int) (uint32, error)
	BufferPosition() int
}

// refillFunc pulls one MCU from the underlying ByteStream into the cache;
// each BitPump variant supplies its own, so the byte-order and
// escape-handling differences never show up as a runtime branch on the hot
// GetBits/PeekBits path.
type refillFunc func() error

type bitPumpBase struct {
	src    *ByteStream
	cache  bitCache
	refill refillFunc
}

// Fill ensures at least n valid bits are cached, pulling MCUs until it is,
// or until a refill fails (truncated input, or, for BitPumpJPEG, an
// entropy-segment marker).
func (p *bitPumpBase) Fill(n int) error {
	for p.cache.fillLevel < n {
		if err := p.refill(); err != nil {
			return err
		}
	}
	return nil
}

// PeekBits is the non-destructive form of GetBits.
func (p *bitPumpBase) PeekBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, ioErr(Overflow, "BitPump.PeekBits")
	}
	if err := p.Fill(n); err != nil {
		return 0, err
	}
	return p.cache.peek(n), nil
}

// GetBits consumes and returns the next n bits, 0 <= n <= 32.
func (p *bitPumpBase) GetBits(n int) (uint32, error) {
	v, err := p.PeekBits(n)
	if err != nil {
		return 0, err
	}
	p.cache.consume(n)
	return v, nil
}

// BufferPosition returns the byte offset in the underlying ByteStream that
// corresponds to the first bit not yet delivered to the caller.
func (p *bitPumpBase) BufferPosition() int {
	return p.src.Position() - p.cache.fillLevel/8
}

// SignExtended interprets diff as a JPEG-style signed-magnitude value in an
// len-bit field: when the top bit of the field is 0 the result is
// diff-((1<<len)-1), otherwise diff is returned unchanged. len==0 always
// yields 0.
func SignExtended(diff uint32, length int) int32 {
	if length <= 0 {
		return 0
	}
	if diff&(1<<uint(length-1)) == 0 {
		return int32(diff) - int32((1<<uint(length))-1)
	}
	return int32(diff)
}

// BitPumpJPEG is the MSB-first bit reader over JPEG entropy-coded data: it
// refills big-endian and understands FF/00 byte stuffing and FF/marker
// termination (ITU T.81).
type BitPumpJPEG struct {
	bitPumpBase
	markerHit bool
	markerPos int
}

// NewBitPumpJPEG wraps src for JPEG-lossless entropy decoding.
func NewBitPumpJPEG(src *ByteStream) *BitPumpJPEG {
	p := &BitPumpJPEG{}
	p.src = src
	p.refill = p.refillOnce
	return p
}

func (p *BitPumpJPEG) refillOnce() error {
	// Once a marker has been hit no further bytes are read; the cache is
	// just topped up with zero bits again.
	if p.markerHit {
		p.cache.fillLevel = 64
		return nil
	}

	// Fast path: the overwhelmingly common case is four bytes with no 0xFF
	// in them at all, so check for that up front with a single peek and a
	// single big-endian load, before falling into the byte-by-byte,
	// escape-aware path below.
	b, err := p.src.PeekBytes(mcuSize)
	if err == nil && b[0] != 0xFF && b[1] != 0xFF && b[2] != 0xFF && b[3] != 0xFF {
		_ = p.src.Skip(mcuSize) // bounds already confirmed by PeekBytes above
		p.cache.push(binary.BigEndian.Uint32(b), 32)
		return nil
	}

	for i := 0; i < mcuSize; i++ {
		c0, err := p.src.GetByte()
		if err != nil {
			return err
		}
		p.cache.push(uint32(c0), 8)
		if c0 != 0xFF {
			continue
		}

		c1, err := p.src.PeekByte()
		if err != nil {
			return err
		}
		if c1 == 0x00 {
			_ = p.src.Skip(1) // bounds already confirmed by PeekByte
			continue
		}

		// FF followed by a non-zero byte: this is a marker. Unpush the FF
		// we just pushed, pad the rest of the cache with zero bits, pin
		// the buffer position at the FF, and stop pulling further bytes.
		p.cache.fillLevel -= 8
		p.cache.cache &= ^uint64(0) << uint(64-p.cache.fillLevel)
		p.cache.fillLevel = 64
		p.markerPos = p.src.Position() - 1
		p.markerHit = true
		return nil
	}
	return nil
}

// BufferPosition returns the byte offset of the JPEG marker once one has
// been encountered, otherwise the generic computed position.
func (p *BitPumpJPEG) BufferPosition() int {
	if p.markerHit {
		return p.markerPos
	}
	return p.bitPumpBase.BufferPosition()
}

// BitPumpMSB32 refills four bytes at a time, interpreted big-endian, with
// no escape handling.
type BitPumpMSB32 struct {
	bitPumpBase
}

// NewBitPumpMSB32 wraps src for plain big-endian bit-level decoding, as
// used by SamsungV0Decompressor.
func NewBitPumpMSB32(src *ByteStream) *BitPumpMSB32 {
	p := &BitPumpMSB32{}
	p.src = src
	p.refill = func() error {
		b, err := p.src.GetBytes(mcuSize)
		if err != nil {
			return err
		}
		p.cache.push(binary.BigEndian.Uint32(b), 32)
		return nil
	}
	return p
}

// BitPumpLSB refills four bytes at a time, interpreted little-endian.
type BitPumpLSB struct {
	bitPumpBase
}

// NewBitPumpLSB wraps src for vendors that pack bits little-endian.
func NewBitPumpLSB(src *ByteStream) *BitPumpLSB {
	p := &BitPumpLSB{}
	p.src = src
	p.refill = func() error {
		b, err := p.src.GetBytes(mcuSize)
		if err != nil {
			return err
		}
		p.cache.push(binary.LittleEndian.Uint32(b), 32)
		return nil
	}
	return p
}

// BitPumpPanasonicV6 refills four bytes at a time, sequential order with no
// byte-swap, from the reversed 16-byte Panasonic V6 block buffer.
type BitPumpPanasonicV6 struct {
	bitPumpBase
}

// NewBitPumpPanasonicV6 wraps src, which must already be the per-block
// byte-reversed view (see reversePanasonicBlock).
func NewBitPumpPanasonicV6(src *ByteStream) *BitPumpPanasonicV6 {
	p := &BitPumpPanasonicV6{}
	p.src = src
	p.refill = func() error {
		b, err := p.src.GetBytes(mcuSize)
		if err != nil {
			return err
		}
		p.cache.push(binary.BigEndian.Uint32(b), 32)
		return nil
	}
	return p
}
