// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import (
	"encoding/binary"
	"unsafe"
)

// bufferAlign is the minimum alignment guaranteed for owned Buffer and
// RawImage backing storage; it matches the SIMD-friendly stride librawspeed
// allocates its planes on.
const bufferAlign = 16

// bufferPad is appended past the logical size of an owned Buffer so that
// 4- and 8-byte typed reads issued near the end of the declared data are
// never a physical out-of-bounds access, even though ByteStream still
// enforces the logical size.
const bufferPad = 16

// alignedAlloc returns a byte slice of at least size bytes whose first
// element is aligned to align bytes. Go's allocator gives no alignment
// guarantee for []byte, so we over-allocate and slice into the aligned
// region, the same trick AlignedAllocator<T,A> uses in the source this
// package is ported from.
func alignedAlloc(size, align int) []byte {
	buf := make([]byte, size+align-1)
	base := alignedOffset(buf, align)
	return buf[base : base+size]
}

func alignedOffset(buf []byte, align int) int {
	if len(buf) == 0 {
		return 0
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	rem := addr % uintptr(align)
	if rem == 0 {
		return 0
	}
	return align - int(rem)
}

// Buffer is an immutable, bounds-checked view of input or output bytes.
// It either owns its backing storage (created via NewBuffer, aligned and
// padded) or borrows a slice belonging to some other Buffer's storage.
// Borrowed buffers never outlive the owner in practice because Go's
// garbage collector keeps the backing array alive as long as any slice
// into it is reachable.
type Buffer struct {
	data    []byte // usable region, length == size
	isOwner bool
}

// NewBuffer allocates an owning Buffer of the given logical size, aligned
// and padded per bufferAlign/bufferPad.
func NewBuffer(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	full := roundUp(size+bufferPad, bufferAlign)
	raw := alignedAlloc(full, bufferAlign)
	return &Buffer{data: raw[:size], isOwner: true}
}

// BorrowBuffer wraps an existing byte slice as a non-owning Buffer.
func BorrowBuffer(b []byte) *Buffer {
	return &Buffer{data: b, isOwner: false}
}

// Size returns the logical byte count of the buffer.
func (b *Buffer) Size() int { return len(b.data) }

// IsOwner reports whether this Buffer owns its backing storage.
func (b *Buffer) IsOwner() bool { return b.isOwner }

// Bytes returns the usable region of the buffer. Callers must not retain
// the slice past the Buffer's lifetime if the Buffer is non-owning and its
// parent may be reused; in this package no Buffer is ever mutated after
// construction, so aliasing is always safe.
func (b *Buffer) Bytes() []byte { return b.data }

// SubView returns a non-owning Buffer covering [off, off+n) of b.
func (b *Buffer) SubView(off, n int) (*Buffer, error) {
	if off < 0 || n < 0 || off+n > len(b.data) {
		return nil, ioErr(OutOfBounds, "Buffer.SubView")
	}
	return &Buffer{data: b.data[off : off+n], isOwner: false}, nil
}

// roundUp rounds n up to the nearest multiple of mult.
func roundUp(n, mult int) int {
	if mult <= 0 {
		return n
	}
	rem := n % mult
	if rem == 0 {
		return n
	}
	return n + (mult - rem)
}

// isAligned reports whether n is a multiple of mult.
func isAligned(n, mult int) bool {
	return mult > 0 && n%mult == 0
}

// Endian selects the byte order ByteStream's generic typed reads apply.
type Endian int

const (
	BigEndian Endian = iota
	LittleEndian
)

// ByteStream is a cursor over a Buffer: (buffer, position, endianness).
// All read methods are total: they either advance and return, or fail with
// a typed IoError and leave the position unchanged.
type ByteStream struct {
	buf   *Buffer
	pos   int
	order Endian
}

// NewByteStream creates a cursor at position 0 over buf.
func NewByteStream(buf *Buffer, order Endian) *ByteStream {
	return &ByteStream{buf: buf, order: order}
}

// Position returns the current byte offset.
func (s *ByteStream) Position() int { return s.pos }

// Size returns the logical size of the underlying buffer.
func (s *ByteStream) Size() int { return s.buf.Size() }

// GetRemainSize returns the number of unread bytes.
func (s *ByteStream) GetRemainSize() int { return s.buf.Size() - s.pos }

// SetPosition repositions the cursor, bounds-checked against the buffer.
func (s *ByteStream) SetPosition(pos int) error {
	if pos < 0 || pos > s.buf.Size() {
		return ioErr(OutOfBounds, "ByteStream.SetPosition")
	}
	s.pos = pos
	return nil
}

// Skip advances the cursor by n bytes.
func (s *ByteStream) Skip(n int) error {
	if n < 0 || n > s.GetRemainSize() {
		return ioErr(Overflow, "ByteStream.Skip")
	}
	s.pos += n
	return nil
}

// PeekBytes returns the next n bytes without advancing the cursor.
func (s *ByteStream) PeekBytes(n int) ([]byte, error) {
	if n < 0 || n > s.GetRemainSize() {
		return nil, ioErr(Overflow, "ByteStream.PeekBytes")
	}
	return s.buf.data[s.pos : s.pos+n], nil
}

// GetBytes returns the next n bytes and advances the cursor.
func (s *ByteStream) GetBytes(n int) ([]byte, error) {
	b, err := s.PeekBytes(n)
	if err != nil {
		return nil, err
	}
	s.pos += n
	return b, nil
}

// GetByte reads and consumes one byte.
func (s *ByteStream) GetByte() (byte, error) {
	b, err := s.GetBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PeekByte returns the next byte without consuming it.
func (s *ByteStream) PeekByte() (byte, error) {
	b, err := s.PeekBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *ByteStream) get16(order Endian) (uint16, error) {
	b, err := s.GetBytes(2)
	if err != nil {
		return 0, err
	}
	if order == BigEndian {
		return binary.BigEndian.Uint16(b), nil
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *ByteStream) get32(order Endian) (uint32, error) {
	b, err := s.GetBytes(4)
	if err != nil {
		return 0, err
	}
	if order == BigEndian {
		return binary.BigEndian.Uint32(b), nil
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *ByteStream) get64(order Endian) (uint64, error) {
	b, err := s.GetBytes(8)
	if err != nil {
		return 0, err
	}
	if order == BigEndian {
		return binary.BigEndian.Uint64(b), nil
	}
	return binary.LittleEndian.Uint64(b), nil
}

// GetU16/GetU32/GetU64 read using the stream's configured endianness.
func (s *ByteStream) GetU16() (uint16, error) { return s.get16(s.order) }
func (s *ByteStream) GetU32() (uint32, error) { return s.get32(s.order) }
func (s *ByteStream) GetU64() (uint64, error) { return s.get64(s.order) }

// GetU16BE/GetU32BE/GetU64BE/GetU16LE/GetU32LE/GetU64LE read with an
// explicit byte order, independent of the stream's configured endianness;
// the marker-segment and box parsers (ljpeg_frame.go, isom_box.go) use
// these for their always-big-endian header fields.
func (s *ByteStream) GetU16BE() (uint16, error) { return s.get16(BigEndian) }
func (s *ByteStream) GetU32BE() (uint32, error) { return s.get32(BigEndian) }
func (s *ByteStream) GetU64BE() (uint64, error) { return s.get64(BigEndian) }
func (s *ByteStream) GetU16LE() (uint16, error) { return s.get16(LittleEndian) }
func (s *ByteStream) GetU32LE() (uint32, error) { return s.get32(LittleEndian) }
func (s *ByteStream) GetU64LE() (uint64, error) { return s.get64(LittleEndian) }

// GetSubView returns a non-owning Buffer covering [off, off+n) of the
// parent buffer; it does not move the cursor.
func (s *ByteStream) GetSubView(off, n int) (*Buffer, error) {
	return s.buf.SubView(off, n)
}

// GetStream returns a sub-stream of the next n bytes and advances the
// cursor past them.
func (s *ByteStream) GetStream(n int) (*ByteStream, error) {
	view, err := s.buf.SubView(s.pos, n)
	if err != nil {
		return nil, err
	}
	s.pos += n
	return NewByteStream(view, s.order), nil
}

// PeekStream returns a sub-stream of exactly count*stride bytes without
// advancing the cursor.
func (s *ByteStream) PeekStream(count, stride int) (*ByteStream, error) {
	view, err := s.buf.SubView(s.pos, count*stride)
	if err != nil {
		return nil, err
	}
	return NewByteStream(view, s.order), nil
}
