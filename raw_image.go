// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import "unsafe"

// AlignedAllocator allocates []T slices whose first element is aligned to
// Align bytes. Two allocators compare equal iff their alignments match,
// the element type and any other state is irrelevant to the comparison.
type AlignedAllocator[T any] struct {
	Align int
}

// Alloc returns a zeroed slice of n T values, aligned to a.Align bytes.
func (a AlignedAllocator[T]) Alloc(n int) []T {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	raw := alignedAlloc(n*elemSize, a.Align)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), n)
}

// Equal reports whether a and b allocate to the same alignment.
func (a AlignedAllocator[T]) Equal(b AlignedAllocator[T]) bool {
	return a.Align == b.Align
}

// AlignedBuffer pairs an AlignedAllocator with the slice it produced, so
// callers carry both the data and the allocator that sized it.
type AlignedBuffer[T any] struct {
	Allocator AlignedAllocator[T]
	Data      []T
}

// NewAlignedBuffer allocates n T values with the CPU-appropriate alignment
// (see alignBoundary, cpu.go).
func NewAlignedBuffer[T any](n int) AlignedBuffer[T] {
	alloc := AlignedAllocator[T]{Align: alignBoundary()}
	return AlignedBuffer[T]{Allocator: alloc, Data: alloc.Alloc(n)}
}

// RawImage is a reference-counted aligned 2-D uint16 pixel plane: the
// output of every decompressor in this package. All decoders in a single
// decodeRawInternal call share one RawImage and partition it by disjoint
// row ranges (see parallel.go); none of them resize or reallocate it.
type RawImage struct {
	DimX, DimY int
	Cpp        int // components per pixel
	Pitch      int // uint16 samples per row, a multiple of Align/2

	plane    AlignedBuffer[uint16]
	refCount *int
}

// NewRawImage allocates a plane of dimX x dimY pixels, cpp components each,
// with row pitch rounded up to a SIMD-friendly boundary.
func NewRawImage(dimX, dimY, cpp int) (*RawImage, error) {
	if dimX <= 0 || dimY <= 0 || cpp <= 0 {
		return nil, decoderErr(InvalidDimensions, "NewRawImage: non-positive dimension")
	}
	align := alignBoundary()
	samplesPerAlign := align / 2
	pitch := roundUp(dimX*cpp, samplesPerAlign)
	plane := NewAlignedBuffer[uint16](pitch * dimY)
	rc := 1
	return &RawImage{DimX: dimX, DimY: dimY, Cpp: cpp, Pitch: pitch, plane: plane, refCount: &rc}, nil
}

// Retain increments the share count; each Retain must be matched by a
// Release.
func (r *RawImage) Retain() { *r.refCount++ }

// Release decrements the share count. RawImage has no explicit Close: the
// backing plane is reclaimed by the garbage collector once the last
// reference (counted or not) is dropped, but Retain/Release still let
// callers detect use-after-all-releases bugs in debug assertions.
func (r *RawImage) Release() { *r.refCount-- }

// Row returns the dimX*cpp live samples of row y, sliced out of the padded
// pitch-wide backing row.
func (r *RawImage) Row(y int) []uint16 {
	start := y * r.Pitch
	return r.plane.Data[start : start+r.DimX*r.Cpp]
}

// RowUncropped returns the full pitch-wide backing storage for row y,
// including any pad past DimX*Cpp live samples.
func (r *RawImage) RowUncropped(y int) []uint16 {
	start := y * r.Pitch
	return r.plane.Data[start : start+r.Pitch]
}

// At2D exposes the plane as an (row, col) indexed view over live samples
// only, one component wide; callers index component c of pixel (row,col)
// at out(row, col*cpp+c).
func (r *RawImage) At2D(row, col int) uint16 {
	return r.Row(row)[col]
}

func (r *RawImage) SetAt2D(row, col int, v uint16) {
	r.Row(row)[col] = v
}

// xorshiftRNG is the tiny per-row dither state setWithLookUp shares across
// every pixel of a row, so the dither pattern is reproducible for a given
// seed without needing crypto/math-grade randomness.
type xorshiftRNG struct {
	state uint32
}

func newXorshiftRNG(seed uint32) *xorshiftRNG {
	if seed == 0 {
		seed = 1
	}
	return &xorshiftRNG{state: seed}
}

func (r *xorshiftRNG) next() uint32 {
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

// setWithLookUp writes value through curve (a linearisation table such as
// a camera's tone curve) with a one-bit dither drawn from rng, or writes
// value unchanged when curve is nil.
func setWithLookUp(value uint16, curve []uint16, rng *xorshiftRNG) uint16 {
	if curve == nil {
		return value
	}
	base := curve[value]
	if rng.next()&1 == 1 && int(value)+1 < len(curve) {
		base++
	}
	return base
}
