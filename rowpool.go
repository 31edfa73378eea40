// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawcore

import "sync"

// rowScratchPool reduces GC pressure from the per-row int32 predictor
// scratch that Cr2Decompressor's row-prediction phase allocates once per
// worker invocation rather than once per row.
var rowScratchPool = sync.Pool{
	New: func() interface{} {
		s := make([]int32, 0, 4096)
		return &s
	},
}

// getRowScratch returns an int32 scratch slice with at least minCap
// capacity, truncated to zero length.
func getRowScratch(minCap int) []int32 {
	sp := rowScratchPool.Get().(*[]int32)
	s := *sp
	if cap(s) < minCap {
		return make([]int32, 0, minCap)
	}
	return s[:0]
}

// putRowScratch returns s to the pool. Oversized scratch is dropped rather
// than pooled, so one unusually wide row doesn't pin a large buffer for the
// lifetime of the process.
func putRowScratch(s []int32) {
	if cap(s) > 1<<20 {
		return
	}
	s = s[:0]
	rowScratchPool.Put(&s)
}

// u16RowPool pools the uint16 output-row buffers Panasonic V6 decodes a
// row into before copying to the RawImage plane.
var u16RowPool = sync.Pool{
	New: func() interface{} {
		s := make([]uint16, 0, 4096)
		return &s
	},
}

func getU16Row(minCap int) []uint16 {
	sp := u16RowPool.Get().(*[]uint16)
	s := *sp
	if cap(s) < minCap {
		return make([]uint16, minCap)
	}
	return s[:minCap]
}

func putU16Row(s []uint16) {
	if cap(s) > 1<<20 {
		return
	}
	s = s[:0]
	u16RowPool.Put(&s)
}
