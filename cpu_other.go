// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !amd64

package rawcore

// hasAVX2 is always false off amd64; there is no AVX2 to probe for.
func hasAVX2() bool {
	return false
}
