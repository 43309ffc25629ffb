// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch describes the CPU architectures whose objects can be
// loaded together.
package arch

import "encoding/binary"

// An Arch describes a CPU architecture. Arches are compared by
// pointer, so every object of one architecture yields the same *Arch.
type Arch struct {
	// Layout is the byte order and word size of this architecture.
	Layout Layout

	// GoArch is the GOARCH value for this architecture.
	GoArch string
}

var (
	AMD64 = &Arch{NewLayout(binary.LittleEndian, 8), "amd64"}
	I386  = &Arch{NewLayout(binary.LittleEndian, 4), "386"}
	ARM64 = &Arch{NewLayout(binary.LittleEndian, 8), "arm64"}
)

// String returns the GOARCH value of a.
func (a *Arch) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.GoArch
}
