// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"golang.org/x/arch/arm64/arm64asm"
)

func decodeARM64(text []byte, pc uint64) (Inst, int) {
	const size = 4
	if len(text) < size {
		// Trailing bytes that don't form a full instruction.
		return &arm64Inst{pc: pc, size: len(text)}, len(text)
	}
	inst, err := arm64asm.Decode(text)
	if err != nil || inst.Op == 0 {
		inst = arm64asm.Inst{}
	}
	return &arm64Inst{inst, pc, size}, size
}

type arm64Inst struct {
	arm64asm.Inst
	pc   uint64
	size int
}

func (i *arm64Inst) Text(syntax Syntax, symName SymNameFunc) string {
	if i.Op == 0 {
		return "?"
	}
	if syntax == GNUSyntax {
		return arm64asm.GNUSyntax(i.Inst)
	}
	var fn func(uint64) (string, uint64)
	if symName != nil {
		fn = symName
	}
	return arm64asm.GoSyntax(i.Inst, i.pc, fn, nil)
}

func (i *arm64Inst) PC() uint64 {
	return i.pc
}

func (i *arm64Inst) Len() int { return i.size }
