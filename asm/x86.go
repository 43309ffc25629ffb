// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"golang.org/x/arch/x86/x86asm"
)

func x86Decoder(bits int) decoder {
	return func(text []byte, pc uint64) (Inst, int) {
		inst, err := x86asm.Decode(text, bits)
		size := inst.Len
		if err != nil || size == 0 || inst.Op == 0 {
			inst = x86asm.Inst{}
		}
		if size == 0 {
			size = 1
		}
		return &x86Inst{inst, pc, size}, size
	}
}

type x86Inst struct {
	x86asm.Inst
	pc   uint64
	size int
}

func (i *x86Inst) Text(syntax Syntax, symName SymNameFunc) string {
	if i.Op == 0 {
		return "?"
	}
	var fn func(uint64) (string, uint64)
	if symName != nil {
		fn = symName
	}
	if syntax == GNUSyntax {
		return x86asm.GNUSyntax(i.Inst, i.pc, fn)
	}
	return x86asm.GoSyntax(i.Inst, i.pc, fn)
}

func (i *x86Inst) PC() uint64 {
	return i.pc
}

func (i *x86Inst) Len() int {
	return i.size
}
