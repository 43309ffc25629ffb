// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm abstracts disassembling machine code from various
// architectures.
package asm

import (
	"fmt"

	"github.com/aclements/go-symex/arch"
)

// Disasm returns a lazily decoded instruction sequence for machine
// code text of the given architecture. pc is the program counter at
// which text begins.
func Disasm(a *arch.Arch, text []byte, pc uint64) (*Seq, error) {
	var dec decoder
	switch a {
	case arch.AMD64:
		dec = x86Decoder(64)
	case arch.I386:
		dec = x86Decoder(32)
	case arch.ARM64:
		dec = decodeARM64
	default:
		return nil, fmt.Errorf("unsupported assembly architecture: %s", a)
	}
	return &Seq{text: text, pc: pc, dec: dec}, nil
}

// decoder decodes the first instruction of text. It always consumes at
// least one byte so that decoding makes progress over garbage.
type decoder func(text []byte, pc uint64) (inst Inst, size int)

// Seq is a sequence of instructions, decoded on demand.
type Seq struct {
	text []byte
	pc   uint64
	dec  decoder
}

// Next decodes and returns the next instruction. It returns false once
// the text is exhausted.
func (s *Seq) Next() (Inst, bool) {
	if len(s.text) == 0 {
		return nil, false
	}
	inst, size := s.dec(s.text, s.pc)
	if size > len(s.text) {
		size = len(s.text)
	}
	s.text = s.text[size:]
	s.pc += uint64(size)
	return inst, true
}

// All decodes the rest of s.
func (s *Seq) All() []Inst {
	var out []Inst
	for inst, ok := s.Next(); ok; inst, ok = s.Next() {
		out = append(out, inst)
	}
	return out
}

// SymNameFunc returns the name and base address of the symbol
// containing addr, or "" if there is none.
type SymNameFunc func(addr uint64) (string, uint64)

// Syntax selects an assembler syntax for Inst.Text.
type Syntax uint8

const (
	GoSyntax Syntax = iota
	GNUSyntax
)

// ParseSyntax parses "go" or "gnu".
func ParseSyntax(s string) (Syntax, error) {
	switch s {
	case "go":
		return GoSyntax, nil
	case "gnu":
		return GNUSyntax, nil
	}
	return 0, fmt.Errorf("unknown assembler syntax %q", s)
}

// Inst is a single machine instruction.
type Inst interface {
	// Text returns the textual form of this instruction in the given
	// syntax. symName may be nil.
	Text(syntax Syntax, symName SymNameFunc) string

	// PC returns the address of this instruction.
	PC() uint64

	// Len returns the length of this instruction in bytes.
	Len() int
}
