// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package objtest builds small relocatable object files and archives in
// memory for tests.
//
// The builders write just enough of each format for the standard
// library's debug/elf and debug/macho parsers to accept them. Section
// addresses start at 0 and, for Mach-O, are laid out back to back.
package objtest

// Machine selects the target architecture of a built object.
type Machine int

const (
	AMD64 Machine = iota
	ARM64
)

// Kind is the category of a Section.
type Kind int

const (
	Text Kind = iota
	Data
	ROData
	BSS
	Debug
)

// Special values of Sym.Section.
const (
	Undefined = ""
	Absolute  = "*ABS*"
	Common    = "*COM*"
)

// A Section is one section of an Object.
type Section struct {
	Name string
	Kind Kind
	// Data is the section contents. BSS sections use Size instead.
	Data []byte
	Size uint64
	// Compress stores the section zlib-compressed (ELF only).
	Compress bool
	// Zstd stores the section zstd-compressed (ELF only).
	Zstd bool
}

func (s *Section) size() uint64 {
	if s.Kind == BSS {
		return s.Size
	}
	return uint64(len(s.Data))
}

// A Sym is a symbol table entry.
type Sym struct {
	Name string
	// Section is the name of the defining section, or one of
	// Undefined, Absolute, or Common.
	Section string
	// Value is the offset of the symbol within Section. For Common
	// symbols it is ignored and Size is used.
	Value uint64
	// Size is the symbol size. Mach-O ignores it.
	Size   uint64
	Global bool
	Func   bool
}

// A Reloc is a relocation applied to Section at Offset.
type Reloc struct {
	Section string
	Offset  uint64
	// Sym names the target symbol. If empty, Target names a target
	// section instead (Mach-O non-extern relocations). If both are
	// empty, a Mach-O entry stores Addend in its symbol field, as
	// ARM64_RELOC_ADDEND does.
	Sym    string
	Target string
	Type   uint32
	Addend int64
	// Length is the log2 of the patched width (Mach-O only).
	Length uint8
	PCRel  bool
}

// An Object describes a relocatable object file.
type Object struct {
	Machine  Machine
	Sections []Section
	Syms     []Sym
	Relocs   []Reloc
}

func (o *Object) sectionIndex(name string) int {
	for i := range o.Sections {
		if o.Sections[i].Name == name {
			return i
		}
	}
	panic("objtest: no section " + name)
}

// strtab accumulates a NUL-terminated string table.
type strtab struct {
	b   []byte
	off map[string]uint32
}

func newStrtab() *strtab {
	return &strtab{b: []byte{0}, off: map[string]uint32{"": 0}}
}

func (t *strtab) add(s string) uint32 {
	if o, ok := t.off[s]; ok {
		return o
	}
	o := uint32(len(t.b))
	t.b = append(append(t.b, s...), 0)
	t.off[s] = o
	return o
}

func align(b []byte, n int) []byte {
	for len(b)%n != 0 {
		b = append(b, 0)
	}
	return b
}
