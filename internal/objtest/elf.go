// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objtest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

type elfShdr struct {
	name      uint32
	typ       elf.SectionType
	flags     elf.SectionFlag
	off, size uint64
	link      uint32
	info      uint32
	align     uint64
	entsize   uint64
}

// ELF64 returns o encoded as a little-endian ELF64 ET_REL file.
//
// Section i of o becomes ELF section i+1. Local symbols are written
// before global symbols, each group in the order given.
func (o *Object) ELF64() []byte {
	le := binary.LittleEndian
	shstr := newStrtab()
	str := newStrtab()

	// Symbol order: null, locals, globals.
	var order []int
	for i, s := range o.Syms {
		if !s.Global {
			order = append(order, i)
		}
	}
	firstGlobal := uint32(len(order) + 1)
	for i, s := range o.Syms {
		if s.Global {
			order = append(order, i)
		}
	}
	symIndex := map[string]uint32{}
	for n, i := range order {
		symIndex[o.Syms[i].Name] = uint32(n + 1)
	}

	out := make([]byte, 64)
	var shdrs []elfShdr
	shdrs = append(shdrs, elfShdr{})

	for i := range o.Sections {
		s := &o.Sections[i]
		h := elfShdr{name: shstr.add(s.Name), typ: elf.SHT_PROGBITS, align: 1}
		switch s.Kind {
		case Text:
			h.flags = elf.SHF_ALLOC | elf.SHF_EXECINSTR
		case Data:
			h.flags = elf.SHF_ALLOC | elf.SHF_WRITE
		case ROData:
			h.flags = elf.SHF_ALLOC
		case BSS:
			h.flags = elf.SHF_ALLOC | elf.SHF_WRITE
			h.typ = elf.SHT_NOBITS
		}
		out = align(out, 8)
		h.off = uint64(len(out))
		switch {
		case s.Kind == BSS:
			h.size = s.Size
		case s.Compress || s.Zstd:
			h.flags |= elf.SHF_COMPRESSED
			var chdr [24]byte
			typ := elf.COMPRESS_ZLIB
			if s.Zstd {
				typ = elf.COMPRESS_ZSTD
			}
			le.PutUint32(chdr[0:], uint32(typ))
			le.PutUint64(chdr[8:], uint64(len(s.Data)))
			le.PutUint64(chdr[16:], 1)
			payload := compress(s.Data, s.Zstd)
			out = append(append(out, chdr[:]...), payload...)
			h.size = uint64(len(chdr) + len(payload))
			h.align = 8
		default:
			out = append(out, s.Data...)
			h.size = uint64(len(s.Data))
		}
		shdrs = append(shdrs, h)
	}

	symtabShn := uint32(len(shdrs) + countRelocSections(o))
	for i := range o.Sections {
		var rela []byte
		for _, r := range o.Relocs {
			if r.Section != o.Sections[i].Name {
				continue
			}
			var ent [24]byte
			le.PutUint64(ent[0:], r.Offset)
			le.PutUint64(ent[8:], uint64(symIndex[r.Sym])<<32|uint64(r.Type))
			le.PutUint64(ent[16:], uint64(r.Addend))
			rela = append(rela, ent[:]...)
		}
		if rela == nil {
			continue
		}
		out = align(out, 8)
		shdrs = append(shdrs, elfShdr{
			name: shstr.add(".rela" + o.Sections[i].Name), typ: elf.SHT_RELA,
			off: uint64(len(out)), size: uint64(len(rela)),
			link: symtabShn, info: uint32(i + 1), align: 8, entsize: 24,
		})
		out = append(out, rela...)
	}

	// Symbol table.
	syms := make([]byte, 24)
	for _, i := range order {
		s := o.Syms[i]
		var ent [24]byte
		le.PutUint32(ent[0:], str.add(s.Name))
		bind, typ := elf.STB_LOCAL, elf.STT_NOTYPE
		if s.Global {
			bind = elf.STB_GLOBAL
		}
		var shn uint16
		value, size := s.Value, s.Size
		switch s.Section {
		case Undefined:
		case Absolute:
			shn = uint16(elf.SHN_ABS)
		case Common:
			shn = uint16(elf.SHN_COMMON)
			typ = elf.STT_OBJECT
			value = 8
		default:
			shn = uint16(o.sectionIndex(s.Section) + 1)
			typ = elf.STT_OBJECT
		}
		if s.Func {
			typ = elf.STT_FUNC
		}
		ent[4] = elf.ST_INFO(bind, typ)
		le.PutUint16(ent[6:], shn)
		le.PutUint64(ent[8:], value)
		le.PutUint64(ent[16:], size)
		syms = append(syms, ent[:]...)
	}
	out = align(out, 8)
	shdrs = append(shdrs, elfShdr{
		name: shstr.add(".symtab"), typ: elf.SHT_SYMTAB,
		off: uint64(len(out)), size: uint64(len(syms)),
		link: symtabShn + 1, info: firstGlobal, align: 8, entsize: 24,
	})
	out = append(out, syms...)

	shdrs = append(shdrs, elfShdr{name: shstr.add(".strtab"), typ: elf.SHT_STRTAB, off: uint64(len(out)), size: uint64(len(str.b)), align: 1})
	out = append(out, str.b...)
	shstrName := shstr.add(".shstrtab")
	shdrs = append(shdrs, elfShdr{name: shstrName, typ: elf.SHT_STRTAB, off: uint64(len(out)), size: uint64(len(shstr.b)), align: 1})
	out = append(out, shstr.b...)

	// Section header table.
	out = align(out, 8)
	shoff := uint64(len(out))
	for _, h := range shdrs {
		var ent [64]byte
		le.PutUint32(ent[0:], h.name)
		le.PutUint32(ent[4:], uint32(h.typ))
		le.PutUint64(ent[8:], uint64(h.flags))
		le.PutUint64(ent[24:], h.off)
		le.PutUint64(ent[32:], h.size)
		le.PutUint32(ent[40:], h.link)
		le.PutUint32(ent[44:], h.info)
		le.PutUint64(ent[48:], h.align)
		le.PutUint64(ent[56:], h.entsize)
		out = append(out, ent[:]...)
	}

	// File header.
	hdr := out[:64]
	copy(hdr, elf.ELFMAG)
	hdr[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(hdr[16:], uint16(elf.ET_REL))
	machine := elf.EM_X86_64
	if o.Machine == ARM64 {
		machine = elf.EM_AARCH64
	}
	le.PutUint16(hdr[18:], uint16(machine))
	le.PutUint32(hdr[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(hdr[40:], shoff)
	le.PutUint16(hdr[52:], 64)
	le.PutUint16(hdr[58:], 64)
	le.PutUint16(hdr[60:], uint16(len(shdrs)))
	le.PutUint16(hdr[62:], uint16(len(shdrs)-1))
	return out
}

func countRelocSections(o *Object) int {
	n := 0
	for i := range o.Sections {
		for _, r := range o.Relocs {
			if r.Section == o.Sections[i].Name {
				n++
				break
			}
		}
	}
	return n
}

func compress(data []byte, useZstd bool) []byte {
	if useZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil)
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
