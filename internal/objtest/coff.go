// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objtest

import (
	"debug/pe"
	"encoding/binary"
	"strconv"
)

const (
	coffHeaderSize  = 20
	coffSectionSize = 40
	coffRelocSize   = 10
	coffSymSize     = 18
)

// COFF returns o encoded as a COFF object. Each section gets a
// section-definition symbol with one auxiliary record, placed before
// o's symbols. Function symbols get a function-definition auxiliary
// record holding their Size; other symbol sizes are not recorded.
// Relocation addends must already be stored in the section data.
func (o *Object) COFF() []byte {
	le := binary.LittleEndian
	str := []byte{0, 0, 0, 0}
	addStr := func(s string) uint32 {
		off := uint32(len(str))
		str = append(append(str, s...), 0)
		return off
	}
	putName := func(b []byte, s string) {
		if len(s) <= 8 {
			copy(b[:8], s)
			return
		}
		le.PutUint32(b[4:], addStr(s))
	}

	// Raw symbol indexes, counting auxiliary records.
	symIndex := map[string]uint32{}
	n := uint32(2 * len(o.Sections))
	for _, s := range o.Syms {
		symIndex[s.Name] = n
		n++
		if s.Func {
			n++
		}
	}

	nsects := len(o.Sections)
	out := make([]byte, coffHeaderSize+coffSectionSize*nsects)
	for i := range o.Sections {
		s := &o.Sections[i]
		h := out[coffHeaderSize+coffSectionSize*i:]
		if len(s.Name) <= 8 {
			copy(h[:8], s.Name)
		} else {
			copy(h[:8], "/"+strconv.Itoa(int(addStr(s.Name))))
		}
		le.PutUint32(h[16:], uint32(s.size()))
		var chars uint32
		switch s.Kind {
		case Text:
			chars = 0x60000020
		case Data:
			chars = 0xc0000040
		case ROData:
			chars = 0x40000040
		case BSS:
			chars = 0xc0000080
		case Debug:
			chars = 0x42000040
		}
		le.PutUint32(h[36:], chars)
	}
	for i := range o.Sections {
		s := &o.Sections[i]
		if s.Kind == BSS {
			continue
		}
		out = align(out, 4)
		le.PutUint32(out[coffHeaderSize+coffSectionSize*i+20:], uint32(len(out)))
		out = append(out, s.Data...)
	}
	for i := range o.Sections {
		out = align(out, 2)
		start := uint32(len(out))
		var count uint16
		for _, r := range o.Relocs {
			if r.Section != o.Sections[i].Name {
				continue
			}
			var ent [coffRelocSize]byte
			le.PutUint32(ent[0:], uint32(r.Offset))
			le.PutUint32(ent[4:], symIndex[r.Sym])
			le.PutUint16(ent[8:], uint16(r.Type))
			out = append(out, ent[:]...)
			count++
		}
		if count > 0 {
			h := out[coffHeaderSize+coffSectionSize*i:]
			le.PutUint32(h[24:], start)
			le.PutUint16(h[32:], count)
		}
	}

	// Symbol table.
	symoff := uint32(len(out))
	for i := range o.Sections {
		s := &o.Sections[i]
		var ent, aux [coffSymSize]byte
		putName(ent[:], s.Name)
		le.PutUint16(ent[12:], uint16(i+1))
		ent[16] = 3 // IMAGE_SYM_CLASS_STATIC
		ent[17] = 1
		le.PutUint32(aux[0:], uint32(s.size()))
		out = append(append(out, ent[:]...), aux[:]...)
	}
	for _, s := range o.Syms {
		var ent [coffSymSize]byte
		putName(ent[:], s.Name)
		value := uint32(s.Value)
		var shn int16
		switch s.Section {
		case Undefined:
			value = 0
		case Common:
			value = uint32(s.Size)
		case Absolute:
			shn = -1
		default:
			shn = int16(o.sectionIndex(s.Section) + 1)
		}
		le.PutUint32(ent[8:], value)
		le.PutUint16(ent[12:], uint16(shn))
		ent[16] = 3
		if s.Global || s.Section == Common {
			ent[16] = 2 // IMAGE_SYM_CLASS_EXTERNAL
		}
		if s.Func {
			le.PutUint16(ent[14:], 0x20)
			ent[17] = 1
		}
		out = append(out, ent[:]...)
		if s.Func {
			var aux [coffSymSize]byte
			le.PutUint32(aux[4:], uint32(s.Size))
			out = append(out, aux[:]...)
		}
	}
	le.PutUint32(str, uint32(len(str)))
	out = append(out, str...)

	machine := uint16(pe.IMAGE_FILE_MACHINE_AMD64)
	if o.Machine == ARM64 {
		machine = pe.IMAGE_FILE_MACHINE_ARM64
	}
	le.PutUint16(out[0:], machine)
	le.PutUint16(out[2:], uint16(nsects))
	le.PutUint32(out[8:], symoff)
	le.PutUint32(out[12:], n)

	// debug/pe reads a fixed-size DOS header probe before checking
	// the magic, so small objects need padding.
	for len(out) < 96 {
		out = append(out, 0)
	}
	return out
}
