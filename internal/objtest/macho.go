// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objtest

import (
	"debug/macho"
	"encoding/binary"
)

const (
	machoHeaderSize  = 32
	machoSegmentSize = 72
	machoSectionSize = 80
	machoSymtabSize  = 24
	machoNlistSize   = 16
)

func machoNames(s *Section) (sect, seg string, flags uint32) {
	switch s.Kind {
	case Text:
		return s.Name, "__TEXT", 0x80000400
	case ROData:
		return s.Name, "__TEXT", 0
	case BSS:
		return s.Name, "__DATA", 0x1
	case Debug:
		return s.Name, "__DWARF", 0x02000000
	}
	return s.Name, "__DATA", 0
}

func putName16(b []byte, s string) {
	copy(b[:16], s)
}

// MachO64 returns o encoded as a little-endian 64-bit Mach-O MH_OBJECT
// with a single unnamed segment. Symbol sizes are not recorded.
func (o *Object) MachO64() []byte {
	le := binary.LittleEndian

	// Assign addresses back to back.
	addrs := make([]uint64, len(o.Sections))
	var vmsize uint64
	for i := range o.Sections {
		addrs[i] = vmsize
		vmsize += o.Sections[i].size()
	}

	symIndex := map[string]uint32{}
	for i, s := range o.Syms {
		symIndex[s.Name] = uint32(i)
	}

	nsects := len(o.Sections)
	segCmdSize := machoSegmentSize + machoSectionSize*nsects
	sizeofcmds := segCmdSize + machoSymtabSize
	out := make([]byte, machoHeaderSize+sizeofcmds)

	// Section contents.
	offs := make([]uint32, nsects)
	fileoff := uint64(len(out))
	for i := range o.Sections {
		s := &o.Sections[i]
		if s.Kind == BSS {
			continue
		}
		out = align(out, 8)
		offs[i] = uint32(len(out))
		out = append(out, s.Data...)
	}
	filesize := uint64(len(out)) - fileoff

	// Relocations.
	reloffs := make([]uint32, nsects)
	nrelocs := make([]uint32, nsects)
	for i := range o.Sections {
		out = align(out, 4)
		reloffs[i] = uint32(len(out))
		for _, r := range o.Relocs {
			if r.Section != o.Sections[i].Name {
				continue
			}
			var ent [8]byte
			le.PutUint32(ent[0:], uint32(r.Offset))
			var info uint32
			switch {
			case r.Sym != "":
				info = symIndex[r.Sym] | 1<<27
			case r.Target != "":
				info = uint32(o.sectionIndex(r.Target) + 1)
			default:
				info = uint32(r.Addend) & (1<<24 - 1)
			}
			if r.PCRel {
				info |= 1 << 24
			}
			info |= uint32(r.Length&3) << 25
			info |= (r.Type & 0xf) << 28
			le.PutUint32(ent[4:], info)
			out = append(out, ent[:]...)
			nrelocs[i]++
		}
		if nrelocs[i] == 0 {
			reloffs[i] = 0
		}
	}

	// Symbol and string tables.
	str := newStrtab()
	out = align(out, 8)
	symoff := uint32(len(out))
	for _, s := range o.Syms {
		var ent [machoNlistSize]byte
		le.PutUint32(ent[0:], str.add(s.Name))
		var typ uint8
		var sect uint8
		value := s.Value
		switch s.Section {
		case Undefined:
			value = 0
		case Common:
			value = s.Size
		case Absolute:
			typ = 0x2
		default:
			typ = 0xe
			i := o.sectionIndex(s.Section)
			sect = uint8(i + 1)
			value += addrs[i]
		}
		if s.Global {
			typ |= 0x1
		}
		ent[4] = typ
		ent[5] = sect
		le.PutUint64(ent[8:], value)
		out = append(out, ent[:]...)
	}
	stroff := uint32(len(out))
	out = append(out, str.b...)

	// Header.
	cpu, sub := macho.CpuAmd64, uint32(3)
	if o.Machine == ARM64 {
		cpu, sub = macho.CpuArm64, 0
	}
	le.PutUint32(out[0:], macho.Magic64)
	le.PutUint32(out[4:], uint32(cpu))
	le.PutUint32(out[8:], sub)
	le.PutUint32(out[12:], uint32(macho.TypeObj))
	le.PutUint32(out[16:], 2)
	le.PutUint32(out[20:], uint32(sizeofcmds))

	// LC_SEGMENT_64.
	seg := out[machoHeaderSize:]
	le.PutUint32(seg[0:], uint32(macho.LoadCmdSegment64))
	le.PutUint32(seg[4:], uint32(segCmdSize))
	le.PutUint64(seg[24:], 0)
	le.PutUint64(seg[32:], vmsize)
	le.PutUint64(seg[40:], fileoff)
	le.PutUint64(seg[48:], filesize)
	le.PutUint32(seg[56:], 7)
	le.PutUint32(seg[60:], 7)
	le.PutUint32(seg[64:], uint32(nsects))
	for i := range o.Sections {
		s := &o.Sections[i]
		h := seg[machoSegmentSize+machoSectionSize*i:]
		name, segname, flags := machoNames(s)
		putName16(h[0:], name)
		putName16(h[16:], segname)
		le.PutUint64(h[32:], addrs[i])
		le.PutUint64(h[40:], s.size())
		le.PutUint32(h[48:], offs[i])
		le.PutUint32(h[56:], reloffs[i])
		le.PutUint32(h[60:], nrelocs[i])
		le.PutUint32(h[64:], flags)
	}

	// LC_SYMTAB.
	st := out[machoHeaderSize+segCmdSize:]
	le.PutUint32(st[0:], uint32(macho.LoadCmdSymtab))
	le.PutUint32(st[4:], machoSymtabSize)
	le.PutUint32(st[8:], symoff)
	le.PutUint32(st[12:], uint32(len(o.Syms)))
	le.PutUint32(st[16:], stroff)
	le.PutUint32(st[20:], uint32(len(str.b)))
	return out
}
