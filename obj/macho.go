// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/aclements/go-symex/arch"
)

type machoFile struct {
	f        *macho.File
	arch     *arch.Arch
	relClass relocClassID
	data     []byte
	sections []*machoSection
	symbols  []Sym

	// rawToSym maps Mach-O symbol table indexes to SymIDs. Debugging
	// (stab) entries map to NoSym.
	rawToSym []SymID
}

type machoArch struct {
	arch     *arch.Arch
	relClass relocClassID
}

var machoArches = map[macho.Cpu]machoArch{
	macho.CpuAmd64: {arch.AMD64, rcMachoX86_64},
	macho.CpuArm64: {arch.ARM64, rcMachoARM64},
	macho.Cpu386:   {arch.I386, rcUnknown},
}

// Mach-O header and nlist constants that debug/macho does not export.
const (
	machoSectionTypeMask       = 0xff
	machoZerofill              = 0x1
	machoGBZerofill            = 0xc
	machoThreadLocalRegular    = 0x11
	machoThreadLocalZerofill   = 0x12
	machoAttrPureInstructions  = 0x80000000
	machoAttrSomeInstructions  = 0x400
	machoSymStabMask           = 0xe0
	machoSymTypeMask           = 0x0e
	machoSymExt                = 0x01
	machoSymUndf               = 0x0
	machoSymAbs                = 0x2
	machoSymSect               = 0xe
	machoRelocARM64Addend      = 10
	machoRelocARM64Unsigned    = 0
	machoRelocX86_64Subtractor = 5
	machoRelocARM64AddendBits  = 24
)

func (f *machoFile) Sym(i SymID) Sym { return f.symbols[i] }
func (f *machoFile) NumSyms() SymID  { return SymID(len(f.symbols)) }

func openMachO(data []byte) (bool, File, error) {
	// Is this a little-endian Mach-O file?
	if len(data) < 4 {
		return false, nil, nil
	}
	switch binary.LittleEndian.Uint32(data) {
	case macho.Magic64, macho.Magic32:
	default:
		return false, nil, nil // not MachO
	}

	// All errors after this point should return (true, _, err).

	ff, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return true, nil, err
	}
	ma := machoArches[ff.Cpu]
	f := &machoFile{f: ff, arch: ma.arch, relClass: ma.relClass, data: data}

	// Read section table.
	for rawID, machoSect := range ff.Sections {
		s := &Section{
			File:  f,
			Name:  machoSect.Name,
			ID:    SectionID(len(f.sections)), // 0-based
			RawID: rawID,                      // 0-based
			Addr:  machoSect.Addr,
			Size:  machoSect.Size,
			Kind:  machoSectionKind(machoSect),
		}
		switch machoSect.Flags & machoSectionTypeMask {
		case machoZerofill, machoGBZerofill, machoThreadLocalZerofill:
			s.SetZeroInitialized(true)
		}
		switch s.Kind {
		case SectionText, SectionROData:
			s.SetReadOnly(true)
		}
		if ff.Type != macho.TypeObj {
			s.SetMapped(true)
		}

		ms := &machoSection{Section: s, macho: machoSect}
		f.sections = append(f.sections, ms)
	}

	// Read symbol table.
	if ff.Symtab != nil {
		f.rawToSym = make([]SymID, len(ff.Symtab.Syms))
		for i, s := range ff.Symtab.Syms {
			if s.Type&machoSymStabMask != 0 {
				f.rawToSym[i] = NoSym
				continue // Skip stab debug info.
			}
			f.rawToSym[i] = SymID(len(f.symbols))
			f.symbols = append(f.symbols, f.machoSym(s))
		}
	}

	return true, f, nil
}

// machoSym converts a Mach-O nlist entry. Mach-O does not record symbol
// sizes, so Size is always 0.
func (f *machoFile) machoSym(s macho.Symbol) Sym {
	sym := Sym{Name: s.Name, Value: s.Value, Kind: SymUnknown}
	sym.SetLocal(s.Type&machoSymExt == 0)
	switch s.Type & machoSymTypeMask {
	case machoSymUndf:
		if s.Value != 0 && s.Type&machoSymExt != 0 {
			// A tentative definition; Value is its size.
			sym.Kind = SymCommon
			sym.Size, sym.Value = s.Value, 0
		} else {
			sym.Kind = SymUndef
		}
	case machoSymAbs:
		sym.Kind = SymAbsolute
	case machoSymSect:
		if s.Sect == 0 || int(s.Sect) > len(f.sections) {
			break
		}
		sym.Section = f.sections[s.Sect-1].Section
		sym.Kind = symKindOfSection(sym.Section.Kind)
	}
	return sym
}

// machoSectionKind categorizes a Mach-O section by its type, attributes,
// and segment.
func machoSectionKind(s *macho.Section) SectionKind {
	switch s.Flags & machoSectionTypeMask {
	case machoZerofill, machoGBZerofill:
		return SectionBSS
	case machoThreadLocalZerofill:
		return SectionTLSBSS
	case machoThreadLocalRegular:
		return SectionTLS
	}
	if s.Flags&(machoAttrPureInstructions|machoAttrSomeInstructions) != 0 {
		return SectionText
	}
	switch s.Seg {
	case "__TEXT":
		if s.Name == "__text" {
			return SectionText
		}
		return SectionROData
	case "__DATA":
		switch s.Name {
		case "__const":
			return SectionROData
		case "__bss", "__common":
			return SectionBSS
		}
		return SectionData
	case "__DATA_CONST":
		return SectionROData
	case "__DWARF":
		return SectionDebug
	case "__LD":
		return SectionMetadata
	}
	return SectionUnknown
}

func (f *machoFile) Close() {
	for _, s := range f.sections {
		s.relocs = nil
	}
}

func (f *machoFile) Info() FileInfo {
	return FileInfo{Arch: f.arch, Format: FormatMachO}
}

// AsDebugMacho is implemented by File types that can return an underlying
// *debug/macho.File for format-specific access. AsDebugMacho may return
// nil, so the caller must both check that the type implements
// AsDebugMacho and check the result of calling AsDebugMacho.
type AsDebugMacho interface {
	File
	AsDebugMacho() *macho.File
}

func (f *machoFile) AsDebugMacho() *macho.File {
	return f.f
}

// Assert that machoFile implements AsDebugMacho.
var _ AsDebugMacho = (*machoFile)(nil)

type machoSection struct {
	// These fields are populated on loading.

	*Section

	macho *macho.Section

	relocsOnce sync.Once
	relocs     []Reloc
	relocsErr  error
}

func (s *machoSection) String() string {
	return fmt.Sprintf("%s [%d]", s.Name, s.RawID)
}

func (f *machoFile) Sections() []*Section {
	out := make([]*Section, len(f.sections))
	for i, ms := range f.sections {
		out[i] = ms.Section
	}
	return out
}

func (f *machoFile) Section(i SectionID) *Section {
	return f.sections[i].Section
}

func (f *machoFile) sectionData(s *Section, addr, size uint64, d *Data) (*Data, error) {
	// Validate requested range.
	if addr+size < addr {
		panic("address overflow")
	}
	if addr < s.Addr || addr+size > s.Addr+s.Size {
		panic(fmt.Sprintf("requested data [0x%x, 0x%x) is outside section [0x%x, 0x%x)", addr, addr+size, s.Addr, s.Addr+s.Size))
	}

	bytes, _, err := s.Uncompressed()
	if err != nil {
		return nil, err
	}
	relocs, err := f.sectionRelocs(s)
	if err != nil {
		return nil, err
	}

	*d = Data{Addr: addr, P: bytes[addr-s.Addr:][:size], R: relocs}
	if f.arch != nil {
		d.Layout = f.arch.Layout
	} else {
		d.Layout = arch.NewLayout(binary.LittleEndian, 8)
	}
	return d, nil
}

func (f *machoFile) sectionRaw(s *Section) ([]byte, error) {
	ms := f.sections[s.ID].macho
	return rawRange(f.data, uint64(ms.Offset), ms.Size)
}

func (f *machoFile) sectionRelocs(s *Section) ([]Reloc, error) {
	ms := f.sections[s.ID]
	ms.relocsOnce.Do(func() {
		ms.relocs, ms.relocsErr = f.readRelocs(ms)
	})
	return ms.relocs, ms.relocsErr
}

// readRelocs decodes the relocation entries of s. Entries store section
// offsets; the results use addresses. ARM64_RELOC_ADDEND entries are
// folded into the relocation that follows them.
func (f *machoFile) readRelocs(s *machoSection) ([]Reloc, error) {
	if len(s.macho.Relocs) == 0 {
		return nil, nil
	}
	var bytes []byte
	relocs := make([]Reloc, 0, len(s.macho.Relocs))
	var pendingAddend int64
	havePending := false
	for i, mr := range s.macho.Relocs {
		if f.relClass == rcMachoARM64 && !mr.Scattered && mr.Type == machoRelocARM64Addend {
			// Value is a 24-bit signed addend for the next entry.
			shift := 64 - machoRelocARM64AddendBits
			pendingAddend = int64(uint64(mr.Value)<<shift) >> shift
			havePending = true
			continue
		}

		r := Reloc{
			Addr:    s.Addr + uint64(mr.Addr),
			Type:    makeRelocType(f.relClass, uint32(mr.Type)),
			Symbol:  NoSym,
			Section: NoSection,
		}
		switch {
		case mr.Scattered:
			// Scattered entries name an address, not a symbol or section.
		case mr.Extern:
			if int(mr.Value) >= len(f.rawToSym) {
				return nil, fmt.Errorf("relocation %d in section %s: bad symbol index %d", i, s, mr.Value)
			}
			r.Symbol = f.rawToSym[mr.Value]
		default:
			if mr.Value == 0 || int(mr.Value) > len(f.sections) {
				return nil, fmt.Errorf("relocation %d in section %s: bad section ordinal %d", i, s, mr.Value)
			}
			r.Section = SectionID(mr.Value - 1)
		}

		switch {
		case havePending:
			r.Addend = pendingAddend
			havePending = false
		case f.implicitAddend(mr):
			if bytes == nil {
				var err error
				bytes, _, err = s.Uncompressed()
				if err != nil {
					return nil, err
				}
			}
			size := uint64(1) << mr.Len
			off := uint64(mr.Addr)
			if off+size > uint64(len(bytes)) {
				return nil, fmt.Errorf("relocation %d in section %s: offset %#x out of range", i, s, off)
			}
			r.Addend, _ = f.arch.Layout.Signed(bytes[off:], int(size))
		}
		relocs = append(relocs, r)
	}

	sort.SliceStable(relocs, func(i, j int) bool {
		return relocs[i].Addr < relocs[j].Addr
	})
	return relocs, nil
}

// implicitAddend reports whether the addend of mr is stored at its
// target location. x86-64 stores every addend in place. ARM64 only does
// so for pointer-sized data relocations.
func (f *machoFile) implicitAddend(mr macho.Reloc) bool {
	if mr.Scattered {
		return false
	}
	switch f.relClass {
	case rcMachoX86_64:
		return mr.Type != machoRelocX86_64Subtractor
	case rcMachoARM64:
		return mr.Type == machoRelocARM64Unsigned
	}
	return false
}

func (f *machoFile) ResolveAddr(addr uint64) *Section {
	if f.f.Type == macho.TypeObj {
		return nil
	}
	for _, ms := range f.sections {
		if ms.Addr <= addr && addr-ms.Addr < ms.Size {
			return ms.Section
		}
	}
	return nil
}
