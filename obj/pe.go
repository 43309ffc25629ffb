// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aclements/go-symex/arch"
)

type peFile struct {
	f        *pe.File
	arch     *arch.Arch
	relClass relocClassID
	data     []byte
	image    bool
	sections []*peSection
	symbols  []Sym

	// rawToSym maps COFF symbol table indexes (counting auxiliary
	// records) to SymIDs. Auxiliary records map to NoSym.
	rawToSym []SymID
}

type peArch struct {
	arch     *arch.Arch
	relClass relocClassID
}

var peArches = map[uint16]peArch{
	pe.IMAGE_FILE_MACHINE_AMD64: {arch.AMD64, rcPEAMD64},
	pe.IMAGE_FILE_MACHINE_I386:  {arch.I386, rcPE386},
	pe.IMAGE_FILE_MACHINE_ARM64: {arch.ARM64, rcPEARM64},
}

// COFF symbol table constants that debug/pe does not export.
const (
	coffSymUndefined     = 0
	coffSymAbsolute      = -1
	coffClassExternal    = 2
	coffClassStatic      = 3
	coffClassWeakExt     = 105
	coffDerivedFunction  = 2
	coffScnCode          = 0x20
	coffScnInitialized   = 0x40
	coffScnUninitialized = 0x80
	coffScnLnkInfo       = 0x200
	coffScnLnkRemove     = 0x800
	coffScnMemWrite      = 0x80000000
)

func openPE(data []byte) (bool, File, error) {
	// Is this a PE image or a bare COFF object?
	if len(data) < 2 {
		return false, nil, nil
	}
	if string(data[:2]) != "MZ" {
		if _, ok := peArches[binary.LittleEndian.Uint16(data)]; !ok {
			return false, nil, nil
		}
	}

	ff, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return true, nil, err
	}
	pa := peArches[ff.Machine]
	f := &peFile{f: ff, arch: pa.arch, relClass: pa.relClass, data: data, image: ff.OptionalHeader != nil}

	for rawID, ps := range ff.Sections {
		s := &Section{
			File:  f,
			Name:  ps.Name,
			ID:    SectionID(len(f.sections)),
			RawID: rawID,
			Size:  uint64(ps.Size),
			Kind:  peSectionKind(ps),
		}
		if f.image {
			s.Addr = uint64(ps.VirtualAddress)
			if ps.VirtualSize != 0 {
				s.Size = uint64(ps.VirtualSize)
			}
			s.SetMapped(true)
		}
		if ps.Characteristics&coffScnMemWrite == 0 {
			s.SetReadOnly(true)
		}
		if ps.Characteristics&coffScnUninitialized != 0 || ps.Offset == 0 {
			s.SetZeroInitialized(true)
		}
		f.sections = append(f.sections, &peSection{Section: s, pe: ps})
	}

	f.readSymbols()
	return true, f, nil
}

// readSymbols decodes the COFF symbol table, skipping auxiliary
// records. Function symbols take their size from the function
// definition auxiliary record. Remaining sizes are synthesized from
// symbol addresses.
func (f *peFile) readSymbols() {
	raw := f.f.COFFSymbols
	f.rawToSym = make([]SymID, len(raw))
	for i := 0; i < len(raw); i++ {
		cs := &raw[i]
		f.rawToSym[i] = SymID(len(f.symbols))

		var sym Sym
		name, err := cs.FullName(f.f.StringTable)
		if err != nil {
			sym.SetBadName(true)
		} else {
			sym.Name = name
		}
		switch cs.StorageClass {
		case coffClassExternal, coffClassWeakExt:
		default:
			sym.SetLocal(true)
		}

		switch {
		case cs.SectionNumber > 0 && int(cs.SectionNumber) <= len(f.sections):
			sec := f.sections[cs.SectionNumber-1].Section
			sym.Section = sec
			sym.Value = sec.Addr + uint64(cs.Value)
			sym.Kind = symKindOfSection(sec.Kind)
			if cs.StorageClass == coffClassStatic && cs.Value == 0 && cs.NumberOfAuxSymbols > 0 && name == sec.Name {
				sym.Kind = SymSection
			}
		case cs.SectionNumber == coffSymUndefined:
			if cs.StorageClass == coffClassExternal && cs.Value != 0 {
				sym.Kind = SymCommon
				sym.Size = uint64(cs.Value)
			} else {
				sym.Kind = SymUndef
			}
		case cs.SectionNumber == coffSymAbsolute:
			sym.Kind = SymAbsolute
			sym.Value = uint64(cs.Value)
		default:
			sym.Kind = SymUnknown
			sym.Value = uint64(cs.Value)
		}

		nAux := int(cs.NumberOfAuxSymbols)
		if nAux > 0 && i+1 < len(raw) && (cs.Type>>4)&0x3 == coffDerivedFunction && sym.Section != nil {
			// Function definition record: TagIndex, TotalSize, ...
			sym.Size = uint64(binary.LittleEndian.Uint32(raw[i+1].Name[4:8]))
		}
		f.symbols = append(f.symbols, sym)

		for j := 0; j < nAux && i+1 < len(raw); j++ {
			i++
			f.rawToSym[i] = NoSym
		}
	}
	SynthesizeSizes(f.symbols)
}

func peSectionKind(ps *pe.Section) SectionKind {
	c := ps.Characteristics
	switch {
	case strings.HasPrefix(ps.Name, ".debug"):
		return SectionDebug
	case c&(coffScnLnkInfo|coffScnLnkRemove) != 0:
		return SectionMetadata
	case c&coffScnCode != 0:
		return SectionText
	case strings.HasPrefix(ps.Name, ".tls"):
		if c&coffScnUninitialized != 0 {
			return SectionTLSBSS
		}
		return SectionTLS
	case c&coffScnUninitialized != 0:
		return SectionBSS
	case c&coffScnInitialized != 0:
		if c&coffScnMemWrite != 0 {
			return SectionData
		}
		return SectionROData
	}
	return SectionUnknown
}

func (f *peFile) Sym(i SymID) Sym { return f.symbols[i] }
func (f *peFile) NumSyms() SymID  { return SymID(len(f.symbols)) }

func (f *peFile) Close() {
	for _, s := range f.sections {
		s.padded = nil
	}
}

func (f *peFile) Info() FileInfo {
	return FileInfo{Arch: f.arch, Format: FormatPE}
}

// AsDebugPE is implemented by File types that can return an underlying
// *debug/pe.File.
type AsDebugPE interface {
	File
	AsDebugPE() *pe.File
}

func (f *peFile) AsDebugPE() *pe.File {
	return f.f
}

var _ AsDebugPE = (*peFile)(nil)

type peSection struct {
	*Section

	pe *pe.Section

	// padded holds the contents of an image section whose virtual size
	// exceeds its stored size.
	paddedOnce sync.Once
	padded     []byte

	relocsOnce sync.Once
	relocs     []Reloc
	relocsErr  error
}

func (s *peSection) String() string {
	return fmt.Sprintf("%s [%d]", s.Name, s.RawID)
}

func (f *peFile) Sections() []*Section {
	out := make([]*Section, len(f.sections))
	for i, ps := range f.sections {
		out[i] = ps.Section
	}
	return out
}

func (f *peFile) Section(i SectionID) *Section {
	return f.sections[i].Section
}

func (f *peFile) sectionRaw(s *Section) ([]byte, error) {
	ps := f.sections[s.ID].pe
	size := uint64(ps.Size)
	if f.image && ps.VirtualSize != 0 && uint64(ps.VirtualSize) < size {
		// The stored size is rounded up to the file alignment.
		size = uint64(ps.VirtualSize)
	}
	return rawRange(f.data, uint64(ps.Offset), size)
}

// sectionBytes returns the full in-memory contents of s.
func (f *peFile) sectionBytes(s *peSection) ([]byte, error) {
	b, _, err := s.Uncompressed()
	if err != nil || uint64(len(b)) >= s.Size {
		return b, err
	}
	s.paddedOnce.Do(func() {
		s.padded = make([]byte, s.Size)
		copy(s.padded, b)
	})
	return s.padded, nil
}

func (f *peFile) sectionData(s *Section, addr, size uint64, d *Data) (*Data, error) {
	if addr+size < addr {
		panic("address overflow")
	}
	if addr < s.Addr || addr+size > s.Addr+s.Size {
		panic(fmt.Sprintf("requested data [0x%x, 0x%x) is outside section [0x%x, 0x%x)", addr, addr+size, s.Addr, s.Addr+s.Size))
	}
	ps := f.sections[s.ID]
	bytes, err := f.sectionBytes(ps)
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

func (f *peFile) sectionRelocs(s *Section) ([]Reloc, error) {
	ps := f.sections[s.ID]
	ps.relocsOnce.Do(func() {
		ps.relocs, ps.relocsErr = f.readRelocs(ps)
	})
	return ps.relocs, ps.relocsErr
}

// readRelocs decodes the COFF relocations of s. COFF stores addends in
// place, so each addend is read from the section contents.
func (f *peFile) readRelocs(s *peSection) ([]Reloc, error) {
	if len(s.pe.Relocs) == 0 {
		return nil, nil
	}
	bytes, err := f.sectionBytes(s)
	if err != nil {
		return nil, err
	}
	relocs := make([]Reloc, 0, len(s.pe.Relocs))
	for i, pr := range s.pe.Relocs {
		r := Reloc{
			Addr:    s.Addr + uint64(pr.VirtualAddress),
			Type:    makeRelocType(f.relClass, uint32(pr.Type)),
			Symbol:  NoSym,
			Section: NoSection,
		}
		if int(pr.SymbolTableIndex) >= len(f.rawToSym) {
			return nil, fmt.Errorf("relocation %d in section %s: bad symbol index %d", i, s, pr.SymbolTableIndex)
		}
		r.Symbol = f.rawToSym[pr.SymbolTableIndex]
		cls, _ := relocClasses[f.relClass].(relocClassPE)
		if info, ok := cls.m[pr.Type]; ok && info.inPlace {
			off := uint64(pr.VirtualAddress)
			size := uint64(info.size)
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

func (f *peFile) ResolveAddr(addr uint64) *Section {
	if !f.image {
		return nil
	}
	for _, ps := range f.sections {
		if ps.Addr <= addr && addr-ps.Addr < ps.Size {
			return ps.Section
		}
	}
	return nil
}

type peReloc struct {
	name string
	size int8
	// inPlace is set if the addend is stored as a plain integer at the
	// relocation target rather than in instruction fields.
	inPlace bool
}

// COFF relocation types, keyed by machine. debug/pe does not export
// these.
var peRelocsAMD64 = map[uint16]peReloc{
	0x00: {"ABSOLUTE", 0, false},
	0x01: {"ADDR64", 8, true},
	0x02: {"ADDR32", 4, true},
	0x03: {"ADDR32NB", 4, true},
	0x04: {"REL32", 4, true},
	0x05: {"REL32_1", 4, true},
	0x06: {"REL32_2", 4, true},
	0x07: {"REL32_3", 4, true},
	0x08: {"REL32_4", 4, true},
	0x09: {"REL32_5", 4, true},
	0x0a: {"SECTION", 2, true},
	0x0b: {"SECREL", 4, true},
	0x0d: {"TOKEN", 4, true},
	0x0e: {"SREL32", 4, true},
	0x0f: {"PAIR", 4, false},
	0x10: {"SSPAN32", 4, true},
}

var peRelocs386 = map[uint16]peReloc{
	0x00: {"ABSOLUTE", 0, false},
	0x01: {"DIR16", 2, true},
	0x02: {"REL16", 2, true},
	0x06: {"DIR32", 4, true},
	0x07: {"DIR32NB", 4, true},
	0x0a: {"SECTION", 2, true},
	0x0b: {"SECREL", 4, true},
	0x0c: {"TOKEN", 4, true},
	0x14: {"REL32", 4, true},
}

var peRelocsARM64 = map[uint16]peReloc{
	0x00: {"ABSOLUTE", 0, false},
	0x01: {"ADDR32", 4, true},
	0x02: {"ADDR32NB", 4, true},
	0x03: {"BRANCH26", 4, false},
	0x04: {"PAGEBASE_REL21", 4, false},
	0x05: {"REL21", 4, false},
	0x06: {"PAGEOFFSET_12A", 4, false},
	0x07: {"PAGEOFFSET_12L", 4, false},
	0x08: {"SECREL", 4, true},
	0x09: {"SECREL_LOW12A", 4, false},
	0x0a: {"SECREL_HIGH12A", 4, false},
	0x0b: {"SECREL_LOW12L", 4, false},
	0x0c: {"TOKEN", 4, true},
	0x0d: {"SECTION", 2, true},
	0x0e: {"ADDR64", 8, true},
	0x0f: {"BRANCH19", 4, false},
	0x10: {"BRANCH14", 4, false},
	0x11: {"REL32", 4, true},
}

type relocClassPE struct {
	prefix string
	m      map[uint16]peReloc
}

func (c relocClassPE) String(val uint32) string {
	if r, ok := c.m[uint16(val)]; ok && val <= 0xffff {
		return c.prefix + r.name
	}
	return fmt.Sprintf("%s%#x", c.prefix, val)
}

func (c relocClassPE) Size(val uint32) int {
	if r, ok := c.m[uint16(val)]; ok && val <= 0xffff {
		return int(r.size)
	}
	return -1
}
