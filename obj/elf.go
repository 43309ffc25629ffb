// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/aclements/go-symex/arch"
)

type elfFile struct {
	f *elf.File
	elfArch

	// data is the whole file. Uncompressed section data aliases it.
	data []byte

	// elfLayout is the data layout of the ELF file itself (as opposed
	// to the architecture).
	elfLayout arch.Layout
	// symSize is the size of a SYMTAB entry in bytes.
	symSize uint64

	// relocatable is true if this is a REL-type file. In this case,
	// there's no meaningful mapped address space and relocations store
	// section-relative offsets instead of virtual addresses.
	relocatable bool

	// sections contains the sections of this object file, indexed by
	// internal ID (not ELF section number).
	sections []*elfSection

	// shnToSection maps ELF section numbers to *elfSection objects.
	//
	// In general, prefer lookupShn, which performs checking.
	shnToSection []*elfSection

	// symTabs stores the static (index 0) and dynamic (index 1) symbol
	// tables, if they exist.
	//
	// [TIS ELF 1.2 Book III, p. 1-2] There may be at most one of each
	// type of symbol table section.
	symTabs [2]elfSymTab
}

type elfArch struct {
	arch *arch.Arch

	relClass relocClassID
}

var elfArches = map[elf.Machine]elfArch{
	elf.EM_X86_64:  {arch.AMD64, rcElfX86_64},
	elf.EM_386:     {arch.I386, rcElf386},
	elf.EM_AARCH64: {arch.ARM64, rcElfAArch64},
}

func openElf(data []byte) (bool, File, error) {
	// Is this an ELF file?
	if len(data) < 4 || !bytes.Equal(data[:4], []byte(elf.ELFMAG)) {
		return false, nil, nil
	}
	// If there are errors past this point, we assume it's ELF and we
	// should report the error.

	ff, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return true, nil, err
	}

	f := &elfFile{f: ff, elfArch: elfArches[ff.Machine], data: data}

	// Set per-class constants.
	var elfWordSize int
	switch ff.Class {
	default:
		return true, nil, fmt.Errorf("unknown ELF class %s", ff.Class)
	case elf.ELFCLASS32:
		elfWordSize = 4
		f.symSize = elf.Sym32Size
	case elf.ELFCLASS64:
		elfWordSize = 8
		f.symSize = elf.Sym64Size
	}
	f.elfLayout = arch.NewLayout(ff.ByteOrder, elfWordSize)
	f.relocatable = ff.Type == elf.ET_REL

	// Process section table.
	var relSections []*elfSection
	var relocatableSections []*elfSection
	f.shnToSection = make([]*elfSection, len(ff.Sections))
	for elfID, elfSect := range ff.Sections {
		if elfSect.Type == elf.SHT_NULL {
			continue
		}

		// Add to sections.
		s := &Section{
			File:  f,
			Name:  elfSect.Name,
			ID:    SectionID(len(f.sections)),
			RawID: elfID,
			Addr:  elfSect.Addr,
			Size:  elfSect.Size,
			Kind:  elfSectionKind(elfSect),
		}
		if !f.relocatable && elfSect.Flags&elf.SHF_ALLOC != 0 {
			// We ignore allocatable sections in reloctable objects:
			// these sections turn into mapped sections *after linking*,
			// but don't have meaningful addresses right now.
			s.SetMapped(true)
		}
		if elfSect.Flags&elf.SHF_WRITE == 0 {
			s.SetReadOnly(true)
		}
		if elfSect.Type == elf.SHT_NOBITS {
			s.SetZeroInitialized(true)
		}
		if err := f.setCompression(s, elfSect); err != nil {
			return true, nil, err
		}

		es := &elfSection{Section: s, elf: elfSect}
		f.sections = append(f.sections, es)
		f.shnToSection[elfID] = es

		// Track sections we're interested in.
		switch elfSect.Type {
		case elf.SHT_SYMTAB:
			f.symTabs[0].section = es
		case elf.SHT_DYNSYM:
			f.symTabs[1].section = es
		case elf.SHT_REL, elf.SHT_RELA:
			relSections = append(relSections, es)
		}
		if elfSect.Flags&elf.SHF_ALLOC != 0 && es.canHaveRelocs() {
			// Add to the list of sections to which section-less
			// relocations apply. Section-less relocations only get
			// applied to sections that are actually loaded
			// ("allocatable"). This is important because non-alloctable
			// sections may overlap the loadable address space, but may
			// have relocations of their own (e.g., DWARF sections).
			relocatableSections = append(relocatableSections, es)
		}
	}

	// Process relocation sections.
	for _, es := range relSections {
		// Find this section's symbol table.
		var symTab *elfSymTab
		shnSyms := elf.SectionIndex(es.elf.Link)
		if shnSyms == 0 {
			// The section number may be zero if none of the relocations
			// reference any symbols. You see this in, e.g., .rel.plt
			// sections.
			symTab = emptyElfSymTab
		} else {
			symSection, ok := f.lookupShn(shnSyms)
			if !ok {
				return true, nil, fmt.Errorf("relocation section %s references bad symbol section %d", es, shnSyms)
			}
			for i := range f.symTabs {
				if f.symTabs[i].section == symSection {
					symTab = &f.symTabs[i]
					break
				}
			}
			if symTab == nil {
				return true, nil, fmt.Errorf("relocation section %s references non-symbol section %s", es, symSection)
			}
		}
		es.rel = &elfSectionRel{symTab: symTab}

		// Relocation sections indicate which section they apply to.
		// Reverse this mapping so we can quickly find which relocations
		// apply to a section.
		shnTarget := elf.SectionIndex(es.elf.Info)
		if shnTarget == 0 {
			// This relocation section applies to all (loadable)
			// sections. This only makes sense in non-relocatable
			// objects because the relocations must be virtually indexed.
			if f.relocatable {
				return true, nil, fmt.Errorf("relocation section %s uses section offsets, but has no target section", es)
			}
			for _, ls := range relocatableSections {
				ls.relocSections = append(ls.relocSections, es)
			}
		} else {
			target, ok := f.lookupShn(shnTarget)
			if !ok {
				return true, nil, fmt.Errorf("relocation section %s references missing target section %d", es, shnTarget)
			}
			if target.canHaveRelocs() {
				target.relocSections = append(target.relocSections, es)
				es.rel.target = target
			}
		}
	}

	// For each symbol table, compute its global index range and get its
	// string section.
	var nSyms SymID
	for i := range f.symTabs {
		symTab := &f.symTabs[i]
		es := symTab.section
		if es == nil {
			// This file doesn't have this type of symbol table.
			symTab.start = nSyms
			symTab.end = symTab.start
			continue
		}

		err := f.elfSectionData(es, es.Addr, es.Size, &symTab.data)
		if err != nil {
			return true, nil, fmt.Errorf("reading symbol table: %w", err)
		}
		symTab.data.Layout = f.elfLayout

		// Compute index range. Entry 0 is the null symbol.
		count := SymID(0)
		if n := es.Size / f.symSize; n > 0 {
			count = SymID(n - 1)
		}
		symTab.start = nSyms
		symTab.end = symTab.start + count
		nSyms += count

		strShn := elf.SectionIndex(es.elf.Link)
		strSection, ok := f.lookupShn(strShn)
		if !ok || strSection.elf.Type != elf.SHT_STRTAB {
			return true, nil, fmt.Errorf("symbol table %s references bad string section %d", es, strShn)
		}
		strAddr, strSize := strSection.Bounds()
		err = f.elfSectionData(strSection, strAddr, strSize, &symTab.strings)
		if err != nil {
			return true, nil, fmt.Errorf("reading string table %s: %w", es, err)
		}
		symTab.strings.Layout = f.elfLayout
	}

	return true, f, nil
}

// elfSectionKind categorizes an ELF section by type and flags.
func elfSectionKind(es *elf.Section) SectionKind {
	switch es.Type {
	case elf.SHT_SYMTAB, elf.SHT_DYNSYM, elf.SHT_STRTAB, elf.SHT_REL, elf.SHT_RELA,
		elf.SHT_HASH, elf.SHT_GNU_HASH, elf.SHT_DYNAMIC, elf.SHT_GROUP, elf.SHT_SYMTAB_SHNDX,
		elf.SHT_GNU_VERSYM, elf.SHT_GNU_VERDEF, elf.SHT_GNU_VERNEED:
		return SectionMetadata
	}
	if es.Flags&elf.SHF_ALLOC == 0 {
		if strings.HasPrefix(es.Name, ".debug") || strings.HasPrefix(es.Name, ".zdebug") {
			return SectionDebug
		}
		return SectionUnknown
	}
	nobits := es.Type == elf.SHT_NOBITS
	switch {
	case es.Flags&elf.SHF_TLS != 0 && nobits:
		return SectionTLSBSS
	case es.Flags&elf.SHF_TLS != 0:
		return SectionTLS
	case es.Flags&elf.SHF_EXECINSTR != 0:
		return SectionText
	case nobits:
		return SectionBSS
	case es.Flags&elf.SHF_WRITE != 0:
		return SectionData
	}
	return SectionROData
}

// setCompression determines how s is compressed on disk. debug/elf has
// already replaced the Size of SHF_COMPRESSED sections with the
// uncompressed size, but not for legacy .zdebug sections.
func (f *elfFile) setCompression(s *Section, es *elf.Section) error {
	if es.Type == elf.SHT_NOBITS {
		return nil
	}
	if es.Flags&elf.SHF_COMPRESSED != 0 {
		raw, err := rawRange(f.data, es.Offset, es.FileSize)
		if err != nil {
			return fmt.Errorf("section %s: %w", es.Name, err)
		}
		var typ uint32
		switch f.f.Class {
		case elf.ELFCLASS32:
			s.payloadOff = 12
		case elf.ELFCLASS64:
			s.payloadOff = 24
		}
		if uint64(len(raw)) < s.payloadOff {
			return fmt.Errorf("section %s: truncated compression header", es.Name)
		}
		typ = f.f.ByteOrder.Uint32(raw)
		switch elf.CompressionType(typ) {
		case elf.COMPRESS_ZLIB:
			s.Compression = CompressZlib
		case elf.COMPRESS_ZSTD:
			s.Compression = CompressZstd
		default:
			return fmt.Errorf("section %s: unknown compression type %d", es.Name, typ)
		}
		return nil
	}
	if strings.HasPrefix(es.Name, ".zdebug") {
		raw, err := rawRange(f.data, es.Offset, es.FileSize)
		if err != nil {
			return fmt.Errorf("section %s: %w", es.Name, err)
		}
		if len(raw) >= 12 && string(raw[:4]) == "ZLIB" {
			s.Compression = CompressZlib
			s.payloadOff = 12
			s.Size = binary.BigEndian.Uint64(raw[4:12])
		}
	}
	return nil
}

func (f *elfFile) Close() {
	for _, s := range f.sections {
		s.data = nil
	}
}

func (f *elfFile) Info() FileInfo {
	return FileInfo{Arch: f.arch, Format: FormatELF}
}

// AsDebugElf is implemented by File types that can return an underlying
// *debug/elf.File for format-specific access. AsDebugElf may return
// nil, so the caller must both check that the type implements
// AsDebugElf and check the result of calling AsDebugElf.
type AsDebugElf interface {
	AsDebugElf() *elf.File
}

func (f *elfFile) AsDebugElf() *elf.File {
	return f.f
}

// Assert that elfFile implements AsDebugElf.
var _ AsDebugElf = (*elfFile)(nil)

type elfSection struct {
	// These fields are populated on loading.

	*Section

	elf *elf.Section

	relocSections []*elfSection // Relocation sections that modify this section

	rel *elfSectionRel // For relocation sections

	dataOnce sync.Once
	data     []byte
	dataErr  error

	relocsOnce sync.Once
	relocs     []Reloc // Relocations that apply to this section. Sorted by Addr.
	relocsErr  error
}

func (s *elfSection) String() string {
	return fmt.Sprintf("%s [%d]", s.Name, s.RawID)
}

// canHaveRelocs returns whether this section can have relocations
// applied.
//
// We narrow this down because otherwise its common to see, e.g., a
// relocation section that applies to itself (because it applies to all
// loadable sections), which tends to lead to infinite loops. We don't
// want to apply relocations to any ELF metadata sections.
func (s *elfSection) canHaveRelocs() bool {
	switch s.elf.Type {
	case elf.SHT_PROGBITS, elf.SHT_NOBITS, elf.SHT_INIT_ARRAY, elf.SHT_FINI_ARRAY, elf.SHT_PREINIT_ARRAY:
		return true
	}
	return s.elf.Type >= elf.SHT_LOPROC
}

// lookupShn returns the *elfSection for a raw ELF section number and
// whether or not the section exists.
func (f *elfFile) lookupShn(shn elf.SectionIndex) (*elfSection, bool) {
	if shn < elf.SectionIndex(len(f.shnToSection)) {
		es := f.shnToSection[shn]
		return es, es != nil
	}
	return nil, false
}

func (f *elfFile) Sections() []*Section {
	out := make([]*Section, len(f.sections))
	for i, es := range f.sections {
		out[i] = es.Section
	}
	return out
}

func (f *elfFile) Section(i SectionID) *Section {
	return f.sections[i].Section
}

func (f *elfFile) sectionData(s *Section, addr, size uint64, d *Data) (*Data, error) {
	err := f.elfSectionData(f.sections[s.ID], addr, size, d)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (f *elfFile) elfSectionData(s *elfSection, addr, size uint64, d *Data) error {
	// Validate requested range.
	if addr+size < addr {
		panic("address overflow")
	}
	if addr < s.Addr || addr+size > s.Addr+s.Size {
		panic(fmt.Sprintf("requested data [0x%x, 0x%x) is outside section [0x%x, 0x%x)", addr, addr+size, s.Addr, s.Addr+s.Size))
	}

	// Read the section and its relocations.
	bytes, err := f.sectionBytes(s)
	if err != nil {
		return err
	}
	relocs, err := f.elfSectionRelocs(s)
	if err != nil {
		return err
	}

	*d = Data{Addr: addr, P: bytes[addr-s.Addr:][:size], R: relocs}
	if f.arch != nil {
		d.Layout = f.arch.Layout
	} else {
		d.Layout = f.elfLayout
	}

	return nil
}

func (f *elfFile) sectionRaw(s *Section) ([]byte, error) {
	es := f.sections[s.ID].elf
	return rawRange(f.data, es.Offset, es.FileSize)
}

// sectionBytes returns the uncompressed contents of s, caching any
// buffer it has to allocate.
func (f *elfFile) sectionBytes(s *elfSection) (data []byte, err error) {
	s.dataOnce.Do(func() {
		s.data, _, s.dataErr = s.Uncompressed()
	})
	return s.data, s.dataErr
}

func (f *elfFile) sectionRelocs(s *Section) ([]Reloc, error) {
	return f.elfSectionRelocs(f.sections[s.ID])
}

func (f *elfFile) ResolveAddr(addr uint64) *Section {
	if f.relocatable {
		// Relocatable object files don't have any meaningful load
		// addresses (even though sections can be marked allocatable).
		return nil
	}

	for _, es := range f.sections {
		// Only consider sections that will be loaded into the address space.
		if es.elf.Flags&elf.SHF_ALLOC == 0 {
			continue
		}

		if es.Addr <= addr && addr-es.Addr < es.Size {
			return es.Section
		}
	}

	return nil
}
