// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obj provide a common abstraction for working with different
// object formats.
package obj

import (
	"fmt"
	"strings"

	"github.com/aclements/go-symex/arch"
)

// Open attempts to parse data as a known object file format.
//
// The returned File borrows data: section bytes returned by
// Section.Raw and uncompressed Section.Uncompressed results alias it.
// The caller must keep data alive and unmodified for the life of the
// File.
func Open(data []byte) (File, error) {
	if isElf, f, err := openElf(data); isElf {
		return f, err
	}
	if isMachO, f, err := openMachO(data); isMachO {
		return f, err
	}
	if isPE, f, err := openPE(data); isPE {
		return f, err
	}
	return nil, fmt.Errorf("unrecognized object file format")
}

// A File represents an object file.
type File interface {
	// Close releases any resources held by this object file.
	Close()

	// Info returns metadata about the whole object file.
	Info() FileInfo

	// Sections returns a slice of sections in this object file, indexed
	// by SectionID.
	//
	// All data in the object file (code, program data, etc) is stored
	// in sections. Often many metadata tables (e.g., symbol tables) are
	// as well.
	//
	// All addresses within an object file, such as symbol addresses,
	// relocation targets, etc. are relative to some section of the
	// object file. In an unlinked object file, typically none of the
	// sections have base addresses (ELF, COFF), or sections are laid
	// out back to back starting at 0 (Mach-O).
	Sections() []*Section

	// Section returns the i'th section. If i is out of range, it panics.
	Section(i SectionID) *Section

	// sectionData implements Section.Data. On success, it should
	// populate *d and return d, nil. If there's an error, it should
	// return nil and the error.
	sectionData(s *Section, addr, size uint64, d *Data) (*Data, error)

	// sectionRaw implements Section.Raw.
	sectionRaw(s *Section) ([]byte, error)

	// sectionRelocs implements Section.Relocs.
	sectionRelocs(s *Section) ([]Reloc, error)

	// ResolveAddr finds the Section containing the given address in the
	// "loaded" address space. It returns nil if addr is not in the
	// loaded address space. Relocatable objects generally don't have
	// any loaded address space at all.
	ResolveAddr(addr uint64) *Section

	// Sym returns i'th symbol. If i is our of range, it panics.
	Sym(i SymID) Sym

	// NumSyms returns the number of symbols.
	//
	// If an object file has more than one symbol table, they will be
	// concatenated. As a result, the "same" symbol may appear multiple times.
	NumSyms() SymID
}

type FileInfo struct {
	// Arch is the machine architecture of this object file, or
	// nil if unknown.
	Arch *arch.Arch

	// Format is the container format of this object file.
	Format Format
}

// Format identifies an object file container format.
//
// The set of formats is closed. Code that needs format-specific
// behavior should switch over all values and panic on the default case
// so that adding a format finds every such site.
type Format uint8

const (
	FormatELF Format = 1 + iota
	FormatMachO
	FormatPE
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "macho"
	case FormatPE:
		return "pe"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// SizesExplicit reports whether the format stores symbol sizes in its
// symbol table. Mach-O does not, so Mach-O symbols have Size 0.
func (f Format) SizesExplicit() bool {
	switch f {
	case FormatELF, FormatPE:
		return true
	case FormatMachO:
		return false
	}
	panic(fmt.Sprintf("unknown object format %d", f))
}

// SectionID is an index for a section in an object file. These indexes
// are compact and start at 0.
//
// These may not correspond to any section numbering used by the object
// format itself; see Section.RawID for this. For example, ELF section
// number 0 is reserved, so this slice starts at section 1 in ELF
// objects.
type SectionID int

// NoSection is a placeholder SectionID used to indicate "no section".
const NoSection SectionID = -1

// A Section is a contiguous region of address space in an object file.
//
// An object file may have multiple sections whose addresses are not
// meaningfully related, so addresses within an object file must always
// be specified with respect to a given section.
type Section struct {
	// File is the object file containing this section.
	File File

	// Name is the name of this section. This typically follows platform
	// conventions, such as ".text" or "__text", but isn't necessarily
	// meaningful.
	Name string

	// ID is the obj-internal index of this section.
	ID SectionID

	// RawID is the index of this section in the underlying format's
	// representation, or -1 if this is not meaningful.
	RawID int

	// Addr is the virtual address at which this section begins in
	// memory, or 0 if either this section should not be loaded into
	// memory, or it has not yet been assigned a meaningful address.
	Addr uint64

	// Size is the size of this section in memory, in bytes.
	//
	// This may not be the size of the section on disk. For example, a
	// section that is all zeros may not be represented on disk at all,
	// or the section on disk may be compressed.
	Size uint64

	// Kind is the general category of this section's contents.
	Kind SectionKind

	// Compression is the encoding of this section's stored bytes.
	Compression Compression

	// payloadOff is the offset of the compressed stream within the
	// stored bytes, past any compression header.
	payloadOff uint64

	// SectionFlags stores flags for this section. This field is
	// embedded so Section inherits the methods of SectionFlags.
	SectionFlags
}

// Data reads size bytes of data from this section, starting at the
// given address. It panics if the requested byte range is out of range
// for the section.
func (s *Section) Data(addr, size uint64) (*Data, error) {
	// This approach allows the allocation of Data to be inlined into
	// the caller, where it can often be stack-allocated.
	var d Data
	return s.File.sectionData(s, addr, size, &d)
}

// Raw returns the bytes of s as stored in the file, which may be
// compressed. The result aliases the File's input and must not be
// modified. Zero-initialized sections have no stored bytes.
func (s *Section) Raw() ([]byte, error) {
	if s.ZeroInitialized() {
		return nil, nil
	}
	return s.File.sectionRaw(s)
}

// Uncompressed returns the full contents of s. If s is stored
// uncompressed, the result aliases the File's input and owned is
// false. Otherwise the result is a newly allocated buffer (the
// decompressed or zero-filled contents) and owned is true.
//
// Uncompressed does no caching; every call on a compressed section
// decompresses it again.
func (s *Section) Uncompressed() (data []byte, owned bool, err error) {
	if s.ZeroInitialized() {
		return make([]byte, s.Size), true, nil
	}
	raw, err := s.File.sectionRaw(s)
	if err != nil {
		return nil, false, err
	}
	if s.Compression == CompressNone {
		return raw, false, nil
	}
	if s.payloadOff > uint64(len(raw)) {
		return nil, false, fmt.Errorf("section %s: compression header past end of data", s.Name)
	}
	data, err = decompress(s.Compression, raw[s.payloadOff:], s.Size)
	if err != nil {
		return nil, false, fmt.Errorf("decompressing section %s: %w", s.Name, err)
	}
	return data, true, nil
}

// Relocs returns the relocations that apply to s, sorted by address.
// The result is shared and must not be modified.
func (s *Section) Relocs() ([]Reloc, error) {
	return s.File.sectionRelocs(s)
}

// Bounds returns the starting address and size in bytes of Section s.
func (s *Section) Bounds() (addr, size uint64) {
	return s.Addr, s.Size
}

func (s *Section) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}

// SectionKind is the general category of a section's contents.
type SectionKind uint8

const (
	SectionUnknown SectionKind = iota
	SectionText
	SectionData
	SectionROData
	SectionBSS
	SectionTLS
	SectionTLSBSS
	SectionDebug
	// SectionMetadata covers symbol tables, string tables, relocation
	// tables, and other format bookkeeping.
	SectionMetadata
)

var sectionKindNames = [...]string{
	SectionUnknown:  "unknown",
	SectionText:     "text",
	SectionData:     "data",
	SectionROData:   "rodata",
	SectionBSS:      "bss",
	SectionTLS:      "tls",
	SectionTLSBSS:   "tlsbss",
	SectionDebug:    "debug",
	SectionMetadata: "metadata",
}

func (k SectionKind) String() string {
	if int(k) < len(sectionKindNames) {
		return sectionKindNames[k]
	}
	return fmt.Sprintf("SectionKind(%d)", uint8(k))
}

// SectionFlags is a set of section flags.
type SectionFlags struct {
	f sectionFlags
}

type sectionFlags uint8

const (
	sectionFlagReadOnly sectionFlags = 1 << iota
	sectionFlagZeroInitialized
	sectionFlagMapped
)

// ReadOnly indicates a section's data is read-only.
func (s SectionFlags) ReadOnly() bool {
	return s.f&sectionFlagReadOnly != 0
}

// SetReadOnly sets the ReadOnly flag to v.
func (s *SectionFlags) SetReadOnly(v bool) {
	s.set(sectionFlagReadOnly, v)
}

// ZeroInitialized indicates a section has no stored data and is all
// zeros in memory.
func (s SectionFlags) ZeroInitialized() bool {
	return s.f&sectionFlagZeroInitialized != 0
}

// SetZeroInitialized sets the ZeroInitialized flag to v.
func (s *SectionFlags) SetZeroInitialized(v bool) {
	s.set(sectionFlagZeroInitialized, v)
}

// Mapped indicates a section is part of the loaded address space, so
// its address is meaningful across sections.
func (s SectionFlags) Mapped() bool {
	return s.f&sectionFlagMapped != 0
}

// SetMapped sets the Mapped flag to v.
func (s *SectionFlags) SetMapped(v bool) {
	s.set(sectionFlagMapped, v)
}

func (s *SectionFlags) set(flag sectionFlags, v bool) {
	if v {
		s.f |= flag
	} else {
		s.f &^= flag
	}
}

// HasDebugInfo reports whether f carries debug information sections
// (DWARF or CodeView).
func HasDebugInfo(f File) bool {
	for _, s := range f.Sections() {
		switch {
		case s.Name == ".debug_info", s.Name == ".zdebug_info", s.Name == "__debug_info":
			return true
		case strings.HasPrefix(s.Name, ".debug$"):
			return true
		}
	}
	return false
}

// rawRange returns data[off:off+size] or an error if that range is not
// in data.
func rawRange(data []byte, off, size uint64) ([]byte, error) {
	if off > uint64(len(data)) || size > uint64(len(data))-off {
		return nil, fmt.Errorf("range [%#x,+%#x) is outside file of size %#x", off, size, len(data))
	}
	return data[off : off+size : off+size], nil
}
