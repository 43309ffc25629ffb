// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/macho"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aclements/go-symex/arch"
	"github.com/aclements/go-symex/internal/objtest"
)

func TestMachOX86_64(t *testing.T) {
	text := make([]byte, 16)
	text[11] = 0x10 // Implicit addend of the __data relocation.
	o := &objtest.Object{
		Sections: []objtest.Section{
			{Name: "__text", Kind: objtest.Text, Data: text},
			{Name: "__data", Kind: objtest.Data, Data: make([]byte, 8)},
			{Name: "__bss", Kind: objtest.BSS, Size: 16},
		},
		Syms: []objtest.Sym{
			{Name: "_main", Section: "__text", Value: 0, Global: true},
			{Name: "_helper", Section: "__text", Value: 8},
			{Name: "_counter", Section: "__data", Global: true},
			{Name: "_buf", Section: "__bss", Global: true},
			{Name: "_puts", Global: true},
		},
		Relocs: []objtest.Reloc{
			{Section: "__text", Offset: 11, Target: "__data", Type: uint32(macho.X86_64_RELOC_SIGNED), Length: 2, PCRel: true},
			{Section: "__text", Offset: 2, Sym: "_puts", Type: uint32(macho.X86_64_RELOC_BRANCH), Length: 2, PCRel: true},
		},
	}
	f, err := Open(o.MachO64())
	if err != nil {
		t.Fatalf("Open failed unexpectedly: %v", err)
	}
	defer f.Close()

	if info := f.Info(); info.Arch != arch.AMD64 || info.Format != FormatMachO {
		t.Errorf("want amd64/macho, got %v/%v", info.Arch, info.Format)
	}

	type sect struct {
		Name       string
		Addr, Size uint64
		Kind       SectionKind
		Zero       bool
	}
	var gotSects []sect
	for _, s := range f.Sections() {
		gotSects = append(gotSects, sect{s.Name, s.Addr, s.Size, s.Kind, s.ZeroInitialized()})
	}
	wantSects := []sect{
		{"__text", 0, 16, SectionText, false},
		{"__data", 16, 8, SectionData, false},
		{"__bss", 24, 16, SectionBSS, true},
	}
	if diff := cmp.Diff(wantSects, gotSects); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}

	type symTest struct {
		Name  string
		Value uint64
		Size  uint64
		Kind  SymKind
		Class byte
	}
	var gotSyms []symTest
	for i := SymID(0); i < f.NumSyms(); i++ {
		s := f.Sym(i)
		gotSyms = append(gotSyms, symTest{s.Name, s.Value, s.Size, s.Kind, s.NMClass()})
	}
	wantSyms := []symTest{
		{"_main", 0, 0, SymText, 'T'},
		{"_helper", 8, 0, SymText, 't'},
		{"_counter", 16, 0, SymData, 'D'},
		{"_buf", 24, 0, SymBSS, 'B'},
		{"_puts", 0, 0, SymUndef, 'U'},
	}
	if diff := cmp.Diff(wantSyms, gotSyms); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}

	relocs, err := f.Section(0).Relocs()
	if err != nil {
		t.Fatal(err)
	}
	wantRelocs := []Reloc{
		{Addr: 2, Type: makeRelocType(rcMachoX86_64, uint32(macho.X86_64_RELOC_BRANCH)), Symbol: 4, Section: NoSection},
		{Addr: 11, Type: makeRelocType(rcMachoX86_64, uint32(macho.X86_64_RELOC_SIGNED)), Symbol: NoSym, Section: 1, Addend: 16},
	}
	if diff := cmp.Diff(wantRelocs, relocs, cmp.AllowUnexported(RelocType{})); diff != "" {
		t.Errorf("relocations mismatch (-want +got):\n%s", diff)
	}
	if got := relocs[0].Type.String(); got != "X86_64_RELOC_BRANCH" {
		t.Errorf("want type X86_64_RELOC_BRANCH, got %s", got)
	}
}

func TestMachOARM64Addend(t *testing.T) {
	data := make([]byte, 8)
	data[0] = 0x20
	o := &objtest.Object{
		Machine: objtest.ARM64,
		Sections: []objtest.Section{
			{Name: "__text", Kind: objtest.Text, Data: []byte{0, 0, 0, 0x90, 0xc0, 0x03, 0x5f, 0xd6}},
			{Name: "__data", Kind: objtest.Data, Data: data},
		},
		Syms: []objtest.Sym{
			{Name: "_f", Section: "__text", Global: true},
			{Name: "_g", Global: true},
		},
		Relocs: []objtest.Reloc{
			{Section: "__text", Offset: 0, Type: uint32(macho.ARM64_RELOC_ADDEND), Addend: 8, Length: 2},
			{Section: "__text", Offset: 0, Sym: "_g", Type: uint32(macho.ARM64_RELOC_PAGE21), Length: 2, PCRel: true},
			{Section: "__data", Offset: 0, Sym: "_g", Type: uint32(macho.ARM64_RELOC_UNSIGNED), Length: 3},
		},
	}
	f, err := Open(o.MachO64())
	if err != nil {
		t.Fatalf("Open failed unexpectedly: %v", err)
	}
	if f.Info().Arch != arch.ARM64 {
		t.Errorf("want arm64, got %v", f.Info().Arch)
	}

	text, err := f.Section(0).Relocs()
	if err != nil {
		t.Fatal(err)
	}
	if len(text) != 1 {
		t.Fatalf("want the ADDEND entry folded into one relocation, got %d", len(text))
	}
	if text[0].Addend != 8 || text[0].Symbol != 1 || text[0].Type.String() != "ARM64_RELOC_PAGE21" {
		t.Errorf("want ARM64_RELOC_PAGE21 _g+8, got %s %d%+d", text[0].Type, text[0].Symbol, text[0].Addend)
	}

	dataRelocs, err := f.Section(1).Relocs()
	if err != nil {
		t.Fatal(err)
	}
	if len(dataRelocs) != 1 || dataRelocs[0].Addend != 0x20 || dataRelocs[0].Addr != 8 {
		t.Errorf("want UNSIGNED at 0x8 with implicit addend 0x20, got %+v", dataRelocs)
	}
}
