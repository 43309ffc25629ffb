// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aclements/go-symex/arch"
	"github.com/aclements/go-symex/internal/objtest"
)

func TestCOFF(t *testing.T) {
	text := make([]byte, 16)
	copy(text[2:], []byte{0xfc, 0xff, 0xff, 0xff}) // Implicit addend -4.
	o := &objtest.Object{
		Sections: []objtest.Section{
			{Name: ".text", Kind: objtest.Text, Data: text},
			{Name: ".data", Kind: objtest.Data, Data: make([]byte, 8)},
			{Name: ".bss", Kind: objtest.BSS, Size: 16},
		},
		Syms: []objtest.Sym{
			{Name: "main", Section: ".text", Value: 0, Size: 8, Global: true, Func: true},
			{Name: "a_long_helper_name", Section: ".text", Value: 8, Size: 8, Func: true},
			{Name: "counter", Section: ".data", Global: true},
			{Name: "puts", Global: true},
		},
		Relocs: []objtest.Reloc{
			{Section: ".text", Offset: 2, Sym: "puts", Type: 0x4}, // IMAGE_REL_AMD64_REL32,
		},
	}
	f, err := Open(o.COFF())
	if err != nil {
		t.Fatalf("Open failed unexpectedly: %v", err)
	}
	defer f.Close()

	if info := f.Info(); info.Arch != arch.AMD64 || info.Format != FormatPE {
		t.Errorf("want amd64/pe, got %v/%v", info.Arch, info.Format)
	}

	type symTest struct {
		Name  string
		Value uint64
		Size  uint64
		Kind  SymKind
		Class byte
	}
	var got []symTest
	for i := SymID(0); i < f.NumSyms(); i++ {
		s := f.Sym(i)
		got = append(got, symTest{s.Name, s.Value, s.Size, s.Kind, s.NMClass()})
	}
	want := []symTest{
		// Section definitions, sized from their sections.
		{".text", 0, 16, SymSection, 't'},
		{".data", 0, 8, SymSection, 'd'},
		{".bss", 0, 16, SymSection, 'b'},
		// Function sizes come from the auxiliary record.
		{"main", 0, 8, SymText, 'T'},
		{"a_long_helper_name", 8, 8, SymText, 't'},
		// Other sizes are synthesized.
		{"counter", 0, 8, SymData, 'D'},
		{"puts", 0, 0, SymUndef, 'U'},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}
	if s := f.Sym(5); !s.SizeSynthesized() {
		t.Errorf("symbol counter: size should be synthesized")
	}

	relocs, err := f.Section(0).Relocs()
	if err != nil {
		t.Fatal(err)
	}
	if len(relocs) != 1 {
		t.Fatalf("want 1 relocation, got %d", len(relocs))
	}
	r := relocs[0]
	if r.Addr != 2 || r.Symbol != 6 || r.Addend != -4 || r.Type.String() != "IMAGE_REL_AMD64_REL32" || r.Type.Size() != 4 {
		t.Errorf("want IMAGE_REL_AMD64_REL32 at 0x2 to puts-4, got %s at %#x to %d%+d", r.Type, r.Addr, r.Symbol, r.Addend)
	}

	bss := f.Section(2)
	if !bss.ZeroInitialized() || bss.Kind != SectionBSS {
		t.Errorf("section .bss: want zero-initialized BSS, got kind %s", bss.Kind)
	}
}
