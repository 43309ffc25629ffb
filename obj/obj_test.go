// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"testing"

	"github.com/aclements/go-symex/internal/objtest"
)

func TestOpenNonObject(t *testing.T) {
	_, err := Open([]byte("AAA"))
	if err == nil {
		t.Fatalf("Open succeeded unexpectedly")
	}
	want := "unrecognized object file format"
	if err.Error() != want {
		t.Fatalf("want error %q, got %q", want, err.Error())
	}
}

func TestFormat(t *testing.T) {
	for _, test := range []struct {
		f        Format
		name     string
		explicit bool
	}{
		{FormatELF, "elf", true},
		{FormatMachO, "macho", false},
		{FormatPE, "pe", true},
	} {
		if got := test.f.String(); got != test.name {
			t.Errorf("%d: want name %q, got %q", test.f, test.name, got)
		}
		if got := test.f.SizesExplicit(); got != test.explicit {
			t.Errorf("%s: want SizesExplicit %v, got %v", test.f, test.explicit, got)
		}
	}

	defer func() {
		if recover() == nil {
			t.Errorf("SizesExplicit of unknown format did not panic")
		}
	}()
	Format(0).SizesExplicit()
}

func TestHasDebugInfo(t *testing.T) {
	o := &objtest.Object{Sections: []objtest.Section{{Name: ".text", Kind: objtest.Text, Data: []byte{0xc3}}}}
	f, err := Open(o.ELF64())
	if err != nil {
		t.Fatal(err)
	}
	if HasDebugInfo(f) {
		t.Errorf("object without .debug_info reported debug info")
	}

	o.Sections = append(o.Sections, objtest.Section{Name: ".debug_info", Kind: objtest.Debug, Data: []byte{1, 2, 3}})
	f, err = Open(o.ELF64())
	if err != nil {
		t.Fatal(err)
	}
	if !HasDebugInfo(f) {
		t.Errorf("object with .debug_info reported no debug info")
	}
}

func TestNMClass(t *testing.T) {
	text := &Section{Kind: SectionText}
	tls := &Section{Kind: SectionTLS}
	other := &Section{Kind: SectionDebug}
	local := SymFlags{symFlagLocal}
	for _, test := range []struct {
		sym  Sym
		want byte
	}{
		{Sym{Section: text, Kind: SymText}, 'T'},
		{Sym{Section: text, Kind: SymText, SymFlags: local}, 't'},
		{Sym{Section: tls, Kind: SymData, SymFlags: local}, 'd'},
		{Sym{Section: text, Kind: SymSection, SymFlags: local}, 't'},
		{Sym{Section: other, Kind: SymUnknown}, '?'},
		{Sym{Kind: SymUndef}, 'U'},
		{Sym{Kind: SymCommon}, 'C'},
		{Sym{Kind: SymAbsolute, SymFlags: local}, 'A'},
		{Sym{Kind: SymUndef, SymFlags: local}, 'U'},
		{Sym{Kind: SymCommon, SymFlags: local}, 'C'},
		{Sym{Kind: SymUnknown}, '?'},
	} {
		if got := test.sym.NMClass(); got != test.want {
			t.Errorf("%+v: want %c, got %c", test.sym, test.want, got)
		}
	}
}
