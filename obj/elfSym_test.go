// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"testing"
)

var local = SymFlags{symFlagLocal}

func TestElfSyms(t *testing.T) {
	f := openTestELF(t)

	if got := f.NumSyms(); got != 8 {
		t.Errorf("want 8 syms, got %d", got)
	}

	type symTest struct {
		sym     Sym
		section string
		class   byte
	}
	// Locals come first in the symbol table.
	want := map[SymID]symTest{
		0: {Sym{Name: "helper", Value: 8, Size: 8, Kind: SymText, SymFlags: local}, ".text", 't'},
		1: {Sym{Name: "msg", Value: 0, Size: 4, Kind: SymROData, SymFlags: local}, ".rodata", 'r'},
		2: {Sym{Name: "main", Value: 0, Size: 8, Kind: SymText}, ".text", 'T'},
		3: {Sym{Name: "counter", Value: 0, Size: 8, Kind: SymData}, ".data", 'D'},
		4: {Sym{Name: "buf", Value: 0, Size: 32, Kind: SymBSS}, ".bss", 'B'},
		5: {Sym{Name: "puts", Kind: SymUndef}, "", 'U'},
		6: {Sym{Name: "comm", Value: 8, Size: 16, Kind: SymCommon}, "", 'C'},
		7: {Sym{Name: "abs", Value: 0x1234, Kind: SymAbsolute}, "", 'A'},
	}
	for id, w := range want {
		got := f.Sym(id)
		var gotSection string
		if got.Section != nil {
			gotSection = got.Section.Name
		}
		if got.Name != w.sym.Name || got.Value != w.sym.Value || got.Size != w.sym.Size ||
			got.Kind != w.sym.Kind || got.SymFlags != w.sym.SymFlags || gotSection != w.section {
			t.Errorf("symbol %d: want %+v in %q, got %+v in %q", id, w.sym, w.section, got, gotSection)
		}
		if c := got.NMClass(); c != w.class {
			t.Errorf("symbol %s: want class %c, got %c", got.Name, w.class, c)
		}
	}

	// Symbol data.
	main := f.Sym(2)
	data, err := main.Section.Data(main.Bounds())
	if err != nil {
		t.Fatalf("symbol main: error getting data: %v", err)
	}
	if !bytes.Equal(data.P, testText[:8]) {
		t.Errorf("symbol main: data not as expected")
	}
}
