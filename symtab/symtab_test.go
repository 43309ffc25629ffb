// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symtab

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/aclements/go-symex/internal/objtest"
	"github.com/aclements/go-symex/obj"
)

var section1 = &obj.Section{Name: "section1", Addr: 1000, Size: 100} // Mapped
var section2 = &obj.Section{Name: "section2", Addr: 2000, Size: 100} // Mapped
var section3 = &obj.Section{Name: "section3", Addr: 3000, Size: 100} // NOT mapped

func init() {
	section1.SetMapped(true)
	section2.SetMapped(true)
}

func TestAddr(t *testing.T) {
	// Basic address lookup test.
	tab := NewTable([]obj.Sym{
		0: {Section: section1, Value: 1000, Size: 10},
		1: {Section: section1, Value: 1050, Size: 10},
		2: {Section: section2, Value: 2000, Size: 10},
		3: {Section: section3, Value: 3000, Size: 10},
	})
	check := func(label string, section *obj.Section, addr uint64, want obj.SymID) {
		t.Helper()
		got := tab.Addr(section, addr)
		if want != got {
			t.Errorf("%s: looking up (%s, %d) want %d, got %d", label, section, addr, want, got)
		}
	}
	check("beginning of symbol", section1, 1000, 0)
	check("beginning of symbol", section1, 1050, 1)
	check("beginning of symbol", section2, 2000, 2)
	check("beginning of symbol", section3, 3000, 3)

	check("end of symbol", section1, 1009, 0)
	check("end of symbol", section1, 1059, 1)
	check("just past end of symbol", section1, 1010, obj.NoSym)
	check("just past end of symbol", section1, 1060, obj.NoSym)

	check("any mapped section checks all mapped sections", section1, 2000, 2)
	check("nil section checks all mapped sections", nil, 2000, 2)
	check("mapped section does not check unmapped sections", section1, 3000, obj.NoSym)
	check("nil section does not checks unmapped sections", nil, 3000, obj.NoSym)

	check("before first symbol", section1, 100, obj.NoSym)
	check("before first symbol", nil, 100, obj.NoSym)

	sectionUnknown := &obj.Section{Name: "unknown"}
	check("unknown unmapped section", sectionUnknown, 1000, obj.NoSym)
	sectionUnknown.SetMapped(true)
	check("unknown mapped section", sectionUnknown, 1000, 0)
}

func TestSyms(t *testing.T) {
	syms := []obj.Sym{
		0: {Section: section1, Value: 1000, Size: 10},
		1: {Section: section1, Value: 1010, Size: 10},
	}
	tab := NewTable(syms)
	got := tab.Syms()
	if !reflect.DeepEqual(syms, got) {
		t.Fatalf("want %v, got %v", syms, got)
	}
}

func TestOverlap(t *testing.T) {
	const minAddr = 1000
	syms := []obj.Sym{
		// Strictly nested.
		{Value: 1000, Size: 3},
		{Value: 1001, Size: 1},
		// Same beginning. Smaller symbols should be preferred.
		{Value: 1010, Size: 5},
		{Value: 1010, Size: 4},
		{Value: 1010, Size: 3},
		// Same end.
		{Value: 1020, Size: 5},
		{Value: 1021, Size: 4},
		{Value: 1022, Size: 3},
		// Overlap in the middle with same size. Earlier symbol should be preferred.
		{Value: 1030, Size: 5},
		{Value: 1032, Size: 5},
		// Nested abutting symbols.
		{Value: 1040, Size: 5},
		{Value: 1041, Size: 1},
		{Value: 1042, Size: 1},
		// Same end nested in another symbol.
		{Value: 1050, Size: 5},
		{Value: 1051, Size: 2},
		{Value: 1052, Size: 1},
		// Totally overlapping. Lower SymIDs should be preferred.
		{Value: 1060, Size: 1},
		{Value: 1060, Size: 1},
	}
	const maxAddr = 1070
	for i := range syms {
		syms[i].Section = section1
		syms[i].Name = fmt.Sprintf("sym%d", i)
	}

	// For this test, we compare against a brute-force reference
	// implementation.
	prefer := func(a, b obj.SymID) bool {
		sa, sb := &syms[a], &syms[b]
		if sa.Value != sb.Value {
			return sa.Value > sb.Value
		}
		if sa.Size != sb.Size {
			return sa.Size < sb.Size
		}
		return a < b
	}
	slow := func(addr uint64) obj.SymID {
		best := obj.NoSym
		for i := range syms {
			i := obj.SymID(i)
			if syms[i].Value <= addr && addr < syms[i].Value+syms[i].Size {
				// Candidate.
				if best == obj.NoSym || prefer(i, best) {
					best = i
				}
			}
		}
		return best
	}

	tab := NewTable(syms)
	for addr := uint64(minAddr); addr < maxAddr; addr++ {
		want := slow(addr)
		got := tab.Addr(nil, addr)
		if want != got {
			t.Errorf("at address %d: want symbol %s, got %s", addr, want, got)
		}
	}
}

func TestInferSize(t *testing.T) {
	text := &obj.Section{Name: "text", Addr: 100, Size: 50}
	tab := NewTable([]obj.Sym{
		0: {Section: text, Value: 100},
		1: {Section: text, Value: 100},
		2: {Section: text, Value: 120},
		3: {Section: text, Value: 140},
		4: {Section: text, Value: 100, Kind: obj.SymSection},
		5: {Section: section3, Value: 3050},
	})
	check := func(section *obj.Section, addr, want uint64, wantOK bool) {
		t.Helper()
		got, ok := tab.InferSize(section, addr)
		if got != want || ok != wantOK {
			t.Errorf("InferSize(%s, %d) = %d, %v; want %d, %v", section, addr, got, ok, want, wantOK)
		}
	}
	check(text, 100, 20, true) // Aliases share one start.
	check(text, 120, 20, true)
	check(text, 140, 10, true) // Last symbol runs to the section end.
	check(text, 130, 0, false)
	check(section3, 3050, 50, true)
	check(section1, 1000, 0, false)
}

func TestNewInfersMachOSizes(t *testing.T) {
	o := &objtest.Object{
		Machine: objtest.AMD64,
		Sections: []objtest.Section{
			{Name: "__text", Kind: objtest.Text, Data: make([]byte, 32)},
			{Name: "__data", Kind: objtest.Data, Data: make([]byte, 8)},
		},
		Syms: []objtest.Sym{
			{Name: "_a", Section: "__text", Value: 0, Global: true},
			{Name: "_b", Section: "__text", Value: 12, Global: true},
			{Name: "_v", Section: "__data", Value: 0, Global: true},
			{Name: "_ext", Section: objtest.Undefined, Global: true},
		},
	}
	f, err := obj.Open(o.MachO64())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tab := New(f)
	sizes := make(map[string]uint64)
	for _, s := range tab.Syms() {
		sizes[s.Name] = s.Size
		if s.Section != nil && !s.SizeSynthesized() {
			t.Errorf("%s: size not marked synthesized", s.Name)
		}
	}
	want := map[string]uint64{"_a": 12, "_b": 20, "_v": 8, "_ext": 0}
	if !reflect.DeepEqual(want, sizes) {
		t.Errorf("want sizes %v, got %v", want, sizes)
	}

	// Inferred sizes make the symbols addressable.
	text := f.Section(0)
	if id := tab.Addr(text, 15); id == obj.NoSym || tab.Sym(id).Name != "_b" {
		t.Errorf("Addr(__text, 15) = %v, want _b", id)
	}
}

func TestSymName(t *testing.T) {
	tab := NewTable([]obj.Sym{
		0: {Name: "f", Section: section3, Value: 3000, Size: 10},
	})
	fn := tab.SymName(section3)
	if name, base := fn(3004); name != "f" || base != 3000 {
		t.Errorf("SymName(3004) = %q, %d; want f, 3000", name, base)
	}
	if name, _ := fn(3010); name != "" {
		t.Errorf("SymName(3010) = %q, want none", name)
	}
}
