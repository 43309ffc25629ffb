// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab implements symbol table lookup by address, and infers symbol sizes for object formats that do not store them.
package symtab

import (
	"sort"

	"github.com/aclements/go-symex/asm"
	"github.com/aclements/go-symex/obj"
)

// Table facilitates fast symbol lookup by address.
type Table struct {
	// syms is the original syms slice, by SymID
	syms []obj.Sym

	// sections contains the address to symbol mapping for each section.
	// Mappable sections are all indexed under the nil key.
	sections map[*obj.Section]sectionTable

	// starts holds, per section, the sorted distinct start addresses
	// of the symbols defined in it. Section symbols are excluded.
	starts map[*obj.Section][]uint64
}

type sectionTable struct {
	// addr contains boundaries of symbols in Table.syms, ordered by
	// address. The boundary from symbol to NoSym is not explicitly
	// represented, since lookup can check the size of the symbol.
	//
	// If symbols overlap, this may contain the same symbol multiple
	// times. E.g., given one symbol strictly nested in another, the
	// outer symbol will appear both at its beginning address and at the
	// end address of the inner symbol.
	addr []symAddr
}

type symAddr struct {
	// addr is the address of this symbol boundary. Usually this is
	// beginning of the symbol, except in the case of overlapping
	// symbols.
	addr uint64
	id   obj.SymID
}

// New creates a table for the symbols of f.
//
// If f's format does not store symbol sizes, every defined symbol of
// size 0 is given the size computed by InferSize and marked
// SizeSynthesized.
func New(f obj.File) *Table {
	syms := make([]obj.Sym, f.NumSyms())
	for i := range syms {
		syms[i] = f.Sym(obj.SymID(i))
	}
	return newTable(syms, !f.Info().Format.SizesExplicit())
}

// NewTable creates a new table for syms. syms must be indexed by obj.SymID.
//
// NewTable uses sizes as they appear in syms, so the caller may wish to
// first call obj.SynthesizeSizes.
func NewTable(syms []obj.Sym) *Table {
	return newTable(syms, false)
}

func newTable(syms []obj.Sym, infer bool) *Table {
	t := &Table{syms: syms, starts: makeStarts(syms)}
	if infer {
		for i := range syms {
			s := &syms[i]
			if s.Section == nil || s.Size != 0 || s.Kind == obj.SymSection {
				continue
			}
			if size, ok := t.InferSize(s.Section, s.Value); ok {
				s.Size = size
				s.SetSizeSynthesized(true)
			}
		}
	}

	// Break symbols up by section for address indexing.
	sectionSyms := map[*obj.Section][]obj.SymID{nil: {}}
	for i, s := range syms {
		// Add symbols that have data to the address list. We omit
		// symbols of size 0 because they can't be the result of a
		// lookup and mess up the algorithm that computes the index.
		if s.Section != nil && s.Size != 0 {
			section := s.Section
			if section.Mapped() {
				// All mapped sections are indexed undef "nil".
				section = nil
			}
			sectionSyms[section] = append(sectionSyms[section], obj.SymID(i))
		}
	}

	// Create each section tables.
	sections := make(map[*obj.Section]sectionTable)
	for section, symIDs := range sectionSyms {
		sections[section] = sectionTable{makeAddrIndex(syms, symIDs)}
	}

	t.sections = sections
	return t
}

// makeStarts collects the distinct start addresses of the symbols in
// each section. Symbols that start past the end of their section are
// left out.
func makeStarts(syms []obj.Sym) map[*obj.Section][]uint64 {
	starts := make(map[*obj.Section][]uint64)
	for i := range syms {
		s := &syms[i]
		if s.Section == nil || s.Kind == obj.SymSection {
			continue
		}
		if s.Value < s.Section.Addr || s.Value-s.Section.Addr > s.Section.Size {
			continue
		}
		starts[s.Section] = append(starts[s.Section], s.Value)
	}
	for sect, addrs := range starts {
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		out := addrs[:0]
		for i, a := range addrs {
			if i == 0 || a != addrs[i-1] {
				out = append(out, a)
			}
		}
		starts[sect] = out
	}
	return starts
}

// InferSize returns the size of a symbol starting at addr in section,
// computed as the distance to the next distinct symbol start in the
// same section, or to the end of the section for the last symbol.
// Trailing padding is attributed to the preceding symbol. ok is false
// if no symbol starts at addr.
func (t *Table) InferSize(section *obj.Section, addr uint64) (size uint64, ok bool) {
	starts := t.starts[section]
	i := sort.Search(len(starts), func(i int) bool {
		return starts[i] >= addr
	})
	if i == len(starts) || starts[i] != addr {
		return 0, false
	}
	if i+1 < len(starts) {
		return starts[i+1] - addr, true
	}
	return section.Addr + section.Size - addr, true
}

// makeAddrIndex builds the boundary list for the symbols ids.
//
// ids is sorted by start address. At equal addresses, larger symbols
// come first, and then higher IDs, so that a later entry in the sorted
// order wins a tie. Higher IDs first keeps the first symbol table's
// symbols when several tables are concatenated.
func makeAddrIndex(syms []obj.Sym, ids []obj.SymID) []symAddr {
	sort.Slice(ids, func(i, j int) bool {
		si, sj := &syms[ids[i]], &syms[ids[j]]
		switch {
		case si.Value != sj.Value:
			return si.Value < sj.Value
		case si.Size != sj.Size:
			return si.Size > sj.Size
		}
		return ids[i] > ids[j]
	})

	// Walk the symbols in order keeping open symbols on a stack sorted
	// by end address, earliest end on top. Each start is a boundary,
	// and so is each end that uncovers an enclosing symbol. An end
	// that uncovers nothing leaves no boundary; Addr detects it from
	// the symbol's size.
	var out []symAddr
	var open endStack
	for _, id := range ids {
		sym := &syms[id]
		out = open.closeThrough(sym.Value, out)
		if n := len(out); n > 0 && out[n-1].addr == sym.Value {
			out[n-1] = symAddr{sym.Value, id}
		} else {
			out = append(out, symAddr{sym.Value, id})
		}
		open.push(symAddr{sym.Value + sym.Size, id})
	}
	return open.closeThrough(^uint64(0), out)
}

// endStack holds open symbols keyed by end address, with the earliest
// end on top. It is usually one or two entries deep.
type endStack []symAddr

func (st *endStack) push(e symAddr) {
	s := append(*st, e)
	for i := len(s) - 1; i >= 1 && s[i].addr > s[i-1].addr; i-- {
		s[i], s[i-1] = s[i-1], s[i]
	}
	*st = s
}

// closeThrough pops every symbol ending at or before addr, appending a
// boundary to out each time an enclosing symbol becomes current again.
func (st *endStack) closeThrough(addr uint64, out []symAddr) []symAddr {
	s := *st
	for len(s) > 0 && s[len(s)-1].addr <= addr {
		end := s[len(s)-1].addr
		for len(s) > 0 && s[len(s)-1].addr == end {
			s = s[:len(s)-1]
		}
		if len(s) > 0 {
			out = append(out, symAddr{end, s[len(s)-1].id})
		}
	}
	*st = s
	return out
}

// Syms returns all symbols in Table. The returned slice can be
// indexed by SymID. The caller must not modify the returned slice.
func (t *Table) Syms() []obj.Sym {
	return t.syms
}

// Sym returns the symbol with the given ID, including any inferred
// size.
func (t *Table) Sym(id obj.SymID) *obj.Sym {
	return &t.syms[id]
}

// Addr returns the symbol containing addr in section, or obj.NoSym.
//
// If section is nil or a mapped section, Addr considers symbols in all
// mapped sections.
//
// This symbol may not be unique, in which case Addr prioritizes the
// symbol with the latest starting address, followed by the symbol with
// the smallest size.
func (t *Table) Addr(section *obj.Section, addr uint64) obj.SymID {
	if section != nil && section.Mapped() {
		section = nil
	}
	tab, ok := t.sections[section]
	if !ok {
		return obj.NoSym
	}
	i := sort.Search(len(tab.addr), func(i int) bool {
		return addr < tab.addr[i].addr
	}) - 1
	if i < 0 {
		return obj.NoSym
	}
	id := tab.addr[i].id
	sym := &t.syms[id]
	if sym.Value+sym.Size <= addr {
		// The symbol ends before addr.
		return obj.NoSym
	}
	return id
}

// SymName returns an asm.SymNameFunc that names addresses in section
// by the symbol containing them.
func (t *Table) SymName(section *obj.Section) asm.SymNameFunc {
	return func(addr uint64) (string, uint64) {
		id := t.Addr(section, addr)
		if id == obj.NoSym {
			return "", 0
		}
		return t.syms[id].Name, t.syms[id].Value
	}
}
