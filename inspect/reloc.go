// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inspect

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-kit/log/level"

	"github.com/aclements/go-symex/obj"
)

// TargetKind says what a relocation refers to.
type TargetKind uint8

const (
	TargetSymbol TargetKind = iota
	TargetSection
)

func (k TargetKind) String() string {
	switch k {
	case TargetSymbol:
		return "symbol"
	case TargetSection:
		return "section"
	}
	return fmt.Sprintf("TargetKind(%d)", uint8(k))
}

// A Target is the resolved referent of a relocation.
type Target struct {
	Kind TargetKind
	Addr uint64
	Name string
}

// A Reloc is a relocation within a symbol.
type Reloc struct {
	// Offset is the offset of the patched bytes from the start of the
	// section.
	Offset uint64
	Addend int64
	Type   obj.RelocType
	Target Target
}

// UnsupportedTargetError is returned for a relocation whose target is
// neither a symbol nor a section.
type UnsupportedTargetError struct {
	Reloc obj.Reloc
}

func (e *UnsupportedTargetError) Error() string {
	r := e.Reloc
	return fmt.Sprintf("unsupported relocation target: {Addr:%#x Type:%v Symbol:%v Section:%d Addend:%d}", r.Addr, r.Type, r.Symbol, r.Section, r.Addend)
}

// relocOff is one row of a relocation table.
type relocOff struct {
	off uint64
	r   obj.Reloc
}

type relocEntry struct {
	once sync.Once
	tab  []relocOff
	err  error
}

// Relocs returns the relocations that patch bytes of r, in offset
// order.
func (x *Inspector) Relocs(r *Resolved) ([]Reloc, error) {
	tab, err := x.relocTable(r.Occ.Obj, r.Section)
	if err != nil {
		return nil, err
	}
	lo := r.Offset()
	if r.Size > ^uint64(0)-lo {
		return nil, &RangeError{r.Section.Name, r.Addr, r.Size, r.Section.Addr, r.Section.Size}
	}
	f := r.Object.File
	var out []Reloc
	for _, ro := range relocRange(tab, lo, lo+r.Size) {
		rel := Reloc{Offset: ro.off, Addend: ro.r.Addend, Type: ro.r.Type}
		switch {
		case ro.r.Symbol != obj.NoSym:
			s := f.Sym(ro.r.Symbol)
			rel.Target = Target{TargetSymbol, s.Value, s.Name}
		case ro.r.Section != obj.NoSection:
			s := f.Section(ro.r.Section)
			rel.Target = Target{TargetSection, s.Addr, s.Name}
		default:
			return nil, &UnsupportedTargetError{ro.r}
		}
		out = append(out, rel)
	}
	return out, nil
}

// relocTable returns the relocations of section s of object oi sorted
// by section offset, building the table on first use.
func (x *Inspector) relocTable(oi int, s *obj.Section) ([]relocOff, error) {
	key := sectionKey{oi, s.ID}
	x.mu.Lock()
	e, ok := x.relocs[key]
	if !ok {
		e = new(relocEntry)
		x.relocs[key] = e
	}
	x.mu.Unlock()

	e.once.Do(func() {
		rs, err := s.Relocs()
		if err != nil {
			e.err = err
			return
		}
		tab := make([]relocOff, len(rs))
		for i, r := range rs {
			tab[i] = relocOff{r.Addr - s.Addr, r}
		}
		sort.SliceStable(tab, func(i, j int) bool {
			return tab[i].off < tab[j].off
		})
		e.tab = tab
		level.Debug(x.logger).Log("msg", "indexed relocations", "object", x.set.Objects[oi].Name, "section", s.Name, "relocs", len(tab))
	})
	return e.tab, e.err
}

// relocRange returns the rows of tab with offsets in [lo, hi). tab must
// be sorted by offset.
func relocRange(tab []relocOff, lo, hi uint64) []relocOff {
	start := sort.Search(len(tab), func(i int) bool { return tab[i].off >= lo })
	end := sort.Search(len(tab), func(i int) bool { return tab[i].off >= hi })
	if end < start {
		end = start
	}
	return tab[start:end]
}
