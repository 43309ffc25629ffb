// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inspect resolves symbol occurrences in a load.Set to byte
// extents and reads their bytes and relocations.
//
// An Inspector caches decompressed sections, per-object symbol tables,
// and per-section relocation tables. Each cache entry is filled at most
// once, so an Inspector is safe for concurrent use.
package inspect

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/aclements/go-symex/asm"
	"github.com/aclements/go-symex/load"
	"github.com/aclements/go-symex/obj"
	"github.com/aclements/go-symex/symindex"
	"github.com/aclements/go-symex/symtab"
)

// None is the "unset" value for Select's filter and pick arguments.
const None = -1

// ErrUndefined is returned when resolving a symbol that is only
// referenced by its object.
var ErrUndefined = errors.New("symbol is undefined")

// BadSectionError is returned when resolving a symbol that has no
// section but is not undefined, such as an absolute or common symbol.
type BadSectionError struct {
	Name string
	Kind obj.SymKind
}

func (e *BadSectionError) Error() string {
	return fmt.Sprintf("bad section: symbol %s has kind %v and no section", e.Name, e.Kind)
}

// A Candidate is one entry of an AmbiguousError.
type Candidate struct {
	Index  int
	Class  byte
	Object string
	Occ    load.Occurrence
}

func (c Candidate) String() string {
	return fmt.Sprintf("[%d] %c by %s", c.Index, c.Class, c.Object)
}

// AmbiguousError is returned by Select when a name has several
// candidate occurrences and no pick.
type AmbiguousError struct {
	Name       string
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("duplicate symbol %s: %d candidates", e.Name, len(e.Candidates))
}

// RangeError reports a byte range that does not fit in its section.
type RangeError struct {
	Section     string
	Addr, Size  uint64
	Base, Limit uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range [%#x,+%#x) is outside section %s [%#x,+%#x)", e.Addr, e.Size, e.Section, e.Base, e.Limit)
}

// An Inspector answers symbol-level queries about one load.Set.
type Inspector struct {
	set    *load.Set
	index  *symindex.Index
	logger log.Logger
	syntax asm.Syntax

	mu       sync.Mutex
	tables   map[int]*tableEntry
	sections map[sectionKey]*sectionEntry
	relocs   map[sectionKey]*relocEntry

	decompressions atomic.Int64
}

type sectionKey struct {
	obj int
	sec obj.SectionID
}

type tableEntry struct {
	once sync.Once
	tab  *symtab.Table
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithLogger sets the logger for cache activity, logged at debug level.
func WithLogger(l log.Logger) Option {
	return func(x *Inspector) {
		x.logger = l
	}
}

// WithSyntax sets the assembler syntax used by Dump.
func WithSyntax(s asm.Syntax) Option {
	return func(x *Inspector) {
		x.syntax = s
	}
}

// New returns an Inspector for the objects indexed by index.
func New(index *symindex.Index, opts ...Option) *Inspector {
	x := &Inspector{
		set:      index.Set(),
		index:    index,
		logger:   log.NewNopLogger(),
		syntax:   asm.GNUSyntax,
		tables:   make(map[int]*tableEntry),
		sections: make(map[sectionKey]*sectionEntry),
		relocs:   make(map[sectionKey]*relocEntry),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Set returns the set x inspects.
func (x *Inspector) Set() *load.Set {
	return x.set
}

// Index returns the name index x resolves names with.
func (x *Inspector) Index() *symindex.Index {
	return x.index
}

// table returns the symbol table of object oi, building it on first
// use.
func (x *Inspector) table(oi int) *symtab.Table {
	x.mu.Lock()
	e, ok := x.tables[oi]
	if !ok {
		e = new(tableEntry)
		x.tables[oi] = e
	}
	x.mu.Unlock()
	e.once.Do(func() {
		e.tab = symtab.New(x.set.Objects[oi].File)
	})
	return e.tab
}

// Class returns the nm-style classification letter of occ.
func (x *Inspector) Class(occ load.Occurrence) byte {
	s := x.set.Sym(occ)
	return s.NMClass()
}

// Select picks one occurrence of name.
//
// A name with one occurrence selects it. Otherwise, if filter is not
// None, occurrences outside object filter are dropped, and a single
// survivor is selected. If several remain, pick indexes into them, or
// if pick is None, Select returns an *AmbiguousError listing them.
func (x *Inspector) Select(name string, filter, pick int) (load.Occurrence, error) {
	occs, err := x.index.Lookup(name)
	if err != nil {
		return load.Occurrence{}, err
	}
	if len(occs) == 1 {
		return occs[0], nil
	}
	if filter != None {
		occs = lo.Filter(occs, func(o load.Occurrence, _ int) bool {
			return o.Obj == filter
		})
		switch len(occs) {
		case 0:
			return load.Occurrence{}, errors.Wrapf(symindex.ErrNotFound, "%s in %s", name, x.set.Objects[filter].Name)
		case 1:
			return occs[0], nil
		}
	}
	if pick != None {
		if pick < 0 || pick >= len(occs) {
			return load.Occurrence{}, errors.Errorf("index %d out of range: %s has %d candidates", pick, name, len(occs))
		}
		return occs[pick], nil
	}
	return load.Occurrence{}, &AmbiguousError{
		Name: name,
		Candidates: lo.Map(occs, func(o load.Occurrence, i int) Candidate {
			return Candidate{i, x.Class(o), x.set.Object(o).Name, o}
		}),
	}
}

// A Resolved is a symbol occurrence with a definite extent.
type Resolved struct {
	Occ     load.Occurrence
	Name    string
	Object  *load.Object
	Section *obj.Section
	// Addr is the absolute address of the symbol within Section.
	Addr  uint64
	Size  uint64
	Class byte
}

// Offset returns the symbol's offset from the start of its section.
func (r *Resolved) Offset() uint64 {
	return r.Addr - r.Section.Addr
}

// Resolve computes the section, size, and class of occ.
//
// ELF and PE symbols use their stored size. Mach-O does not store
// sizes, so a Mach-O symbol's size is the distance to the next distinct
// symbol address in its section, or to the section end for the last
// symbol.
func (x *Inspector) Resolve(occ load.Occurrence) (*Resolved, error) {
	sym := x.set.Sym(occ)
	if sym.Section == nil {
		if sym.Kind == obj.SymUndef {
			return nil, errors.Wrap(ErrUndefined, sym.Name)
		}
		return nil, &BadSectionError{sym.Name, sym.Kind}
	}

	var size uint64
	switch x.set.Format {
	case obj.FormatELF, obj.FormatPE:
		size = sym.Size
	case obj.FormatMachO:
		var ok bool
		size, ok = x.table(occ.Obj).InferSize(sym.Section, sym.Value)
		if !ok {
			return nil, errors.Errorf("%s: address %#x is outside section %s", sym.Name, sym.Value, sym.Section.Name)
		}
	default:
		panic(fmt.Sprintf("unknown object format %v", x.set.Format))
	}

	return &Resolved{
		Occ:     occ,
		Name:    sym.Name,
		Object:  x.set.Object(occ),
		Section: sym.Section,
		Addr:    sym.Value,
		Size:    size,
		Class:   sym.NMClass(),
	}, nil
}

// Lookup selects and resolves name. See Select.
func (x *Inspector) Lookup(name string, filter, pick int) (*Resolved, error) {
	occ, err := x.Select(name, filter, pick)
	if err != nil {
		return nil, err
	}
	return x.Resolve(occ)
}
