// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symmap aggregates the text symbols of object files by
// demangled name and compares two such aggregates.
package symmap

import (
	"strings"

	"github.com/aclements/go-symex/demangle"
	"github.com/aclements/go-symex/load"
	"github.com/aclements/go-symex/obj"
	"github.com/aclements/go-symex/symtab"
)

// OutlinedPrefix is the name prefix of compiler-outlined code
// fragments.
const OutlinedPrefix = "OUTLINED_FUNCTION_"

// An Entry is the aggregate of all symbols sharing one name.
type Entry struct {
	// Addr is the address of the first symbol seen with this name.
	Addr uint64
	// Size is the sum of the sizes of all symbols with this name.
	Size uint64
}

// A Map maps names to Entries. Iteration order is the order in which
// names were first added.
type Map struct {
	names   []string
	entries map[string]*Entry
}

// New returns an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]*Entry)}
}

// Add merges a symbol into m. If name is already present, its size is
// added to the existing entry and addr is ignored.
func (m *Map) Add(name string, addr, size uint64) {
	if e, ok := m.entries[name]; ok {
		e.Size += size
		return
	}
	m.names = append(m.names, name)
	m.entries[name] = &Entry{addr, size}
}

// Lookup returns the entry for name.
func (m *Map) Lookup(name string) (Entry, bool) {
	if e, ok := m.entries[name]; ok {
		return *e, true
	}
	return Entry{}, false
}

// Names returns the names in m in first-added order. The caller must
// not modify the result.
func (m *Map) Names() []string {
	return m.names
}

// Len returns the number of names in m.
func (m *Map) Len() int {
	return len(m.names)
}

// Total returns the sum of all entry sizes.
func (m *Map) Total() uint64 {
	var t uint64
	for _, e := range m.entries {
		t += e.Size
	}
	return t
}

// Option configures Build.
type Option func(*options)

type options struct {
	fold     bool
	demangle demangle.Demangler
}

// WithFoldOutlined merges every symbol whose name starts with
// OutlinedPrefix, optionally after one Mach-O "_", into a single entry
// named OutlinedPrefix.
func WithFoldOutlined(fold bool) Option {
	return func(o *options) {
		o.fold = fold
	}
}

// WithDemangler sets the function that maps stored names to map keys.
// The default is demangle.Canonical.
func WithDemangler(d demangle.Demangler) Option {
	return func(o *options) {
		o.demangle = d
	}
}

// Build aggregates the defined text symbols of every object in set
// into one Map.
//
// Symbol sizes come from a symtab.Table, so objects whose format does
// not record sizes get inferred sizes.
func Build(set *load.Set, opts ...Option) *Map {
	o := options{demangle: demangle.Canonical}
	for _, opt := range opts {
		opt(&o)
	}
	m := New()
	for _, ob := range set.Objects {
		m.addFile(ob.File, &o)
	}
	return m
}

func (m *Map) addFile(f obj.File, o *options) {
	syms := symtab.New(f).Syms()
	for i := range syms {
		s := &syms[i]
		if s.Kind != obj.SymText || s.Section == nil || s.Name == "" {
			continue
		}
		name := o.demangle(s.Name)
		if o.fold && strings.HasPrefix(strings.TrimPrefix(name, "_"), OutlinedPrefix) {
			name = OutlinedPrefix
		}
		m.Add(name, s.Value, s.Size)
	}
}
