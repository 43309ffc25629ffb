// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symindex maps symbol names to every place they occur in a
// load.Set.
package symindex

import (
	"github.com/pkg/errors"

	"github.com/aclements/go-symex/load"
	"github.com/aclements/go-symex/obj"
)

// ErrNotFound is returned by Lookup for a name with no occurrences.
var ErrNotFound = errors.New("symbol not found")

// An Index maps each symbol name, as stored in the object file, to its
// occurrences. Names are kept in the order they were first seen, and
// occurrences of one name are in Set order, so listings are
// deterministic.
type Index struct {
	set   *load.Set
	names []string
	occ   map[string][]load.Occurrence
}

// Build scans every symbol of every object in set. Names are indexed
// as stored; demangling happens at query time.
//
// Section symbols and symbols with empty names are not indexed.
// Undefined symbols are, so a lookup can report that a name is only
// referenced.
func Build(set *load.Set) (*Index, error) {
	x := &Index{set: set, occ: make(map[string][]load.Occurrence)}
	for oi, o := range set.Objects {
		n := o.NumSyms()
		for id := obj.SymID(0); id < n; id++ {
			sym := o.Sym(id)
			if sym.BadName() {
				return nil, errors.Errorf("%s: symbol %d has an unreadable name", o.Name, id)
			}
			if sym.Name == "" || sym.Kind == obj.SymSection {
				continue
			}
			list, ok := x.occ[sym.Name]
			if !ok {
				x.names = append(x.names, sym.Name)
			}
			x.occ[sym.Name] = append(list, load.Occurrence{Obj: oi, Sym: id})
		}
	}
	return x, nil
}

// Set returns the set x indexes.
func (x *Index) Set() *load.Set {
	return x.set
}

// Len returns the number of distinct names in x.
func (x *Index) Len() int {
	return len(x.names)
}

// Names returns the indexed names in first-seen order. The caller must
// not modify the result.
func (x *Index) Names() []string {
	return x.names
}

// Lookup returns the occurrences of name. The result is non-empty on
// success and must not be modified.
func (x *Index) Lookup(name string) ([]load.Occurrence, error) {
	occ, ok := x.occ[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return occ, nil
}
