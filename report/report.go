// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report writes the tab-separated batch reports: symbol
// search, symbol diff, and containment check.
//
// Every report ends with a "total:" line.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/aclements/go-symex/demangle"
	"github.com/aclements/go-symex/load"
	"github.com/aclements/go-symex/obj"
	"github.com/aclements/go-symex/symindex"
	"github.com/aclements/go-symex/symmap"
	"github.com/aclements/go-symex/symtab"
)

// A Row is one symbol line of a search or contains report.
type Row struct {
	Addr uint64
	Size uint64
	Name string
}

// textSyms calls fn for every defined, named text symbol in set, with
// sizes inferred for formats that do not store them.
func textSyms(set *load.Set, fn func(s *obj.Sym)) {
	for _, o := range set.Objects {
		syms := symtab.New(o.File).Syms()
		for i := range syms {
			s := &syms[i]
			if s.Kind == obj.SymText && s.Section != nil && s.Name != "" {
				fn(s)
			}
		}
	}
}

// SearchRows returns the text symbols of set whose names match
// keywords, as symindex.Matcher defines matching. With no keywords,
// every text symbol matches. Row names are demangled.
func SearchRows(set *load.Set, keywords []string) []Row {
	var m *symindex.Matcher
	if len(keywords) > 0 {
		m = symindex.NewMatcher(keywords)
	}
	var rows []Row
	textSyms(set, func(s *obj.Sym) {
		name := demangle.Name(s.Name)
		if m == nil || m.Match(s.Name, name) {
			rows = append(rows, Row{s.Value, s.Size, name})
		}
	})
	return rows
}

// WriteRows writes rows and their total size. If sortBySize is set,
// rows are sorted by ascending size first.
func WriteRows(w io.Writer, rows []Row, sortBySize bool) error {
	if sortBySize {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Size < rows[j].Size })
	}
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		fmt.Fprintf(bw, "0x%016x\t%d\t\t%s\n", r.Addr, r.Size, r.Name)
	}
	fmt.Fprintf(bw, "total:\t\t\t%d\n", lo.SumBy(rows, func(r Row) uint64 { return r.Size }))
	return bw.Flush()
}

// WriteDiff writes the records of symmap.Diff and their total delta.
// If sortByDelta is set, records are sorted by ascending delta first.
func WriteDiff(w io.Writer, rs []symmap.Record, sortByDelta bool) error {
	if sortByDelta {
		symmap.SortByDelta(rs)
	}
	bw := bufio.NewWriter(w)
	for _, r := range rs {
		fmt.Fprintf(bw, "0x%016x\t0x%016x\t%d\t%d\t%+d\t\t%s\n", r.Old.Addr, r.New.Addr, r.Old.Size, r.New.Size, r.Delta(), r.Name)
	}
	fmt.Fprintf(bw, "total:\t\t\t%+d\n", symmap.Total(rs))
	return bw.Flush()
}

// ParseNM reads a symbol listing in the BSD format of nm and returns
// the canonical names of its text symbols.
//
// Lines are "ADDRESS KIND NAME". Blank lines and member headers that
// start with "../" are skipped, as are lines whose second word is not
// "t" or "T", which includes undefined symbols printed without an
// address.
func ParseNM(r io.Reader) (map[string]bool, error) {
	names := make(map[string]bool)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "../") {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 3 || (f[1] != "t" && f[1] != "T") {
			continue
		}
		names[demangle.Canonical(f[2])] = true
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading symbol listing")
	}
	return names, nil
}

// ContainsRows returns the text symbols of set whose canonical names
// are in names, in symbol table order.
func ContainsRows(set *load.Set, names map[string]bool) []Row {
	var rows []Row
	textSyms(set, func(s *obj.Sym) {
		name := demangle.Canonical(s.Name)
		if names[name] {
			rows = append(rows, Row{s.Value, s.Size, name})
		}
	})
	return rows
}
