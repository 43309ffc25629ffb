// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symmap

import (
	"sort"

	"github.com/samber/lo"
)

// A Side is one half of a Record. A name missing from one map has a
// zero Side.
type Side struct {
	Addr uint64
	Size int64
}

// A Record describes a name whose size differs between two Maps.
type Record struct {
	Name     string
	Old, New Side
}

// Delta returns the change in size from Old to New.
func (r Record) Delta() int64 {
	return r.New.Size - r.Old.Size
}

// Diff compares old and cur. It reports every name in old whose size
// differs in cur or that is missing from cur, in old's order. Unless
// oneWay is set, it then reports every name only in cur, in cur's
// order.
func Diff(old, cur *Map, oneWay bool) []Record {
	var out []Record
	for _, name := range old.names {
		o := old.entries[name]
		rec := Record{Name: name, Old: Side{o.Addr, int64(o.Size)}}
		if n, ok := cur.entries[name]; ok {
			if n.Size == o.Size {
				continue
			}
			rec.New = Side{n.Addr, int64(n.Size)}
		}
		out = append(out, rec)
	}
	if oneWay {
		return out
	}
	for _, name := range cur.names {
		if _, ok := old.entries[name]; ok {
			continue
		}
		n := cur.entries[name]
		out = append(out, Record{Name: name, New: Side{n.Addr, int64(n.Size)}})
	}
	return out
}

// SortByDelta sorts rs by ascending Delta. Records with equal deltas
// keep their relative order.
func SortByDelta(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Delta() < rs[j].Delta()
	})
}

// Total returns the sum of the deltas of rs.
func Total(rs []Record) int64 {
	return lo.SumBy(rs, Record.Delta)
}
