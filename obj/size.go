// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import "sort"

// SynthesizeSizes fills in the size of every zero-sized symbol in syms
// that has data, and marks it synthesized.
//
// A section symbol at its section's base gets the section's size. Any
// other symbol extends to the next higher symbol address in its
// section, or to the section end if there is none. Symbols that start
// past the end of their section are left alone and do not bound their
// neighbors.
func SynthesizeSizes(syms []Sym) {
	bySection := make(map[*Section][]*Sym)
	for i := range syms {
		s := &syms[i]
		switch {
		case s.Section == nil:
		case s.Kind == SymSection:
			if s.Size == 0 && s.Value == s.Section.Addr {
				s.Size = s.Section.Size
				s.SetSizeSynthesized(true)
			}
		case s.Value <= s.Section.Addr+s.Section.Size:
			bySection[s.Section] = append(bySection[s.Section], s)
		}
	}

	for sect, ss := range bySection {
		sort.SliceStable(ss, func(i, j int) bool { return ss[i].Value < ss[j].Value })
		end := sect.Addr + sect.Size
		for len(ss) > 0 {
			// Aliases share an address and so share a size.
			n := 1
			for n < len(ss) && ss[n].Value == ss[0].Value {
				n++
			}
			next := end
			if n < len(ss) {
				next = ss[n].Value
			}
			for _, s := range ss[:n] {
				if s.Size == 0 {
					s.Size = next - s.Value
					s.SetSizeSynthesized(true)
				}
			}
			ss = ss[n:]
		}
	}
}
