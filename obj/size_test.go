// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import "testing"

func TestSynthesizeSizes(t *testing.T) {
	sect := func(addr uint64) *Section { return &Section{Addr: addr, Size: 100} }

	// keep means the input size must survive unmarked.
	const keep = -1
	type want struct {
		sym  Sym
		size int
	}
	for _, tc := range []struct {
		name string
		syms func() []want
	}{
		{"no section", func() []want {
			return []want{{Sym{Value: 10}, keep}}
		}},
		{"section symbols", func() []want {
			s := sect(100)
			return []want{
				{Sym{Section: s, Kind: SymSection, Value: 100}, 100},
				{Sym{Section: s, Kind: SymSection, Value: 100, Size: 7}, keep},
				{Sym{Section: s, Kind: SymSection, Value: 150}, keep},
			}
		}},
		{"next symbol and section end", func() []want {
			s := sect(0)
			return []want{
				{Sym{Section: s, Value: 60}, 40},
				{Sym{Section: s, Value: 20}, 25},
				{Sym{Section: s, Value: 45, Size: 3}, keep},
			}
		}},
		{"aliases", func() []want {
			s := sect(1000)
			return []want{
				{Sym{Section: s, Value: 1000}, 30},
				{Sym{Section: s, Value: 1000, Size: 10}, keep},
				{Sym{Section: s, Value: 1000}, 30},
				{Sym{Section: s, Value: 1030, Size: 1}, keep},
			}
		}},
		{"outside section", func() []want {
			s := sect(2000)
			return []want{
				{Sym{Section: s, Value: 1900}, 150},
				{Sym{Section: s, Value: 2050}, 50},
				{Sym{Section: s, Value: 2150}, keep},
			}
		}},
		{"sections are independent", func() []want {
			a, b := sect(0), sect(50)
			return []want{
				{Sym{Section: a, Value: 90}, 10},
				{Sym{Section: b, Value: 60}, 90},
			}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ws := tc.syms()
			syms := make([]Sym, len(ws))
			for i, w := range ws {
				syms[i] = w.sym
			}
			SynthesizeSizes(syms)
			for i, w := range ws {
				got := syms[i]
				if w.size == keep {
					if got.SizeSynthesized() || got.Size != w.sym.Size {
						t.Errorf("sym %d: want size %d unsynthesized, got %d (synthesized %v)", i, w.sym.Size, got.Size, got.SizeSynthesized())
					}
					continue
				}
				if !got.SizeSynthesized() || got.Size != uint64(w.size) {
					t.Errorf("sym %d: want synthesized size %d, got %d (synthesized %v)", i, w.size, got.Size, got.SizeSynthesized())
				}
			}
		})
	}
}
