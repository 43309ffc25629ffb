// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symindex

import (
	"runtime"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/aclements/go-symex/demangle"
	"github.com/aclements/go-symex/load"
)

// DefaultParallelThreshold is the number of names above which Search
// splits the scan across workers.
const DefaultParallelThreshold = 1 << 20

// A Matcher matches symbol names against a set of keywords. A name
// matches if its demangled form contains any keyword, or if its
// stored form ends with any keyword.
//
// A Matcher is safe for concurrent use.
type Matcher struct {
	keywords []string
	ac       *ahocorasick.Matcher
}

// NewMatcher returns a Matcher for keywords.
func NewMatcher(keywords []string) *Matcher {
	return &Matcher{keywords, ahocorasick.NewStringMatcher(keywords)}
}

// Match reports whether a symbol with the given stored and demangled
// names matches m.
func (m *Matcher) Match(stored, demangled string) bool {
	if len(m.ac.MatchThreadSafe([]byte(demangled))) > 0 {
		return true
	}
	for _, kw := range m.keywords {
		if strings.HasSuffix(stored, kw) {
			return true
		}
	}
	return false
}

// A Match is one occurrence of a matching name.
type Match struct {
	Name string
	Occ  load.Occurrence
}

// Option configures Search.
type Option func(*options)

type options struct {
	threshold int
	workers   int
	demangle  demangle.Demangler
}

// WithParallelThreshold sets the number of names above which Search
// runs in parallel.
func WithParallelThreshold(n int) Option {
	return func(o *options) {
		o.threshold = n
	}
}

// WithWorkers sets the number of parallel workers. The default is
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithDemangler sets the function used to compute the display name
// that keywords are matched against. The default is demangle.Name.
func WithDemangler(d demangle.Demangler) Option {
	return func(o *options) {
		o.demangle = d
	}
}

// Search returns every occurrence of every name matching keywords, in
// index order. At least one keyword is required.
//
// Above the parallel threshold, names are split into contiguous chunks
// that are matched concurrently. Each worker fills its own slice of
// results and the slices are joined in chunk order, so the output is
// the same as a sequential scan.
func (x *Index) Search(keywords []string, opts ...Option) ([]Match, error) {
	if len(keywords) == 0 {
		return nil, errors.New("need keyword")
	}
	o := options{
		threshold: DefaultParallelThreshold,
		workers:   runtime.GOMAXPROCS(0),
		demangle:  demangle.Name,
	}
	for _, opt := range opts {
		opt(&o)
	}
	m := NewMatcher(keywords)

	scan := func(names []string) []Match {
		var out []Match
		for _, name := range names {
			if !m.Match(name, o.demangle(name)) {
				continue
			}
			for _, occ := range x.occ[name] {
				out = append(out, Match{name, occ})
			}
		}
		return out
	}

	if len(x.names) <= o.threshold || o.workers <= 1 {
		return scan(x.names), nil
	}

	chunk := (len(x.names) + o.workers - 1) / o.workers
	parts := make([][]Match, 0, o.workers)
	for start := 0; start < len(x.names); start += chunk {
		parts = append(parts, nil)
	}
	var g errgroup.Group
	for i := range parts {
		i := i
		start := i * chunk
		end := start + chunk
		if end > len(x.names) {
			end = len(x.names)
		}
		g.Go(func() error {
			parts[i] = scan(x.names[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Flatten(parts), nil
}
