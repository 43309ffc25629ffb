// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package load turns a list of object files and static archives into
// one flat, ordered set of parsed objects that share an architecture
// and an object format.
package load

import (
	"fmt"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/aclements/go-symex/ar"
	"github.com/aclements/go-symex/arch"
	"github.com/aclements/go-symex/obj"
)

// An Input is one file to load. Data must stay unmodified while any
// Set loaded from it is in use.
type Input struct {
	Path string
	Data []byte
}

// An Object is one parsed object file. It is either a plain object
// file or a member of an archive.
type Object struct {
	// Name is the archive member name, or the base name of the object
	// file's path.
	Name string

	// Path is the path of the input this object came from.
	Path string

	obj.File
}

// A Set is an ordered list of objects sharing one architecture and one
// object format.
type Set struct {
	Objects []*Object
	Arch    *arch.Arch
	Format  obj.Format
}

// An Occurrence identifies one symbol of one object in a Set. It is
// only meaningful together with the Set it came from.
type Occurrence struct {
	Obj int
	Sym obj.SymID
}

// Object returns the object containing o.
func (s *Set) Object(o Occurrence) *Object {
	return s.Objects[o.Obj]
}

// Sym returns the symbol o refers to.
func (s *Set) Sym(o Occurrence) obj.Sym {
	return s.Objects[o.Obj].Sym(o.Sym)
}

// Lookup returns the index of the first object named name.
func (s *Set) Lookup(name string) (int, bool) {
	for i, o := range s.Objects {
		if o.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Close releases the parsed objects.
func (s *Set) Close() {
	for _, o := range s.Objects {
		o.Close()
	}
}

// UnsupportedExtensionError is returned for an input whose extension
// is neither an archive nor an object file extension.
type UnsupportedExtensionError struct {
	Path string
	Ext  string
}

func (e *UnsupportedExtensionError) Error() string {
	return fmt.Sprintf("%s: unsupported extension %q", e.Path, e.Ext)
}

// MismatchError is returned when two objects in a Set disagree on
// architecture or format.
type MismatchError struct {
	// What is "architecture" or "format".
	What         string
	First, Other string
	FirstName    string
	OtherName    string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: %s is %s but %s is %s", e.What, e.FirstName, e.First, e.OtherName, e.Other)
}

// Option configures Load.
type Option func(*options)

type options struct {
	logger log.Logger
}

// WithLogger sets the logger used for warnings about loaded objects.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

type kind int

const (
	kindObject kind = iota
	kindArchive
)

// inputKind returns whether path names an object or an archive, based on
// its extension.
func inputKind(path string) (kind, error) {
	switch ext := filepath.Ext(path); ext {
	case ".a", ".rlib":
		return kindArchive, nil
	case ".o":
		return kindObject, nil
	default:
		return 0, &UnsupportedExtensionError{Path: path, Ext: ext}
	}
}

// Load parses inputs in order. Archives expand to one Object per
// member, in member order. Any parse failure aborts the whole load.
func Load(inputs []Input, opts ...Option) (*Set, error) {
	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if len(inputs) == 0 {
		return nil, errors.New("no input files")
	}

	set := &Set{}
	fail := func(err error) (*Set, error) {
		set.Close()
		return nil, err
	}
	for _, in := range inputs {
		k, err := inputKind(in.Path)
		if err != nil {
			return fail(err)
		}
		switch k {
		case kindObject:
			f, err := obj.Open(in.Data)
			if err != nil {
				return fail(errors.Wrapf(err, "%s", in.Path))
			}
			set.Objects = append(set.Objects, &Object{Name: filepath.Base(in.Path), Path: in.Path, File: f})
		case kindArchive:
			members, err := ar.Parse(in.Data)
			if err != nil {
				return fail(errors.Wrapf(err, "%s", in.Path))
			}
			for _, m := range members {
				f, err := obj.Open(m.Data)
				if err != nil {
					return fail(errors.Wrapf(err, "%s(%s)", in.Path, m.Name))
				}
				set.Objects = append(set.Objects, &Object{Name: m.Name, Path: in.Path, File: f})
			}
		}
	}
	if len(set.Objects) == 0 {
		return nil, errors.Errorf("%s: no objects found", inputs[0].Path)
	}

	if err := set.validate(); err != nil {
		return fail(err)
	}

	for _, ob := range set.Objects {
		if !obj.HasDebugInfo(ob.File) {
			level.Warn(o.logger).Log("msg", "object has no debug info", "object", ob.Name)
		}
	}
	return set, nil
}

// validate checks that every object matches the first in architecture
// and format, and records them in s.
func (s *Set) validate() error {
	first := s.Objects[0]
	info := first.Info()
	for _, other := range s.Objects[1:] {
		oi := other.Info()
		if oi.Arch != info.Arch {
			return &MismatchError{"architecture", archName(info.Arch), archName(oi.Arch), first.Name, other.Name}
		}
		if oi.Format != info.Format {
			return &MismatchError{"format", info.Format.String(), oi.Format.String(), first.Name, other.Name}
		}
	}
	s.Arch, s.Format = info.Arch, info.Format
	return nil
}

func archName(a *arch.Arch) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
