// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inspect

import (
	"sync"

	"github.com/go-kit/log/level"

	"github.com/aclements/go-symex/obj"
)

type sectionEntry struct {
	once sync.Once
	data []byte
	err  error
}

// Bytes returns the bytes of r.
//
// For a section stored uncompressed, the result aliases the loaded
// input. Otherwise the section is decompressed (or zero-filled) the
// first time any of its symbols is read, and the result aliases that
// cached buffer. Either way the caller must not modify it.
func (x *Inspector) Bytes(r *Resolved) ([]byte, error) {
	data, err := x.sectionBytes(r.Occ.Obj, r.Section)
	if err != nil {
		return nil, err
	}
	return sliceRange(data, r.Section, r.Addr, r.Size)
}

// Decompressions returns the number of sections x has decompressed or
// zero-filled.
func (x *Inspector) Decompressions() int {
	return int(x.decompressions.Load())
}

func (x *Inspector) sectionBytes(oi int, s *obj.Section) ([]byte, error) {
	if s.Compression == obj.CompressNone && !s.ZeroInitialized() {
		return s.Raw()
	}

	key := sectionKey{oi, s.ID}
	x.mu.Lock()
	e, ok := x.sections[key]
	if !ok {
		e = new(sectionEntry)
		x.sections[key] = e
	}
	x.mu.Unlock()

	e.once.Do(func() {
		e.data, _, e.err = s.Uncompressed()
		x.decompressions.Add(1)
		level.Debug(x.logger).Log("msg", "cached section", "object", x.set.Objects[oi].Name, "section", s.Name, "compression", s.Compression, "bytes", len(e.data))
	})
	return e.data, e.err
}

// sliceRange returns the bytes of [addr, addr+size) from data, the
// contents of section s.
func sliceRange(data []byte, s *obj.Section, addr, size uint64) ([]byte, error) {
	if addr < s.Addr {
		return nil, &RangeError{s.Name, addr, size, s.Addr, uint64(len(data))}
	}
	off := addr - s.Addr
	if off > uint64(len(data)) || size > uint64(len(data))-off {
		return nil, &RangeError{s.Name, addr, size, s.Addr, uint64(len(data))}
	}
	return data[off : off+size : off+size], nil
}
