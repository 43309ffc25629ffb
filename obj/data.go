// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"fmt"

	"github.com/aclements/go-symex/arch"
)

// Data is a range of bytes from an object file along with the
// relocations that apply to it.
type Data struct {
	// Addr is the address of P[0].
	Addr uint64

	// P is the raw bytes. Callers must not modify it.
	P []byte

	// R is the relocations applied to this Data, sorted by address.
	// Relocations that straddle either end of P may be included.
	R []Reloc

	// Layout is the byte order and word size used to decode P. It
	// comes from the object's architecture, so it is wrong for data
	// with a fixed byte order such as the file's own headers. Readers
	// of such data overwrite it.
	Layout arch.Layout
}

// A Reader decodes integers and strings sequentially from a Data.
// Reading past the end of the Data panics.
type Reader struct {
	d   *Data
	off int
}

// NewReader returns a Reader positioned at the start of d.
func NewReader(d *Data) *Reader {
	return &Reader{d: d}
}

// SetOffset moves r to byte offset off in its Data.
func (r *Reader) SetOffset(off int) {
	if off < 0 || off >= len(r.d.P) {
		panic(fmt.Sprintf("offset %d out of data's range [0,%d)", off, len(r.d.P)))
	}
	r.off = off
}

// Avail returns the number of unread bytes.
func (r *Reader) Avail() int {
	return len(r.d.P) - r.off
}

func (r *Reader) next(n int) []byte {
	if n > r.Avail() {
		panic(fmt.Sprintf("read of %d bytes at offset %d overruns data of length %d", n, r.off, len(r.d.P)))
	}
	b := r.d.P[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8   { return r.next(1)[0] }
func (r *Reader) Uint16() uint16 { return r.d.Layout.Uint16(r.next(2)) }
func (r *Reader) Uint32() uint32 { return r.d.Layout.Uint32(r.next(4)) }
func (r *Reader) Uint64() uint64 { return r.d.Layout.Uint64(r.next(8)) }
func (r *Reader) Int32() int32   { return int32(r.Uint32()) }
func (r *Reader) Int64() int64   { return int64(r.Uint64()) }

// CString reads a NUL-terminated string and returns it without the
// NUL. An unterminated string runs to the end of the Data.
func (r *Reader) CString() []byte {
	rest := r.d.P[r.off:]
	if n := bytes.IndexByte(rest, 0); n >= 0 {
		r.off += n + 1
		return rest[:n]
	}
	r.off = len(r.d.P)
	return rest
}
