// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arch

import (
	"encoding/binary"
	"fmt"
)

// Layout is the byte order and word size of an architecture or of an
// object file's own headers.
type Layout struct {
	// big selects big endian. The concrete binary.LittleEndian and
	// binary.BigEndian values are used directly so calls stay static.
	big      bool
	wordSize uint8
}

// NewLayout returns a Layout for order and wordSize, which must be 1,
// 2, 4, or 8.
func NewLayout(order binary.ByteOrder, wordSize int) Layout {
	var l Layout
	switch order {
	case binary.LittleEndian:
	case binary.BigEndian:
		l.big = true
	default:
		panic(fmt.Errorf("unknown byte order %v", order))
	}
	switch wordSize {
	case 1, 2, 4, 8:
	default:
		panic(fmt.Sprintf("bad word size %d", wordSize))
	}
	l.wordSize = uint8(wordSize)
	return l
}

// Order returns the byte order of l.
func (l Layout) Order() binary.ByteOrder {
	if l.big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// WordSize returns the word size of l in bytes.
func (l Layout) WordSize() int {
	return int(l.wordSize)
}

func (l Layout) Uint16(b []byte) uint16 {
	if l.big {
		return binary.BigEndian.Uint16(b)
	}
	return binary.LittleEndian.Uint16(b)
}

func (l Layout) Uint32(b []byte) uint32 {
	if l.big {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

func (l Layout) Uint64(b []byte) uint64 {
	if l.big {
		return binary.BigEndian.Uint64(b)
	}
	return binary.LittleEndian.Uint64(b)
}

func (l Layout) Int16(b []byte) int16 { return int16(l.Uint16(b)) }
func (l Layout) Int32(b []byte) int32 { return int32(l.Uint32(b)) }
func (l Layout) Int64(b []byte) int64 { return int64(l.Uint64(b)) }

// Word reads one word of l's word size from b.
func (l Layout) Word(b []byte) uint64 {
	return l.Uint(b, l.WordSize())
}

// Uint reads a size-byte unsigned integer from b. size must be 1, 2, 4,
// or 8.
func (l Layout) Uint(b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(l.Uint16(b))
	case 4:
		return uint64(l.Uint32(b))
	case 8:
		return l.Uint64(b)
	}
	panic(fmt.Sprintf("bad integer size %d", size))
}

// Signed reads a size-byte signed integer from b and sign-extends it
// to 64 bits. A size of 0 reads nothing and yields 0. ok is false for
// any other size that is not 1, 2, 4, or 8, or if b is too short.
func (l Layout) Signed(b []byte, size int) (v int64, ok bool) {
	switch size {
	case 0:
		return 0, true
	case 1, 2, 4, 8:
	default:
		return 0, false
	}
	if len(b) < size {
		return 0, false
	}
	shift := 64 - 8*uint(size)
	return int64(l.Uint(b, size)<<shift) >> shift, true
}
