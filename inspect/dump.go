// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inspect

import (
	"bufio"
	"fmt"
	"io"

	"github.com/aclements/go-symex/asm"
)

// Dump writes a header line for r followed by its contents: a
// disassembly for text symbols and a hex dump for everything else.
// Addresses in the listing are section offsets.
func (x *Inspector) Dump(w io.Writer, r *Resolved) error {
	data, err := x.Bytes(r)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%016x %c %d @ %s/%s\n", r.Addr, r.Class, r.Size, r.Object.Name, r.Section.Name)
	switch r.Class {
	case 't', 'T':
		err = x.disasm(bw, r, data)
	default:
		HexDump(bw, r.Offset(), data)
	}
	if ferr := bw.Flush(); err == nil {
		err = ferr
	}
	return err
}

func (x *Inspector) disasm(w io.Writer, r *Resolved, data []byte) error {
	seq, err := asm.Disasm(x.set.Arch, data, r.Offset())
	if err != nil {
		return err
	}
	name := x.table(r.Occ.Obj).SymName(r.Section)
	base := r.Section.Addr
	byOffset := func(off uint64) (string, uint64) {
		s, addr := name(base + off)
		if s == "" {
			return "", 0
		}
		return s, addr - base
	}
	for inst, ok := seq.Next(); ok; inst, ok = seq.Next() {
		fmt.Fprintf(w, "%016x %s\n", inst.PC(), inst.Text(x.syntax, byOffset))
	}
	return nil
}

// HexDump writes data as rows of 16 bytes. Each row is the address of
// its first byte, the bytes in hex padded to 16 columns, and the bytes
// as ASCII with '.' for unprintable bytes.
func HexDump(w io.Writer, addr uint64, data []byte) {
	var line [16]byte
	for len(data) > 0 {
		n := copy(line[:], data)
		fmt.Fprintf(w, "%016x ", addr)
		for i := 0; i < 16; i++ {
			if i < n {
				fmt.Fprintf(w, " %02x", line[i])
			} else {
				io.WriteString(w, "   ")
			}
		}
		io.WriteString(w, "  |")
		for _, b := range line[:n] {
			if b < 0x20 || b > 0x7e {
				b = '.'
			}
			w.Write([]byte{b})
		}
		io.WriteString(w, "|\n")
		addr += uint64(n)
		data = data[n:]
	}
}
