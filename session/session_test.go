// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"bytes"
	"debug/elf"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-symex/inspect"
	"github.com/aclements/go-symex/internal/objtest"
	"github.com/aclements/go-symex/load"
	"github.com/aclements/go-symex/symindex"
)

func object(bazByte byte) *objtest.Object {
	text := []byte{0x90, 0x90, 0x90, 0xc3, bazByte, 0x00, 0x00, 0x00}
	return &objtest.Object{
		Sections: []objtest.Section{
			{Name: ".text", Kind: objtest.Text, Data: text},
			{Name: ".data", Kind: objtest.Data, Data: []byte("abcdefgh")},
		},
		Syms: []objtest.Sym{
			{Name: "baz", Section: ".data", Value: 0, Size: 8, Global: true},
			{Name: "fn", Section: ".text", Value: 0, Size: 4, Func: true},
			{Name: "callee", Global: true},
			{Name: "a.c", Section: objtest.Absolute},
		},
		Relocs: []objtest.Reloc{
			{Section: ".data", Offset: 0, Sym: "fn", Type: uint32(elf.R_X86_64_64), Addend: 2},
		},
	}
}

type harness struct {
	s        *Session
	out, err bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	a := object('a')
	b := object('b')
	b.Sections[1].Data = []byte("ABCDEFGH")
	set, err := load.Load([]load.Input{
		{Path: "a.o", Data: a.ELF64()},
		{Path: "b.o", Data: b.ELF64()},
	})
	require.NoError(t, err)
	t.Cleanup(set.Close)
	x, err := symindex.Build(set)
	require.NoError(t, err)

	h := new(harness)
	h.s = New(inspect.New(x), WithOutput(&h.out), WithErrorOutput(&h.err))
	return h
}

func (h *harness) exec(t *testing.T, line string) string {
	t.Helper()
	h.out.Reset()
	h.err.Reset()
	require.NoError(t, h.s.Exec(line))
	return h.out.String()
}

func TestObj(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "none\n", h.exec(t, "obj"))
	h.exec(t, "obj b.o")
	assert.Equal(t, "b.o\n", h.exec(t, "obj"))
	name, ok := h.s.Current()
	assert.True(t, ok)
	assert.Equal(t, "b.o", name)
	h.exec(t, "obj none")
	assert.Equal(t, "none\n", h.exec(t, "obj"))

	assert.Error(t, h.s.Exec("obj c.o"))
	assert.Equal(t, []string{"a.o", "b.o"}, h.s.Objects())
}

func TestDumpDisambiguation(t *testing.T) {
	h := newHarness(t)

	err := h.s.Exec("dump baz")
	var amb *inspect.AmbiguousError
	require.True(t, errors.As(err, &amb), "got %v", err)
	assert.Equal(t, "[0] D by a.o\n[1] D by b.o\n", h.err.String())

	h.exec(t, "obj a.o")
	out := h.exec(t, "dump baz")
	assert.True(t, strings.HasPrefix(out, "0000000000000000 D 8 @ a.o/.data\n"), out)
	assert.Contains(t, out, "|abcdefgh|")

	h.exec(t, "obj none")
	out = h.exec(t, "dump baz 1")
	assert.True(t, strings.HasPrefix(out, "0000000000000000 D 8 @ b.o/.data\n"), out)
	assert.Contains(t, out, "|ABCDEFGH|")

	assert.Error(t, h.s.Exec("dump baz x"))
	assert.Error(t, h.s.Exec("dump"))
	err = h.s.Exec("dump callee 0")
	assert.True(t, errors.Is(err, inspect.ErrUndefined), "got %v", err)
}

func TestReloc(t *testing.T) {
	h := newHarness(t)
	out := h.exec(t, "reloc baz 0")
	want := "OFFSET           ADDEND               TYPE    ADDRESS          NAME\n" +
		"0000000000000000 2                    symbol  0000000000000000 fn\n"
	assert.Equal(t, want, out)

	assert.Equal(t, "", h.exec(t, "reloc fn 1"))
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	out := h.exec(t, "search fn")
	assert.Equal(t, "0000000000000000 t fn @ a.o\n0000000000000000 t fn @ b.o\n", out)
	assert.Error(t, h.s.Exec("search"))

	// Absolute symbols are upper-case even when local.
	out = h.exec(t, "search a.c")
	assert.Equal(t, "0000000000000000 A a.c @ a.o\n0000000000000000 A a.c @ b.o\n", out)
}

func TestSection(t *testing.T) {
	h := newHarness(t)
	out := h.exec(t, "section")
	assert.Contains(t, out, ".text")
	assert.Contains(t, out, ".data")
	assert.Contains(t, out, "a.o")
	assert.Contains(t, out, "b.o")
}

func TestExecErrors(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "", h.exec(t, ""))
	assert.Equal(t, "", h.exec(t, "   \t"))

	err := h.s.Exec("frobnicate")
	assert.True(t, errors.Is(err, ErrUnknownCommand), "got %v", err)

	assert.Error(t, h.s.Exec(`search "unterminated`))
	assert.Equal(t, []string{"obj", "section", "search", "dump", "reloc"}, Commands())
}
