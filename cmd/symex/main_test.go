// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-symex/internal/objtest"
)

func writeObject(t *testing.T, dir, name string, fooSize uint64) string {
	t.Helper()
	o := &objtest.Object{
		Sections: []objtest.Section{{Name: ".text", Kind: objtest.Text, Data: make([]byte, 0x200)}},
		Syms: []objtest.Sym{
			{Name: "foo", Section: ".text", Value: 0, Size: fooSize, Global: true, Func: true},
			{Name: "bar", Section: ".text", Value: 0x100, Size: 0x10, Global: true, Func: true},
		},
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, o.ELF64(), 0o644))
	return path
}

func TestRunSearch(t *testing.T) {
	path := writeObject(t, t.TempDir(), "a.o", 64)
	var buf bytes.Buffer
	require.NoError(t, runSearch(withOutput(context.Background(), &buf), path, []string{"fo"}, false))
	assert.Equal(t, "0x0000000000000000\t64\t\tfoo\ntotal:\t\t\t64\n", buf.String())

	err := runSearch(context.Background(), filepath.Join(t.TempDir(), "x.txt"), nil, false)
	assert.Error(t, err)
}

func TestRunDiff(t *testing.T) {
	dir := t.TempDir()
	old := writeObject(t, dir, "old.o", 64)
	cur := writeObject(t, dir, "new.o", 96)
	var buf bytes.Buffer
	require.NoError(t, runDiff(withOutput(context.Background(), &buf), old, cur, false, false, false))
	assert.Equal(t, "0x0000000000000000\t0x0000000000000000\t64\t96\t+32\t\tfoo\ntotal:\t\t\t+32\n", buf.String())
}

func TestRunContains(t *testing.T) {
	dir := t.TempDir()
	obj := writeObject(t, dir, "a.o", 64)
	nm := filepath.Join(dir, "lib.nm")
	require.NoError(t, os.WriteFile(nm, []byte("0000000000000000 T bar\n0000000000000000 D foo\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, runContains(withOutput(context.Background(), &buf), nm, obj))
	assert.Equal(t, "0x0000000000000100\t16\t\tbar\ntotal:\t\t\t16\n", buf.String())
}

type scriptReader struct {
	lines  []string
	stderr bytes.Buffer
}

func (r *scriptReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptReader) Stderr() io.Writer { return &r.stderr }

func TestREPL(t *testing.T) {
	dir := t.TempDir()
	a := writeObject(t, dir, "a.o", 64)
	b := writeObject(t, dir, "b.o", 32)

	var out bytes.Buffer
	r := &scriptReader{lines: []string{"obj a.o", "obj", "", "bogus", "dump bar", "obj none", "dump foo 1"}}
	s, closeFn, err := newSession(withOutput(context.Background(), &out), linkParams{
		paths: []string{a, b}, syntax: "gnu", threshold: 1 << 20,
	}, &r.stderr)
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, repl(r, s))
	assert.Contains(t, out.String(), "a.o\n")
	assert.Contains(t, out.String(), "0000000000000100 T 16 @ a.o/.text\n")
	assert.Contains(t, out.String(), "0000000000000000 T 32 @ b.o/.text\n")
	assert.Equal(t, 1, strings.Count(r.stderr.String(), "unknown command"), r.stderr.String())
}
