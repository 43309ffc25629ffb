// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-symex/arch"
	"github.com/aclements/go-symex/internal/objtest"
	"github.com/aclements/go-symex/obj"
)

func object(m objtest.Machine, sym string) *objtest.Object {
	return &objtest.Object{
		Machine:  m,
		Sections: []objtest.Section{{Name: ".text", Kind: objtest.Text, Data: []byte{0xc3}}},
		Syms:     []objtest.Sym{{Name: sym, Section: ".text", Size: 1, Global: true, Func: true}},
	}
}

func TestLoadObjectsAndArchives(t *testing.T) {
	lib := objtest.Archive(
		objtest.Member{Name: "m1.o", Data: object(objtest.AMD64, "m1").ELF64()},
		objtest.Member{Name: "m2.o", Data: object(objtest.AMD64, "m2").ELF64()},
	)
	set, err := Load([]Input{
		{Path: "dir/a.o", Data: object(objtest.AMD64, "a").ELF64()},
		{Path: "lib.a", Data: lib},
		{Path: "crate.rlib", Data: objtest.Archive(objtest.Member{Name: "r.o", Data: object(objtest.AMD64, "r").ELF64()})},
	})
	require.NoError(t, err)
	defer set.Close()

	var names []string
	for _, o := range set.Objects {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"a.o", "m1.o", "m2.o", "r.o"}, names)
	assert.Equal(t, arch.AMD64, set.Arch)
	assert.Equal(t, obj.FormatELF, set.Format)
	assert.Equal(t, "lib.a", set.Objects[2].Path)

	i, ok := set.Lookup("m2.o")
	require.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = set.Lookup("missing.o")
	assert.False(t, ok)

	sym := set.Sym(Occurrence{Obj: 2, Sym: 0})
	assert.Equal(t, "m2", sym.Name)
	assert.Equal(t, "m2.o", set.Object(Occurrence{Obj: 2}).Name)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load([]Input{{Path: "notes.txt", Data: []byte("hi")}})
	var extErr *UnsupportedExtensionError
	require.True(t, errors.As(err, &extErr), "got %v", err)
	assert.Equal(t, ".txt", extErr.Ext)
	assert.Contains(t, err.Error(), ".txt")
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load(nil)
	assert.Error(t, err)

	_, err = Load([]Input{{Path: "empty.a", Data: []byte("!<arch>\n")}})
	assert.Error(t, err)
}

func TestLoadParseFailure(t *testing.T) {
	_, err := Load([]Input{
		{Path: "a.o", Data: object(objtest.AMD64, "a").ELF64()},
		{Path: "lib.a", Data: objtest.Archive(objtest.Member{Name: "bad.o", Data: []byte("garbage")})},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lib.a(bad.o)")
}

func TestLoadMismatch(t *testing.T) {
	t.Run("arch", func(t *testing.T) {
		_, err := Load([]Input{
			{Path: "x86.o", Data: object(objtest.AMD64, "a").ELF64()},
			{Path: "arm.o", Data: object(objtest.ARM64, "b").ELF64()},
		})
		var mm *MismatchError
		require.True(t, errors.As(err, &mm), "got %v", err)
		assert.Equal(t, "architecture", mm.What)
		assert.Equal(t, "x86.o", mm.FirstName)
		assert.Equal(t, "arm.o", mm.OtherName)
		assert.Contains(t, err.Error(), "x86.o")
		assert.Contains(t, err.Error(), "arm.o")
	})
	t.Run("format", func(t *testing.T) {
		_, err := Load([]Input{
			{Path: "e.o", Data: object(objtest.AMD64, "a").ELF64()},
			{Path: "m.o", Data: object(objtest.AMD64, "_b").MachO64()},
		})
		var mm *MismatchError
		require.True(t, errors.As(err, &mm), "got %v", err)
		assert.Equal(t, "format", mm.What)
		assert.Equal(t, "elf", mm.First)
		assert.Equal(t, "macho", mm.Other)
	})
}

func TestLoadWarnsWithoutDebugInfo(t *testing.T) {
	withDebug := object(objtest.AMD64, "b")
	withDebug.Sections = append(withDebug.Sections, objtest.Section{Name: ".debug_info", Kind: objtest.Debug, Data: []byte{1}})

	var buf bytes.Buffer
	set, err := Load([]Input{
		{Path: "a.o", Data: object(objtest.AMD64, "a").ELF64()},
		{Path: "b.o", Data: withDebug.ELF64()},
	}, WithLogger(log.NewLogfmtLogger(&buf)))
	require.NoError(t, err)
	defer set.Close()

	assert.Contains(t, buf.String(), "object=a.o")
	assert.NotContains(t, buf.String(), "object=b.o")
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "a.o")
	empty := filepath.Join(dir, "empty.o")
	require.NoError(t, os.WriteFile(full, []byte("contents"), 0o644))
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	inputs, closeFn, err := ReadFiles([]string{full, empty})
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, []byte("contents"), []byte(inputs[0].Data))
	assert.Empty(t, inputs[1].Data)
	assert.Equal(t, empty, inputs[1].Path)
	require.NoError(t, closeFn())

	_, _, err = ReadFiles([]string{filepath.Join(dir, "missing.o")})
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.o")
	require.NoError(t, os.WriteFile(path, object(objtest.AMD64, "a").ELF64(), 0o644))

	set, closeFn, err := LoadFiles([]string{path})
	require.NoError(t, err)
	require.Len(t, set.Objects, 1)
	assert.Equal(t, "a", set.Sym(Occurrence{Obj: 0, Sym: 0}).Name)
	require.NoError(t, closeFn())

	bad := filepath.Join(dir, "bad.o")
	require.NoError(t, os.WriteFile(bad, []byte("not an object"), 0o644))
	_, _, err = LoadFiles([]string{bad})
	assert.Error(t, err)
}
