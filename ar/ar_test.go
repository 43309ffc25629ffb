// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ar

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/go-symex/internal/objtest"
)

func TestParseGNU(t *testing.T) {
	data := objtest.Archive(
		objtest.Member{Name: "a.o", Data: []byte("AAA")},
		objtest.Member{Name: "a_rather_long_member_name.o", Data: []byte("BB")},
		objtest.Member{Name: "another_rather_long_name.o", Data: []byte("C")},
	)
	require.True(t, IsArchive(data))

	members, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, Member{"a.o", []byte("AAA")}, members[0])
	assert.Equal(t, Member{"a_rather_long_member_name.o", []byte("BB")}, members[1])
	assert.Equal(t, Member{"another_rather_long_name.o", []byte("C")}, members[2])
}

func TestParseBSD(t *testing.T) {
	data := objtest.BSDArchive(
		objtest.Member{Name: "__.SYMDEF SORTED", Data: []byte{0, 0, 0, 0}},
		objtest.Member{Name: "x.o", Data: []byte("xyz")},
		objtest.Member{Name: "a_rather_long_member_name.o", Data: []byte("long")},
	)
	members, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "x.o", members[0].Name)
	assert.Equal(t, []byte("xyz"), members[0].Data)
	assert.Equal(t, "a_rather_long_member_name.o", members[1].Name)
	assert.Equal(t, []byte("long"), members[1].Data)
}

func TestParseErrors(t *testing.T) {
	good := objtest.Archive(objtest.Member{Name: "a.o", Data: []byte("AAAA")})
	for name, data := range map[string][]byte{
		"not archive": []byte("hello"),
		"truncated":   good[:len(good)-10],
		"short":       good[:len(Magic)+20],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(data)
			assert.Error(t, err)
		})
	}
}

func TestParseBadBSDNameOffset(t *testing.T) {
	data := objtest.BSDArchive(objtest.Member{Name: "a.o", Data: []byte("AAAA")})
	off := len(data)
	data = append(data, fmt.Sprintf("%-16s%-12s%-6s%-6s%-8s%-10d`\n", "#1/99", "0", "0", "0", "644", 4)...)
	data = append(data, "abcd"...)

	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("at offset %d", off))
}

func TestParseEmpty(t *testing.T) {
	members, err := Parse([]byte(Magic))
	require.NoError(t, err)
	assert.Empty(t, members)
}
