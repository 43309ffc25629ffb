// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objtest

import (
	"fmt"
	"strings"
)

// A Member is one file in an archive.
type Member struct {
	Name string
	Data []byte
}

// Archive returns members as a GNU-style ar archive with an empty
// symbol table. Names longer than 15 bytes go in the "//" name table.
func Archive(members ...Member) []byte {
	out := []byte("!<arch>\n")
	out = arMember(out, "/", []byte{0, 0, 0, 0})

	var names strings.Builder
	refs := make([]string, len(members))
	for i, m := range members {
		if len(m.Name) <= 15 {
			refs[i] = m.Name + "/"
			continue
		}
		refs[i] = fmt.Sprintf("/%d", names.Len())
		names.WriteString(m.Name + "/\n")
	}
	if names.Len() > 0 {
		out = arMember(out, "//", []byte(names.String()))
	}
	for i, m := range members {
		out = arMember(out, refs[i], m.Data)
	}
	return out
}

// BSDArchive returns members as a BSD-style ar archive, storing every
// name inline with the "#1/" convention.
func BSDArchive(members ...Member) []byte {
	out := []byte("!<arch>\n")
	for _, m := range members {
		name := []byte(m.Name)
		for len(name)%8 != 0 {
			name = append(name, 0)
		}
		out = arHeader(out, fmt.Sprintf("#1/%d", len(name)), len(name)+len(m.Data))
		out = append(out, name...)
		out = append(out, m.Data...)
		if len(out)%2 != 0 {
			out = append(out, '\n')
		}
	}
	return out
}

func arMember(out []byte, name string, data []byte) []byte {
	out = arHeader(out, name, len(data))
	out = append(out, data...)
	if len(out)%2 != 0 {
		out = append(out, '\n')
	}
	return out
}

func arHeader(out []byte, name string, size int) []byte {
	return append(out, fmt.Sprintf("%-16s%-12d%-6d%-6d%-8o%-10d`\n", name, 0, 0, 0, 0644, size)...)
}
