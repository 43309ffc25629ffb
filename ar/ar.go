// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ar parses Unix ar archives, the container format of static
// libraries.
//
// It understands the System V/GNU variant (with "/" and "/SYM64/"
// symbol tables and a "//" long name table) and the BSD variant (with
// "#1/N" inline names and "__.SYMDEF" symbol tables). Symbol tables
// are skipped.
package ar

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Magic is the signature at the start of every archive.
const Magic = "!<arch>\n"

const headerSize = 60

// A Member is one file stored in an archive.
type Member struct {
	// Name is the member's stored name, with any long-name indirection
	// resolved and GNU "/" terminators removed.
	Name string

	// Data is the member's contents. It aliases the archive bytes.
	Data []byte
}

// IsArchive reports whether data begins with the archive signature.
func IsArchive(data []byte) bool {
	return bytes.HasPrefix(data, []byte(Magic))
}

// Parse returns the members of the archive in data, in stored order.
// Member data aliases data.
func Parse(data []byte) ([]Member, error) {
	if !IsArchive(data) {
		return nil, errors.New("ar: not an archive file")
	}

	var members []Member
	var longNames []byte
	pos := len(Magic)
	for pos < len(data) {
		hdrPos := pos
		if len(data)-pos < headerSize {
			return nil, errors.Errorf("ar: truncated header at offset %d", pos)
		}
		header := data[pos : pos+headerSize]
		if string(header[58:60]) != "`\n" {
			return nil, errors.Errorf("ar: bad header terminator at offset %d", pos)
		}
		name := strings.TrimRight(string(header[:16]), " ")
		sizeStr := strings.TrimRight(string(header[48:58]), "\x00 ")
		size, err := strconv.ParseUint(sizeStr, 10, 63)
		if err != nil {
			return nil, errors.Wrapf(err, "ar: bad size for member at offset %d", pos)
		}
		start := pos + headerSize
		if size > uint64(len(data)-start) {
			return nil, errors.Errorf("ar: member at offset %d overruns archive", pos)
		}
		contents := data[start : start+int(size) : start+int(size)]

		// File contents are padded to a multiple of two bytes.
		pos = start + int(size)
		if size%2 == 1 {
			pos++
		}

		switch {
		case name == "//":
			if longNames != nil {
				return nil, errors.New("ar: two filename tables found")
			}
			longNames = contents
			continue

		case name == "/" || name == "/SYM64/":
			continue

		case strings.HasPrefix(name, "#1/"):
			// BSD: the name is stored, possibly NUL padded, at the
			// start of the contents.
			n, err := strconv.ParseUint(name[3:], 10, 31)
			if err != nil || n > uint64(len(contents)) {
				return nil, errors.Errorf("ar: bad BSD name length %q at offset %d", name, hdrPos)
			}
			name = string(contents[:n])
			if i := strings.IndexByte(name, 0); i >= 0 {
				name = name[:i]
			}
			contents = contents[n:]
			if name == "__.SYMDEF" || name == "__.SYMDEF SORTED" || name == "__.SYMDEF_64" {
				continue
			}

		case len(name) > 1 && name[0] == '/':
			// A long filename is stored as "/" followed by a base-10
			// offset in the filename table.
			if longNames == nil {
				return nil, errors.New("ar: long filename reference found before filename table")
			}
			off, err := strconv.ParseUint(name[1:], 10, 31)
			if err != nil {
				return nil, errors.Wrap(err, "ar: failed to parse filename offset")
			}
			if off > uint64(len(longNames)) {
				return nil, errors.New("ar: filename offset out of bounds")
			}
			filename := longNames[off:]
			i := bytes.IndexAny(filename, "/\n")
			if i < 0 {
				return nil, errors.New("ar: unterminated filename in table")
			}
			name = string(filename[:i])

		default:
			name = strings.TrimSuffix(name, "/")
		}

		members = append(members, Member{Name: name, Data: contents})
	}
	return members, nil
}
