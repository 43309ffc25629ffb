// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package demangle turns mangled symbol names into display names.
//
// It handles Itanium C++, legacy Rust, and Rust v0 manglings. Names
// that are not mangled are returned unchanged, so demangling is
// idempotent.
package demangle

import (
	"regexp"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// A Demangler maps a stored symbol name to its display form.
type Demangler func(name string) string

// Options are the demangle options used for display names.
var Options = []demangle.Option{demangle.NoClones}

// Name returns the display form of name. If name is not mangled it is
// returned as is.
//
// Mach-O prefixes every symbol with "_", so a name that does not
// demangle is retried without one leading underscore.
func Name(name string) string {
	if out := demangle.Filter(name, Options...); out != name {
		return out
	}
	if strings.HasPrefix(name, "__") {
		if out := demangle.Filter(name[1:], Options...); out != name[1:] {
			return out
		}
	}
	return name
}

var rustHash = regexp.MustCompile(`::h[0-9a-f]{16}$`)

// Canonical returns the demangled form of name with any legacy Rust
// hash suffix removed, so that the same function compiled in
// different builds maps to the same name.
func Canonical(name string) string {
	return rustHash.ReplaceAllLiteralString(Name(name), "")
}

// Identity is a Demangler that leaves names unchanged.
func Identity(name string) string { return name }
