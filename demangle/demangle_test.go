// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package demangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	for _, test := range []struct {
		in, want string
	}{
		{"main", "main"},
		{"_start", "_start"},
		{"_Z3foov", "foo()"},
		{"__Z3foov", "foo()"},
		{"_ZN3foo3barEi", "foo::bar(int)"},
		{"OUTLINED_FUNCTION_12", "OUTLINED_FUNCTION_12"},
	} {
		got := Name(test.in)
		assert.Equal(t, test.want, got, "Name(%q)", test.in)
		// Demangling is idempotent.
		assert.Equal(t, got, Name(got), "Name(Name(%q))", test.in)
	}
}

func TestCanonical(t *testing.T) {
	for _, test := range []struct {
		in, want string
	}{
		{"main", "main"},
		{"_ZN4core3fmt5write17h0123456789abcdefE", "core::fmt::write"},
		{"core::fmt::write::h0123456789abcdef", "core::fmt::write"},
		{"foo::h0123", "foo::h0123"},
	} {
		assert.Equal(t, test.want, Canonical(test.in), "Canonical(%q)", test.in)
	}
}
