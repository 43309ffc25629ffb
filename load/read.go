// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// ReadFiles maps each path read-only into memory. The returned close
// function unmaps them; the Inputs and anything loaded from them must
// not be used afterwards.
func ReadFiles(paths []string) ([]Input, func() error, error) {
	var maps []mmap.MMap
	closeAll := func() error {
		var first error
		for _, m := range maps {
			if err := m.Unmap(); err != nil && first == nil {
				first = err
			}
		}
		maps = nil
		return first
	}

	inputs := make([]Input, 0, len(paths))
	for _, path := range paths {
		data, m, err := readFile(path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if m != nil {
			maps = append(maps, m)
		}
		inputs = append(inputs, Input{Path: path, Data: data})
	}
	return inputs, closeAll, nil
}

func readFile(path string) ([]byte, mmap.MMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading input")
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading input")
	}
	if fi.Size() == 0 {
		// Empty files cannot be mapped.
		return []byte{}, nil, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "mapping %s", path)
	}
	return m, m, nil
}

// LoadFiles maps paths with ReadFiles and loads them. The returned
// close function releases the Set and unmaps the files.
func LoadFiles(paths []string, opts ...Option) (*Set, func() error, error) {
	inputs, unmap, err := ReadFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	set, err := Load(inputs, opts...)
	if err != nil {
		unmap()
		return nil, nil, err
	}
	return set, func() error {
		set.Close()
		return unmap()
	}, nil
}
