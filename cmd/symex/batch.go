// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/aclements/go-symex/load"
	"github.com/aclements/go-symex/report"
	"github.com/aclements/go-symex/symmap"
)

func loadPaths(paths ...string) (*load.Set, func() error, error) {
	return load.LoadFiles(paths, load.WithLogger(logger))
}

func runSearch(ctx context.Context, file string, keywords []string, sortBySize bool) error {
	set, closeFn, err := loadPaths(file)
	if err != nil {
		return err
	}
	defer closeFn()
	return report.WriteRows(output(ctx), report.SearchRows(set, keywords), sortBySize)
}

func runDiff(ctx context.Context, oldPath, newPath string, oneWay, sortByDelta, fold bool) error {
	build := func(path string) (*symmap.Map, error) {
		set, closeFn, err := loadPaths(path)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		return symmap.Build(set, symmap.WithFoldOutlined(fold)), nil
	}
	old, err := build(oldPath)
	if err != nil {
		return err
	}
	cur, err := build(newPath)
	if err != nil {
		return err
	}
	return report.WriteDiff(output(ctx), symmap.Diff(old, cur, oneWay), sortByDelta)
}

func runContains(ctx context.Context, nmFile, object string) error {
	f, err := os.Open(nmFile)
	if err != nil {
		return err
	}
	defer f.Close()
	names, err := report.ParseNM(f)
	if err != nil {
		return errors.Wrap(err, nmFile)
	}

	set, closeFn, err := loadPaths(object)
	if err != nil {
		return err
	}
	defer closeFn()
	return report.WriteRows(output(ctx), report.ContainsRows(set, names), false)
}
