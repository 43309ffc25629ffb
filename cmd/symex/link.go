// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/go-kit/log/level"

	"github.com/aclements/go-symex/asm"
	"github.com/aclements/go-symex/inspect"
	"github.com/aclements/go-symex/session"
	"github.com/aclements/go-symex/symindex"
)

type linkParams struct {
	paths     []string
	history   string
	syntax    string
	workers   int
	threshold int
}

// newSession loads p.paths and builds a session over them.
func newSession(ctx context.Context, p linkParams, errOut io.Writer) (*session.Session, func() error, error) {
	syntax, err := asm.ParseSyntax(p.syntax)
	if err != nil {
		return nil, nil, err
	}
	set, closeFn, err := loadPaths(p.paths...)
	if err != nil {
		return nil, nil, err
	}
	index, err := symindex.Build(set)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	level.Debug(logger).Log("msg", "indexed symbols", "objects", len(set.Objects), "names", index.Len())

	x := inspect.New(index, inspect.WithLogger(logger), inspect.WithSyntax(syntax))
	s := session.New(x,
		session.WithOutput(output(ctx)),
		session.WithErrorOutput(errOut),
		session.WithSearchOptions(
			symindex.WithWorkers(p.workers),
			symindex.WithParallelThreshold(p.threshold),
		),
	)
	return s, closeFn, nil
}

func runLink(ctx context.Context, p linkParams) error {
	completer := readline.NewPrefixCompleter()
	for _, name := range session.Commands() {
		completer.SetChildren(append(completer.GetChildren(), readline.PcItem(name)))
	}
	shell, err := readline.NewEx(&readline.Config{
		Prompt:          "explorer > ",
		AutoComplete:    completer,
		HistoryFile:     p.history,
		VimMode:         true,
		EOFPrompt:       "\n",
		InterruptPrompt: "\n",
	})
	if err != nil {
		return err
	}
	defer shell.Close()

	s, closeFn, err := newSession(ctx, p, shell.Stderr())
	if err != nil {
		return err
	}
	defer closeFn()

	// Object names complete after "obj".
	objItems := []readline.PrefixCompleterInterface{readline.PcItem("none")}
	for _, name := range s.Objects() {
		objItems = append(objItems, readline.PcItem(name))
	}
	for _, c := range completer.GetChildren() {
		if string(c.GetName()) == "obj " {
			c.SetChildren(objItems)
		}
	}

	return repl(shell, s)
}

// lineReader is the part of *readline.Instance that repl uses.
type lineReader interface {
	Readline() (string, error)
	Stderr() io.Writer
}

// repl runs commands from r until end of input or an interrupt. Command
// errors are reported and the loop continues.
func repl(r lineReader, s *session.Session) error {
	for {
		line, err := r.Readline()
		switch err {
		case nil:
		case io.EOF, readline.ErrInterrupt:
			return nil
		default:
			return err
		}
		if err := s.Exec(line); err != nil {
			fmt.Fprintf(r.Stderr(), "%s %v\n", color.RedString("failed:"), err)
		}
	}
}
