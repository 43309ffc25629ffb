// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session implements the line-oriented commands of the
// interactive symbol explorer.
//
// A Session holds the explorer's state: the current object filter and
// the Inspector with its caches. Each call to Exec runs one command to
// completion.
package session

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/aclements/go-symex/inspect"
	"github.com/aclements/go-symex/load"
	"github.com/aclements/go-symex/symindex"
)

// ErrUnknownCommand is returned by Exec for an unrecognized command.
var ErrUnknownCommand = errors.New("unknown command")

// A Session is an interactive exploration of one load.Set.
type Session struct {
	x       *inspect.Inspector
	out     io.Writer
	errOut  io.Writer
	search  []symindex.Option
	current int
}

// Option configures a Session.
type Option func(*Session)

// WithOutput sets the writer for command output. The default is
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		s.out = w
	}
}

// WithErrorOutput sets the writer for candidate listings of ambiguous
// names. The default is os.Stderr.
func WithErrorOutput(w io.Writer) Option {
	return func(s *Session) {
		s.errOut = w
	}
}

// WithSearchOptions sets options passed to every search.
func WithSearchOptions(opts ...symindex.Option) Option {
	return func(s *Session) {
		s.search = opts
	}
}

// New returns a Session over x with no current object.
func New(x *inspect.Inspector, opts ...Option) *Session {
	s := &Session{x: x, out: os.Stdout, errOut: os.Stderr, current: inspect.None}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type command struct {
	name  string
	usage string
	run   func(s *Session, args []string) error
}

var commands = []command{
	{"obj", "obj [NAME|none]", (*Session).cmdObj},
	{"section", "section", (*Session).cmdSection},
	{"search", "search KEYWORD...", (*Session).cmdSearch},
	{"dump", "dump NAME [INDEX]", (*Session).cmdDump},
	{"reloc", "reloc NAME [INDEX]", (*Session).cmdReloc},
}

// Commands returns the names of the commands Exec accepts.
func Commands() []string {
	return lo.Map(commands, func(c command, _ int) string { return c.name })
}

// Objects returns the names of the loaded objects.
func (s *Session) Objects() []string {
	return lo.Map(s.x.Set().Objects, func(o *load.Object, _ int) string { return o.Name })
}

// Exec runs one command line. Words are split with shell quoting
// rules. A blank line does nothing.
func (s *Session) Exec(line string) error {
	args, err := shellquote.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	c, ok := lo.Find(commands, func(c command) bool { return c.name == args[0] })
	if !ok {
		return errors.Wrap(ErrUnknownCommand, args[0])
	}
	return c.run(s, args[1:])
}

// Current returns the name of the current object, if any.
func (s *Session) Current() (string, bool) {
	if s.current == inspect.None {
		return "", false
	}
	return s.x.Set().Objects[s.current].Name, true
}

func (s *Session) cmdObj(args []string) error {
	switch {
	case len(args) == 0:
		name, ok := s.Current()
		if !ok {
			name = "none"
		}
		fmt.Fprintln(s.out, name)
	case args[0] == "none":
		s.current = inspect.None
	default:
		i, ok := s.x.Set().Lookup(args[0])
		if !ok {
			return errors.Errorf("object %s not found", args[0])
		}
		s.current = i
	}
	return nil
}

func (s *Session) cmdSection(args []string) error {
	table := tablewriter.NewWriter(s.out)
	table.SetHeader([]string{"Object", "Section", "Kind", "Size", "Compression"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, o := range s.x.Set().Objects {
		for _, sect := range o.Sections() {
			if sect.Name == "" {
				continue
			}
			table.Append([]string{
				o.Name,
				sect.Name,
				sect.Kind.String(),
				humanize.IBytes(sect.Size),
				sect.Compression.String(),
			})
		}
	}
	table.Render()
	return nil
}

func (s *Session) cmdSearch(args []string) error {
	if len(args) == 0 {
		return errors.New("need keyword")
	}
	matches, err := s.x.Index().Search(args, s.search...)
	if err != nil {
		return err
	}
	set := s.x.Set()
	for _, m := range matches {
		sym := set.Sym(m.Occ)
		fmt.Fprintf(s.out, "%016x %c %s @ %s\n", sym.Value, s.x.Class(m.Occ), m.Name, set.Object(m.Occ).Name)
	}
	return nil
}

// resolve selects and resolves the symbol named by args, which is a
// name and an optional candidate index. For an ambiguous name it lists
// the candidates on the error output.
func (s *Session) resolve(args []string) (*inspect.Resolved, error) {
	if len(args) == 0 {
		return nil, errors.New("need symbol name")
	}
	pick := inspect.None
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, errors.Errorf("need index number, got %q", args[1])
		}
		pick = n
	}
	r, err := s.x.Lookup(args[0], s.current, pick)
	var amb *inspect.AmbiguousError
	if errors.As(err, &amb) {
		for _, c := range amb.Candidates {
			fmt.Fprintln(s.errOut, c)
		}
	}
	return r, err
}

func (s *Session) cmdDump(args []string) error {
	r, err := s.resolve(args)
	if err != nil {
		return err
	}
	return s.x.Dump(s.out, r)
}

func (s *Session) cmdReloc(args []string) error {
	r, err := s.resolve(args)
	if err != nil {
		return err
	}
	rs, err := s.x.Relocs(r)
	if err != nil {
		return err
	}
	if len(rs) > 0 {
		fmt.Fprintln(s.out, "OFFSET           ADDEND               TYPE    ADDRESS          NAME")
	}
	for _, rel := range rs {
		fmt.Fprintf(s.out, "%016x %-20d %-7s %016x %s\n", rel.Offset, rel.Addend, rel.Target.Kind, rel.Target.Addr, rel.Target.Name)
	}
	return nil
}

// Usage writes a summary of the commands to w.
func Usage(w io.Writer) {
	for _, c := range commands {
		fmt.Fprintln(w, c.usage)
	}
}
