// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command symex inspects symbols in relocatable object files and static
// archives.
//
// Usage:
//
//	symex search FILE [KEYWORD...] [--sort]
//	symex diff OLD NEW [--oneway] [--sort] [--fold-outlined]
//	symex contains NMFILE OBJECT
//	symex link PATH...
//
// search, diff, and contains print tab-separated reports ending in a
// total line. contains reads NMFILE as produced by "llvm-nm -f bsd".
// link starts an interactive explorer over all symbols of the given
// objects and archives.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/alecthomas/kingpin.v2"
)

var cfg struct {
	verbose bool
	search  struct {
		file     string
		keywords []string
		sort     bool
	}
	diff struct {
		old, new     string
		oneway, sort bool
		foldOutlined bool
	}
	contains struct {
		nmFile, object string
	}
	link struct {
		paths     []string
		history   string
		syntax    string
		workers   int
		threshold int
	}
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	ctx := withOutput(context.Background(), os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Cross-platform symbol tools for object files and archives.").UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Envar("SYMEX_VERBOSE").Default("false").BoolVar(&cfg.verbose)

	searchCmd := app.Command("search", "List text symbols matching keywords.")
	searchCmd.Arg("file", "Object file or archive.").Required().StringVar(&cfg.search.file)
	searchCmd.Arg("keywords", "Match demangled names containing, or stored names ending with, any keyword.").StringsVar(&cfg.search.keywords)
	searchCmd.Flag("sort", "Sort by size.").BoolVar(&cfg.search.sort)

	diffCmd := app.Command("diff", "Compare text symbol sizes of two builds.")
	diffCmd.Arg("old", "Old object file or archive.").Required().StringVar(&cfg.diff.old)
	diffCmd.Arg("new", "New object file or archive.").Required().StringVar(&cfg.diff.new)
	diffCmd.Flag("oneway", "Only report names present in the old build.").BoolVar(&cfg.diff.oneway)
	diffCmd.Flag("sort", "Sort by size change.").BoolVar(&cfg.diff.sort)
	diffCmd.Flag("fold-outlined", "Report all outlined function fragments as one entry.").Envar("SYMEX_FOLD_OUTLINED").BoolVar(&cfg.diff.foldOutlined)

	containsCmd := app.Command("contains", "List text symbols of an object that appear in an nm listing.")
	containsCmd.Arg("nmfile", "Output of llvm-nm -f bsd.").Required().ExistingFileVar(&cfg.contains.nmFile)
	containsCmd.Arg("object", "Object file or archive.").Required().StringVar(&cfg.contains.object)

	linkCmd := app.Command("link", "Explore symbols, bytes, and relocations interactively.")
	linkCmd.Arg("paths", "Object files and archives.").Required().StringsVar(&cfg.link.paths)
	linkCmd.Flag("history", "Command history file.").Envar("SYMEX_HISTORY").StringVar(&cfg.link.history)
	linkCmd.Flag("syntax", "Disassembly syntax: gnu or go.").Default("gnu").EnumVar(&cfg.link.syntax, "gnu", "go")
	linkCmd.Flag("workers", "Search workers; 0 uses all CPUs.").Default("0").IntVar(&cfg.link.workers)
	linkCmd.Flag("parallel-threshold", "Name count above which search runs in parallel.").Default("1048576").IntVar(&cfg.link.threshold)

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	var err error
	switch parsedCmd {
	case searchCmd.FullCommand():
		err = runSearch(ctx, cfg.search.file, cfg.search.keywords, cfg.search.sort)
	case diffCmd.FullCommand():
		err = runDiff(ctx, cfg.diff.old, cfg.diff.new, cfg.diff.oneway, cfg.diff.sort, cfg.diff.foldOutlined)
	case containsCmd.FullCommand():
		err = runContains(ctx, cfg.contains.nmFile, cfg.contains.object)
	case linkCmd.FullCommand():
		err = runLink(ctx, linkParams{
			paths:     cfg.link.paths,
			history:   cfg.link.history,
			syntax:    cfg.link.syntax,
			workers:   cfg.link.workers,
			threshold: cfg.link.threshold,
		})
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
	os.Exit(checkError(err))
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
	return 1
}

type contextKey uint8

const contextKeyOutput contextKey = iota

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
