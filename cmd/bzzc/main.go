// Command bzzc is the Buzz compiler: it parses a .bzz source file into
// textual assembly. Grounded on the teacher's own single-source-file
// language-tool CLI (probe-lang/cmd/probec), which likewise reads stdlib
// flag rather than a full command framework — bzzc is a one-shot,
// two-positional-argument tool at the same scale.
//
// Usage:
//
//	bzzc <in.bzz> <out.basm> [strings.bst]
//
// Exit codes: 0 success, 1 I/O error, 2 compilation error. Compilation
// error messages are prefixed "file:line:col:" so an editor can jump to
// the site (§6 [FULL]).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/buzzlang/buzz/lang/lexer"
	"github.com/buzzlang/buzz/lang/parser"
	"github.com/buzzlang/buzz/lang/token"
	"github.com/buzzlang/buzz/stdlib"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("bzzc", flag.ContinueOnError)
	strict := fs.Bool("strict", false, "warn on implicit global promotion")
	ver := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *ver {
		fmt.Printf("bzzc %s\n", version)
		return 0
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: bzzc [flags] <in.bzz> <out.basm> [strings.bst]")
		return 1
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

	src, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	l := lexer.New(inPath, src)
	toks, err := l.Tokenize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}

	var warnings []string
	p := parser.New(toks, parser.Options{
		Strict:   *strict,
		Builtins: stdlib.GlobalNames,
		Warn: func(pos token.Position, format string, a ...any) {
			warnings = append(warnings, fmt.Sprintf("%s: warning: %s", pos, fmt.Sprintf(format, a...)))
		},
	})
	asm, err := p.Compile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if err := os.WriteFile(outPath, []byte(asm), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if fs.NArg() >= 3 {
		if err := os.WriteFile(fs.Arg(2), []byte(strings.Join(stdlib.GlobalNames, "\n")+"\n"), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}
	return 0
}
