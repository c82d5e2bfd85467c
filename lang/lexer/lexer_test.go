package lexer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buzzlang/buzz/lang/lexer"
	"github.com/buzzlang/buzz/lang/token"
)

type tokenCase struct {
	kind    token.Kind
	literal string
}

func runTokenize(t *testing.T, name, input string, want []tokenCase) {
	t.Helper()
	t.Run(name, func(t *testing.T) {
		t.Helper()
		l := lexer.New("test.bzz", []byte(input))
		toks, err := l.Tokenize()
		if err != nil {
			t.Fatalf("Tokenize: %v", err)
		}
		if len(toks) == 0 {
			t.Fatal("Tokenize returned empty slice")
		}
		last := toks[len(toks)-1]
		if last.Kind != token.EOF {
			t.Errorf("last token is %s, want EOF", last.Kind)
		}
		body := toks[:len(toks)-1]
		if len(body) != len(want) {
			t.Errorf("got %d tokens (excl. EOF), want %d", len(body), len(want))
			for i, tok := range body {
				t.Logf("  [%d] %s %q", i, tok.Kind, tok.Literal)
			}
			return
		}
		for i, w := range want {
			got := body[i]
			if got.Kind != w.kind {
				t.Errorf("token[%d]: kind = %s, want %s (literal %q)", i, got.Kind, w.kind, got.Literal)
			}
			if got.Literal != w.literal {
				t.Errorf("token[%d]: literal = %q, want %q", i, got.Literal, w.literal)
			}
		}
	})
}

func TestOperators(t *testing.T) {
	runTokenize(t, "arith", "+ - * / % ^", []tokenCase{
		{token.AddSub, "+"},
		{token.AddSub, "-"},
		{token.MulDiv, "*"},
		{token.MulDiv, "/"},
		{token.Mod, "%"},
		{token.Pow, "^"},
	})
	runTokenize(t, "cmp", "== != < > <= >=", []tokenCase{
		{token.Cmp, "=="},
		{token.Cmp, "!="},
		{token.Cmp, "<"},
		{token.Cmp, ">"},
		{token.Cmp, "<="},
		{token.Cmp, ">="},
	})
	runTokenize(t, "assign-vs-eq", "x = 1", []tokenCase{
		{token.Id, "x"},
		{token.Assign, "="},
		{token.Const, "1"},
	})
}

func TestDelimiters(t *testing.T) {
	runTokenize(t, "delims", "{ } ( ) [ ] , . ;", []tokenCase{
		{token.BlockOpen, "{"},
		{token.BlockClose, "}"},
		{token.ParOpen, "("},
		{token.ParClose, ")"},
		{token.IdxOpen, "["},
		{token.IdxClose, "]"},
		{token.ListSep, ","},
		{token.Dot, "."},
		{token.StateEnd, ";"},
	})
}

func TestNewlineEndsStatement(t *testing.T) {
	runTokenize(t, "newline", "var a\nvar b", []tokenCase{
		{token.Var, "var"},
		{token.Id, "a"},
		{token.StateEnd, "\n"},
		{token.Var, "var"},
		{token.Id, "b"},
	})
}

func TestComment(t *testing.T) {
	runTokenize(t, "comment", "var a # this is ignored\nvar b", []tokenCase{
		{token.Var, "var"},
		{token.Id, "a"},
		{token.StateEnd, "\n"},
		{token.Var, "var"},
		{token.Id, "b"},
	})
}

func TestNumbers(t *testing.T) {
	runTokenize(t, "numbers", "42 3.14 0 0.5", []tokenCase{
		{token.Const, "42"},
		{token.Const, "3.14"},
		{token.Const, "0"},
		{token.Const, "0.5"},
	})
}

func TestStrings(t *testing.T) {
	runTokenize(t, "double-quote", `"hello world"`, []tokenCase{
		{token.String, "hello world"},
	})
	runTokenize(t, "single-quote", `'hello'`, []tokenCase{
		{token.String, "hello"},
	})
	runTokenize(t, "escapes", `"a\nb"`, []tokenCase{
		{token.String, "a\nb"},
	})
}

func TestKeywords(t *testing.T) {
	runTokenize(t, "keywords", "var nil if else function return for while and or not",
		[]tokenCase{
			{token.Var, "var"},
			{token.Nil, "nil"},
			{token.If, "if"},
			{token.Else, "else"},
			{token.Fun, "function"},
			{token.Return, "return"},
			{token.For, "for"},
			{token.While, "while"},
			{token.AndOr, "and"},
			{token.AndOr, "or"},
			{token.Not, "not"},
		})
}

func TestUnterminatedStringIsError(t *testing.T) {
	l := lexer.New("t.bzz", []byte(`"abc`))
	if _, err := l.Tokenize(); err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestBangNotFollowedByEqualsIsError(t *testing.T) {
	l := lexer.New("t.bzz", []byte(`a ! b`))
	if _, err := l.Tokenize(); err == nil {
		t.Fatal("expected error for bare '!'")
	}
}

func TestIncludeResolvesRelativeToWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "child.bzz"), []byte("var x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	l := lexer.New("main.bzz", []byte(`include "child.bzz"
var y = 2`))
	toks, err := l.Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var kinds []token.Kind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	want := []token.Kind{token.Var, token.Id, token.Assign, token.Const, token.StateEnd,
		token.Var, token.Id, token.Assign, token.Const, token.EOF}
	if len(kinds) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(kinds), len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("token[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestIncludeViaEnvPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.bzz"), []byte("var z = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BUZZ_INCLUDE_PATH", dir)

	l := lexer.New("main.bzz", []byte(`include "lib.bzz"`))
	toks, err := l.Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) == 0 || toks[0].Kind != token.Var {
		t.Fatalf("expected lib.bzz contents to be spliced in, got %v", toks)
	}
}

func TestIncludeIsOnceOnly(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.bzz"), []byte(`include "common.bzz"
var a = 1`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.bzz"), []byte(`include "common.bzz"
var b = 2`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "common.bzz"), []byte("var shared = 0"), 0o644); err != nil {
		t.Fatal(err)
	}
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	l := lexer.New("main.bzz", []byte(`include "a.bzz"
include "b.bzz"`))
	toks, err := l.Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	count := 0
	for _, tok := range toks {
		if tok.Kind == token.Id && tok.Literal == "shared" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected common.bzz to be spliced in exactly once, got %d", count)
	}
}
