package parser_test

import (
	"testing"

	"github.com/buzzlang/buzz/lang/assembler"
	"github.com/buzzlang/buzz/lang/lexer"
	"github.com/buzzlang/buzz/lang/parser"
	"github.com/buzzlang/buzz/lang/token"
	"github.com/buzzlang/buzz/vm"
)

func compileAndRun(t *testing.T, src string) *vm.VM {
	t.Helper()
	l := lexer.New("t.bzz", []byte(src))
	toks, err := l.Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	p := parser.New(toks, parser.Options{})
	asm, err := p.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	blob, err := assembler.Assemble(asm)
	if err != nil {
		t.Fatalf("Assemble: %v\n--- assembly ---\n%s", err, asm)
	}
	v := vm.New(1)
	if err := v.Load(blob); err != nil {
		t.Fatalf("Load: %v\n--- assembly ---\n%s", err, asm)
	}
	if err := v.Run(); err != nil {
		t.Fatalf("Run: %v\n--- assembly ---\n%s", err, asm)
	}
	return v
}

func TestGlobalVarArithmetic(t *testing.T) {
	v := compileAndRun(t, `
var x = 1
var y = 2
var z = x + y * 3
`)
	if v.State() != vm.StateDone {
		t.Fatalf("state = %s", v.State())
	}
}

func TestIfElse(t *testing.T) {
	compileAndRun(t, `
var x = 1
if (x == 1) {
  var y = 10
} else {
  var y = 20
}
`)
}

func TestWhileLoop(t *testing.T) {
	compileAndRun(t, `
var i = 0
while (i < 5) {
  i = i + 1
}
`)
}

func TestForLoop(t *testing.T) {
	compileAndRun(t, `
var total = 0
for (var i = 0; i < 10; i = i + 1) {
  total = total + i
}
`)
}

func TestTableConstructorAndAccess(t *testing.T) {
	compileAndRun(t, `
var t = {x = 1, y = 2}
var a = t.x
t.y = 42
var b = t["y"]
`)
}

func TestNamedFunctionCallAndReturn(t *testing.T) {
	compileAndRun(t, `
function add(a, b) {
  return a + b
}
var r = add(1, 2)
`)
}

func TestRecursiveFunction(t *testing.T) {
	compileAndRun(t, `
function fact(n) {
  if (n <= 1) {
    return 1
  }
  return n * fact(n - 1)
}
var r = fact(5)
`)
}

func TestLambdaCapturesEnclosingLocals(t *testing.T) {
	compileAndRun(t, `
function makeAdder(base) {
  var add = function(n) {
    return base + n
  }
  return add(10)
}
var r = makeAdder(5)
`)
}

func TestLogicalAndOr(t *testing.T) {
	compileAndRun(t, `
var a = 1
var b = 0
var c = a and b
var d = a or b
var e = not a
`)
}

func TestStrictModeWarnsOnImplicitGlobal(t *testing.T) {
	l := lexer.New("t.bzz", []byte("x = 1"))
	toks, err := l.Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var warnings int
	p := parser.New(toks, parser.Options{
		Strict: true,
		Warn:   func(_ token.Position, _ string, _ ...any) { warnings++ },
	})
	if _, err := p.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if warnings != 1 {
		t.Errorf("expected 1 strict-mode warning for implicit global, got %d", warnings)
	}
}
