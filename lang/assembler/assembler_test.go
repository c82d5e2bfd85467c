package assembler_test

import (
	"testing"

	"github.com/buzzlang/buzz/lang/assembler"
	"github.com/buzzlang/buzz/vm"
)

func TestAssembleAndRunArithmetic(t *testing.T) {
	src := `
pushi 2
pushi 3
add
done
`
	blob, err := assembler.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	v := vm.New(1)
	if err := v.Load(blob); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.State() != vm.StateDone {
		t.Fatalf("state = %s, want done", v.State())
	}
}

func TestAssembleResolvesForwardLabel(t *testing.T) {
	src := `
pushnil
jumpz skip
pushi 1
skip:
done
`
	blob, err := assembler.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	v := vm.New(1)
	if err := v.Load(blob); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestAssembleStringLiteralDedup(t *testing.T) {
	src := `
pushs "hi"
pop
pushs "hi"
pop
done
`
	blob, err := assembler.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	v := vm.New(1)
	if err := v.Load(blob); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestUndefinedLabelIsError(t *testing.T) {
	src := "jump nowhere\ndone\n"
	if _, err := assembler.Assemble(src); err == nil {
		t.Fatal("expected error for undefined label")
	}
}

func TestUnknownMnemonicIsError(t *testing.T) {
	if _, err := assembler.Assemble("frobnicate\n"); err == nil {
		t.Fatal("expected error for unknown mnemonic")
	}
}

func TestWrongOperandArityIsError(t *testing.T) {
	if _, err := assembler.Assemble("pushi\n"); err == nil {
		t.Fatal("expected error: pushi requires an operand")
	}
	if _, err := assembler.Assemble("nop 1\n"); err == nil {
		t.Fatal("expected error: nop takes no operand")
	}
}
