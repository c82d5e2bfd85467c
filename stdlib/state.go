package stdlib

import (
	"math/rand"
	"time"

	"github.com/buzzlang/buzz/vm"
)

// state is the per-VM stdlib state stashed in vm.VM.Ext: things a
// ForeignFunc needs across calls that don't belong in the VM core.
type state struct {
	rng *rand.Rand

	errno       int32
	errorMsg    string
}

func newState() *state {
	return &state{rng: newSeededRand(time.Now().UnixNano())}
}

func newSeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func ext(v *vm.VM) *state {
	st, _ := v.Ext.(*state)
	if st == nil {
		st = newState()
		v.Ext = st
	}
	return st
}

// asString reads the text of a string value back out of the heap's
// interner; non-string values stringify via Value.String() (so e.g.
// io.print(42) still produces something sensible).
func asString(v *vm.VM, val vm.Value) string {
	if val.Kind() == vm.KString {
		return v.Heap.Interner.Text(val.AsStringID())
	}
	return val.String()
}

// asFloat coerces an Int or Float value to float64, defaulting to 0 for
// anything else. A non-numeric argument to a builtin that uses it
// therefore yields a result computed from 0, not a VM fault; the
// arithmetic opcodes, by contrast, fault with ErrTypeMismatch.
func asFloat(val vm.Value) float64 {
	switch val.Kind() {
	case vm.KInt:
		return float64(val.AsInt())
	case vm.KFloat:
		return float64(val.AsFloat())
	default:
		return 0
	}
}

// isTruthy is Buzz's logic-normalization rule (§3.1 [FULL]): false iff
// Nil or Int 0, true otherwise.
func isTruthy(val vm.Value) bool {
	if val.IsNil() {
		return false
	}
	return val.Kind() != vm.KInt || val.AsInt() != 0
}

// boolInt encodes a Go bool the way Buzz represents booleans on the
// stack: Int 1 or Int 0.
func boolInt(b bool) vm.Value {
	if b {
		return vm.Int(1)
	}
	return vm.Int(0)
}
