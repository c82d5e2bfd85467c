// Package stdlib wires Buzz's built-in module tables (math, string, io,
// neighbors, swarm, stigmergy — §4.8-4.11 [FULL]) into a vm.VM. Every
// builtin is a vm.ForeignFunc registered into vm.VM.Foreign and reached
// from Buzz code either as a field of one of these module tables, e.g.
// math.sqrt(2) or stigmergy.create(1), or as one of the bare globals
// listed in GlobalNames (type, clone, size, foreach, map, reduce).
package stdlib

import "github.com/buzzlang/buzz/vm"

// GlobalNames is the fixed, ordered list of top-level globals this
// package installs — module tables (math, string, ...) plus the bare
// object-method functions (type, clone, ...) that aren't namespaced under
// any table. lang/parser.Options.Builtins must be given the same list (in
// the same order) so these names resolve as globals instead of tripping
// the strict-mode implicit-global warning; Register assigns v.Globals
// slots 0..len(GlobalNames)-1 in this exact order.
var GlobalNames = []string{
	"math", "string", "io", "neighbors", "swarm", "stigmergy",
	"type", "clone", "size", "foreach", "map", "reduce",
}

// Register builds every standard-library global and binds it into
// v.Globals at the slot lang/parser assigns its name when constructed
// with parser.Options{Builtins: stdlib.GlobalNames}.
func Register(v *vm.VM) error {
	v.Ext = newState()

	builders := []func(v *vm.VM) (vm.Value, error){
		buildMath,
		buildString,
		buildIO,
		buildNeighbors,
		buildSwarm,
		buildStigmergy,
		buildTypeFn,
		buildCloneFn,
		buildSizeFn,
		buildForeachFn,
		buildMapFn,
		buildReduceFn,
	}
	for i, build := range builders {
		tbl, err := build(v)
		if err != nil {
			return err
		}
		v.Globals[int32(i)] = tbl
	}
	return nil
}

// bind allocates a foreign-function slot for fn, wraps it as a closure,
// and stores it under name in tbl.
func bind(v *vm.VM, tbl *vm.Table, name string, fn vm.ForeignFunc) error {
	key, err := v.Heap.InternProtected(name)
	if err != nil {
		return err
	}
	idx := int32(len(v.Foreign))
	v.Foreign = append(v.Foreign, fn)
	closure := v.Heap.NewClosure(false, idx, nil)
	return tbl.Put(key, closure)
}

func newModuleTable(v *vm.VM) (vm.Value, *vm.Table) {
	t := v.Heap.NewTable()
	return t, t.Table()
}

// asVMError adapts a Go error from vm.VM.Call/CallValue (which return
// plain errors, not *vm.VMError) back into the VMError a ForeignFunc
// must return.
func asVMError(err error) *vm.VMError {
	if ve, ok := err.(*vm.VMError); ok {
		return ve
	}
	return &vm.VMError{Kind: vm.ErrTypeMismatch, Message: err.Error()}
}
