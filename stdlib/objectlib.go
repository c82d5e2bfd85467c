package stdlib

import "github.com/buzzlang/buzz/vm"

// This file installs §4.8 [FULL]'s generic object methods — type, clone,
// size, foreach, map, reduce — as bare globals rather than fields of a
// module table: a script calls type(x), not something.type(x). Each
// build function below therefore returns a single bound closure value
// instead of a table, using bindShared the same way swarm/stigmergy
// handles share one implementation across instances.

func buildTypeFn(v *vm.VM) (vm.Value, error) {
	return bindShared(v, func(v *vm.VM) *vm.VMError {
		if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
			return err
		}
		out, ierr := v.Heap.InternTransient(v.Arg(0).Kind().String())
		if ierr != nil {
			return &vm.VMError{Kind: vm.ErrUnknownString, Message: ierr.Error()}
		}
		v.Push(out)
		return nil
	})
}

func buildCloneFn(v *vm.VM) (vm.Value, error) {
	return bindShared(v, func(v *vm.VM) *vm.VMError {
		if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
			return err
		}
		v.Push(v.Heap.Clone(v.Arg(0)))
		return nil
	})
}

func buildSizeFn(v *vm.VM) (vm.Value, error) {
	return bindShared(v, func(v *vm.VM) *vm.VMError {
		if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
			return err
		}
		tbl := v.Arg(0).Table()
		if tbl == nil {
			return &vm.VMError{Kind: vm.ErrTypeMismatch, Message: "size() wants a table"}
		}
		v.Push(vm.Int(int32(tbl.Size())))
		return nil
	})
}

func buildForeachFn(v *vm.VM) (vm.Value, error) {
	return bindShared(v, func(v *vm.VM) *vm.VMError {
		if err := v.ExpectArgc(v.Args().Size(), 2); err != nil {
			return err
		}
		tbl := v.Arg(0).Table()
		if tbl == nil {
			return &vm.VMError{Kind: vm.ErrTypeMismatch, Message: "foreach() wants a table"}
		}
		closure := v.Arg(1)
		var callErr error
		tbl.ForEach(func(k, val vm.Value) bool {
			_, callErr = v.CallValue(closure, k, val)
			return callErr == nil
		})
		if callErr != nil {
			return asVMError(callErr)
		}
		v.Push(vm.Nil)
		return nil
	})
}

func buildMapFn(v *vm.VM) (vm.Value, error) {
	return bindShared(v, func(v *vm.VM) *vm.VMError {
		if err := v.ExpectArgc(v.Args().Size(), 2); err != nil {
			return err
		}
		tbl := v.Arg(0).Table()
		if tbl == nil {
			return &vm.VMError{Kind: vm.ErrTypeMismatch, Message: "map() wants a table"}
		}
		closure := v.Arg(1)
		out := v.Heap.NewTable()
		var callErr error
		tbl.ForEach(func(k, val vm.Value) bool {
			var mapped vm.Value
			mapped, callErr = v.CallValue(closure, k, val)
			if callErr != nil {
				return false
			}
			_ = out.Table().Put(k, mapped)
			return true
		})
		if callErr != nil {
			return asVMError(callErr)
		}
		v.Push(out)
		return nil
	})
}

func buildReduceFn(v *vm.VM) (vm.Value, error) {
	return bindShared(v, func(v *vm.VM) *vm.VMError {
		if err := v.ExpectArgc(v.Args().Size(), 3); err != nil {
			return err
		}
		tbl := v.Arg(0).Table()
		if tbl == nil {
			return &vm.VMError{Kind: vm.ErrTypeMismatch, Message: "reduce() wants a table"}
		}
		closure := v.Arg(1)
		acc := v.Arg(2)
		var callErr error
		tbl.ForEach(func(k, val vm.Value) bool {
			acc, callErr = v.CallValue(closure, k, val, acc)
			return callErr == nil
		})
		if callErr != nil {
			return asVMError(callErr)
		}
		v.Push(acc)
		return nil
	})
}
