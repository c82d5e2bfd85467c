package stdlib

import "github.com/buzzlang/buzz/vm"

// buildStigmergy installs the stigmergy module table (§4.11 [FULL]).
// stigmergy.create(id) returns a handle table {id, size, put, get,
// onconflict, onconflictlost}; like swarm's handles, the methods are
// bound once and shared, reading their target vstig id back off
// vm.VM.Self().
func buildStigmergy(v *vm.VM) (vm.Value, error) {
	val, tbl := newModuleTable(v)

	idKey, err := v.Heap.InternProtected("id")
	if err != nil {
		return vm.Nil, err
	}

	size, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		vs, verr := handleVStig(v, idKey)
		if verr != nil {
			return verr
		}
		v.Push(vm.Int(int32(vs.Size())))
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}
	put, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		vs, verr := handleVStig(v, idKey)
		if verr != nil {
			return verr
		}
		if err := v.ExpectArgc(v.Args().Size(), 2); err != nil {
			return err
		}
		v.VStigPut(vs, v.Arg(0), v.Arg(1))
		v.Push(vm.Nil)
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}
	get, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		vs, verr := handleVStig(v, idKey)
		if verr != nil {
			return verr
		}
		if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
			return err
		}
		val := vs.Get(v.Arg(0))
		if val.IsNil() {
			v.VStigQueryRemote(vs.ID(), v.Arg(0))
		}
		v.Push(val)
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}
	onconflict, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		return setCallback(v, idKey, true)
	})
	if err != nil {
		return vm.Nil, err
	}
	onconflictlost, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		return setCallback(v, idKey, false)
	})
	if err != nil {
		return vm.Nil, err
	}

	fns := map[string]vm.ForeignFunc{
		"create": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			id := uint16(v.Arg(0).AsInt())
			v.VStigCreate(id) // ensure it exists even if never written to
			h := v.Heap.NewTable()
			ht := h.Table()
			_ = ht.Put(idKey, vm.Int(int32(id)))
			_ = ht.Put(mustKey(v, "size"), size)
			_ = ht.Put(mustKey(v, "put"), put)
			_ = ht.Put(mustKey(v, "get"), get)
			_ = ht.Put(mustKey(v, "onconflict"), onconflict)
			_ = ht.Put(mustKey(v, "onconflictlost"), onconflictlost)
			v.Push(h)
			return nil
		},
	}
	for name, fn := range fns {
		if err := bind(v, tbl, name, fn); err != nil {
			return vm.Nil, err
		}
	}
	return val, nil
}

func handleVStig(v *vm.VM, idKey vm.Value) (*vm.VStig, *vm.VMError) {
	self, ok := v.Self()
	if !ok || self.Table() == nil {
		return nil, &vm.VMError{Kind: vm.ErrTypeMismatch, Message: "stigmergy method called without a handle"}
	}
	id := uint16(self.Table().Get(idKey).AsInt())
	return v.VStigCreate(id), nil
}

func setCallback(v *vm.VM, idKey vm.Value, isOnConflict bool) *vm.VMError {
	vs, verr := handleVStig(v, idKey)
	if verr != nil {
		return verr
	}
	if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
		return err
	}
	cb := v.Arg(0)
	onConflict, onConflictLost := vs.Callbacks()
	if isOnConflict {
		onConflict = cb
	} else {
		onConflictLost = cb
	}
	vs.SetCallbacks(onConflict, onConflictLost)
	v.Push(vm.Nil)
	return nil
}
