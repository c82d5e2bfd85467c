package stdlib

import "github.com/buzzlang/buzz/vm"

// buildSwarm installs the swarm module table (§3.4, §4.10 [FULL]).
// swarm.create(id) returns a handle table {id, join, leave, exec, others,
// in, select}; join/leave/exec/others/in/select are bound once here and
// shared by every handle — each reads its target swarm id back off
// vm.VM.Self() when the Buzz side calls it as a method (s.join()), which
// the parser emits as a self-binding calls (see emitLoadAndCalls).
func buildSwarm(v *vm.VM) (vm.Value, error) {
	val, tbl := newModuleTable(v)

	idKey, err := v.Heap.InternProtected("id")
	if err != nil {
		return vm.Nil, err
	}

	join, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		id, verr := handleID(v, idKey)
		if verr != nil {
			return verr
		}
		v.SwarmJoin(id)
		v.Push(vm.Nil)
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}
	leave, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		id, verr := handleID(v, idKey)
		if verr != nil {
			return verr
		}
		v.SwarmLeave(id)
		v.Push(vm.Nil)
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}
	exec, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		id, verr := handleID(v, idKey)
		if verr != nil {
			return verr
		}
		if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
			return err
		}
		closure := v.Arg(0)
		v.SwarmStackPush(id)
		_, callErr := v.CallValue(closure)
		v.SwarmStackPop()
		if callErr != nil {
			if ve, ok := callErr.(*vm.VMError); ok {
				return ve
			}
			return &vm.VMError{Kind: vm.ErrTypeMismatch, Message: callErr.Error()}
		}
		v.Push(vm.Nil)
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}
	others, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		id, verr := handleID(v, idKey)
		if verr != nil {
			return verr
		}
		out := v.Heap.NewTable()
		for i, m := range v.SwarmMemberIDs(id) {
			_ = out.Table().Put(vm.Int(int32(i)), vm.Int(int32(m)))
		}
		v.Push(out)
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}
	in, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		id, verr := handleID(v, idKey)
		if verr != nil {
			return verr
		}
		v.Push(boolInt(v.SwarmIsMember(id)))
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}
	selectFn, err := bindShared(v, func(v *vm.VM) *vm.VMError {
		id, verr := handleID(v, idKey)
		if verr != nil {
			return verr
		}
		if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
			return err
		}
		if isTruthy(v.Arg(0)) {
			v.SwarmJoin(id)
		} else {
			v.SwarmLeave(id)
		}
		v.Push(vm.Nil)
		return nil
	})
	if err != nil {
		return vm.Nil, err
	}

	fns := map[string]vm.ForeignFunc{
		"create": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			h := v.Heap.NewTable()
			ht := h.Table()
			_ = ht.Put(idKey, vm.Int(v.Arg(0).AsInt()))
			_ = ht.Put(mustKey(v, "join"), join)
			_ = ht.Put(mustKey(v, "leave"), leave)
			_ = ht.Put(mustKey(v, "exec"), exec)
			_ = ht.Put(mustKey(v, "others"), others)
			_ = ht.Put(mustKey(v, "in"), in)
			_ = ht.Put(mustKey(v, "select"), selectFn)
			v.Push(h)
			return nil
		},
		"id": func(v *vm.VM) *vm.VMError {
			id, ok := v.SwarmStackTop()
			if !ok {
				v.Push(vm.Nil)
				return nil
			}
			v.Push(vm.Int(int32(id)))
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

// handleID reads the id field off the self table an instance method was
// called on; it's a VM fault (not just a wrong answer) if there's no
// self, since that means Buzz code called one of these as a bare
// function rather than a.method().
func handleID(v *vm.VM, idKey vm.Value) (uint16, *vm.VMError) {
	self, ok := v.Self()
	if !ok || self.Table() == nil {
		return 0, &vm.VMError{Kind: vm.ErrTypeMismatch, Message: "swarm method called without a handle"}
	}
	return uint16(self.Table().Get(idKey).AsInt()), nil
}

// bindShared allocates one foreign-function slot and returns the bound
// closure value directly, for handles that share the same implementation
// across every instance.
func bindShared(v *vm.VM, fn vm.ForeignFunc) (vm.Value, error) {
	idx := int32(len(v.Foreign))
	v.Foreign = append(v.Foreign, fn)
	return v.Heap.NewClosure(false, idx, nil), nil
}

func mustKey(v *vm.VM, name string) vm.Value {
	key, _ := v.Heap.InternProtected(name)
	return key
}
