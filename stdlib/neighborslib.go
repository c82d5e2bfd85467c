package stdlib

import "github.com/buzzlang/buzz/vm"

// buildNeighbors installs the neighbors module table (§3.5, §4.9
// [FULL]). The "data" sub-table the spec describes as rebuilt every step
// is exposed here as neighbors.data() — a method rather than a bare
// field, since a plain table field has no hook to refresh itself; this
// package has no per-step callback into module tables to drive that, so
// data() recomputes it fresh on every call directly from the live
// neighbor map instead.
func buildNeighbors(v *vm.VM) (vm.Value, error) {
	val, tbl := newModuleTable(v)

	fns := map[string]vm.ForeignFunc{
		"count": func(v *vm.VM) *vm.VMError {
			v.Push(vm.Int(int32(v.NeighborsCount())))
			return nil
		},
		"data": func(v *vm.VM) *vm.VMError {
			out := v.Heap.NewTable()
			v.NeighborsForEach(func(n vm.NeighborInfo) bool {
				entry := v.Heap.NewTable()
				putEntry(v, entry.Table(), n)
				_ = out.Table().Put(vm.Int(int32(n.RobotID)), entry)
				return true
			})
			v.Push(out)
			return nil
		},
		"kin":    kinList(func(v *vm.VM) []vm.NeighborInfo { return v.NeighborsKin() }),
		"nonkin": kinList(func(v *vm.VM) []vm.NeighborInfo { return v.NeighborsNonKin() }),
		"get": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			n, ok := v.NeighborsGet(uint16(v.Arg(0).AsInt()))
			if !ok {
				v.Push(vm.Nil)
				return nil
			}
			entry := v.Heap.NewTable()
			putEntry(v, entry.Table(), n)
			v.Push(entry)
			return nil
		},
		"foreach": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			closure := v.Arg(0)
			var callErr error
			v.NeighborsForEach(func(n vm.NeighborInfo) bool {
				entry := v.Heap.NewTable()
				putEntry(v, entry.Table(), n)
				_, callErr = v.CallValue(closure, vm.Int(int32(n.RobotID)), entry)
				return callErr == nil
			})
			if callErr != nil {
				return asVMError(callErr)
			}
			v.Push(vm.Nil)
			return nil
		},
		"map": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			closure := v.Arg(0)
			out := v.Heap.NewTable()
			var callErr error
			v.NeighborsForEach(func(n vm.NeighborInfo) bool {
				entry := v.Heap.NewTable()
				putEntry(v, entry.Table(), n)
				var mapped vm.Value
				mapped, callErr = v.CallValue(closure, vm.Int(int32(n.RobotID)), entry)
				if callErr != nil {
					return false
				}
				_ = out.Table().Put(vm.Int(int32(n.RobotID)), mapped)
				return true
			})
			if callErr != nil {
				return asVMError(callErr)
			}
			v.Push(out)
			return nil
		},
		"reduce": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 2); err != nil {
				return err
			}
			closure := v.Arg(0)
			acc := v.Arg(1)
			var callErr error
			v.NeighborsForEach(func(n vm.NeighborInfo) bool {
				entry := v.Heap.NewTable()
				putEntry(v, entry.Table(), n)
				acc, callErr = v.CallValue(closure, vm.Int(int32(n.RobotID)), entry, acc)
				return callErr == nil
			})
			if callErr != nil {
				return asVMError(callErr)
			}
			v.Push(acc)
			return nil
		},
		"filter": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			closure := v.Arg(0)
			out := v.Heap.NewTable()
			var callErr error
			v.NeighborsForEach(func(n vm.NeighborInfo) bool {
				entry := v.Heap.NewTable()
				putEntry(v, entry.Table(), n)
				var keep vm.Value
				keep, callErr = v.CallValue(closure, vm.Int(int32(n.RobotID)), entry)
				if callErr != nil {
					return false
				}
				if isTruthy(keep) {
					_ = out.Table().Put(vm.Int(int32(n.RobotID)), entry)
				}
				return true
			})
			if callErr != nil {
				return asVMError(callErr)
			}
			v.Push(out)
			return nil
		},
		"broadcast": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 2); err != nil {
				return err
			}
			v.Broadcast(asString(v, v.Arg(0)), v.Arg(1))
			v.Push(vm.Nil)
			return nil
		},
		"listen": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 2); err != nil {
				return err
			}
			v.Listen(asString(v, v.Arg(0)), v.Arg(1))
			v.Push(vm.Nil)
			return nil
		},
		"ignore": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			v.Ignore(asString(v, v.Arg(0)))
			v.Push(vm.Nil)
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

func putEntry(v *vm.VM, entry *vm.Table, n vm.NeighborInfo) {
	for _, kv := range []struct {
		name string
		val  vm.Value
	}{
		{"distance", vm.Float(n.Distance)},
		{"azimuth", vm.Float(n.Azimuth)},
		{"elevation", vm.Float(n.Elevation)},
	} {
		key, err := v.Heap.InternProtected(kv.name)
		if err != nil {
			continue
		}
		_ = entry.Put(key, kv.val)
	}
}

func kinList(sel func(v *vm.VM) []vm.NeighborInfo) vm.ForeignFunc {
	return func(v *vm.VM) *vm.VMError {
		out := v.Heap.NewTable()
		for i, n := range sel(v) {
			entry := v.Heap.NewTable()
			putEntry(v, entry.Table(), n)
			_ = out.Table().Put(vm.Int(int32(i)), entry)
		}
		v.Push(out)
		return nil
	}
}
