package stdlib

import (
	"strconv"
	"strings"

	"github.com/buzzlang/buzz/vm"
)

// buildString installs the string module table: concatenation, length,
// substring, and case conversion over Buzz string values (§4.8 [FULL]).
func buildString(v *vm.VM) (vm.Value, error) {
	val, tbl := newModuleTable(v)

	fns := map[string]vm.ForeignFunc{
		"concat": func(v *vm.VM) *vm.VMError {
			var b strings.Builder
			for i := 0; i < v.Args().Size(); i++ {
				b.WriteString(asString(v, v.Arg(i)))
			}
			s, ierr := v.Heap.InternTransient(b.String())
			if ierr != nil {
				return &vm.VMError{Kind: vm.ErrUnknownString, Message: ierr.Error()}
			}
			v.Push(s)
			return nil
		},
		"length": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			v.Push(vm.Int(int32(len(asString(v, v.Arg(0))))))
			return nil
		},
		"sub": func(v *vm.VM) *vm.VMError {
			if v.Args().Size() < 2 {
				return &vm.VMError{Kind: vm.ErrWrongArgCount, Message: "string.sub wants (s, start[, end])"}
			}
			s := asString(v, v.Arg(0))
			start := int(v.Arg(1).AsInt())
			end := len(s)
			if v.Args().Size() >= 3 {
				end = int(v.Arg(2).AsInt())
			}
			if start < 0 || start > len(s) || end < 0 || end > len(s) || start > end {
				v.Push(vm.Nil) // out-of-range indices, §4.8: return Nil, not an error
				return nil
			}
			out, ierr := v.Heap.InternTransient(s[start:end])
			if ierr != nil {
				return &vm.VMError{Kind: vm.ErrUnknownString, Message: ierr.Error()}
			}
			v.Push(out)
			return nil
		},
		"toupper": stringTransform(strings.ToUpper),
		"tolower": stringTransform(strings.ToLower),
		"tostring": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			out, ierr := v.Heap.InternTransient(v.Arg(0).String())
			if ierr != nil {
				return &vm.VMError{Kind: vm.ErrUnknownString, Message: ierr.Error()}
			}
			v.Push(out)
			return nil
		},
		"toint": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			n, _ := strconv.ParseInt(strings.TrimSpace(asString(v, v.Arg(0))), 10, 32)
			v.Push(vm.Int(int32(n)))
			return nil
		},
		"tofloat": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			f, _ := strconv.ParseFloat(strings.TrimSpace(asString(v, v.Arg(0))), 32)
			v.Push(vm.Float(float32(f)))
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

func stringTransform(f func(string) string) vm.ForeignFunc {
	return func(v *vm.VM) *vm.VMError {
		if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
			return err
		}
		out, ierr := v.Heap.InternTransient(f(asString(v, v.Arg(0))))
		if ierr != nil {
			return &vm.VMError{Kind: vm.ErrUnknownString, Message: ierr.Error()}
		}
		v.Push(out)
		return nil
	}
}
