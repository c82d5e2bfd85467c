package stdlib

import (
	"os"
	"strings"

	"github.com/buzzlang/buzz/vm"
)

// buildIO installs the io module table. Per §7 [FULL], a failed write
// never latches the VM into Error — it's recorded in io.errno()/
// io.error_message() and execution continues.
func buildIO(v *vm.VM) (vm.Value, error) {
	val, tbl := newModuleTable(v)

	fns := map[string]vm.ForeignFunc{
		"print": func(v *vm.VM) *vm.VMError {
			parts := make([]string, v.Args().Size())
			for i := range parts {
				parts[i] = asString(v, v.Arg(i))
			}
			_, err := os.Stdout.WriteString(strings.Join(parts, " ") + "\n")
			st := ext(v)
			if err != nil {
				st.errno = 1
				st.errorMsg = err.Error()
			} else {
				st.errno = 0
				st.errorMsg = ""
			}
			v.Push(vm.Nil)
			return nil
		},
		"errno": func(v *vm.VM) *vm.VMError {
			v.Push(vm.Int(ext(v).errno))
			return nil
		},
		"error_message": func(v *vm.VM) *vm.VMError {
			s, err := v.Heap.InternTransient(ext(v).errorMsg)
			if err != nil {
				return &vm.VMError{Kind: vm.ErrUnknownString, Message: err.Error()}
			}
			v.Push(s)
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
