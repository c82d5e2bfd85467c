package stdlib

import (
	"math"

	"github.com/buzzlang/buzz/vm"
)

// buildMath installs the math module table (§4.8 [FULL]): the usual
// scalar functions plus a nested math.rng table backed by one
// math/rand.Rand per VM. The original's rng is a seeded Mersenne
// Twister; no third-party MT19937 package appears anywhere in the
// example corpus, so this uses the standard library's generator instead
// (see DESIGN.md).
func buildMath(v *vm.VM) (vm.Value, error) {
	val, tbl := newModuleTable(v)

	unary := func(f func(float64) float64) vm.ForeignFunc {
		return func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			v.Push(vm.Float(float32(f(asFloat(v.Arg(0))))))
			return nil
		}
	}

	// numericExtreme preserves Int-ness: two Int arguments compare and
	// return an Int, anything else falls back to the float comparator.
	numericExtreme := func(wantA func(a, b int32) bool, f func(a, b float64) float64) vm.ForeignFunc {
		return func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 2); err != nil {
				return err
			}
			a, b := v.Arg(0), v.Arg(1)
			if a.Kind() == vm.KInt && b.Kind() == vm.KInt {
				x, y := a.AsInt(), b.AsInt()
				if wantA(x, y) {
					v.Push(vm.Int(x))
				} else {
					v.Push(vm.Int(y))
				}
				return nil
			}
			v.Push(vm.Float(float32(f(asFloat(a), asFloat(b)))))
			return nil
		}
	}

	fns := map[string]vm.ForeignFunc{
		"abs": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			arg := v.Arg(0)
			if arg.Kind() == vm.KInt {
				n := arg.AsInt()
				if n < 0 {
					n = -n
				}
				v.Push(vm.Int(n))
				return nil
			}
			v.Push(vm.Float(float32(math.Abs(asFloat(arg)))))
			return nil
		},
		"floor":  unary(math.Floor),
		"ceil":   unary(math.Ceil),
		"round":  unary(math.Round),
		"sqrt":   unary(math.Sqrt),
		"log":    unary(math.Log),
		"log2":   unary(math.Log2),
		"log10":  unary(math.Log10),
		"exp":    unary(math.Exp),
		"sin":    unary(math.Sin),
		"cos":    unary(math.Cos),
		"tan":    unary(math.Tan),
		"asin":   unary(math.Asin),
		"acos":   unary(math.Acos),
		"atan": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 2); err != nil {
				return err
			}
			v.Push(vm.Float(float32(math.Atan2(asFloat(v.Arg(0)), asFloat(v.Arg(1))))))
			return nil
		},
		"max": numericExtreme(func(a, b int32) bool { return a > b }, math.Max),
		"min": numericExtreme(func(a, b int32) bool { return a < b }, math.Min),
	}
	for name, fn := range fns {
		if err := bind(v, tbl, name, fn); err != nil {
			return vm.Nil, err
		}
	}
	piKey, err := v.Heap.InternProtected("pi")
	if err != nil {
		return vm.Nil, err
	}
	if err := tbl.Put(piKey, vm.Float(float32(math.Pi))); err != nil {
		return vm.Nil, err
	}

	rngVal, rngTbl := newModuleTable(v)
	rngFns := map[string]vm.ForeignFunc{
		"setseed": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			ext(v).rng = newSeededRand(int64(v.Arg(0).AsInt()))
			v.Push(vm.Nil)
			return nil
		},
		// uniform() -> [0,1); uniform(max) -> [0,max); uniform(min,max) -> [min,max)
		"uniform": func(v *vm.VM) *vm.VMError {
			st := ext(v)
			switch v.Args().Size() {
			case 0:
				v.Push(vm.Float(float32(st.rng.Float64())))
			case 1:
				max := asFloat(v.Arg(0))
				v.Push(vm.Float(float32(st.rng.Float64() * max)))
			default:
				lo, hi := asFloat(v.Arg(0)), asFloat(v.Arg(1))
				v.Push(vm.Float(float32(lo + st.rng.Float64()*(hi-lo))))
			}
			return nil
		},
		// gaussian() -> stddev 1, mean 0; gaussian(stddev); gaussian(stddev, mean)
		"gaussian": func(v *vm.VM) *vm.VMError {
			st := ext(v)
			stddev, mean := 1.0, 0.0
			if v.Args().Size() >= 1 {
				stddev = asFloat(v.Arg(0))
			}
			if v.Args().Size() >= 2 {
				mean = asFloat(v.Arg(1))
			}
			v.Push(vm.Float(float32(st.rng.NormFloat64()*stddev + mean)))
			return nil
		},
		"exponential": func(v *vm.VM) *vm.VMError {
			if err := v.ExpectArgc(v.Args().Size(), 1); err != nil {
				return err
			}
			mean := asFloat(v.Arg(0))
			v.Push(vm.Float(float32(ext(v).rng.ExpFloat64() * mean)))
			return nil
		},
	}
	for name, fn := range rngFns {
		if err := bind(v, rngTbl, name, fn); err != nil {
			return vm.Nil, err
		}
	}
	key, err := v.Heap.InternProtected("rng")
	if err != nil {
		return vm.Nil, err
	}
	if err := tbl.Put(key, rngVal); err != nil {
		return vm.Nil, err
	}

	return val, nil
}
