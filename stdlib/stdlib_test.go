package stdlib_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzlang/buzz/stdlib"
	"github.com/buzzlang/buzz/vm"
)

// emptyBlob is a minimal bytecode blob (no strings, no code) just
// sufficient to put a freshly registered VM into StateReady with one
// activation, so tests can drive builtins through vm.VM.Call without a
// full compile pipeline.
func emptyBlob() []byte {
	var blob []byte
	blob = append(blob, 'B', 'Z', 'Z', 'B')
	blob = appendU16(blob, 1)
	blob = appendU16(blob, 0)
	blob = appendU16(blob, 0) // numStrings
	blob = appendU32(blob, 0) // code length
	return blob
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func newRegisteredVM(t *testing.T) *vm.VM {
	t.Helper()
	v := vm.New(1)
	require.NoError(t, stdlib.Register(v))
	require.NoError(t, v.Load(emptyBlob()))
	return v
}

func moduleFn(t *testing.T, v *vm.VM, moduleSlot int32, name string) vm.Value {
	t.Helper()
	tbl := v.Globals[moduleSlot].Table()
	require.NotNil(t, tbl)
	key, err := v.Heap.InternProtected(name)
	require.NoError(t, err)
	fn := tbl.Get(key)
	require.False(t, fn.IsNil(), "stdlib function %q not bound", name)
	return fn
}

func callAndPop(t *testing.T, v *vm.VM, fn vm.Value, args ...vm.Value) vm.Value {
	t.Helper()
	require.NoError(t, v.Call(fn, args...))
	result, err := v.Pop()
	require.NoError(t, err)
	return result
}

func TestMathAbs(t *testing.T) {
	v := newRegisteredVM(t)
	abs := moduleFn(t, v, 0, "abs")

	got := callAndPop(t, v, abs, vm.Int(-7))
	assert.Equal(t, vm.KInt, got.Kind(), "abs(Int) must preserve type")
	assert.Equal(t, int32(7), got.AsInt())
}

func TestMathAbsOnFloat(t *testing.T) {
	v := newRegisteredVM(t)
	abs := moduleFn(t, v, 0, "abs")

	got := callAndPop(t, v, abs, vm.Float(-7))
	assert.Equal(t, vm.KFloat, got.Kind())
	assert.InDelta(t, 7.0, got.AsFloat(), 1e-9)
}

func TestMathSqrtOnFloat(t *testing.T) {
	v := newRegisteredVM(t)
	sqrt := moduleFn(t, v, 0, "sqrt")

	got := callAndPop(t, v, sqrt, vm.Float(9))
	assert.InDelta(t, 3.0, got.AsFloat(), 1e-9)
}

func TestStringConcatAndLength(t *testing.T) {
	v := newRegisteredVM(t)
	concat := moduleFn(t, v, 1, "concat")
	length := moduleFn(t, v, 1, "length")

	a, err := v.Heap.InternTransient("foo")
	require.NoError(t, err)
	b, err := v.Heap.InternTransient("bar")
	require.NoError(t, err)

	joined := callAndPop(t, v, concat, a, b)
	n := callAndPop(t, v, length, joined)
	assert.Equal(t, int32(6), n.AsInt())
}

func TestSwarmCreateHandleSharesMethodsAcrossInstances(t *testing.T) {
	v := newRegisteredVM(t)
	create := moduleFn(t, v, 4, "create")

	h1 := callAndPop(t, v, create, vm.Int(1))
	h2 := callAndPop(t, v, create, vm.Int(2))
	require.NotNil(t, h1.Table())
	require.NotNil(t, h2.Table())

	idKey, err := v.Heap.InternProtected("id")
	require.NoError(t, err)
	assert.Equal(t, int32(1), h1.Table().Get(idKey).AsInt())
	assert.Equal(t, int32(2), h2.Table().Get(idKey).AsInt())

	joinKey, err := v.Heap.InternProtected("join")
	require.NoError(t, err)
	join1 := h1.Table().Get(joinKey)
	join2 := h2.Table().Get(joinKey)
	assert.Equal(t, join1.Closure(), join2.Closure(), "swarm handle methods must be bound once and shared, reading their target id off self")
}

func TestSwarmSelectAndIn(t *testing.T) {
	v := newRegisteredVM(t)
	create := moduleFn(t, v, 4, "create")
	handle := callAndPop(t, v, create, vm.Int(7))

	selectKey, err := v.Heap.InternProtected("select")
	require.NoError(t, err)
	inKey, err := v.Heap.InternProtected("in")
	require.NoError(t, err)
	selectFn := handle.Table().Get(selectKey)
	inFn := handle.Table().Get(inKey)

	_, err = v.CallMethodValue(handle, selectFn, vm.Int(1))
	require.NoError(t, err)
	got, err := v.CallMethodValue(handle, inFn)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.AsInt(), "select(true) then in() must report membership")

	_, err = v.CallMethodValue(handle, selectFn, vm.Int(0))
	require.NoError(t, err)
	got, err = v.CallMethodValue(handle, inFn)
	require.NoError(t, err)
	assert.Equal(t, int32(0), got.AsInt(), "select(false) then in() must report no membership")
}

func TestObjectMethodsTypeCloneSize(t *testing.T) {
	v := newRegisteredVM(t)

	typeFn := v.Globals[6]
	cloneFn := v.Globals[7]
	sizeFn := v.Globals[8]

	gotType := callAndPop(t, v, typeFn, vm.Int(1))
	s := v.Heap.Interner.Text(gotType.AsStringID())
	assert.Equal(t, "int", s)

	tbl := v.Heap.NewTable()
	k, err := v.Heap.InternProtected("x")
	require.NoError(t, err)
	require.NoError(t, tbl.Table().Put(k, vm.Int(42)))

	cloned := callAndPop(t, v, cloneFn, tbl)
	require.NotNil(t, cloned.Table())
	assert.NotSame(t, tbl.Table(), cloned.Table(), "clone must be a distinct table object")
	assert.Equal(t, int32(42), cloned.Table().Get(k).AsInt())

	require.NoError(t, tbl.Table().Put(k, vm.Int(99)))
	assert.Equal(t, int32(42), cloned.Table().Get(k).AsInt(), "mutating the original must not affect the clone")

	gotSize := callAndPop(t, v, sizeFn, tbl)
	assert.Equal(t, int32(1), gotSize.AsInt())
}

func TestObjectMethodsMapAndReduce(t *testing.T) {
	v := newRegisteredVM(t)
	mapFn := v.Globals[10]
	reduceFn := v.Globals[11]

	tbl := v.Heap.NewTable()
	require.NoError(t, tbl.Table().Put(vm.Int(0), vm.Int(10)))
	require.NoError(t, tbl.Table().Put(vm.Int(1), vm.Int(20)))

	doubleIdx := int32(len(v.Foreign))
	v.Foreign = append(v.Foreign, func(v *vm.VM) *vm.VMError {
		v.Push(vm.Int(v.Arg(1).AsInt() * 2))
		return nil
	})
	double := v.Heap.NewClosure(false, doubleIdx, nil)

	mapped := callAndPop(t, v, mapFn, tbl, double)
	require.NotNil(t, mapped.Table())
	assert.Equal(t, int32(20), mapped.Table().Get(vm.Int(0)).AsInt())
	assert.Equal(t, int32(40), mapped.Table().Get(vm.Int(1)).AsInt())

	sumIdx := int32(len(v.Foreign))
	v.Foreign = append(v.Foreign, func(v *vm.VM) *vm.VMError {
		v.Push(vm.Int(v.Arg(1).AsInt() + v.Arg(2).AsInt()))
		return nil
	})
	sum := v.Heap.NewClosure(false, sumIdx, nil)

	total := callAndPop(t, v, reduceFn, tbl, sum, vm.Int(0))
	assert.Equal(t, int32(30), total.AsInt())
}

func TestMathPreservesIntAndAddsFunctions(t *testing.T) {
	v := newRegisteredVM(t)
	abs := moduleFn(t, v, 0, "abs")
	min := moduleFn(t, v, 0, "min")
	max := moduleFn(t, v, 0, "max")
	sin := moduleFn(t, v, 0, "sin")

	gotAbs := callAndPop(t, v, abs, vm.Int(-3))
	assert.Equal(t, vm.KInt, gotAbs.Kind())
	assert.Equal(t, int32(3), gotAbs.AsInt())

	gotMin := callAndPop(t, v, min, vm.Int(5), vm.Int(2))
	assert.Equal(t, vm.KInt, gotMin.Kind())
	assert.Equal(t, int32(2), gotMin.AsInt())

	gotMax := callAndPop(t, v, max, vm.Int(5), vm.Float(7.5))
	assert.Equal(t, vm.KFloat, gotMax.Kind(), "mixed Int/Float falls back to Float")
	assert.InDelta(t, 7.5, gotMax.AsFloat(), 1e-9)

	gotSin := callAndPop(t, v, sin, vm.Float(0))
	assert.InDelta(t, 0.0, gotSin.AsFloat(), 1e-6)

	pi := moduleFieldValue(t, v, 0, "pi")
	assert.InDelta(t, 3.14159, pi.AsFloat(), 1e-4)
}

func moduleFieldValue(t *testing.T, v *vm.VM, moduleSlot int32, name string) vm.Value {
	t.Helper()
	tbl := v.Globals[moduleSlot].Table()
	require.NotNil(t, tbl)
	key, err := v.Heap.InternProtected(name)
	require.NoError(t, err)
	return tbl.Get(key)
}

func TestStringConversionsAndOutOfRangeSub(t *testing.T) {
	v := newRegisteredVM(t)
	tostring := moduleFn(t, v, 1, "tostring")
	toint := moduleFn(t, v, 1, "toint")
	tofloat := moduleFn(t, v, 1, "tofloat")
	sub := moduleFn(t, v, 1, "sub")

	gotStr := callAndPop(t, v, tostring, vm.Int(42))
	assert.Equal(t, "42", v.Heap.Interner.Text(gotStr.AsStringID()))

	numStr, err := v.Heap.InternTransient("123")
	require.NoError(t, err)
	gotInt := callAndPop(t, v, toint, numStr)
	assert.Equal(t, int32(123), gotInt.AsInt())

	floatStr, err := v.Heap.InternTransient("3.5")
	require.NoError(t, err)
	gotFloat := callAndPop(t, v, tofloat, floatStr)
	assert.InDelta(t, 3.5, gotFloat.AsFloat(), 1e-9)

	s, err := v.Heap.InternTransient("hello")
	require.NoError(t, err)
	gotSub := callAndPop(t, v, sub, s, vm.Int(2), vm.Int(100))
	assert.True(t, gotSub.IsNil(), "out-of-range sub indices must return Nil, not clamp")
}
