// Package vm implements the Buzz bytecode interpreter core: the tagged
// value model and heap (value.go, object.go, interner.go, heap.go), the
// instruction set (opcodes.go), the fetch-decode-execute loop (this file),
// and the per-VM swarm/stigmergy/neighbor runtime state that the
// standard library's builtins drive (swarm.go, vstig.go, neighbors.go).
package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	mapset "github.com/deckarep/golang-set"

	"github.com/buzzlang/buzz/queue"
	"github.com/buzzlang/buzz/vm/swarmrt"
)

// magic is the 4-byte header every assembled bytecode blob starts with,
// followed by a little-endian major/minor version pair (§6 [FULL]).
var magic = [4]byte{'B', 'Z', 'Z', 'B'}

const (
	versionMajor = 1
	versionMinor = 0
)

// State is the VM's coarse lifecycle state (§4.8).
type State int

const (
	StateNoCode State = iota
	StateReady
	StateDone
	StateError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNoCode:
		return "nocode"
	case StateReady:
		return "ready"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ForeignFunc is a Go-implemented builtin bound into the closure table via
// OpPushCC. By the time it runs, call has already popped the args table
// (and self) off vm's current activation; it reads its arguments through
// Args/Arg (and Self) and pushes its own result. It returns a *VMError
// (not a Go error) so callers get a consistent, inspectable failure shape.
type ForeignFunc func(v *VM) *VMError

// Debugger is an optional hook the host can install to resolve a pc to a
// source position for error reporting; nil if no debug info was loaded.
type Debugger interface {
	Site(pc int) string
}

// VM is one robot's Buzz interpreter instance. It owns its own heap,
// globals, call stack and swarm/stigmergy/neighbor state; nothing here is
// shared between VM instances (a host running N robots runs N independent
// VMs, wired together only through the message/queue layer).
type VM struct {
	Heap    *Heap
	Globals map[int32]Value
	Foreign []ForeignFunc

	code []byte
	pc   int
	oldpc int

	state   State
	lastErr *VMError
	debug   Debugger

	activations []*activation

	RobotID uint16
	Step    uint32

	InQueue  *queue.InQueue
	OutQueue *queue.OutQueue

	// Swarm runtime state (§4.9/§4.10 [FULL]); see swarm.go.
	swarmStack   []uint16
	swarms       mapset.Set // swarm ids this robot currently belongs to
	swarmMembers *swarmrt.Table

	// Virtual stigmergy (§4.11); see vstig.go.
	vstigs map[uint16]*VStig

	// Neighbor table (§4.9); see neighbors.go.
	neighbors map[uint16]NeighborInfo
	listeners map[string]Value // broadcast topic -> listener closure

	self *Value // self table bound by the in-flight OpCallS, if any
	args *Value // args table of the in-flight foreign call, if any

	// Ext is free for a standard-library implementation to stash whatever
	// per-VM state its builtins need (an RNG, open file handles, ...); the
	// vm package never reads it.
	Ext any
}

// New returns a VM in StateNoCode, ready for Load.
func New(robotID uint16) *VM {
	return &VM{
		Heap:         NewHeap(),
		Globals:      make(map[int32]Value),
		state:        StateNoCode,
		InQueue:      queue.NewInQueue(),
		OutQueue:     queue.NewOutQueue(),
		RobotID:      robotID,
		swarms:       mapset.NewSet(),
		swarmMembers: swarmrt.NewTable(),
		vstigs:       make(map[uint16]*VStig),
		neighbors:    make(map[uint16]NeighborInfo),
		listeners:    make(map[string]Value),
	}
}

// SetDebugger installs a pc-to-source-position resolver used to annotate
// VMError.Site when a fault occurs.
func (v *VM) SetDebugger(d Debugger) { v.debug = d }

// State reports the VM's current lifecycle state.
func (v *VM) State() State { return v.state }

// Err returns the latched error, if State()==StateError.
func (v *VM) Err() *VMError { return v.lastErr }

// Load parses an assembled bytecode blob (header + string table + code)
// and resets the VM to StateReady. The string table entries are interned
// as protected strings in id order, so OpPushS operands line up directly
// with interner ids.
func (v *VM) Load(blob []byte) error {
	if len(blob) < 8 {
		return fmt.Errorf("buzz: bytecode too short")
	}
	if [4]byte{blob[0], blob[1], blob[2], blob[3]} != magic {
		return fmt.Errorf("buzz: bad magic %q, want %q", blob[0:4], magic)
	}
	major := binary.LittleEndian.Uint16(blob[4:6])
	if major != versionMajor {
		return fmt.Errorf("buzz: unsupported bytecode version %d.x", major)
	}
	pos := 8
	numStrings := int(binary.LittleEndian.Uint16(blob[pos:]))
	pos += 2
	for i := 0; i < numStrings; i++ {
		if pos+2 > len(blob) {
			return fmt.Errorf("buzz: truncated string table at entry %d", i)
		}
		n := int(binary.LittleEndian.Uint16(blob[pos:]))
		pos += 2
		if pos+n > len(blob) {
			return fmt.Errorf("buzz: truncated string table entry %d", i)
		}
		if _, err := v.Heap.InternProtected(string(blob[pos : pos+n])); err != nil {
			return err
		}
		pos += n
	}
	if pos+4 > len(blob) {
		return fmt.Errorf("buzz: truncated code length")
	}
	codeLen := int(binary.LittleEndian.Uint32(blob[pos:]))
	pos += 4
	if pos+codeLen > len(blob) {
		return fmt.Errorf("buzz: truncated code section")
	}
	v.code = blob[pos : pos+codeLen]
	v.pc = 0
	v.activations = []*activation{newActivation(-1, 0)}
	v.state = StateReady
	v.lastErr = nil
	return nil
}

// Stop transitions the VM to StateStopped; it is idempotent and has no
// effect once the VM has already reached Done or Error.
func (v *VM) Stop() {
	if v.state == StateReady {
		v.state = StateStopped
	}
}

// Run executes instructions until the VM leaves StateReady.
func (v *VM) Run() error {
	for v.state == StateReady {
		if err := v.step(); err != nil {
			return err
		}
	}
	if v.state == StateError {
		return v.lastErr
	}
	return nil
}

func (v *VM) fail(kind ErrorKind, format string, args ...any) error {
	e := newErr(kind, v.oldpc, format, args...)
	if v.debug != nil {
		e.Site = v.debug.Site(v.oldpc)
	}
	v.lastErr = e
	v.state = StateError
	return e
}

func (v *VM) cur() *activation { return v.activations[len(v.activations)-1] }

// step decodes and executes a single instruction, advancing pc.
func (v *VM) step() error {
	if v.pc < 0 || v.pc >= len(v.code) {
		return v.fail(ErrPcOutOfRange, "pc %d outside code [0,%d)", v.pc, len(v.code))
	}
	v.oldpc = v.pc
	op := Op(v.code[v.pc])
	v.pc++

	var arg int32
	if op.HasArg() {
		if v.pc+4 > len(v.code) {
			return v.fail(ErrPcOutOfRange, "truncated operand for %s", op)
		}
		arg = int32(binary.LittleEndian.Uint32(v.code[v.pc:]))
		v.pc += 4
	}

	if err := v.exec(op, arg); err != nil {
		if verr, ok := err.(*VMError); ok {
			if v.state == StateError {
				return err
			}
			return v.fail(verr.Kind, "%s", verr.Message)
		}
		return v.fail(ErrUnknownInstr, "%v", err)
	}

	if v.Heap.ShouldCollect() {
		v.Heap.Collect(v.gcRoots())
	}
	return nil
}

func (v *VM) gcRoots() []Value {
	var roots []Value
	for _, a := range v.activations {
		roots = append(roots, a.roots()...)
	}
	for _, g := range v.Globals {
		roots = append(roots, g)
	}
	for _, l := range v.listeners {
		roots = append(roots, l)
	}
	for _, vs := range v.vstigs {
		roots = append(roots, vs.roots()...)
	}
	return roots
}

func (v *VM) exec(op Op, arg int32) error {
	a := v.cur()
	switch op {
	case OpNop:
		return nil
	case OpDone:
		v.state = StateDone
		return nil
	case OpPushNil:
		a.push(Nil)
	case OpDup:
		top, err := a.peek()
		if err != nil {
			return err
		}
		a.push(top)
	case OpPop:
		_, err := a.pop()
		return err
	case OpRet0:
		return v.ret(Nil, false)
	case OpRet1:
		val, err := a.pop()
		if err != nil {
			return err
		}
		return v.ret(val, true)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
		return v.binArith(op)
	case OpUnm:
		x, err := a.pop()
		if err != nil {
			return err
		}
		switch x.Kind() {
		case KInt:
			a.push(Int(-x.AsInt()))
		case KFloat:
			a.push(Float(-x.AsFloat()))
		default:
			return &VMError{Kind: ErrTypeMismatch, Message: "unm on non-numeric"}
		}
	case OpAnd:
		b, err := a.pop()
		if err != nil {
			return err
		}
		x, err := a.pop()
		if err != nil {
			return err
		}
		a.push(boolValue(x.Truthy() && b.Truthy()))
	case OpOr:
		b, err := a.pop()
		if err != nil {
			return err
		}
		x, err := a.pop()
		if err != nil {
			return err
		}
		a.push(boolValue(x.Truthy() || b.Truthy()))
	case OpNot:
		x, err := a.pop()
		if err != nil {
			return err
		}
		a.push(boolValue(!x.Truthy()))
	case OpEq, OpNeq:
		b, err := a.pop()
		if err != nil {
			return err
		}
		x, err := a.pop()
		if err != nil {
			return err
		}
		eq := Equal(v.Heap, x, b)
		if op == OpNeq {
			eq = !eq
		}
		a.push(boolValue(eq))
	case OpGt, OpGte, OpLt, OpLte:
		b, err := a.pop()
		if err != nil {
			return err
		}
		x, err := a.pop()
		if err != nil {
			return err
		}
		c, err := Compare(v.Heap, x, b)
		if err != nil {
			return err
		}
		var res bool
		switch op {
		case OpGt:
			res = c > 0
		case OpGte:
			res = c >= 0
		case OpLt:
			res = c < 0
		case OpLte:
			res = c <= 0
		}
		a.push(boolValue(res))
	case OpGLoad:
		idx, err := a.pop()
		if err != nil {
			return err
		}
		if idx.Kind() != KInt {
			return &VMError{Kind: ErrTypeMismatch, Message: "global id must be int"}
		}
		a.push(v.Globals[idx.AsInt()])
	case OpGStore:
		idx, err := a.pop()
		if err != nil {
			return err
		}
		val, err := a.pop()
		if err != nil {
			return err
		}
		if idx.Kind() != KInt {
			return &VMError{Kind: ErrTypeMismatch, Message: "global id must be int"}
		}
		v.Globals[idx.AsInt()] = val
	case OpPushT:
		a.push(v.Heap.NewTable())
	case OpTPut:
		val, err := a.pop()
		if err != nil {
			return err
		}
		key, err := a.pop()
		if err != nil {
			return err
		}
		tbl, err := a.pop()
		if err != nil {
			return err
		}
		t := tbl.Table()
		if t == nil {
			return &VMError{Kind: ErrTypeMismatch, Message: "tput on non-table"}
		}
		return t.Put(key, val)
	case OpTGet:
		key, err := a.pop()
		if err != nil {
			return err
		}
		tbl, err := a.pop()
		if err != nil {
			return err
		}
		t := tbl.Table()
		if t == nil {
			return &VMError{Kind: ErrTypeMismatch, Message: "tget on non-table"}
		}
		a.push(t.Get(key))
	case OpCallC:
		return v.call(false)
	case OpCallS:
		return v.call(true)
	case OpPushF:
		a.push(Float(math.Float32frombits(uint32(arg))))
	case OpPushI:
		a.push(Int(arg))
	case OpPushS:
		a.push(Value{kind: KString, strID: uint16(arg)})
	case OpPushCN:
		a.push(v.Heap.NewClosure(true, arg, nil))
	case OpPushL:
		var captures []Value
		if len(a.locals) > 1 {
			captures = append([]Value(nil), a.locals[1:]...)
		}
		a.push(v.Heap.NewClosure(true, arg, captures))
	case OpPushCC:
		if int(arg) < 0 || int(arg) >= len(v.Foreign) {
			return &VMError{Kind: ErrBadFunctionID, Message: fmt.Sprintf("no foreign function %d", arg)}
		}
		a.push(v.Heap.NewClosure(false, arg, nil))
	case OpLLoad:
		val, err := a.local(arg)
		if err != nil {
			return err
		}
		a.push(val)
	case OpLStore:
		val, err := a.pop()
		if err != nil {
			return err
		}
		return a.setLocal(arg, val)
	case OpJump:
		v.pc = int(arg)
	case OpJumpZ:
		cond, err := a.pop()
		if err != nil {
			return err
		}
		if !cond.Truthy() {
			v.pc = int(arg)
		}
	case OpJumpNZ:
		cond, err := a.pop()
		if err != nil {
			return err
		}
		if cond.Truthy() {
			v.pc = int(arg)
		}
	default:
		return &VMError{Kind: ErrUnknownInstr, Message: fmt.Sprintf("opcode %s", op)}
	}
	return nil
}

func boolValue(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func (v *VM) binArith(op Op) error {
	a := v.cur()
	y, err := a.pop()
	if err != nil {
		return err
	}
	x, err := a.pop()
	if err != nil {
		return err
	}
	if !x.isNumeric() || !y.isNumeric() {
		return &VMError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s on non-numeric operands", op)}
	}
	if x.Kind() == KInt && y.Kind() == KInt {
		xi, yi := x.AsInt(), y.AsInt()
		switch op {
		case OpAdd:
			a.push(Int(xi + yi))
		case OpSub:
			a.push(Int(xi - yi))
		case OpMul:
			a.push(Int(xi * yi))
		case OpMod:
			if yi == 0 {
				a.push(Float(float32(math.Mod(float64(xi), float64(yi)))))
				return nil
			}
			r := xi % yi
			if r != 0 && (r < 0) != (yi < 0) {
				r += yi
			}
			a.push(Int(r))
		case OpDiv, OpPow:
			a.push(floatArith(op, float64(xi), float64(yi)))
		}
		return nil
	}
	a.push(floatArith(op, x.numAsFloat(), y.numAsFloat()))
	return nil
}

func floatArith(op Op, x, y float64) Value {
	switch op {
	case OpAdd:
		return Float(float32(x + y))
	case OpSub:
		return Float(float32(x - y))
	case OpMul:
		return Float(float32(x * y))
	case OpDiv:
		return Float(float32(x / y))
	case OpMod:
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return Float(float32(r))
	case OpPow:
		return Float(float32(math.Pow(x, y)))
	}
	return Nil
}

// ret pops the current activation, discarding it, and resumes the caller
// at its saved return pc. With val/hasVal it optionally pushes a return
// value onto the caller's operand stack. Returning from the outermost
// activation ends the program (StateDone).
func (v *VM) ret(val Value, hasVal bool) error {
	if len(v.activations) == 1 {
		v.state = StateDone
		return nil
	}
	done := v.activations[len(v.activations)-1]
	v.activations = v.activations[:len(v.activations)-1]
	v.pc = done.retPC
	if hasVal {
		v.cur().push(val)
	}
	return nil
}

// call implements Buzz's calling convention: the stack holds, from bottom
// to top, an optional self table (OpCallS only), the closure to invoke,
// and an args table (always present, built by the caller with
// pusht/tput — possibly empty). call pops all three (or two, for OpCallC).
//
// Native closures get a fresh activation whose local slot 0 is the args
// table, slot 1 the self table if withSelf, and the remaining slots the
// closure's captures; code generated for a function's parameter list
// reads each parameter out of slot 0 via tget at entry. Foreign closures
// run immediately against the *caller's* activation, receiving the args
// table and self directly rather than through locals.
func (v *VM) call(withSelf bool) error {
	// Push order is self (if any), then closure, then argsTable, so pop
	// order is argsTable, closure, self.
	a := v.cur()
	args, err := a.pop()
	if err != nil {
		return err
	}
	if args.Table() == nil {
		return &VMError{Kind: ErrTypeMismatch, Message: "call args must be a table"}
	}
	cv, err := a.pop()
	if err != nil {
		return err
	}
	cl := cv.Closure()
	if cl == nil {
		return &VMError{Kind: ErrTypeMismatch, Message: "call on non-closure"}
	}
	var self Value
	if withSelf {
		self, err = a.pop()
		if err != nil {
			return err
		}
	}
	if !cl.IsNative {
		if int(cl.Ref) < 0 || int(cl.Ref) >= len(v.Foreign) {
			return &VMError{Kind: ErrBadFunctionID, Message: fmt.Sprintf("no foreign function %d", cl.Ref)}
		}
		v.args = &args
		if withSelf {
			v.self = &self
		}
		verr := v.Foreign[cl.Ref](v)
		v.args, v.self = nil, nil
		if verr != nil {
			return verr
		}
		return nil
	}
	numSlots := 1 + boolToInt(withSelf) + len(cl.Captures)
	next := newActivation(v.pc, numSlots)
	next.locals[0] = args
	offset := 1
	if withSelf {
		next.locals[1] = self
		offset = 2
	}
	copy(next.locals[offset:], cl.Captures)
	v.activations = append(v.activations, next)
	v.pc = int(cl.Ref)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Self returns the self table bound by the current OpCallS invocation,
// valid only inside a ForeignFunc invoked via a method call.
func (v *VM) Self() (Value, bool) {
	if v.self == nil {
		return Nil, false
	}
	return *v.self, true
}

// Args returns the args table of the call currently invoking a
// ForeignFunc.
func (v *VM) Args() *Table {
	if v.args == nil {
		return nil
	}
	return v.args.Table()
}

// Arg returns positional argument i (0-based) from the in-flight call's
// args table, or Nil if absent.
func (v *VM) Arg(i int) Value {
	t := v.Args()
	if t == nil {
		return Nil
	}
	return t.Get(Int(int32(i)))
}

// Pop/Push/Peek let stdlib ForeignFuncs manipulate the calling
// activation's operand stack directly, e.g. to push a return value.
func (v *VM) Pop() (Value, error)  { return v.cur().pop() }
func (v *VM) Push(val Value)       { v.cur().push(val) }
func (v *VM) Peek() (Value, error) { return v.cur().peek() }

// ExpectArgc is the standard ForeignFunc argument-count guard.
func (v *VM) ExpectArgc(got, want int) *VMError {
	if got != want {
		return &VMError{Kind: ErrWrongArgCount, Message: fmt.Sprintf("want %d args, got %d", want, got)}
	}
	return nil
}

// Call invokes closure with args (built into a fresh args table) from Go
// code, for callers that need to call a Buzz-side closure value that isn't
// reached through the normal OpCallC/OpCallS instruction stream. For a
// bytecode closure it only sets up the activation; CallValue builds on it
// to run the callee to completion.
func (v *VM) Call(closure Value, args ...Value) error {
	if closure.Closure() == nil {
		return nil
	}
	argsTable := v.Heap.NewTable()
	for i, arg := range args {
		_ = argsTable.Table().Put(Int(int32(i)), arg)
	}
	a := v.cur()
	a.push(closure)
	a.push(argsTable)
	return v.call(false)
}

// CallMethod is Call's self-binding counterpart, for invoking a
// method-style closure (one that reads vm.VM.Self()) from Go code the
// same way a self-bound OpCallS would.
func (v *VM) CallMethod(self, closure Value, args ...Value) error {
	if closure.Closure() == nil {
		return nil
	}
	argsTable := v.Heap.NewTable()
	for i, arg := range args {
		_ = argsTable.Table().Put(Int(int32(i)), arg)
	}
	a := v.cur()
	a.push(self)
	a.push(closure)
	a.push(argsTable)
	return v.call(true)
}

// CallValue is Call plus the ability to read back what the closure
// returned: a bytecode closure doesn't run to completion inside Call (it
// only sets up the activation; the fetch loop drives it), so this drains
// the fetch loop until control unwinds back to the caller's activation,
// then pops whatever value the callee left on the caller's operand
// stack. Used by vstig conflict resolution, which needs on_conflict's
// return value, not just its side effects.
//
// A runtime error raised by the callee does not latch the VM into
// StateError: it's reported to the caller but the VM is left ready to
// keep running the invoking robot's own program on the next step.
func (v *VM) CallValue(closure Value, args ...Value) (Value, error) {
	if closure.Closure() == nil {
		return Nil, nil
	}
	return v.drainCall(func() error { return v.Call(closure, args...) })
}

// CallMethodValue is CallMethod plus CallValue's return-value drain.
func (v *VM) CallMethodValue(self, closure Value, args ...Value) (Value, error) {
	if closure.Closure() == nil {
		return Nil, nil
	}
	return v.drainCall(func() error { return v.CallMethod(self, closure, args...) })
}

func (v *VM) drainCall(invoke func() error) (Value, error) {
	base := v.cur()
	baseDepth := len(v.activations)
	baseStack := len(base.operands)
	savedState := v.state
	savedPC := v.pc

	if err := invoke(); err != nil {
		return Nil, err
	}
	for len(v.activations) > baseDepth {
		if err := v.step(); err != nil {
			v.activations = v.activations[:baseDepth]
			v.pc = savedPC
			v.state = savedState
			v.lastErr = nil
			return Nil, err
		}
	}

	top := v.cur()
	if len(top.operands) > baseStack {
		return top.pop()
	}
	return Nil, nil
}

