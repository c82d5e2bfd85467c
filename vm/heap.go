package vm

// Heap owns every GC-tracked Object and the string interner, and runs the
// mark-and-sweep collector (§4.1). Collection is triggered by the VM
// between instructions whenever the live object count exceeds maxObjs;
// the threshold then grows so steady-state allocation doesn't thrash.
type Heap struct {
	Interner *Interner

	objects []*Object
	epoch   uint64
	maxObjs int
}

const defaultMaxObjs = 256

// NewHeap returns an empty heap with the default growth threshold.
func NewHeap() *Heap {
	return &Heap{Interner: newInterner(), maxObjs: defaultMaxObjs}
}

// NewTable allocates an empty table object.
func (h *Heap) NewTable() Value {
	obj := &Object{kind: KTable, table: newTable()}
	h.objects = append(h.objects, obj)
	return Value{kind: KTable, obj: obj}
}

// NewClosure allocates a closure object.
func (h *Heap) NewClosure(isNative bool, ref int32, captures []Value) Value {
	obj := &Object{kind: KClosure, closure: &Closure{IsNative: isNative, Ref: ref, Captures: captures}}
	h.objects = append(h.objects, obj)
	return Value{kind: KClosure, obj: obj}
}

// NewUserData wraps an opaque Go value as a heap-tracked userdata object.
func (h *Heap) NewUserData(data any) Value {
	obj := &Object{kind: KUserData, userdata: data}
	h.objects = append(h.objects, obj)
	return Value{kind: KUserData, obj: obj}
}

// InternProtected wraps Interner.InternProtected as a Value.
func (h *Heap) InternProtected(text string) (Value, error) {
	id, err := h.Interner.InternProtected(text)
	if err != nil {
		return Nil, err
	}
	return Value{kind: KString, strID: id}, nil
}

// InternTransient wraps Interner.InternTransient as a Value.
func (h *Heap) InternTransient(text string) (Value, error) {
	id, err := h.Interner.InternTransient(text)
	if err != nil {
		return Nil, err
	}
	return Value{kind: KString, strID: id}, nil
}

// ShouldCollect reports whether the live object count warrants a pass.
func (h *Heap) ShouldCollect() bool {
	return len(h.objects) > h.maxObjs
}

// Collect runs one mark-and-sweep pass rooted at roots: every value
// transitively reachable from roots (table entries, closure captures,
// interned string ids) survives; everything else is reclaimed. Table and
// closure objects are swept to nil slots and compacted; strings are
// tombstoned in place by the interner.
func (h *Heap) Collect(roots []Value) {
	h.epoch++
	for _, v := range roots {
		h.mark(v)
	}
	h.Interner.sweep(h.epoch)

	live := h.objects[:0]
	for _, obj := range h.objects {
		if obj.marker == h.epoch {
			live = append(live, obj)
		}
	}
	h.objects = live

	if len(h.objects) > h.maxObjs {
		h.maxObjs = len(h.objects) * 2
	}
}

func (h *Heap) mark(v Value) {
	switch v.kind {
	case KString:
		h.Interner.mark(v.strID, h.epoch)
	case KTable:
		if v.obj == nil || v.obj.marker == h.epoch {
			return
		}
		v.obj.marker = h.epoch
		v.obj.table.ForEach(func(k, val Value) bool {
			h.mark(k)
			h.mark(val)
			return true
		})
	case KClosure:
		if v.obj == nil || v.obj.marker == h.epoch {
			return
		}
		v.obj.marker = h.epoch
		for _, c := range v.obj.closure.Captures {
			h.mark(c)
		}
	case KUserData:
		if v.obj == nil || v.obj.marker == h.epoch {
			return
		}
		v.obj.marker = h.epoch
	}
}

// Clone returns a deep copy of v: tables are copied entry by entry
// (recursively), closures and userdata are copied by reference (Buzz
// closures and userdata are opaque handles, not value types), and
// Nil/Int/Float/String are already value types and returned as-is.
func (h *Heap) Clone(v Value) Value {
	if v.kind != KTable {
		return v
	}
	dst := h.NewTable()
	v.Table().ForEach(func(k, val Value) bool {
		_ = dst.Table().Put(k, h.Clone(val))
		return true
	})
	return dst
}
