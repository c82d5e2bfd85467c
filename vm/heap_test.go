package vm_test

import (
	"testing"

	"github.com/buzzlang/buzz/vm"
)

func TestInternDedup(t *testing.T) {
	h := vm.NewHeap()
	a, _ := h.InternProtected("hello")
	b, _ := h.InternProtected("hello")
	if a.AsStringID() != b.AsStringID() {
		t.Fatal("expected interning the same text twice to return the same id")
	}
}

func TestCollectSweepsUnreachableTable(t *testing.T) {
	h := vm.NewHeap()
	root := h.NewTable()
	_ = root.Table().Put(vm.Int(1), vm.Int(99))

	// Allocate a table that nothing roots.
	h.NewTable()

	h.Collect([]vm.Value{root})
	// A second collection with the same roots should be stable (idempotent).
	h.Collect([]vm.Value{root})

	if got := root.Table().Get(vm.Int(1)); got.AsInt() != 99 {
		t.Fatalf("rooted table lost its entry after GC: got %v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	h := vm.NewHeap()
	src := h.NewTable()
	inner := h.NewTable()
	_ = inner.Table().Put(vm.Int(1), vm.Int(5))
	_ = src.Table().Put(vm.Int(0), inner)

	clone := h.Clone(src)
	_ = clone.Table().Get(vm.Int(0)).Table().Put(vm.Int(1), vm.Int(123))

	if got := inner.Table().Get(vm.Int(1)); got.AsInt() != 5 {
		t.Fatalf("mutating clone leaked into original: got %v", got)
	}
}

func TestTransientStringSweptWhenUnreachable(t *testing.T) {
	h := vm.NewHeap()
	v, _ := h.InternTransient("scratch")
	h.Collect(nil) // no roots: the transient string should be swept
	if got := h.Interner.Text(v.AsStringID()); got != "" {
		t.Fatalf("expected swept transient string to read back empty, got %q", got)
	}
}
