package vm

import "github.com/buzzlang/buzz/message"

// toWire flattens a heap-backed Value into the codec's wire representation
// for transmission. Closures and user data never cross the wire (§4.2
// Non-goals); attempting to send one degrades to Nil rather than faulting
// the sending VM over a neighbor's payload choice.
func toWire(h *Heap, v Value) message.Value {
	switch v.Kind() {
	case KNil:
		return message.Nil()
	case KInt:
		return message.Int(v.AsInt())
	case KFloat:
		return message.Float(v.AsFloat())
	case KString:
		return message.Str(h.Interner.Text(v.AsStringID()))
	case KTable:
		t := v.Table()
		entries := make([]message.Entry, 0, t.Size())
		t.ForEach(func(k, val Value) bool {
			entries = append(entries, message.Entry{Key: toWire(h, k), Val: toWire(h, val)})
			return true
		})
		return message.Value{Kind: message.KTable, Table: entries}
	default:
		return message.Nil()
	}
}

// fromWire reconstructs a heap-backed Value from a wire value, interning
// any string content as transient (subject to normal GC) rather than
// protected, since the sender controls when it stops being reachable.
func fromWire(h *Heap, w message.Value) Value {
	switch w.Kind {
	case message.KNil:
		return Nil
	case message.KInt:
		return Int(w.I)
	case message.KFloat:
		return Float(w.F)
	case message.KString:
		sv, err := h.InternTransient(w.S)
		if err != nil {
			return Nil
		}
		return sv
	case message.KTable:
		tv := h.NewTable()
		t := tv.Table()
		for _, e := range w.Table {
			_ = t.Put(fromWire(h, e.Key), fromWire(h, e.Val))
		}
		return tv
	default:
		return Nil
	}
}
