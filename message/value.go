// Package message implements the wire codec for inter-robot traffic
// (§4.2): a flat, heap-independent value representation plus the six
// message kinds robots exchange (broadcast, swarm roster, virtual
// stigmergy put/query, swarm join/leave).
//
// Value here is deliberately not vm.Value: the codec has no notion of a
// heap, interning or object identity, only bytes on the wire. The vm
// package is responsible for translating between its heap-backed values
// and this flat representation at the queue boundary.
package message

import (
	"encoding/binary"
	"fmt"
)

// Kind tags a wire Value the same way vm.Kind tags a runtime one, minus
// Closure/UserData, which never cross the wire (§4.2 Non-goals).
type Kind uint8

const (
	KNil Kind = iota
	KInt
	KFloat
	KString
	KTable
)

// Entry is one key/value pair of a wire-encoded table, in the deterministic
// order it was written (the wire format does not have to preserve the
// sender's iteration order, only round-trip whatever order it picked).
type Entry struct {
	Key Value
	Val Value
}

// Value is the flat, wire-level value representation.
type Value struct {
	Kind  Kind
	I     int32
	F     float32
	S     string
	Table []Entry
}

func Nil() Value          { return Value{Kind: KNil} }
func Int(i int32) Value   { return Value{Kind: KInt, I: i} }
func Float(f float32) Value { return Value{Kind: KFloat, F: f} }
func Str(s string) Value  { return Value{Kind: KString, S: s} }

// EncodeValue appends v's wire encoding to buf and returns the result.
func EncodeValue(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case KNil:
		// no payload
	case KInt:
		buf = appendU32(buf, uint32(v.I))
	case KFloat:
		buf = appendU32(buf, float32bits(v.F))
	case KString:
		buf = appendU16(buf, uint16(len(v.S)))
		buf = append(buf, v.S...)
	case KTable:
		buf = appendU16(buf, uint16(len(v.Table)))
		for _, e := range v.Table {
			buf = EncodeValue(buf, e.Key)
			buf = EncodeValue(buf, e.Val)
		}
	}
	return buf
}

// DecodeValue reads one wire value from buf, returning the remaining bytes.
func DecodeValue(buf []byte) (Value, []byte, error) {
	if len(buf) < 1 {
		return Value{}, nil, fmt.Errorf("message: truncated value (missing kind byte)")
	}
	kind := Kind(buf[0])
	buf = buf[1:]
	switch kind {
	case KNil:
		return Value{Kind: KNil}, buf, nil
	case KInt:
		u, rest, err := readU32(buf)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KInt, I: int32(u)}, rest, nil
	case KFloat:
		u, rest, err := readU32(buf)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KFloat, F: float32frombits(u)}, rest, nil
	case KString:
		n, rest, err := readU16(buf)
		if err != nil {
			return Value{}, nil, err
		}
		if len(rest) < int(n) {
			return Value{}, nil, fmt.Errorf("message: truncated string (want %d bytes, have %d)", n, len(rest))
		}
		return Value{Kind: KString, S: string(rest[:n])}, rest[n:], nil
	case KTable:
		n, rest, err := readU16(buf)
		if err != nil {
			return Value{}, nil, err
		}
		entries := make([]Entry, 0, n)
		for i := uint16(0); i < n; i++ {
			var k, v Value
			k, rest, err = DecodeValue(rest)
			if err != nil {
				return Value{}, nil, err
			}
			v, rest, err = DecodeValue(rest)
			if err != nil {
				return Value{}, nil, err
			}
			entries = append(entries, Entry{Key: k, Val: v})
		}
		return Value{Kind: KTable, Table: entries}, rest, nil
	default:
		return Value{}, nil, fmt.Errorf("message: unknown value kind %d", kind)
	}
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU16(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, fmt.Errorf("message: truncated u16")
	}
	return binary.LittleEndian.Uint16(buf), buf[2:], nil
}

func readU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, fmt.Errorf("message: truncated u32")
	}
	return binary.LittleEndian.Uint32(buf), buf[4:], nil
}
