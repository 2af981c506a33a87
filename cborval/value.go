// Package cborval implements the small, deterministic subset of CBOR the
// Ouroboros wire protocols use: unsigned/signed integers, byte strings,
// text strings, arrays, maps, and booleans, encoded "packed" (shortest
// length form, canonical map key order) and decoded strictly (unknown tags
// or floats are rejected rather than silently accepted).
//
// Grounded on original_source/src/protocols/{handshake,chainsync}.rs's use
// of serde_cbor::Value + ser::to_vec_packed, reimplemented against
// github.com/fxamacker/cbor/v2, the teacher's CBOR library.
package cborval

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind identifies which of the supported CBOR major types a Value holds.
type Kind int

const (
	KindUint Kind = iota
	KindInt
	KindBytes
	KindText
	KindArray
	KindMap
	KindBool
)

// Value is a dynamically-typed CBOR value restricted to the kinds the
// Ouroboros grammar uses.
type Value struct {
	kind  Kind
	u     uint64
	i     int64
	bytes []byte
	text  string
	array []Value
	m     []MapEntry
	b     bool
}

// MapEntry is one key/value pair of a Map value. Marshal sorts entries into
// canonical key order regardless of the order they were constructed in.
type MapEntry struct {
	Key Value
	Val Value
}

// Kind returns which CBOR major type this Value holds.
func (v Value) Kind() Kind { return v.kind }

// Constructors.

func UInt(u uint64) Value   { return Value{kind: KindUint, u: u} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Bytes(b []byte) Value  { return Value{kind: KindBytes, bytes: b} }
func Text(s string) Value   { return Value{kind: KindText, text: s} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Array(vs ...Value) Value {
	return Value{kind: KindArray, array: vs}
}
func Map(entries ...MapEntry) Value {
	return Value{kind: KindMap, m: entries}
}

// Accessors. Each returns the zero value of its type if called against the
// wrong Kind; callers that don't control the schema should check Kind()
// first (see IntValue and AsArray below for the checked forms used against
// peer-supplied data).

func (v Value) UInt() uint64    { return v.u }
func (v Value) Int() int64      { return v.i }
func (v Value) BytesVal() []byte { return v.bytes }
func (v Value) TextVal() string  { return v.text }
func (v Value) ArrayVal() []Value { return v.array }
func (v Value) MapVal() []MapEntry { return v.m }
func (v Value) BoolVal() bool   { return v.b }

// IntValue returns v's numeric value as an int64, accepting both KindUint
// and KindInt. ok is false for any other Kind.
func (v Value) IntValue() (int64, bool) {
	switch v.kind {
	case KindUint:
		return int64(v.u), true
	case KindInt:
		return v.i, true
	default:
		return 0, false
	}
}

// AsArray returns v's elements and true if v is a KindArray.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.array, true
}

// Error reports that a CBOR payload could not be decoded, or used a
// construct this layer doesn't support.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// ErrorKind distinguishes a structurally broken payload from one using an
// unsupported construct (spec §4.7, §7).
type ErrorKind int

const (
	KindMalformed ErrorKind = iota
	KindUnsupported
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cbor: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("cbor: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

var encMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err) // static options, cannot fail
	}
	return mode
}()

// decMode leaves tags in TagsAllowed (the default): rejecting them at this
// layer instead of inside the library lets fromNative distinguish a tagged
// value (KindUnsupported, like a float) from a structurally broken payload
// (KindMalformed).
var decMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		MaxNestedLevels: 32,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Marshal encodes v as packed, canonical CBOR: shortest length form for
// every major type, map keys in ascending canonical order.
func Marshal(v Value) ([]byte, error) {
	native, err := toNative(v)
	if err != nil {
		return nil, err
	}
	out, err := encMode.Marshal(native)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Msg: "encode failed", Err: err}
	}
	return out, nil
}

// Unmarshal decodes data into a Value. A structurally broken payload fails
// inside decMode.Unmarshal and is reported as KindMalformed; a well-formed
// payload using a float or a tag reaches fromNative and is reported as
// KindUnsupported instead.
func Unmarshal(data []byte) (Value, error) {
	var native interface{}
	if err := decMode.Unmarshal(data, &native); err != nil {
		return Value{}, &Error{Kind: KindMalformed, Msg: "decode failed", Err: err}
	}
	return fromNative(native)
}

// toNative converts a Value tree into the plain Go types cbor.Marshal
// understands, preserving canonical map key order via a native Go map
// (the library's canonical encoder sorts keys itself).
func toNative(v Value) (interface{}, error) {
	switch v.kind {
	case KindUint:
		return v.u, nil
	case KindInt:
		return v.i, nil
	case KindBytes:
		if v.bytes == nil {
			return []byte{}, nil
		}
		return v.bytes, nil
	case KindText:
		return v.text, nil
	case KindBool:
		return v.b, nil
	case KindArray:
		arr := make([]interface{}, len(v.array))
		for i, elem := range v.array {
			n, err := toNative(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = n
		}
		return arr, nil
	case KindMap:
		// All protocol maps in this grammar use integer keys (handshake
		// version proposals); model them as map[int64]interface{} so the
		// canonical encoder can sort them.
		out := make(map[int64]interface{}, len(v.m))
		for _, entry := range v.m {
			key, ok := entry.Key.IntValue()
			if !ok {
				return nil, &Error{Kind: KindUnsupported, Msg: "non-integer map key"}
			}
			n, err := toNative(entry.Val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	default:
		return nil, &Error{Kind: KindUnsupported, Msg: "unknown value kind"}
	}
}

// fromNative converts the interface{} tree produced by cbor.Unmarshal into
// a Value, rejecting floats and tags (neither is part of this wire
// grammar) as KindUnsupported.
func fromNative(n interface{}) (Value, error) {
	switch x := n.(type) {
	case cbor.Tag:
		return Value{}, &Error{Kind: KindUnsupported, Msg: fmt.Sprintf("tag %d is not part of this wire grammar", x.Number)}
	case uint64:
		return UInt(x), nil
	case int64:
		return Int(x), nil
	case []byte:
		return Bytes(x), nil
	case string:
		return Text(x), nil
	case bool:
		return Bool(x), nil
	case []interface{}:
		out := make([]Value, len(x))
		for i, elem := range x {
			v, err := fromNative(elem)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return Array(out...), nil
	case map[interface{}]interface{}:
		entries := make([]MapEntry, 0, len(x))
		for k, val := range x {
			kv, err := fromNative(k)
			if err != nil {
				return Value{}, err
			}
			vv, err := fromNative(val)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, MapEntry{Key: kv, Val: vv})
		}
		return Map(entries...), nil
	case nil:
		return Value{}, &Error{Kind: KindUnsupported, Msg: "null is not a supported value kind"}
	default:
		return Value{}, &Error{Kind: KindUnsupported, Msg: fmt.Sprintf("unsupported CBOR value of type %T (floats and tags are not part of this wire grammar)", n)}
	}
}

// FindText performs a depth-first search for the first Text node in v,
// matching the Rust original's find_error_message (used by Handshake to
// extract a rejection reason from an arbitrarily-shaped refusal payload).
func FindText(v Value) (string, bool) {
	if v.kind == KindText {
		return v.text, true
	}
	if v.kind == KindArray {
		for _, elem := range v.array {
			if text, ok := FindText(elem); ok {
				return text, ok
			}
		}
	}
	return "", false
}
