// Package value defines Laythe's uniform value representation.
//
// A Value is a small, copyable cell that is either nil, a boolean, an
// IEEE-754 double, or a reference to a heap object. Heap objects (strings,
// lists, maps, functions, closures, classes, instances, ...) live in
// package heap; this package only knows about them through the Obj
// interface so that heap can depend on value without value depending on
// heap (the object model sits above the value representation, not beside
// it).
//
// The implementation here is a tagged union rather than NaN-boxing; both
// are permitted by the design (see DESIGN.md) and must preserve IEEE
// semantics for numeric results, including NaN != NaN.
package value

import "math"

// Kind identifies which alternative of a Value is populated.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// ObjKind identifies the concrete shape of a heap object without requiring
// a type assertion. Every heap.Obj implementation reports one of these.
type ObjKind uint8

const (
	KindString ObjKind = iota
	KindList
	KindMap
	KindFunction
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
	KindNative
	KindIterator
)

func (k ObjKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindFunction:
		return "function"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindBoundMethod:
		return "bound method"
	case KindNative:
		return "native fn"
	case KindIterator:
		return "iterator"
	default:
		return "unknown"
	}
}

// Header is the GC bookkeeping every heap object carries: its mark bit and
// an intrusive pointer to the next object allocated, so the collector can
// walk every live object without a separate side table.
type Header struct {
	Marked bool
	Next   Obj
}

// Obj is satisfied by every heap-allocated object kind. It lives here
// (rather than in package heap) purely so that Value can hold a reference
// to one without this package importing heap.
type Obj interface {
	Header() *Header
	ObjKind() ObjKind
}

// StringLike is implemented by heap.String. It is declared here so that
// package bytecode can serialize string constants without importing heap.
type StringLike interface {
	Obj
	RawString() string
}

// Value is Laythe's uniform value cell. Copy it freely; object references
// inside it are cheap pointer copies, never deep copies.
type Value struct {
	kind Kind
	num  float64
	b    bool
	obj  Obj
}

// Nil is the singular nil value.
var Nil = Value{kind: KindNil}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps an IEEE-754 double.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// NewObj wraps a heap object reference.
func NewObj(o Obj) Value { return Value{kind: KindObj, obj: o} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNil() bool  { return v.kind == KindNil }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsNumber() bool {
	return v.kind == KindNumber
}
func (v Value) IsObj() bool { return v.kind == KindObj }

// AsBool returns false if v is not a bool rather than panicking; callers
// must check IsBool first, the same contract the VM's type-checked opcodes
// rely on.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns 0 if v is not a number; callers check IsNumber first.
func (v Value) AsNumber() float64 { return v.num }

// AsObj returns nil if v is not an object; callers check IsObj first.
func (v Value) AsObj() Obj { return v.obj }

// ObjKindOf reports the concrete object kind, or false if v is not an object.
func (v Value) ObjKindOf() (ObjKind, bool) {
	if v.kind != KindObj {
		return 0, false
	}
	return v.obj.ObjKind(), true
}

// Is reports whether v is an object of the given kind.
func (v Value) Is(k ObjKind) bool {
	ok, present := v.ObjKindOf()
	return present && ok == k
}

// Truthy implements Laythe's truthiness rule: false and nil are falsy,
// everything else (including 0 and "") is truthy.
func Truthy(v Value) bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

// Equal implements Laythe's total, never-failing equality. Numbers compare
// by IEEE equality (so NaN != NaN); objects of kind string compare by
// content; every other object kind compares by identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindObj:
		if as, ok := a.obj.(StringLike); ok {
			if bs, ok := b.obj.(StringLike); ok {
				return as.RawString() == bs.RawString()
			}
			return false
		}
		return a.obj == b.obj
	default:
		return false
	}
}

// IsNaN is a convenience wrapper around math.IsNaN. The constant pool does
// not use it: pkg/bytecode dedupes numeric constants by bit pattern
// (math.Float64bits) rather than by == (which would merge 0 and -0 but not
// dedupe NaN against NaN).
func IsNaN(n float64) bool { return math.IsNaN(n) }
