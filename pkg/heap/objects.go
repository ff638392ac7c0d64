// Package heap implements Laythe's managed object model: strings, lists,
// maps, closures, upvalues, classes, instances, bound methods, natives,
// and iterators, all GC-tracked by an intrusive mark-sweep Heap.
//
// This is the direct descendant of the teacher's object model — where
// kristofer/smog represented a running object as a
// *bytecode.ClassDefinition plus an Instance{Class, Fields} pair living
// entirely inside the VM package (see vm.go's Instance type and
// vm.classes registry) — generalized into first-class, independently
// collectible heap objects per spec.md §3, because Laythe's closures,
// upvalues, and cyclic class/instance graphs need a real tracing
// collector, not a VM-private map.
package heap

import (
	"fmt"
	"strings"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"

	"github.com/kristofer/laythe/pkg/bytecode"
	"github.com/kristofer/laythe/pkg/value"
)

// String is an immutable, interned byte sequence with a cached hash.
type String struct {
	header value.Header
	Chars  string
	Hash   uint64
}

func (s *String) Header() *value.Header  { return &s.header }
func (s *String) ObjKind() value.ObjKind  { return value.KindString }
func (s *String) RawString() string       { return s.Chars }

// List is an ordered, growable sequence of values.
type List struct {
	header value.Header
	Items  []value.Value
}

func (l *List) Header() *value.Header { return &l.header }
func (l *List) ObjKind() value.ObjKind { return value.KindList }

// mapEntry preserves insertion order for deterministic disassembly/printing
// while the underlying lookup stays O(1) via the swiss-table index.
type mapEntry struct {
	key   value.Value
	val   value.Value
	alive bool
}

// Map stores Value->Value associations for hashable keys (string, number,
// bool, nil per spec.md §3). Lookup is backed by a swiss.Map keyed by a
// canonical string encoding of the key (see mapKey), the same open
// addressing structure mna-nenuphar uses for its hot string-keyed tables.
type Map struct {
	header  value.Header
	index   *swiss.Map[string, int]
	entries []mapEntry
}

func NewMap() *Map {
	return &Map{index: swiss.NewMap[string, int](8)}
}

func (m *Map) Header() *value.Header { return &m.header }
func (m *Map) ObjKind() value.ObjKind { return value.KindMap }

// mapKey canonicalizes a hashable value to a string so it can key the
// swiss-table index. Unhashable kinds (lists, maps, instances, ...) are
// the caller's concern to reject before calling Set/Get.
func mapKey(v value.Value) (string, bool) {
	switch {
	case v.IsNil():
		return "n:", true
	case v.IsBool():
		if v.AsBool() {
			return "b:t", true
		}
		return "b:f", true
	case v.IsNumber():
		return fmt.Sprintf("f:%x", v.AsNumber()), true
	case v.IsObj():
		if s, ok := v.AsObj().(value.StringLike); ok {
			return "s:" + s.RawString(), true
		}
	}
	return "", false
}

// Set inserts or overwrites the value for key. ok is false if key isn't a
// hashable kind.
func (m *Map) Set(key, val value.Value) bool {
	k, ok := mapKey(key)
	if !ok {
		return false
	}
	if idx, found := m.index.Get(k); found {
		m.entries[idx] = mapEntry{key: key, val: val, alive: true}
		return true
	}
	idx := len(m.entries)
	m.entries = append(m.entries, mapEntry{key: key, val: val, alive: true})
	m.index.Put(k, idx)
	return true
}

// Get looks up key, returning (value, true) on a hit.
func (m *Map) Get(key value.Value) (value.Value, bool) {
	k, ok := mapKey(key)
	if !ok {
		return value.Nil, false
	}
	idx, found := m.index.Get(k)
	if !found || !m.entries[idx].alive {
		return value.Nil, false
	}
	return m.entries[idx].val, true
}

// Remove deletes key, returning (the removed value, true) on a hit.
func (m *Map) Remove(key value.Value) (value.Value, bool) {
	k, ok := mapKey(key)
	if !ok {
		return value.Nil, false
	}
	idx, found := m.index.Get(k)
	if !found || !m.entries[idx].alive {
		return value.Nil, false
	}
	old := m.entries[idx].val
	m.entries[idx].alive = false
	m.index.Delete(k)
	return old, true
}

// Size reports the number of live entries.
func (m *Map) Size() int {
	n := 0
	for _, e := range m.entries {
		if e.alive {
			n++
		}
	}
	return n
}

// Each calls fn for every live entry, in insertion order. Map iteration
// order is unspecified per spec.md §5, but a deterministic order makes
// tests reproducible; callers must not rely on it reflecting insertion
// order across Remove calls.
func (m *Map) Each(fn func(key, val value.Value)) {
	for _, e := range m.entries {
		if e.alive {
			fn(e.key, e.val)
		}
	}
}

// Upvalue is either open (aliasing a live stack slot) or closed (owning
// its own copy of the value). Spec.md §3/§9: open upvalues form a
// stack-address-sorted linked list (one per VM, spanning all frames) so
// closing one can walk exactly the suffix above the exiting scope.
type Upvalue struct {
	header value.Header

	// While open, StackIndex records which stack slot the upvalue aliases
	// (the VM's stack is reallocation-safe only by index, per
	// spec.md §9, so Upvalue never holds a raw pointer into the stack).
	StackIndex int
	Closed     value.Value
	IsClosed   bool
	NextOpen   *Upvalue // intrusive open-upvalue list, sorted by StackIndex desc
}

func (u *Upvalue) Header() *value.Header { return &u.header }
func (u *Upvalue) ObjKind() value.ObjKind { return value.KindUpvalue }

// Get reads the upvalue's current value given the stack it may still be
// open against.
func (u *Upvalue) Get(stack []value.Value) value.Value {
	if u.IsClosed {
		return u.Closed
	}
	return stack[u.StackIndex]
}

// Set writes through to the live stack slot while open, or to the owned
// value once closed.
func (u *Upvalue) Set(stack []value.Value, v value.Value) {
	if u.IsClosed {
		u.Closed = v
		return
	}
	stack[u.StackIndex] = v
}

// Close detaches the upvalue from the stack, copying out its current
// value so it survives the frame that owned the slot returning.
func (u *Upvalue) Close(stack []value.Value) {
	u.Closed = stack[u.StackIndex]
	u.IsClosed = true
	u.NextOpen = nil
}

// Closure pairs a function prototype with the upvalue cells it captured.
type Closure struct {
	header value.Header

	Proto    *bytecode.FunctionProto
	Upvalues []*Upvalue
}

func (c *Closure) Header() *value.Header { return &c.header }
func (c *Closure) ObjKind() value.ObjKind { return value.KindClosure }

// Class is a method table (string selector -> Closure) plus optional
// superclass and a cached init closure for fast construction. Per
// spec.md §4.3/§9, inheritance is copy-down: Methods already contains the
// superclass's methods at the moment OP_INHERIT ran, so later reassigning
// the superclass's global binding can't retroactively change dispatch.
type Class struct {
	header value.Header

	Name       string
	Super      *Class // kept for introspection only; dispatch never walks it
	Methods    *swiss.Map[string, *Closure]
	Init       *Closure
	FieldOrder []string // declared field names, for debug/printing only
}

func NewClass(name string) *Class {
	return &Class{Name: name, Methods: swiss.NewMap[string, *Closure](8)}
}

func (c *Class) Header() *value.Header { return &c.header }
func (c *Class) ObjKind() value.ObjKind { return value.KindClass }

// Inherit copies every method of super into c's method table (copy-down
// inheritance) and carries over its cached init closure if c doesn't
// declare its own by the time this runs (the compiler calls Inherit
// before compiling c's own methods, so OpMethod naturally overwrites it).
func (c *Class) Inherit(super *Class) {
	c.Super = super
	super.Methods.Iter(func(name string, fn *Closure) bool {
		c.Methods.Put(name, fn)
		return false
	})
	c.Init = super.Init
}

// SetMethod installs a method, caching it as the constructor if selector
// is "init".
func (c *Class) SetMethod(selector string, fn *Closure) {
	c.Methods.Put(selector, fn)
	if selector == "init" {
		c.Init = fn
	}
}

// Instance is a live object: an immutable class pointer and a mutable
// field table.
type Instance struct {
	header value.Header

	Class  *Class
	Fields *swiss.Map[string, value.Value]

	// Inline cache slot for the single GET_PROPERTY/INVOKE call site
	// that last touched this instance is stored on the call site itself
	// (see pkg/vm's cache type), not here — spec.md §4.5 caches key on the
	// receiver's *Class, not the instance.
}

func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: swiss.NewMap[string, value.Value](4)}
}

func (i *Instance) Header() *value.Header { return &i.header }
func (i *Instance) ObjKind() value.ObjKind { return value.KindInstance }

// BoundMethod pairs a receiver with an unbound closure; calling it rebinds
// self to Receiver.
type BoundMethod struct {
	header value.Header

	Receiver value.Value
	Method   *Closure
}

func (b *BoundMethod) Header() *value.Header { return &b.header }
func (b *BoundMethod) ObjKind() value.ObjKind { return value.KindBoundMethod }

// NativeFn is a host routine backing a NativeFunction. It receives the
// interning/allocation heap (so natives can build strings/lists/etc.) and
// its arguments, and returns a result or a runtime error message.
type NativeFn func(h *Heap, args []value.Value) (value.Value, error)

// Native wraps a host function as a callable Laythe value.
type Native struct {
	header value.Header

	Name  string
	Arity int // -1 means variadic
	Fn    NativeFn
}

func (n *Native) Header() *value.Header { return &n.header }
func (n *Native) ObjKind() value.ObjKind { return value.KindNative }

// IteratorSource is implemented by anything a `for x in e` loop can drive:
// List, Map, String, and number Range iterators all implement it.
type IteratorSource interface {
	// Next advances the iterator, returning true if it produced a value
	// (now available via Current), or false once exhausted.
	Next() bool
	Current() value.Value
}

// rootedSource is implemented by an IteratorSource that snapshots
// heap-reachable values out of their original container (listIterator's
// items, mapIterator's keys). A for-in loop's desugaring keeps only the
// `@iter` local live on the stack — the list/map expression it was built
// from is gone — so without this the GC has no way to reach the snapshot
// other than through the Iterator itself. stringIterator and
// numberRangeIterator hold no value.Value references (a Go string and two
// int64s), so they don't need to implement this.
type rootedSource interface {
	markSource(mark func(value.Value))
}

// Iterator is the heap object `for x in e` protocol binds to: e.iter()
// must return one of these. Per spec.md §3/§8, Current is nil before the
// first successful Next, and copying an Iterator value shares its state
// (it's a heap object referenced by pointer, so this falls out for free).
type Iterator struct {
	header value.Header

	Source  IteratorSource
	current value.Value
	started bool
}

func NewIterator(src IteratorSource) *Iterator {
	return &Iterator{Source: src, current: value.Nil}
}

func (it *Iterator) Header() *value.Header { return &it.header }
func (it *Iterator) ObjKind() value.ObjKind { return value.KindIterator }

// Next advances the underlying source and updates Current.
func (it *Iterator) Next() bool {
	it.started = true
	if it.Source.Next() {
		it.current = it.Source.Current()
		return true
	}
	it.current = value.Nil
	return false
}

// Current is nil before the first successful Next, matching spec.md §3.
func (it *Iterator) Current() value.Value { return it.current }

// listIterator walks a List's elements in order; it snapshots the slice
// header at creation time, same semantics clox-family lists use (mutating
// the list mid-iteration is undefined, not a crash).
type listIterator struct {
	items []value.Value
	idx   int
}

func (li *listIterator) Next() bool {
	if li.idx >= len(li.items) {
		return false
	}
	li.idx++
	return true
}
func (li *listIterator) Current() value.Value { return li.items[li.idx-1] }

func (li *listIterator) markSource(mark func(value.Value)) {
	for _, item := range li.items {
		mark(item)
	}
}

// Iter builds the iterator `[...].iter()` returns.
func (l *List) Iter() *Iterator { return NewIterator(&listIterator{items: l.Items}) }

// stringIterator yields one-character strings, matching native method
// `len`/indexing semantics elsewhere (byte-oriented, not rune-oriented —
// Unicode segmentation is an explicit non-goal per spec.md §1).
type stringIterator struct {
	h     *Heap
	chars string
	idx   int
}

func (si *stringIterator) Next() bool {
	if si.idx >= len(si.chars) {
		return false
	}
	si.idx++
	return true
}
func (si *stringIterator) Current() value.Value {
	return value.NewObj(si.h.InternString(string(si.chars[si.idx-1])))
}

// StringIter builds the iterator `"...".iter()` returns.
func (h *Heap) StringIter(s *String) *Iterator {
	return NewIterator(&stringIterator{h: h, chars: s.Chars})
}

// numberRangeIterator backs the `n.times()` native (spec.md §9 open
// question): an iterator over the half-open range [0, n).
type numberRangeIterator struct {
	n   int64
	cur int64
}

func (ri *numberRangeIterator) Next() bool {
	if ri.cur >= ri.n {
		return false
	}
	ri.cur++
	return true
}
func (ri *numberRangeIterator) Current() value.Value { return value.Number(float64(ri.cur - 1)) }

// TimesIterator builds the iterator `n.times()` returns.
func TimesIterator(n int64) *Iterator {
	if n < 0 {
		n = 0
	}
	return NewIterator(&numberRangeIterator{n: n})
}

// mapIterator yields each live key in a Map's insertion order.
type mapIterator struct {
	keys []value.Value
	idx  int
}

func (mi *mapIterator) Next() bool {
	if mi.idx >= len(mi.keys) {
		return false
	}
	mi.idx++
	return true
}
func (mi *mapIterator) Current() value.Value { return mi.keys[mi.idx-1] }

func (mi *mapIterator) markSource(mark func(value.Value)) {
	for _, k := range mi.keys {
		mark(k)
	}
}

// Iter builds the iterator `{...}.iter()` returns, over keys.
func (m *Map) Iter() *Iterator {
	keys := make([]value.Value, 0, len(m.entries))
	m.Each(func(k, _ value.Value) { keys = append(keys, k) })
	return NewIterator(&mapIterator{keys: keys})
}

// Display renders v in Laythe's canonical textual form (spec.md §4.1):
// numbers without a trailing decimal when integral, bare nil/true/false,
// unquoted strings, bracketed lists, and the class/instance/function tags
// the spec names.
func Display(v value.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v.IsObj():
		return displayObj(v.AsObj())
	default:
		return "<unknown>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", n), "0"), ".")
}

func displayObj(o value.Obj) string {
	switch v := o.(type) {
	case *String:
		return v.Chars
	case *List:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = Display(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Map:
		keys := make([]string, 0, len(v.entries))
		rendered := make(map[string]string, len(v.entries))
		v.Each(func(k, val value.Value) {
			rk := Display(k)
			keys = append(keys, rk)
			rendered[rk] = rk + ": " + Display(val)
		})
		slices.Sort(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = rendered[k]
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Class:
		return fmt.Sprintf("<class %s>", v.Name)
	case *Instance:
		return fmt.Sprintf("<%s instance>", v.Class.Name)
	case *bytecode.FunctionProto:
		return fmt.Sprintf("<fn %s>", v.DisplayName())
	case *Closure:
		return fmt.Sprintf("<fn %s>", v.Proto.DisplayName())
	case *BoundMethod:
		return fmt.Sprintf("<fn %s>", v.Method.Proto.DisplayName())
	case *Native:
		return fmt.Sprintf("<native fn %s>", v.Name)
	case *Iterator:
		return "<iterator>"
	default:
		return "<object>"
	}
}
