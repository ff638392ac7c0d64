// Heap owns every Laythe object's lifetime: allocation, the
// allocated-bytes heuristic that triggers collection, and the tracing
// mark-sweep collector itself (spec.md §5). It generalizes the teacher's
// VM-embedded `classes map[string]*bytecode.ClassDefinition` registry
// (kristofer/smog's vm.go) into a real collectible heap because Laythe's
// object graph — closures capturing upvalues capturing closures, classes
// holding methods holding closures holding classes — is cyclic in ways
// smog's flat class table never had to cope with.
package heap

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/google/uuid"

	"github.com/kristofer/laythe/pkg/bytecode"
	"github.com/kristofer/laythe/pkg/value"
)

// RootMarker is implemented by anything that can contribute GC roots: the
// VM (stack, frames, open upvalues, globals) and, while a compile is in
// progress, every enclosing compiler.fnCompiler in the chain (spec.md §5:
// "If compilation is in progress, all enclosing compiler functions are
// also roots").
type RootMarker interface {
	MarkRoots(mark func(value.Value))
}

// Heap is the mark-sweep collector plus allocator for every Laythe object.
type Heap struct {
	// ID distinguishes one heap instance from another in -gc-trace output,
	// useful once a test harness or embedder runs several VMs side by side.
	ID string

	objects value.Obj // head of the intrusive allocation list

	bytesAllocated int64
	nextGC         int64
	growthFactor   float64
	stressGC       bool

	strings *swiss.Map[string, *String]

	vmRoot        RootMarker
	compilerRoots []RootMarker

	grayStack []value.Obj

	// InitSelector is the cached "init" string the GC must always treat as
	// a root (spec.md §5), since every Class construction looks it up.
	InitSelector *String

	// Trace, if non-nil, receives a one-line message per collection —
	// wired to the `--gc-trace` flag (or `gc_trace` in laythe.yaml) by
	// internal/maincmd's newHeap.
	Trace func(format string, args ...interface{})

	Stats Stats
}

// Stats tracks cumulative collector behavior, surfaced by `-gc-trace` and
// by the stress-GC test harness.
type Stats struct {
	Collections    int
	ObjectsFreed   int
	BytesCollected int64
}

const defaultNextGC = 1 << 20 // 1 MiB, matches the clox-family default

// NewHeap creates an empty heap. growthFactor defaults to 2.0 (the
// heuristic spec.md §5 names) when 0 is passed.
func NewHeap(growthFactor float64) *Heap {
	if growthFactor <= 1 {
		growthFactor = 2.0
	}
	h := &Heap{
		ID:           uuid.NewString(),
		nextGC:       defaultNextGC,
		growthFactor: growthFactor,
		strings:      swiss.NewMap[string, *String](64),
	}
	h.InitSelector = h.InternString("init")
	return h
}

// SetVMRoot registers the VM as the heap's primary root source. Called
// once, when the VM constructs its Heap.
func (h *Heap) SetVMRoot(vm RootMarker) { h.vmRoot = vm }

// PushCompilerRoot registers an active compiler as a GC root, so that
// objects referenced only from an in-progress compile (a nested function
// under construction, constants not yet attached to any chunk) survive a
// collection triggered mid-compile.
func (h *Heap) PushCompilerRoot(c RootMarker) { h.compilerRoots = append(h.compilerRoots, c) }

// PopCompilerRoot unregisters the most recently pushed compiler root,
// called when a nested function finishes compiling.
func (h *Heap) PopCompilerRoot() {
	if len(h.compilerRoots) > 0 {
		h.compilerRoots = h.compilerRoots[:len(h.compilerRoots)-1]
	}
}

// SetStressGC, when enabled, collects on every single allocation rather
// than waiting for the byte threshold — used to drive Testable Property
// 10 (GC never reclaims a stack-reachable object).
func (h *Heap) SetStressGC(on bool) { h.stressGC = on }

func sizeOf(o value.Obj) int64 {
	switch v := o.(type) {
	case *String:
		return int64(len(v.Chars)) + 32
	case *List:
		return int64(len(v.Items))*16 + 32
	case *Map:
		return int64(len(v.entries))*32 + 32
	case *bytecode.FunctionProto:
		return int64(len(v.Chunk.Code))*16 + 64
	case *Closure:
		return int64(len(v.Upvalues))*8 + 32
	case *Upvalue:
		return 24
	case *Class:
		return 64
	case *Instance:
		return 48
	case *BoundMethod:
		return 32
	case *Native:
		return 32
	case *Iterator:
		return 24
	default:
		return 16
	}
}

// track links a freshly allocated object into the intrusive list and
// charges its size against the allocation heuristic, collecting first if
// the heap is in stress mode or has crossed nextGC.
func (h *Heap) track(o value.Obj) {
	size := sizeOf(o)
	if h.stressGC {
		h.Collect()
	} else if h.bytesAllocated+size > h.nextGC {
		h.Collect()
	}
	o.Header().Next = h.objects
	h.objects = o
	h.bytesAllocated += size
}

// InternString returns the heap's single String object for s, allocating
// one only on first sight (spec.md §3: "interning not required but
// equality is structural" — we intern anyway, since it makes Map keys and
// Equal both cheap pointer/string compares).
func (h *Heap) InternString(s string) *String {
	if existing, ok := h.strings.Get(s); ok {
		return existing
	}
	str := &String{Chars: s, Hash: fnv1a(s)}
	h.strings.Put(s, str)
	h.track(str)
	return str
}

func fnv1a(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	var h uint64 = offset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// NewList allocates a list seeded with items (which may be nil/empty).
func (h *Heap) NewList(items []value.Value) *List {
	l := &List{Items: items}
	h.track(l)
	return l
}

// NewMap allocates an empty map.
func (h *Heap) NewMap() *Map {
	m := NewMap()
	h.track(m)
	return m
}

// NewFunction allocates a function prototype. The compiler calls this for
// every `fn` it finishes compiling, including the implicit top-level
// script function.
func (h *Heap) NewFunction(name string, arity int) *bytecode.FunctionProto {
	fn := bytecode.NewFunctionProto(name, arity)
	h.track(fn)
	return fn
}

// NewClosure allocates a closure over proto with upvalCount empty upvalue
// slots, filled in by the VM's OpClosure handler.
func (h *Heap) NewClosure(proto *bytecode.FunctionProto) *Closure {
	c := &Closure{Proto: proto, Upvalues: make([]*Upvalue, proto.UpvalueCount)}
	h.track(c)
	return c
}

// NewUpvalue allocates an open upvalue over the given stack slot.
func (h *Heap) NewUpvalue(stackIndex int) *Upvalue {
	u := &Upvalue{StackIndex: stackIndex}
	h.track(u)
	return u
}

// NewClass allocates an empty class named name.
func (h *Heap) NewClass(name string) *Class {
	c := NewClass(name)
	h.track(c)
	return c
}

// NewInstance allocates a fresh instance of class.
func (h *Heap) NewInstance(class *Class) *Instance {
	i := NewInstance(class)
	h.track(i)
	return i
}

// NewBoundMethod allocates a receiver+closure pair.
func (h *Heap) NewBoundMethod(receiver value.Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.track(b)
	return b
}

// NewNative allocates a native function wrapper.
func (h *Heap) NewNative(name string, arity int, fn NativeFn) *Native {
	n := &Native{Name: name, Arity: arity, Fn: fn}
	h.track(n)
	return n
}

// NewIteratorObj allocates an Iterator over src.
func (h *Heap) NewIteratorObj(src IteratorSource) *Iterator {
	it := NewIterator(src)
	h.track(it)
	return it
}

// LoadFunction finalizes a FunctionProto produced by bytecode.Decode: its
// string constants arrive as bare Go strings (format.go's rawString
// carrier) because Decode has no heap to intern into. This walks the
// constant pool — recursing into nested function constants — replacing
// each with a heap-interned String, the same way the teacher's
// `disassembleFile`/`runFile` pipeline immediately re-hydrates a decoded
// *bytecode.Bytecode before handing it to the VM.
func (h *Heap) LoadFunction(fn *bytecode.FunctionProto) *bytecode.FunctionProto {
	h.track(fn)
	for i, c := range fn.Chunk.Constants {
		if s, ok := bytecode.RawStringConstant(c); ok {
			fn.Chunk.Constants[i] = value.NewObj(h.InternString(s))
			continue
		}
		if c.IsObj() {
			if nested, ok := c.AsObj().(*bytecode.FunctionProto); ok {
				fn.Chunk.Constants[i] = value.NewObj(h.LoadFunction(nested))
			}
		}
	}
	return fn
}

// Collect runs one full mark-sweep cycle: mark roots, blacken the gray
// worklist, sweep the intrusive object list (spec.md §5 steps 1-3).
func (h *Heap) Collect() {
	h.Stats.Collections++
	before := h.bytesAllocated

	if h.vmRoot != nil {
		h.vmRoot.MarkRoots(h.markValue)
	}
	for _, root := range h.compilerRoots {
		root.MarkRoots(h.markValue)
	}
	h.markObject(h.InitSelector)

	for len(h.grayStack) > 0 {
		n := len(h.grayStack) - 1
		obj := h.grayStack[n]
		h.grayStack = h.grayStack[:n]
		h.blacken(obj)
	}

	freed := h.sweep()
	h.nextGC = int64(float64(h.bytesAllocated) * h.growthFactor)
	if h.nextGC < defaultNextGC {
		h.nextGC = defaultNextGC
	}

	h.Stats.ObjectsFreed += freed
	h.Stats.BytesCollected += before - h.bytesAllocated
	if h.Trace != nil {
		h.Trace("gc[%s]: collected %d objects, %d -> %d bytes, next at %d",
			h.ID[:8], freed, before, h.bytesAllocated, h.nextGC)
	}
}

func (h *Heap) markValue(v value.Value) {
	if v.IsObj() {
		h.markObject(v.AsObj())
	}
}

func (h *Heap) markObject(o value.Obj) {
	if o == nil {
		return
	}
	hdr := o.Header()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	h.grayStack = append(h.grayStack, o)
}

// blacken marks every value an object directly references.
func (h *Heap) blacken(o value.Obj) {
	switch v := o.(type) {
	case *String:
		// no references
	case *List:
		for _, item := range v.Items {
			h.markValue(item)
		}
	case *Map:
		for _, e := range v.entries {
			if e.alive {
				h.markValue(e.key)
				h.markValue(e.val)
			}
		}
	case *bytecode.FunctionProto:
		for _, c := range v.Chunk.Constants {
			h.markValue(c)
		}
	case *Closure:
		h.markObject(v.Proto)
		for _, u := range v.Upvalues {
			h.markObject(u)
		}
	case *Upvalue:
		if v.IsClosed {
			h.markValue(v.Closed)
		}
	case *Class:
		if v.Super != nil {
			h.markObject(v.Super)
		}
		v.Methods.Iter(func(_ string, fn *Closure) bool {
			h.markObject(fn)
			return false
		})
		if v.Init != nil {
			h.markObject(v.Init)
		}
	case *Instance:
		h.markObject(v.Class)
		v.Fields.Iter(func(_ string, val value.Value) bool {
			h.markValue(val)
			return false
		})
	case *BoundMethod:
		h.markValue(v.Receiver)
		h.markObject(v.Method)
	case *Native:
		// no object references beyond its name, which is a plain string
	case *Iterator:
		h.markValue(v.current)
		if rooted, ok := v.Source.(rootedSource); ok {
			rooted.markSource(h.markValue)
		}
	default:
		panic(fmt.Sprintf("heap: blacken: unhandled object kind %T", o))
	}
}

// sweep frees every unmarked object and clears the mark bit on survivors,
// returning the number of objects freed.
func (h *Heap) sweep() int {
	var prev value.Obj
	obj := h.objects
	freed := 0
	for obj != nil {
		hdr := obj.Header()
		next := hdr.Next
		if hdr.Marked {
			hdr.Marked = false
			prev = obj
		} else {
			if prev != nil {
				prev.Header().Next = next
			} else {
				h.objects = next
			}
			h.bytesAllocated -= sizeOf(obj)
			if s, ok := obj.(*String); ok {
				h.strings.Delete(s.Chars)
			}
			freed++
		}
		obj = next
	}
	return freed
}
