// Package vm implements the bytecode virtual machine for Laythe.
//
// The VM is a stack-based interpreter, the final stage of the pipeline:
//
//   Source -> Lexer -> Compiler (parses and emits bytecode in one pass) -> VM -> Execution
//
// This generalizes the teacher's VM (kristofer/smog's pkg/vm/vm.go) from a
// flat value stack plus a single fixed-size locals array into a proper
// call-frame stack, because Laythe has actual recursive function calls and
// closures where smog's send()-dispatch model never needed to save and
// restore an instruction pointer per call. The bookkeeping smog's VM
// struct names — a value stack, a globals table, a call stack for
// diagnostics, a current instruction pointer — all reappear here, just
// spread across per-frame state instead of living flat on the VM.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/dolthub/swiss"

	"github.com/kristofer/laythe/pkg/bytecode"
	"github.com/kristofer/laythe/pkg/heap"
	"github.com/kristofer/laythe/pkg/natives"
	"github.com/kristofer/laythe/pkg/value"
)

const maxFrames = 256

// frame is one live call's execution state: which closure is running, its
// instruction pointer, and the stack index its local slot 0 sits at.
type frame struct {
	closure *heap.Closure
	ip      int
	base    int
}

// VM owns the value stack, the call-frame stack, the global table, and a
// reference to the heap it allocates through. It implements
// heap.RootMarker so a collection triggered mid-execution can see
// everything reachable from a running program.
type VM struct {
	stack  []value.Value
	frames []frame

	globals *swiss.Map[string, value.Value]
	heap    *heap.Heap

	openUpvalues *heap.Upvalue
	caches       map[cacheKey]*methodCache

	Stdout io.Writer
}

// New creates a VM bound to h, with the ambient natives (spec.md §6: clock,
// assert, assertEq, assertNe) pre-registered as globals.
func New(h *heap.Heap) *VM {
	vm := &VM{
		heap:    h,
		globals: swiss.NewMap[string, value.Value](32),
		caches:  make(map[cacheKey]*methodCache),
		Stdout:  os.Stdout,
	}
	h.SetVMRoot(vm)
	for name, v := range natives.Globals(h) {
		vm.globals.Put(name, v)
	}
	return vm
}

// Interpret runs a compiled script function to completion, returning the
// script's return value. A compiled top-level script always returns nil
// (expression statements discard their values), and neither `run` nor the
// REPL uses it.
func (vm *VM) Interpret(fn *bytecode.FunctionProto) (value.Value, error) {
	closure := vm.heap.NewClosure(fn)
	base := len(vm.stack)
	vm.push(value.NewObj(closure))
	vm.frames = append(vm.frames, frame{closure: closure, base: base})
	return vm.run()
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func constString(chunk *bytecode.Chunk, idx int) string {
	return chunk.Constants[idx].AsObj().(value.StringLike).RawString()
}

// run is the main bytecode dispatch loop.
func (vm *VM) run() (value.Value, error) {
	for {
		f := &vm.frames[len(vm.frames)-1]
		chunk := f.closure.Proto.Chunk
		if f.ip >= len(chunk.Code) {
			return value.Nil, vm.runtimeError("function %q fell off the end of its bytecode without returning", f.closure.Proto.DisplayName())
		}
		ip := f.ip
		inst := chunk.Code[ip]
		f.ip++

		switch inst.Op {
		case bytecode.OpConstant:
			vm.push(chunk.Constants[inst.Operand])
		case bytecode.OpNil:
			vm.push(value.Nil)
		case bytecode.OpTrue:
			vm.push(value.Bool(true))
		case bytecode.OpFalse:
			vm.push(value.Bool(false))
		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpDup:
			vm.push(vm.peek(0))

		case bytecode.OpGetLocal:
			vm.push(vm.stack[f.base+inst.Operand])
		case bytecode.OpSetLocal:
			vm.stack[f.base+inst.Operand] = vm.peek(0)
		case bytecode.OpDefineGlobal:
			vm.globals.Put(constString(chunk, inst.Operand), vm.pop())
		case bytecode.OpGetGlobal:
			name := constString(chunk, inst.Operand)
			v, ok := vm.globals.Get(name)
			if !ok {
				return value.Nil, vm.runtimeError("undefined variable %q", name)
			}
			vm.push(v)
		case bytecode.OpSetGlobal:
			name := constString(chunk, inst.Operand)
			if _, ok := vm.globals.Get(name); !ok {
				return value.Nil, vm.runtimeError("undefined variable %q", name)
			}
			vm.globals.Put(name, vm.peek(0))

		case bytecode.OpGetUpvalue:
			vm.push(f.closure.Upvalues[inst.Operand].Get(vm.stack))
		case bytecode.OpSetUpvalue:
			f.closure.Upvalues[inst.Operand].Set(vm.stack, vm.peek(0))
		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case bytecode.OpAdd:
			if err := vm.add(); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSubtract:
			if err := vm.numericBinary(func(a, b float64) float64 { return a - b }); err != nil {
				return value.Nil, err
			}
		case bytecode.OpMultiply:
			if err := vm.numericBinary(func(a, b float64) float64 { return a * b }); err != nil {
				return value.Nil, err
			}
		case bytecode.OpDivide:
			if err := vm.numericBinary(func(a, b float64) float64 { return a / b }); err != nil {
				return value.Nil, err
			}
		case bytecode.OpModulo:
			if err := vm.modulo(); err != nil {
				return value.Nil, err
			}
		case bytecode.OpNegate:
			v := vm.pop()
			if !v.IsNumber() {
				return value.Nil, vm.runtimeError("operand must be a number")
			}
			vm.push(value.Number(-v.AsNumber()))
		case bytecode.OpNot:
			vm.push(value.Bool(!value.Truthy(vm.pop())))
		case bytecode.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case bytecode.OpLess:
			if err := vm.comparison(func(a, b float64) bool { return a < b }); err != nil {
				return value.Nil, err
			}
		case bytecode.OpLessEqual:
			if err := vm.comparison(func(a, b float64) bool { return a <= b }); err != nil {
				return value.Nil, err
			}
		case bytecode.OpGreater:
			if err := vm.comparison(func(a, b float64) bool { return a > b }); err != nil {
				return value.Nil, err
			}
		case bytecode.OpGreaterEqual:
			if err := vm.comparison(func(a, b float64) bool { return a >= b }); err != nil {
				return value.Nil, err
			}

		case bytecode.OpJump:
			f.ip = inst.Operand
		case bytecode.OpJumpIfFalse:
			if !value.Truthy(vm.peek(0)) {
				f.ip = inst.Operand
			}
		case bytecode.OpLoop:
			f.ip = inst.Operand

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(f.base)
			vm.frames = vm.frames[:len(vm.frames)-1]
			vm.stack = vm.stack[:f.base]
			if len(vm.frames) == 0 {
				return result, nil
			}
			vm.push(result)

		case bytecode.OpCall:
			argc := inst.Operand
			callee := vm.peek(argc)
			if err := vm.callValue(callee, argc); err != nil {
				return value.Nil, err
			}
		case bytecode.OpInvoke:
			nameIdx, argc := bytecode.UnpackInvoke(inst.Operand)
			if err := vm.invoke(chunk, ip, constString(chunk, nameIdx), argc); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSuperInvoke:
			nameIdx, argc := bytecode.UnpackInvoke(inst.Operand)
			if err := vm.superInvoke(chunk, ip, constString(chunk, nameIdx), argc); err != nil {
				return value.Nil, err
			}

		case bytecode.OpGetProperty:
			if err := vm.getProperty(chunk, ip, constString(chunk, inst.Operand)); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSetProperty:
			if err := vm.setProperty(constString(chunk, inst.Operand)); err != nil {
				return value.Nil, err
			}
		case bytecode.OpGetSuper:
			if err := vm.getSuper(chunk, ip, constString(chunk, inst.Operand)); err != nil {
				return value.Nil, err
			}

		case bytecode.OpClass:
			vm.push(value.NewObj(vm.heap.NewClass(constString(chunk, inst.Operand))))
		case bytecode.OpInherit:
			if err := vm.inherit(); err != nil {
				return value.Nil, err
			}
		case bytecode.OpMethod:
			vm.defineMethod(constString(chunk, inst.Operand))

		case bytecode.OpClosure:
			vm.makeClosure(f, chunk.Constants[inst.Operand])

		case bytecode.OpList:
			vm.makeList(inst.Operand)
		case bytecode.OpMap:
			vm.makeMap(inst.Operand)
		case bytecode.OpIndexGet:
			idx, recv := vm.pop(), vm.pop()
			v, err := vm.indexGet(recv, idx)
			if err != nil {
				return value.Nil, vm.runtimeError("%s", err.Error())
			}
			vm.push(v)
		case bytecode.OpIndexSet:
			val, idx, recv := vm.pop(), vm.pop(), vm.pop()
			v, err := vm.indexSet(recv, idx, val)
			if err != nil {
				return value.Nil, vm.runtimeError("%s", err.Error())
			}
			vm.push(v)

		case bytecode.OpPrint:
			fmt.Fprintln(vm.Stdout, heap.Display(vm.pop()))

		default:
			return value.Nil, vm.runtimeError("unhandled opcode %s", inst.Op)
		}
	}
}

func (vm *VM) add() error {
	b, a := vm.pop(), vm.pop()
	if a.IsNumber() && b.IsNumber() {
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
		return nil
	}
	as, aok := asStringLike(a)
	bs, bok := asStringLike(b)
	if aok && bok {
		vm.push(value.NewObj(vm.heap.InternString(as + bs)))
		return nil
	}
	return vm.runtimeError("operands must be two numbers or two strings")
}

func asStringLike(v value.Value) (string, bool) {
	if !v.IsObj() {
		return "", false
	}
	s, ok := v.AsObj().(value.StringLike)
	if !ok {
		return "", false
	}
	return s.RawString(), true
}

func (vm *VM) numericBinary(fn func(a, b float64) float64) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	vm.push(value.Number(fn(a.AsNumber(), b.AsNumber())))
	return nil
}

func (vm *VM) modulo() error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	bn := b.AsNumber()
	if bn == 0 {
		return vm.runtimeError("modulo by zero")
	}
	an := a.AsNumber()
	m := an - bn*float64(int64(an/bn))
	vm.push(value.Number(m))
	return nil
}

func (vm *VM) comparison(fn func(a, b float64) bool) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	vm.push(value.Bool(fn(a.AsNumber(), b.AsNumber())))
	return nil
}

func (vm *VM) makeClosure(f *frame, constant value.Value) {
	proto := constant.AsObj().(*bytecode.FunctionProto)
	closure := vm.heap.NewClosure(proto)
	for i, desc := range proto.Upvalues {
		if desc.IsLocal {
			closure.Upvalues[i] = vm.captureUpvalue(f.base + desc.Index)
		} else {
			closure.Upvalues[i] = f.closure.Upvalues[desc.Index]
		}
	}
	vm.push(value.NewObj(closure))
}

func (vm *VM) captureUpvalue(stackIndex int) *heap.Upvalue {
	var prev *heap.Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.StackIndex > stackIndex {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.StackIndex == stackIndex {
		return cur
	}
	created := vm.heap.NewUpvalue(stackIndex)
	created.NextOpen = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

func (vm *VM) closeUpvalues(fromIndex int) {
	for vm.openUpvalues != nil && vm.openUpvalues.StackIndex >= fromIndex {
		uv := vm.openUpvalues
		uv.Close(vm.stack)
		vm.openUpvalues = uv.NextOpen
	}
}

func (vm *VM) makeList(count int) {
	start := len(vm.stack) - count
	items := append([]value.Value(nil), vm.stack[start:]...)
	vm.stack = vm.stack[:start]
	vm.push(value.NewObj(vm.heap.NewList(items)))
}

func (vm *VM) makeMap(pairCount int) {
	start := len(vm.stack) - 2*pairCount
	m := vm.heap.NewMap()
	for i := 0; i < pairCount; i++ {
		key := vm.stack[start+2*i]
		val := vm.stack[start+2*i+1]
		m.Set(key, val)
	}
	vm.stack = vm.stack[:start]
	vm.push(value.NewObj(m))
}

func (vm *VM) inherit() error {
	superVal := vm.peek(1)
	superclass, ok := asClass(superVal)
	if !ok {
		return vm.runtimeError("superclass must be a class")
	}
	subVal := vm.pop()
	subclass := subVal.AsObj().(*heap.Class)
	subclass.Inherit(superclass)
	return nil
}

func (vm *VM) defineMethod(name string) {
	closureVal := vm.pop()
	class := vm.peek(0).AsObj().(*heap.Class)
	class.SetMethod(name, closureVal.AsObj().(*heap.Closure))
}

func asClass(v value.Value) (*heap.Class, bool) {
	if !v.IsObj() {
		return nil, false
	}
	c, ok := v.AsObj().(*heap.Class)
	return c, ok
}

// --- property access --------------------------------------------------

func (vm *VM) getProperty(chunk *bytecode.Chunk, ip int, name string) error {
	receiverVal := vm.pop()
	if !receiverVal.IsObj() {
		return vm.runtimeError("only instances have properties")
	}
	switch recv := receiverVal.AsObj().(type) {
	case *heap.Instance:
		if fv, ok := recv.Fields.Get(name); ok {
			vm.push(fv)
			return nil
		}
		method, ok := vm.lookupMethodNamed(chunk, ip, recv.Class, name)
		if !ok {
			return vm.runtimeError("undefined property %q", name)
		}
		vm.push(value.NewObj(vm.heap.NewBoundMethod(receiverVal, method)))
		return nil
	case *heap.Iterator:
		if name == "current" {
			vm.push(recv.Current())
			return nil
		}
	}
	return vm.runtimeError("only instances have properties")
}

func (vm *VM) setProperty(name string) error {
	val := vm.pop()
	receiverVal := vm.pop()
	if !receiverVal.IsObj() {
		return vm.runtimeError("only instances have fields")
	}
	inst, ok := receiverVal.AsObj().(*heap.Instance)
	if !ok {
		return vm.runtimeError("only instances have fields")
	}
	inst.Fields.Put(name, val)
	vm.push(val)
	return nil
}

func (vm *VM) getSuper(chunk *bytecode.Chunk, ip int, name string) error {
	superVal := vm.pop()
	thisVal := vm.pop()
	superclass, ok := asClass(superVal)
	if !ok {
		return vm.runtimeError("super must resolve to a class")
	}
	method, ok := vm.lookupMethodNamed(chunk, ip, superclass, name)
	if !ok {
		return vm.runtimeError("undefined property %q", name)
	}
	vm.push(value.NewObj(vm.heap.NewBoundMethod(thisVal, method)))
	return nil
}

// --- calls --------------------------------------------------------------

func (vm *VM) callValue(callee value.Value, argc int) error {
	if !callee.IsObj() {
		return vm.runtimeError("can only call functions and classes")
	}
	switch c := callee.AsObj().(type) {
	case *heap.Closure:
		return vm.callClosure(c, argc)
	case *heap.Native:
		return vm.callNative(c, argc)
	case *heap.Class:
		return vm.instantiate(c, argc)
	case *heap.BoundMethod:
		base := len(vm.stack) - argc - 1
		vm.stack[base] = c.Receiver
		return vm.callClosure(c.Method, argc)
	default:
		return vm.runtimeError("can only call functions and classes")
	}
}

func (vm *VM) callClosure(c *heap.Closure, argc int) error {
	if argc != c.Proto.Arity {
		return vm.runtimeError("expected %d arguments but got %d", c.Proto.Arity, argc)
	}
	if len(vm.frames) >= maxFrames {
		return vm.runtimeError("stack overflow")
	}
	base := len(vm.stack) - argc - 1
	vm.frames = append(vm.frames, frame{closure: c, base: base})
	return nil
}

func (vm *VM) callNative(n *heap.Native, argc int) error {
	if n.Arity >= 0 && argc != n.Arity {
		return vm.runtimeError("%s() expects %d arguments but got %d", n.Name, n.Arity, argc)
	}
	args := append([]value.Value(nil), vm.stack[len(vm.stack)-argc:]...)
	result, err := n.Fn(vm.heap, args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	vm.stack = vm.stack[:len(vm.stack)-argc-1]
	vm.push(result)
	return nil
}

func (vm *VM) instantiate(class *heap.Class, argc int) error {
	base := len(vm.stack) - argc - 1
	inst := vm.heap.NewInstance(class)
	vm.stack[base] = value.NewObj(inst)
	if class.Init != nil {
		return vm.callClosure(class.Init, argc)
	}
	if argc != 0 {
		return vm.runtimeError("expected 0 arguments but got %d", argc)
	}
	return nil
}

func (vm *VM) invoke(chunk *bytecode.Chunk, ip int, name string, argc int) error {
	receiver := vm.peek(argc)
	if inst, ok := receiverInstance(receiver); ok {
		if fv, ok := inst.Fields.Get(name); ok {
			base := len(vm.stack) - argc - 1
			vm.stack[base] = fv
			return vm.callValue(fv, argc)
		}
		method, ok := vm.lookupMethodNamed(chunk, ip, inst.Class, name)
		if !ok {
			return vm.runtimeError("undefined method %q", name)
		}
		return vm.callClosure(method, argc)
	}

	result, handled, err := vm.invokeBuiltin(receiver, name, vm.argsSlice(argc))
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	if !handled {
		return vm.runtimeError("undefined method %q", name)
	}
	vm.stack = vm.stack[:len(vm.stack)-argc-1]
	vm.push(result)
	return nil
}

func (vm *VM) superInvoke(chunk *bytecode.Chunk, ip int, name string, argc int) error {
	superVal := vm.pop()
	superclass, ok := asClass(superVal)
	if !ok {
		return vm.runtimeError("super must resolve to a class")
	}
	method, ok := vm.lookupMethodNamed(chunk, ip, superclass, name)
	if !ok {
		return vm.runtimeError("undefined method %q", name)
	}
	return vm.callClosure(method, argc)
}

func (vm *VM) argsSlice(argc int) []value.Value { return vm.stack[len(vm.stack)-argc:] }

func receiverInstance(v value.Value) (*heap.Instance, bool) {
	if !v.IsObj() {
		return nil, false
	}
	inst, ok := v.AsObj().(*heap.Instance)
	return inst, ok
}

// --- errors ---------------------------------------------------------------

func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	trace := make([]StackFrame, 0, len(vm.frames))
	for i := 0; i < len(vm.frames); i++ {
		fr := vm.frames[i]
		line := 0
		if fr.ip-1 >= 0 && fr.ip-1 < len(fr.closure.Proto.Chunk.Lines) {
			line = fr.closure.Proto.Chunk.Lines[fr.ip-1]
		}
		trace = append(trace, StackFrame{Name: fr.closure.Proto.DisplayName(), Line: line})
	}
	return newRuntimeError(msg, trace)
}

// --- GC roots ---------------------------------------------------------------

// MarkRoots implements heap.RootMarker: everything reachable from the
// running program — the value stack, every live closure, every still-open
// upvalue, and the global table — must survive a collection (spec.md §5).
func (vm *VM) MarkRoots(mark func(value.Value)) {
	for _, v := range vm.stack {
		mark(v)
	}
	for _, f := range vm.frames {
		mark(value.NewObj(f.closure))
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		mark(value.NewObj(uv))
	}
	vm.globals.Iter(func(_ string, v value.Value) bool {
		mark(v)
		return false
	})
}
