// Per-kind native methods: the handful of built-in operations spec.md §3
// grants list/map/string/number values without requiring a user-defined
// class (`len`, `push`, `size`, `remove`, `iter`, `str`, `times`). These
// are dispatched here, inline in the VM, rather than through the
// class/method machinery, the same way the teacher's primitives.go keeps
// arithmetic and comparison primitives as direct Go switches instead of
// routing them through class dispatch.
package vm

import (
	"fmt"

	"github.com/kristofer/laythe/pkg/heap"
	"github.com/kristofer/laythe/pkg/value"
)

// invokeBuiltin dispatches a method call against a built-in (non-Instance)
// receiver kind. ok is false when receiver isn't a kind this function
// handles, telling the caller to fall back to its own error path.
func (vm *VM) invokeBuiltin(receiver value.Value, name string, args []value.Value) (result value.Value, ok bool, err error) {
	if receiver.IsObj() {
		switch recv := receiver.AsObj().(type) {
		case *heap.List:
			return vm.invokeList(recv, name, args)
		case *heap.Map:
			return vm.invokeMap(recv, name, args)
		case *heap.String:
			return vm.invokeString(recv, name, args)
		case *heap.Iterator:
			return vm.invokeIterator(recv, name, args)
		}
		return value.Nil, false, nil
	}
	if receiver.IsNumber() {
		return vm.invokeNumber(receiver.AsNumber(), name, args)
	}
	return value.Nil, false, nil
}

func (vm *VM) invokeList(l *heap.List, name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "len":
		return value.Number(float64(len(l.Items))), true, nil
	case "push":
		if len(args) != 1 {
			return value.Nil, true, fmt.Errorf("push() takes 1 argument, got %d", len(args))
		}
		l.Items = append(l.Items, args[0])
		return value.NewObj(l), true, nil
	case "iter":
		return value.NewObj(l.Iter()), true, nil
	}
	return value.Nil, false, nil
}

func (vm *VM) invokeMap(m *heap.Map, name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "size":
		return value.Number(float64(m.Size())), true, nil
	case "remove":
		if len(args) != 1 {
			return value.Nil, true, fmt.Errorf("remove() takes 1 argument, got %d", len(args))
		}
		v, _ := m.Remove(args[0])
		return v, true, nil
	case "iter":
		return value.NewObj(m.Iter()), true, nil
	}
	return value.Nil, false, nil
}

func (vm *VM) invokeString(s *heap.String, name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "len":
		return value.Number(float64(len(s.Chars))), true, nil
	case "str":
		return value.NewObj(s), true, nil
	case "iter":
		return value.NewObj(vm.heap.StringIter(s)), true, nil
	}
	return value.Nil, false, nil
}

func (vm *VM) invokeIterator(it *heap.Iterator, name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "next":
		return value.Bool(it.Next()), true, nil
	case "current":
		return it.Current(), true, nil
	}
	return value.Nil, false, nil
}

func (vm *VM) invokeNumber(n float64, name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "times":
		return value.NewObj(heap.TimesIterator(int64(n))), true, nil
	}
	return value.Nil, false, nil
}

// indexGet implements the `recv[idx]` operator for the container kinds
// spec.md §3 supports it on: lists (integer index), maps (any hashable
// key), and strings (integer index, yielding a one-character string).
func (vm *VM) indexGet(receiver, idx value.Value) (value.Value, error) {
	if !receiver.IsObj() {
		return value.Nil, fmt.Errorf("type does not support indexing")
	}
	switch recv := receiver.AsObj().(type) {
	case *heap.List:
		i, ok := intIndex(idx)
		if !ok || i < 0 || i >= len(recv.Items) {
			return value.Nil, fmt.Errorf("list index out of range")
		}
		return recv.Items[i], nil
	case *heap.Map:
		v, _ := recv.Get(idx)
		return v, nil
	case *heap.String:
		i, ok := intIndex(idx)
		if !ok || i < 0 || i >= len(recv.Chars) {
			return value.Nil, fmt.Errorf("string index out of range")
		}
		return value.NewObj(vm.heap.InternString(string(recv.Chars[i]))), nil
	}
	return value.Nil, fmt.Errorf("type does not support indexing")
}

// indexSet implements `recv[idx] = val`.
func (vm *VM) indexSet(receiver, idx, val value.Value) (value.Value, error) {
	if !receiver.IsObj() {
		return value.Nil, fmt.Errorf("type does not support index assignment")
	}
	switch recv := receiver.AsObj().(type) {
	case *heap.List:
		i, ok := intIndex(idx)
		if !ok || i < 0 || i >= len(recv.Items) {
			return value.Nil, fmt.Errorf("list index out of range")
		}
		recv.Items[i] = val
		return val, nil
	case *heap.Map:
		if !recv.Set(idx, val) {
			return value.Nil, fmt.Errorf("unhashable map key")
		}
		return val, nil
	}
	return value.Nil, fmt.Errorf("type does not support index assignment")
}

func intIndex(v value.Value) (int, bool) {
	if !v.IsNumber() {
		return 0, false
	}
	n := v.AsNumber()
	return int(n), n == float64(int(n))
}
