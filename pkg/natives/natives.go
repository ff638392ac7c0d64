// Package natives wires the handful of free-standing global functions
// Laythe ships with (spec.md §6): `clock()` for benchmarking scripts, and
// `assert`/`assertEq`/`assertNe` for the test harness scripts written in
// Laythe itself use. Grounded on the teacher's own primitive registration
// (kristofer/smog's pkg/vm/primitives.go installs a handful of built-in
// selectors the same way: by wrapping a Go func and registering it under a
// name before the first Run).
package natives

import (
	"fmt"
	"time"

	"github.com/kristofer/laythe/pkg/heap"
	"github.com/kristofer/laythe/pkg/value"
)

// Globals returns the name -> native-function-value table the VM seeds
// its global scope with at startup. start is captured once here, at
// process/VM construction time, so clock() reports elapsed run time
// (spec.md §6: "seconds as double since process start") rather than
// wall-clock time.
func Globals(h *heap.Heap) map[string]value.Value {
	start := time.Now()
	return map[string]value.Value{
		"clock": value.NewObj(h.NewNative("clock", 0, func(h *heap.Heap, args []value.Value) (value.Value, error) {
			return value.Number(time.Since(start).Seconds()), nil
		})),
		"assert":   value.NewObj(h.NewNative("assert", 1, assertFn)),
		"assertEq": value.NewObj(h.NewNative("assertEq", 2, assertEqFn)),
		"assertNe": value.NewObj(h.NewNative("assertNe", 2, assertNeFn)),
	}
}

func assertFn(h *heap.Heap, args []value.Value) (value.Value, error) {
	if !value.Truthy(args[0]) {
		return value.Nil, fmt.Errorf("assertion failed")
	}
	return value.Nil, nil
}

func assertEqFn(h *heap.Heap, args []value.Value) (value.Value, error) {
	if !value.Equal(args[0], args[1]) {
		return value.Nil, fmt.Errorf("assertEq failed: %s != %s", heap.Display(args[0]), heap.Display(args[1]))
	}
	return value.Nil, nil
}

func assertNeFn(h *heap.Heap, args []value.Value) (value.Value, error) {
	if value.Equal(args[0], args[1]) {
		return value.Nil, fmt.Errorf("assertNe failed: %s == %s", heap.Display(args[0]), heap.Display(args[1]))
	}
	return value.Nil, nil
}
