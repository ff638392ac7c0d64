// Package vm - error handling with stack traces.
//
// Directly descended from the teacher's pkg/vm/errors.go (kristofer/smog):
// same StackFrame shape, same RuntimeError.Error() rendering, generalized
// from smog's selector-centric frames (every smog frame is a message
// send) to Laythe's closure-call frames (a frame names the function/method
// it's running; the VM leaves Selector empty).
package vm

import (
	"fmt"
	"strings"
)

// StackFrame is one call frame captured at the moment a RuntimeError was
// raised, for diagnostic printing — not the live frame the interpreter
// loop steps through.
type StackFrame struct {
	Name       string // function/method name, or "script" for the top level
	Selector   string // printed as "(via .Selector)" when set; the VM's runtimeError leaves it ""
	Line       int    // source line executing when the error occurred
}

// RuntimeError is a Laythe runtime fault: a message plus the call stack
// active when it was raised (spec.md §7).
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i := len(e.StackTrace) - 1; i >= 0; i-- {
			frame := e.StackTrace[i]
			b.WriteString(fmt.Sprintf("\n  at %s", frame.Name))
			if frame.Selector != "" {
				b.WriteString(fmt.Sprintf(" (via .%s)", frame.Selector))
			}
			if frame.Line > 0 {
				b.WriteString(fmt.Sprintf(" [line %d]", frame.Line))
			}
		}
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}
