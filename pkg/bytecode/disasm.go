package bytecode

import (
	"fmt"
	"io"

	"github.com/kristofer/laythe/pkg/value"
)

// Disassemble writes a human-readable listing of fn and every nested
// function constant it closes over, depth-first. Grounded on the
// teacher's disassembleFile (kristofer/smog's cmd/smog/main.go), which
// walks a single flat instruction list; generalized here to recurse into
// nested FunctionProto constants since Laythe's functions nest lexically
// instead of all living in one top-level constant pool.
func Disassemble(fn *FunctionProto, w io.Writer) {
	disassembleFunction(fn, w, map[*FunctionProto]bool{})
}

func disassembleFunction(fn *FunctionProto, w io.Writer, seen map[*FunctionProto]bool) {
	if seen[fn] {
		return
	}
	seen[fn] = true

	fmt.Fprintf(w, "== %s ==\n", fn.DisplayName())
	chunk := fn.Chunk

	for i, inst := range chunk.Code {
		line := 0
		if i < len(chunk.Lines) {
			line = chunk.Lines[i]
		}
		fmt.Fprintf(w, "%4d  line %-4d  %-14s", i, line, inst.Op)

		switch inst.Op {
		case OpInvoke, OpSuperInvoke:
			nameConst, argc := UnpackInvoke(inst.Operand)
			fmt.Fprintf(w, " selector=%s args=%d", constantDisplay(chunk, nameConst), argc)
		case OpConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal,
			OpGetProperty, OpSetProperty, OpGetSuper, OpClass, OpMethod:
			fmt.Fprintf(w, " %d %s", inst.Operand, constantDisplay(chunk, inst.Operand))
		case OpJump, OpJumpIfFalse, OpLoop:
			fmt.Fprintf(w, " -> %d", inst.Operand)
		case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall, OpList, OpMap:
			fmt.Fprintf(w, " %d", inst.Operand)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "   constants:")
	for i, c := range chunk.Constants {
		fmt.Fprintf(w, "   [%d] %s\n", i, constantValueDisplay(c))
		if c.IsObj() {
			if nested, ok := c.AsObj().(*FunctionProto); ok {
				disassembleFunction(nested, w, seen)
			}
		}
	}
}

func constantDisplay(c *Chunk, idx int) string {
	if idx < 0 || idx >= len(c.Constants) {
		return "?"
	}
	return constantValueDisplay(c.Constants[idx])
}

// constantValueDisplay renders a constant-pool value without depending on
// package heap (which itself depends on bytecode), so it only handles
// the primitive kinds a constant pool actually holds: nil, bools,
// numbers, strings, and nested function prototypes.
func constantValueDisplay(v value.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return fmt.Sprintf("%t", v.AsBool())
	case v.IsNumber():
		return fmt.Sprintf("%g", v.AsNumber())
	case v.IsObj():
		obj := v.AsObj()
		if s, ok := obj.(value.StringLike); ok {
			return fmt.Sprintf("%q", s.RawString())
		}
		if fn, ok := obj.(*FunctionProto); ok {
			return fmt.Sprintf("<fn %s>", fn.DisplayName())
		}
		return fmt.Sprintf("<%v>", obj.ObjKind())
	default:
		return "?"
	}
}
