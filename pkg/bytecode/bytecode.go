// Package bytecode defines Laythe's instruction set and the compiled
// representation a function is lowered to: a flat sequence of
// instructions, a parallel line-number table for error reporting, and a
// constant pool.
//
// This mirrors the teacher's bytecode design (kristofer/smog's
// pkg/bytecode: an Instruction{Op, Operand} pair stream plus a constant
// pool indexed by instructions) generalized from smog's Smalltalk-style
// message sends to Laythe's class/closure/upvalue model: SEND/SUPER_SEND
// become INVOKE/SUPER_INVOKE fused property-access-plus-call instructions,
// and a whole new family covers closures, upvalues, and inheritance that
// smog's flat message dispatch never needed.
package bytecode

import (
	"math"

	"github.com/kristofer/laythe/pkg/value"
)

// Opcode is a single bytecode operation. Keeping it a byte keeps chunks
// compact, same rationale as the teacher's Opcode type.
type Opcode byte

const (
	// Stack
	OpConstant Opcode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpDup

	// Locals / globals
	OpGetLocal
	OpSetLocal
	OpDefineGlobal
	OpGetGlobal
	OpSetGlobal

	// Upvalues
	OpGetUpvalue
	OpSetUpvalue
	OpCloseUpvalue

	// Arithmetic / logic
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpNegate
	OpNot
	OpEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual

	// Control flow
	OpJump
	OpJumpIfFalse
	OpLoop
	OpReturn

	// Calls
	OpCall
	OpInvoke
	OpSuperInvoke

	// Objects
	OpGetProperty
	OpSetProperty
	OpGetSuper

	// Classes
	OpClass
	OpInherit
	OpMethod

	// Closures
	OpClosure

	// Containers
	OpList
	OpMap
	OpIndexGet
	OpIndexSet

	// I/O — Laythe's `print` is statement syntax (spec.md §6), not a call;
	// the compiler still needs an opcode to drive it.
	OpPrint
)

var opcodeNames = map[Opcode]string{
	OpConstant:      "CONSTANT",
	OpNil:           "NIL",
	OpTrue:          "TRUE",
	OpFalse:         "FALSE",
	OpPop:           "POP",
	OpDup:           "DUP",
	OpGetLocal:      "GET_LOCAL",
	OpSetLocal:      "SET_LOCAL",
	OpDefineGlobal:  "DEFINE_GLOBAL",
	OpGetGlobal:     "GET_GLOBAL",
	OpSetGlobal:     "SET_GLOBAL",
	OpGetUpvalue:    "GET_UPVALUE",
	OpSetUpvalue:    "SET_UPVALUE",
	OpCloseUpvalue:  "CLOSE_UPVALUE",
	OpAdd:           "ADD",
	OpSubtract:      "SUBTRACT",
	OpMultiply:      "MULTIPLY",
	OpDivide:        "DIVIDE",
	OpModulo:        "MODULO",
	OpNegate:        "NEGATE",
	OpNot:           "NOT",
	OpEqual:         "EQUAL",
	OpLess:          "LESS",
	OpLessEqual:     "LESS_EQUAL",
	OpGreater:       "GREATER",
	OpGreaterEqual:  "GREATER_EQUAL",
	OpJump:          "JUMP",
	OpJumpIfFalse:   "JUMP_IF_FALSE",
	OpLoop:          "LOOP",
	OpReturn:        "RETURN",
	OpCall:          "CALL",
	OpInvoke:        "INVOKE",
	OpSuperInvoke:   "SUPER_INVOKE",
	OpGetProperty:   "GET_PROPERTY",
	OpSetProperty:   "SET_PROPERTY",
	OpGetSuper:      "GET_SUPER",
	OpClass:         "CLASS",
	OpInherit:       "INHERIT",
	OpMethod:        "METHOD",
	OpClosure:       "CLOSURE",
	OpList:          "LIST",
	OpMap:           "MAP",
	OpIndexGet:      "INDEX_GET",
	OpIndexSet:      "INDEX_SET",
	OpPrint:         "PRINT",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Instruction is a single decoded bytecode op plus its operand. As in the
// teacher's design, the operand's meaning is opcode-dependent: a constant
// pool index, a local slot, a jump offset, or a packed (nameIdx, argc) pair
// for INVOKE/SUPER_INVOKE.
type Instruction struct {
	Op      Opcode
	Operand int
}

// UpvalueDesc tells the VM how to populate one slot of a closure's upvalue
// vector when OpClosure executes: either by capturing a local slot in the
// enclosing frame (IsLocal true) or by inheriting an upvalue already open
// in the enclosing closure (IsLocal false).
type UpvalueDesc struct {
	IsLocal bool
	Index   int
}

// Chunk is a function's compiled body: its instructions, a line number
// per instruction for runtime error reporting, and the constant pool the
// instructions index into.
type Chunk struct {
	Code      []Instruction
	Lines     []int
	Constants []value.Value
}

// Write appends an instruction (and its source line) to the chunk,
// returning the index it was written at — callers patch jump operands by
// index after the fact once the jump target is known.
func (c *Chunk) Write(op Opcode, operand, line int) int {
	c.Code = append(c.Code, Instruction{Op: op, Operand: operand})
	c.Lines = append(c.Lines, line)
	return len(c.Code) - 1
}

// AddConstant returns the index of v in the constant pool, adding it only
// if it isn't already there (spec.md's constant pool: string interning
// keyed by content, numeric constants deduplicated by bit pattern).
// Strings arrive pre-interned (heap.InternString), so identity comparison
// is enough; numbers compare by IEEE bit pattern so 0 and -0 stay distinct
// constants but repeated literals collapse to one slot. Every other object
// kind (functions, closures built at compile time) is never deduped —
// there's no meaningful notion of two functions being "the same constant".
func (c *Chunk) AddConstant(v value.Value) int {
	if idx, ok := c.findConstant(v); ok {
		return idx
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

func (c *Chunk) findConstant(v value.Value) (int, bool) {
	switch {
	case v.IsNumber():
		bits := math.Float64bits(v.AsNumber())
		for i, existing := range c.Constants {
			if existing.IsNumber() && math.Float64bits(existing.AsNumber()) == bits {
				return i, true
			}
		}
	case v.IsObj():
		if s, ok := v.AsObj().(value.StringLike); ok {
			for i, existing := range c.Constants {
				if existing.IsObj() && existing.AsObj() == s {
					return i, true
				}
			}
		}
	}
	return 0, false
}

// FunctionProto is the compiled, immutable description of a function: its
// chunk, arity, name, and how many upvalues a closure over it must carry.
// Per spec.md's data model, Function is itself a heap object — rather than
// a separate heap.Function wrapper (which would force this package to
// import heap, which imports this package for Chunk), FunctionProto embeds
// its own GC header and implements value.Obj directly.
type FunctionProto struct {
	header value.Header

	Name         string
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Upvalues     []UpvalueDesc
}

// PackInvoke and UnpackInvoke fold an INVOKE/SUPER_INVOKE instruction's two
// logical operands — a selector's constant-pool index and the call's
// argument count — into Instruction's single Operand int, since a method
// call site needs both but Instruction carries only one field.
func PackInvoke(nameConstant, argCount int) int {
	return nameConstant<<8 | (argCount & 0xFF)
}

func UnpackInvoke(operand int) (nameConstant, argCount int) {
	return operand >> 8, operand & 0xFF
}

func NewFunctionProto(name string, arity int) *FunctionProto {
	return &FunctionProto{
		Name:  name,
		Arity: arity,
		Chunk: &Chunk{},
	}
}

func (f *FunctionProto) Header() *value.Header    { return &f.header }
func (f *FunctionProto) ObjKind() value.ObjKind    { return value.KindFunction }
func (f *FunctionProto) DisplayName() string {
	if f.Name == "" {
		return "script"
	}
	return f.Name
}
