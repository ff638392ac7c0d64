// Laythe compiled-chunk binary format ("*.lyc" files), adapted from the
// teacher's .sg format (kristofer/smog's pkg/bytecode/format.go): a magic
// number + version header, a constant-pool section, and an
// instructions-plus-line-table section, with nested FunctionProtos encoded
// recursively exactly as smog recursively encodes nested *Bytecode blocks.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kristofer/laythe/pkg/value"
)

const (
	// MagicNumber is the file signature for .lyc files: "LYTH".
	MagicNumber uint32 = 0x4C595448

	// FormatVersion is the current chunk format version.
	FormatVersion uint32 = 1

	formatFlags uint32 = 0
)

const (
	constTypeNil      byte = 0x00
	constTypeBool     byte = 0x01
	constTypeNumber   byte = 0x02
	constTypeString   byte = 0x03
	constTypeFunction byte = 0x04
)

// Encode serializes a top-level function (typically the script function)
// to w, including every nested function reachable through its constant
// pool.
func Encode(fn *FunctionProto, w io.Writer) error {
	if err := writeHeader(w); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return writeFunction(w, fn)
}

// Decode reads a function previously written by Encode.
func Decode(r io.Reader) (*FunctionProto, error) {
	version, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported chunk version: %d (expected %d)", version, FormatVersion)
	}
	return readFunction(r)
}

func writeHeader(w io.Writer) error {
	for _, v := range []uint32{MagicNumber, FormatVersion, formatFlags} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readHeader(r io.Reader) (uint32, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return 0, err
	}
	if magic != MagicNumber {
		return 0, fmt.Errorf("invalid magic number: 0x%08X (expected 0x%08X)", magic, MagicNumber)
	}
	var version, flags uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return 0, err
	}
	return version, nil
}

func writeFunction(w io.Writer, fn *FunctionProto) error {
	if err := writeString(w, fn.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(fn.Arity)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(fn.UpvalueCount)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fn.Upvalues))); err != nil {
		return err
	}
	for _, u := range fn.Upvalues {
		var isLocal byte
		if u.IsLocal {
			isLocal = 1
		}
		if err := binary.Write(w, binary.LittleEndian, isLocal); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(u.Index)); err != nil {
			return err
		}
	}
	return writeChunk(w, fn.Chunk)
}

func readFunction(r io.Reader) (*FunctionProto, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	var arity, upvalCount int32
	if err := binary.Read(r, binary.LittleEndian, &arity); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &upvalCount); err != nil {
		return nil, err
	}
	var upvalDescCount uint32
	if err := binary.Read(r, binary.LittleEndian, &upvalDescCount); err != nil {
		return nil, err
	}
	upvalues := make([]UpvalueDesc, upvalDescCount)
	for i := range upvalues {
		var isLocal byte
		if err := binary.Read(r, binary.LittleEndian, &isLocal); err != nil {
			return nil, err
		}
		var index int32
		if err := binary.Read(r, binary.LittleEndian, &index); err != nil {
			return nil, err
		}
		upvalues[i] = UpvalueDesc{IsLocal: isLocal != 0, Index: int(index)}
	}
	chunk, err := readChunk(r)
	if err != nil {
		return nil, err
	}
	fn := NewFunctionProto(name, int(arity))
	fn.UpvalueCount = int(upvalCount)
	fn.Upvalues = upvalues
	fn.Chunk = chunk
	return fn, nil
}

func writeChunk(w io.Writer, c *Chunk) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Constants))); err != nil {
		return err
	}
	for i, v := range c.Constants {
		if err := writeConstant(w, v); err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Code))); err != nil {
		return err
	}
	for i, inst := range c.Code {
		if err := binary.Write(w, binary.LittleEndian, byte(inst.Op)); err != nil {
			return fmt.Errorf("instruction %d opcode: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, int32(inst.Operand)); err != nil {
			return fmt.Errorf("instruction %d operand: %w", i, err)
		}
		line := 0
		if i < len(c.Lines) {
			line = c.Lines[i]
		}
		if err := binary.Write(w, binary.LittleEndian, int32(line)); err != nil {
			return fmt.Errorf("instruction %d line: %w", i, err)
		}
	}
	return nil
}

func readChunk(r io.Reader) (*Chunk, error) {
	var constCount uint32
	if err := binary.Read(r, binary.LittleEndian, &constCount); err != nil {
		return nil, err
	}
	constants := make([]value.Value, constCount)
	for i := range constants {
		v, err := readConstant(r)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		constants[i] = v
	}
	var instCount uint32
	if err := binary.Read(r, binary.LittleEndian, &instCount); err != nil {
		return nil, err
	}
	code := make([]Instruction, instCount)
	lines := make([]int, instCount)
	for i := range code {
		var op byte
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return nil, err
		}
		var operand, line int32
		if err := binary.Read(r, binary.LittleEndian, &operand); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return nil, err
		}
		code[i] = Instruction{Op: Opcode(op), Operand: int(operand)}
		lines[i] = int(line)
	}
	return &Chunk{Code: code, Lines: lines, Constants: constants}, nil
}

func writeConstant(w io.Writer, v value.Value) error {
	switch {
	case v.IsNil():
		return binary.Write(w, binary.LittleEndian, constTypeNil)
	case v.IsBool():
		if err := binary.Write(w, binary.LittleEndian, constTypeBool); err != nil {
			return err
		}
		var b byte
		if v.AsBool() {
			b = 1
		}
		return binary.Write(w, binary.LittleEndian, b)
	case v.IsNumber():
		if err := binary.Write(w, binary.LittleEndian, constTypeNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.AsNumber())
	case v.IsObj():
		obj := v.AsObj()
		if s, ok := obj.(value.StringLike); ok {
			if err := binary.Write(w, binary.LittleEndian, constTypeString); err != nil {
				return err
			}
			return writeString(w, s.RawString())
		}
		if fn, ok := obj.(*FunctionProto); ok {
			if err := binary.Write(w, binary.LittleEndian, constTypeFunction); err != nil {
				return err
			}
			return writeFunction(w, fn)
		}
		return fmt.Errorf("unsupported constant object kind: %v", obj.ObjKind())
	default:
		return fmt.Errorf("unsupported constant value")
	}
}

func readConstant(r io.Reader) (value.Value, error) {
	var t byte
	if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
		return value.Nil, err
	}
	switch t {
	case constTypeNil:
		return value.Nil, nil
	case constTypeBool:
		var b byte
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return value.Nil, err
		}
		return value.Bool(b != 0), nil
	case constTypeNumber:
		var n float64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return value.Nil, err
		}
		return value.Number(n), nil
	case constTypeString:
		s, err := readString(r)
		if err != nil {
			return value.Nil, err
		}
		// Interning happens at the heap layer; Decode hands back a raw
		// string-shaped constant the loader re-interns via heap.Heap.
		return value.NewObj(rawString(s)), nil
	case constTypeFunction:
		fn, err := readFunction(r)
		if err != nil {
			return value.Nil, err
		}
		return value.NewObj(fn), nil
	default:
		return value.Nil, fmt.Errorf("unknown constant type: 0x%02X", t)
	}
}

// rawString is a minimal value.StringLike used only as an intermediate
// carrier between Decode and the heap's interning step; the loader always
// replaces it with a heap-interned string before execution.
type rawString string

func (r rawString) Header() *value.Header  { h := value.Header{}; return &h }
func (r rawString) ObjKind() value.ObjKind { return value.KindString }
func (r rawString) RawString() string      { return string(r) }

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// RawStringConstant reports the text of a constant produced by Decode that
// hasn't been re-interned into the heap yet, used by the loader.
func RawStringConstant(v value.Value) (string, bool) {
	if !v.IsObj() {
		return "", false
	}
	rs, ok := v.AsObj().(rawString)
	return string(rs), ok
}
