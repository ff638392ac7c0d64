package bytecode

import (
	"strings"
	"testing"

	"github.com/kylelemons/godebug/diff"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/laythe/pkg/value"
)

// normalizeLines trims trailing padding from each line so a diff only
// flags content differences, not column-alignment whitespace.
func normalizeLines(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

// assertDisasm renders fn and fails with a readable patch (rather than a
// wall of text) when the listing drifts from want, the same diff.Diff
// shape mna-nenuphar's filetest.diffOrUpdate uses for golden-file checks.
func assertDisasm(t *testing.T, fn *FunctionProto, want string) {
	t.Helper()
	var buf strings.Builder
	Disassemble(fn, &buf)
	if patch := diff.Diff(normalizeLines(want), normalizeLines(buf.String())); patch != "" {
		t.Errorf("disassembly diff:\n%s", patch)
	}
}

func TestDisassembleSimpleChunk(t *testing.T) {
	fn := NewFunctionProto("greet", 0)
	numIdx := fn.Chunk.AddConstant(value.Number(42))
	fn.Chunk.Write(OpConstant, numIdx, 1)
	fn.Chunk.Write(OpReturn, 0, 1)

	assertDisasm(t, fn, `
== greet ==
   0  line 1     CONSTANT       0 42
   1  line 1     RETURN
   constants:
   [0] 42
`)
}

func TestDisassembleRecursesIntoNestedFunctionConstants(t *testing.T) {
	outer := NewFunctionProto("outer", 0)
	inner := NewFunctionProto("inner", 0)
	inner.Chunk.Write(OpNil, 0, 1)
	inner.Chunk.Write(OpReturn, 0, 1)

	innerIdx := outer.Chunk.AddConstant(value.NewObj(inner))
	outer.Chunk.Write(OpClosure, innerIdx, 1)
	outer.Chunk.Write(OpReturn, 0, 1)

	var buf strings.Builder
	Disassemble(outer, &buf)
	out := buf.String()

	require.Contains(t, out, "== outer ==")
	require.Contains(t, out, "== inner ==")
	require.True(t, strings.Index(out, "== outer ==") < strings.Index(out, "== inner =="))
}

func TestDisassembleInvokeShowsSelectorAndArgCount(t *testing.T) {
	fn := NewFunctionProto("script", 0)
	nameIdx := fn.Chunk.AddConstant(value.NewObj(rawString("push")))
	fn.Chunk.Write(OpInvoke, PackInvoke(nameIdx, 1), 1)
	fn.Chunk.Write(OpReturn, 0, 1)

	var buf strings.Builder
	Disassemble(fn, &buf)
	require.Contains(t, buf.String(), `selector="push" args=1`)
}
