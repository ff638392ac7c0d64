package maincmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mna/mainer"

	"github.com/kristofer/laythe/pkg/bytecode"
	"github.com/kristofer/laythe/pkg/compiler"
)

// Disassemble implements the "disassemble" subcommand: print a
// human-readable listing of either a .laythe source file (compiled
// in-memory first) or an already-compiled .lyc chunk, mirroring the
// teacher's disassembleFile (kristofer/smog's cmd/smog/main.go) but
// recursing into nested function constants via bytecode.Disassemble.
func (c *Cmd) Disassemble(ctx context.Context, stdio mainer.Stdio, args []string) error {
	filename := args[0]

	var fn *bytecode.FunctionProto
	if filepath.Ext(filename) == ".lyc" {
		f, err := os.Open(filename)
		if err != nil {
			return exitf(exitIOError, fmt.Errorf("reading %s: %w", filename, err))
		}
		defer f.Close()
		decoded, err := bytecode.Decode(f)
		if err != nil {
			return exitf(exitIOError, fmt.Errorf("decoding %s: %w", filename, err))
		}
		fn = decoded
	} else {
		src, err := os.ReadFile(filename)
		if err != nil {
			return exitf(exitIOError, fmt.Errorf("reading %s: %w", filename, err))
		}
		h := c.newHeap()
		compiled, errs := compiler.Compile(string(src), h)
		if len(errs) > 0 {
			return exitf(exitCompileError, compileErrors(filename, errs))
		}
		fn = compiled
	}

	fmt.Fprintf(stdio.Stdout, "=== disassembly: %s ===\n\n", filename)
	bytecode.Disassemble(fn, stdio.Stdout)
	return nil
}
