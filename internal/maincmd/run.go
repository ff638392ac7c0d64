package maincmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mna/mainer"

	"github.com/kristofer/laythe/pkg/bytecode"
	"github.com/kristofer/laythe/pkg/compiler"
	"github.com/kristofer/laythe/pkg/heap"
	"github.com/kristofer/laythe/pkg/vm"
)

// Run implements the "run" subcommand: execute a .laythe source file or
// a pre-compiled .lyc chunk, same dual-extension dispatch as the
// teacher's runFile (kristofer/smog's cmd/smog/main.go).
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	filename := args[0]
	h := c.newHeap()

	var fn *bytecode.FunctionProto
	if filepath.Ext(filename) == ".lyc" {
		loaded, err := loadChunk(h, filename)
		if err != nil {
			return exitf(exitIOError, err)
		}
		fn = loaded
	} else {
		src, err := os.ReadFile(filename)
		if err != nil {
			return exitf(exitIOError, fmt.Errorf("reading %s: %w", filename, err))
		}
		compiled, errs := compiler.Compile(string(src), h)
		if len(errs) > 0 {
			return exitf(exitCompileError, compileErrors(filename, errs))
		}
		fn = compiled
	}

	machine := vm.New(h)
	machine.Stdout = stdio.Stdout
	if _, err := machine.Interpret(fn); err != nil {
		return exitf(exitRuntimeError, err)
	}
	return nil
}

// newHeap builds a Heap wired to the process-wide GC flags.
func (c *Cmd) newHeap() *heap.Heap {
	h := heap.NewHeap(c.growthFactor)
	h.SetStressGC(c.StressGC)
	if c.GCTrace {
		h.Trace = func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, "[gc] "+format+"\n", args...)
		}
	}
	return h
}

func loadChunk(h *heap.Heap, filename string) (*bytecode.FunctionProto, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	defer f.Close()

	fn, err := bytecode.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return h.LoadFunction(fn), nil
}

func compileErrors(filename string, errs []compiler.CompileError) error {
	msg := fmt.Sprintf("%s: %d compile error(s)", filename, len(errs))
	for _, e := range errs {
		msg += fmt.Sprintf("\n  line %d: %s", e.Line, e.Message)
	}
	return fmt.Errorf("%s", msg)
}
