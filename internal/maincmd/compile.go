package maincmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mna/mainer"

	"github.com/kristofer/laythe/pkg/bytecode"
	"github.com/kristofer/laythe/pkg/compiler"
)

// Compile implements the "compile" subcommand: source -> .lyc chunk,
// mirroring the teacher's compileFile (kristofer/smog's cmd/smog/main.go).
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	inputFile := args[0]
	outputFile := c.Output
	if outputFile == "" && len(args) >= 2 {
		outputFile = args[1]
	}
	if outputFile == "" {
		outputFile = defaultChunkName(inputFile)
	}

	src, err := os.ReadFile(inputFile)
	if err != nil {
		return exitf(exitIOError, fmt.Errorf("reading %s: %w", inputFile, err))
	}

	h := c.newHeap()
	fn, errs := compiler.Compile(string(src), h)
	if len(errs) > 0 {
		return exitf(exitCompileError, compileErrors(inputFile, errs))
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return exitf(exitIOError, fmt.Errorf("creating %s: %w", outputFile, err))
	}
	defer out.Close()

	if err := bytecode.Encode(fn, out); err != nil {
		return exitf(exitIOError, fmt.Errorf("writing %s: %w", outputFile, err))
	}

	fmt.Fprintf(stdio.Stdout, "compiled %s -> %s\n", inputFile, outputFile)
	return nil
}

func defaultChunkName(inputFile string) string {
	ext := filepath.Ext(inputFile)
	if ext == "" {
		return inputFile + ".lyc"
	}
	return strings.TrimSuffix(inputFile, ext) + ".lyc"
}
