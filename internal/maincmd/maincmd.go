// Package maincmd implements the laythe binary's command dispatch:
// argument parsing, subcommand lookup, and the process exit code
// mapping spec.md §6 requires (0 success, 65 compile error, 70 runtime
// error, 74 I/O error — the sysexits.h convention clox's own host
// tooling follows).
//
// Shaped directly on mna-nenuphar's internal/maincmd package: the same
// struct-tag flag fields, the same reflection-driven buildCmds that
// turns exported Cmd methods into named subcommands, and the same
// Validate/Main split between argument checking and execution.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"

	"github.com/kristofer/laythe/internal/config"
)

const binName = "laythe"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>...]
       %[1]s -h|--help
       %[1]s -v|--version

All-in-one tool for the %[1]s scripting language.

The <command> can be one of:
       run <file>                Run a .laythe source file or .lyc
                                 compiled chunk.
       repl                      Start the interactive REPL.
       compile <in> [out]        Compile a .laythe file to a .lyc chunk.
       disassemble <file>        Print a human-readable listing of a
                                 .laythe or .lyc file.
       version                   Print version information.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --no-color                Disable REPL syntax highlighting.
       --debug                   Accepted (also settable in laythe.yaml);
                                 produces no extra output.
       -o --output <path>        Output path for the compile command.
`, binName)
)

// exitError lets a subcommand hand back a specific sysexits-style code
// instead of the generic success/failure buildCmds' signature allows for.
type exitError struct {
	code mainer.ExitCode
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitf(code mainer.ExitCode, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

const (
	exitCompileError mainer.ExitCode = 65
	exitRuntimeError mainer.ExitCode = 70
	exitIOError      mainer.ExitCode = 74
)

// Cmd is both the flag-parse target (mainer populates its tagged
// fields) and the receiver every subcommand hangs off of.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	NoColor  bool   `flag:"no-color"`
	Debug    bool   `flag:"debug"`
	Output   string `flag:"o,output"`
	GCTrace  bool   `flag:"gc-trace"`
	StressGC bool   `flag:"stress-gc"`

	args         []string
	flags        map[string]bool
	cmdFn        func(context.Context, mainer.Stdio, []string) error
	growthFactor float64
}

func (c *Cmd) SetArgs(args []string) { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	switch cmdName {
	case "run", "compile", "disassemble":
		if len(c.args[1:]) == 0 {
			return fmt.Errorf("%s: a file must be provided", cmdName)
		}
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	if cfg, err := config.Load("laythe.yaml"); err == nil {
		c.NoColor = cfg.NoColor
		c.Debug = cfg.Debug
		c.GCTrace = cfg.GCTrace
		c.StressGC = cfg.StressGC
		c.growthFactor = cfg.GrowthFactor
	}

	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		c.printVersion(stdio)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintf(stdio.Stderr, "%s\n", ee.err)
			return ee.code
		}
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return mainer.Failure
	}
	return mainer.Success
}

// buildCmds mirrors mna-nenuphar's reflection scan: any exported method
// matching func(*Cmd, context.Context, mainer.Stdio, []string) error
// becomes a subcommand named after its lower-cased method name.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}

func (c *Cmd) printVersion(stdio mainer.Stdio) {
	fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
}
