// Command laythe is the all-in-one tool for the Laythe scripting
// language: it runs scripts, drives an interactive REPL, compiles
// source to the .lyc bytecode format, and disassembles compiled chunks.
//
// Grounded on the teacher's cmd/smog/main.go shape (a thin dispatcher
// over os.Args), generalized to the mna-nenuphar pack entry's
// mainer-based argument parsing, since that example is itself a
// compiler-and-tool binary for a scripting language and mainer gives us
// struct-tag flag parsing plus signal-aware contexts the teacher's
// hand-rolled os.Args switch never had.
package main

import (
	"os"

	"github.com/mna/mainer"

	"github.com/kristofer/laythe/internal/maincmd"
)

var (
	// placeholder values, replaced on build
	version   = "{v}"
	buildDate = "{d}"
)

func main() {
	c := maincmd.Cmd{BuildVersion: version, BuildDate: buildDate}
	os.Exit(int(c.Main(os.Args, mainer.CurrentStdio())))
}
