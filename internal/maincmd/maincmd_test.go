package maincmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/require"
)

func TestBuildCmdsDiscoversExportedSubcommands(t *testing.T) {
	c := &Cmd{}
	cmds := buildCmds(c)

	for _, name := range []string{"run", "compile", "disassemble", "repl", "version"} {
		require.Contains(t, cmds, name)
	}
}

func TestValidateRequiresACommand(t *testing.T) {
	c := &Cmd{}
	c.SetArgs(nil)
	err := c.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownCommand(t *testing.T) {
	c := &Cmd{}
	c.SetArgs([]string{"frobnicate"})
	err := c.Validate()
	require.Error(t, err)
}

func TestValidateRequiresFileForRunCompileDisassemble(t *testing.T) {
	for _, cmd := range []string{"run", "compile", "disassemble"} {
		c := &Cmd{}
		c.SetArgs([]string{cmd})
		err := c.Validate()
		require.Errorf(t, err, "%s with no file must fail validation", cmd)
	}
}

func TestValidateAllowsReplWithNoArgs(t *testing.T) {
	c := &Cmd{}
	c.SetArgs([]string{"repl"})
	require.NoError(t, c.Validate())
}

func TestValidateSkippedWhenHelpOrVersionRequested(t *testing.T) {
	c := &Cmd{Help: true}
	require.NoError(t, c.Validate())

	c = &Cmd{Version: true}
	require.NoError(t, c.Validate())
}

func TestExitfWrapsErrorWithCode(t *testing.T) {
	base := errors.New("boom")
	wrapped := exitf(exitCompileError, base)

	var ee *exitError
	require.True(t, errors.As(wrapped, &ee))
	require.Equal(t, exitCompileError, ee.code)
	require.Equal(t, "boom", wrapped.Error())
	require.ErrorIs(t, wrapped, base)
}

func TestExitfPassesThroughNil(t *testing.T) {
	require.NoError(t, exitf(exitIOError, nil))
}

func TestMainMapsExitErrorToItsCode(t *testing.T) {
	c := &Cmd{}
	var out, errOut bytes.Buffer
	code := c.Main([]string{binName, "run", "missing.laythe"}, mainer.Stdio{Stdout: &out, Stderr: &errOut})
	require.Equal(t, exitIOError, code)
}

func TestMainPrintsVersionAndExits(t *testing.T) {
	c := &Cmd{BuildVersion: "1.2.3", BuildDate: "2026-01-01"}
	var out, errOut bytes.Buffer
	code := c.Main([]string{binName, "--version"}, mainer.Stdio{Stdout: &out, Stderr: &errOut})

	require.Equal(t, mainer.Success, code)
	require.Contains(t, out.String(), "1.2.3")
}

func TestUnknownCommandReturnsFailureExitCode(t *testing.T) {
	c := &Cmd{}
	var out, errOut bytes.Buffer
	code := c.Main([]string{binName, "frobnicate"}, mainer.Stdio{Stdout: &out, Stderr: &errOut})
	require.NotEqual(t, mainer.Success, code)
}
