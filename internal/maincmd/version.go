package maincmd

import (
	"context"

	"github.com/mna/mainer"
)

// Version implements the "version" subcommand, distinct from the
// top-level -v/--version flag but printing the same line.
func (c *Cmd) Version(ctx context.Context, stdio mainer.Stdio, args []string) error {
	c.printVersion(stdio)
	return nil
}
