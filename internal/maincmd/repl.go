package maincmd

import (
	"context"

	"github.com/mna/mainer"

	"github.com/kristofer/laythe/internal/replui"
)

// Repl implements the "repl" subcommand.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return replui.Run(replui.Options{NoColor: c.NoColor, Debug: c.Debug})
}
