// Package version exposes the build version as a kong subcommand.
package version

import (
	"fmt"
	"io"
	"os"

	"go.ntppool.org/common/version"
)

// Cmd is the kong "version" subcommand.
type Cmd struct {
	Name string `kong:"-"`

	out io.Writer
}

func (cmd *Cmd) Run() error {
	name := cmd.Name
	if name == "" {
		name = "hmm-select"
	}
	out := cmd.out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "%s %s\n", name, version.Version())
	return err
}
