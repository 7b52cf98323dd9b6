// Package rootcmd is the shared kong bootstrap for the command line
// programs.
package rootcmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/version"
)

// Run parses the command line into cmd and runs the selected subcommand
// with a context that is canceled on SIGINT or SIGTERM.
func Run(cmd any, name, description string) {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	log := logger.Setup()
	ctx = logger.NewContext(ctx, log)

	parser, err := kong.New(cmd,
		kong.Name(name),
		kong.Description(description),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Vars{"version": version.Version()},
		kong.ConfigureHelp(kong.HelpOptions{
			Tree: true,
		}),
		kong.UsageOnError(),
	)
	if err != nil {
		log.Error("could not set up command line parser", "err", err)
		os.Exit(1)
	}

	kctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
	}

	err = kctx.Run()
	parser.FatalIfErrorf(err)
}
