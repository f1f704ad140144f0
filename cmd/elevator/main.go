package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"tangled.sh/tangled.sh/elevator/elevator"
	"tangled.sh/tangled.sh/elevator/log"
)

func main() {
	cmd := &cli.Command{
		Name:  "elevator",
		Usage: "temporary, approval-gated organization ownership",
		Commands: []*cli.Command{
			elevator.Command(),
			elevator.DemoteCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New("elevator")
	ctx = log.IntoContext(ctx, logger.With("command", cmd.Name))

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}
}
