package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("ledgerbft/cmd")

func main() {
	app := &cli.App{
		Name:  "ledgerbft",
		Usage: "standalone ledgerbft replica",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "ledgerbft.json",
				Usage: "path to the network configuration file",
			},
		},
		Commands: []*cli.Command{
			&runCmd,
			&keygenCmd,
			&configCmd,
			&exportCmd,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %+v\n", err)
		os.Exit(1)
	}
}
