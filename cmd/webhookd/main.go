package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// make version a variable so the build system can inject it
var version = "dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "webhookd",
		Usage:   "multi-provider webhook ingestion server",
		Version: version,
		Commands: []*cli.Command{
			serveCommand(),
			replayCommand(),
			migrateCommand(),
		},
	}
}
