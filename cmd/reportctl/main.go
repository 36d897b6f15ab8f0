package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "reportctl",
		Usage:   "Maintenance commands for the waste report database",
		Version: version,
		Commands: []*cli.Command{
			migrateCommand(),
			importCSVCommand(),
			exportCSVCommand(),
			rebuildSnapshotCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
