package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newRootCmd(&session{}).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "docscrub: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "docscrub",
		Usage: "Anonymize and extract supplier documents without running the service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "log",
				Usage: "Log level: debug, info, warn, error",
				Value: "error",
			},
		},
		Before: s.open,
		After:  s.close,
		Commands: []*cli.Command{
			anonymizeCmd(s),
			extractCmd(s),
			batchCmd(s),
			suppliersCmd(s),
			patternsCmd(s),
		},
	}
}
