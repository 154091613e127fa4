package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func suppliersCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "suppliers",
		Usage: "Inspect and edit the supplier profiles",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List supplier ids",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					for _, id := range s.app.Store.IDs() {
						fmt.Fprintln(cmd.Root().Writer, id)
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Print one supplier profile",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					profile, err := s.app.Store.Get(cmd.Args().First())
					if err != nil {
						return err
					}
					return writeJSON(cmd.Root().Writer, profile)
				},
			},
			{
				Name:  "add",
				Usage: "Add one literal value to a supplier field",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "proveedor", Aliases: []string{"p"}, Required: true},
					&cli.StringFlag{Name: "field", Usage: "e.g. telefonos, emails", Required: true},
					&cli.StringFlag{Name: "value", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					m, err := s.app.Store.AddValue(ctx, cmd.String("proveedor"), cmd.String("field"), cmd.String("value"))
					if err != nil {
						return err
					}
					if !m.Persisted {
						return fmt.Errorf("value added but not persisted to %s", s.app.Store.Backend())
					}
					return writeJSON(cmd.Root().Writer, m)
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a supplier",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					m, err := s.app.Store.Delete(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					if !m.Persisted {
						return fmt.Errorf("supplier deleted but not persisted to %s", s.app.Store.Backend())
					}
					fmt.Fprintf(cmd.Root().Writer, "deleted %s\n", m.Supplier)
					return nil
				},
			},
		},
	}
}

func patternsCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "patterns",
		Usage: "Print the active detector groups",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return writeJSON(cmd.Root().Writer, s.app.Engine.Patterns())
		},
	}
}
