package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

func anonymizeCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "anonymize",
		Usage:     "Redact text and print the result",
		ArgsUsage: "[text]",
		Description: `Reads the text from the arguments, from --file (any supported document
type) or from stdin. Nothing is sent to the LLM.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Document to extract and redact",
			},
			&cli.StringFlag{
				Name:    "proveedor",
				Aliases: []string{"p"},
				Usage:   "Supplier id; empty applies every supplier's rules",
			},
			&cli.BoolFlag{
				Name:  "heuristics",
				Usage: "Apply the line heuristics (defaults to the configured value)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print text and statistics as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			text, err := readInput(ctx, s, cmd)
			if err != nil {
				return err
			}

			heuristics := s.app.Config.Anonymization.ApplyHeuristics
			if cmd.IsSet("heuristics") {
				heuristics = cmd.Bool("heuristics")
			}

			res := s.app.Engine.Anonymize(text, cmd.String("proveedor"), heuristics)
			out := cmd.Root().Writer
			if cmd.Bool("json") {
				return writeJSON(out, map[string]any{
					"texto_anonimizado": res.Text,
					"estadisticas": map[string]any{
						"total_reemplazos": res.Stats.TotalReplacements,
						"por_tipo":         res.Stats.ByType,
					},
				})
			}

			fmt.Fprintln(out, res.Text)
			fmt.Fprintf(cmd.Root().ErrWriter, "%d replacements\n", res.Stats.TotalReplacements)
			return nil
		},
	}
}

func readInput(ctx context.Context, s *session, cmd *cli.Command) (string, error) {
	if path := cmd.String("file"); path != "" {
		res, err := s.app.Extractor.Extract(ctx, path)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", path, err)
		}
		return res.Text, nil
	}
	if cmd.Args().Len() > 0 {
		return strings.Join(cmd.Args().Slice(), " "), nil
	}

	reader := cmd.Root().Reader
	if reader == nil {
		reader = os.Stdin
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
