package main

import (
	"context"
	"fmt"
	"time"

	"github.com/raaihank/doc-sentinel/internal/batch"
	"github.com/raaihank/doc-sentinel/internal/llm"
	"github.com/raaihank/doc-sentinel/internal/processor"
	"github.com/urfave/cli/v3"
)

func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "proveedor",
			Aliases: []string{"p"},
			Usage:   "Supplier id; empty applies every supplier's rules",
		},
		&cli.StringFlag{
			Name:  "tipo",
			Usage: "Prompt kind: documento or dades_venda",
			Value: string(llm.KindDocument),
		},
		&cli.BoolFlag{
			Name:  "no-anonymize",
			Usage: "Send the raw text to the LLM",
		},
	}
}

func extractCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Run the full pipeline on one document and print the records",
		ArgsUsage: "<file>",
		Flags:     pipelineFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one file")
			}
			kind, err := llm.ParseKind(cmd.String("tipo"))
			if err != nil {
				return err
			}

			res, err := s.app.Processor.ProcessFile(ctx, cmd.Args().First(), processor.Request{
				Supplier:   cmd.String("proveedor"),
				Anonymize:  !cmd.Bool("no-anonymize"),
				Heuristics: s.app.Config.Anonymization.ApplyHeuristics,
				Kind:       kind,
			})
			if err != nil {
				return err
			}

			out := map[string]any{
				"resultado": res.Records,
				"cache":     res.CacheHit,
			}
			if res.Stats != nil {
				out["estadisticas_anonimizacion"] = map[string]any{
					"total_reemplazos": res.Stats.TotalReplacements,
					"por_tipo":         res.Stats.ByType,
				}
			}
			if len(res.Warnings) > 0 {
				out["advertencias"] = res.Warnings
			}
			return writeJSON(cmd.Root().Writer, out)
		},
	}
}

func batchCmd(s *session) *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:     "dir",
			Aliases:  []string{"d"},
			Usage:    "Directory with the documents",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Parquet file to write",
			Value:   "extraction.parquet",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Concurrent documents",
			Value:   4,
		},
		&cli.BoolFlag{
			Name:    "recursive",
			Aliases: []string{"r"},
			Usage:   "Descend into subdirectories",
		},
		&cli.DurationFlag{
			Name:  "file-timeout",
			Usage: "Upper bound for one document",
			Value: 5 * time.Minute,
		},
	}, pipelineFlags()...)

	return &cli.Command{
		Name:  "batch",
		Usage: "Process every supported document in a directory into a parquet file",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			runner := batch.NewRunner(s.app.Processor, batch.Config{
				Workers:     cmd.Int("workers"),
				Supplier:    cmd.String("proveedor"),
				Kind:        cmd.String("tipo"),
				Anonymize:   !cmd.Bool("no-anonymize"),
				Heuristics:  s.app.Config.Anonymization.ApplyHeuristics,
				Recursive:   cmd.Bool("recursive"),
				FileTimeout: cmd.Duration("file-timeout"),
			}, s.app.Logger.WithComponent("batch").Logger)

			summary, err := runner.Run(ctx, cmd.String("dir"), cmd.String("output"))
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, summary)
		},
	}
}
