package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/raaihank/doc-sentinel/internal/app"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/urfave/cli/v3"
)

// session holds the components built once for the invoked subcommand.
type session struct {
	app *app.App
}

func (s *session) open(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, fmt.Errorf("load config: %w", err)
	}
	cfg.Logging.Level = cmd.String("log")
	cfg.Logging.Format = "console"

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return ctx, fmt.Errorf("init logger: %w", err)
	}

	s.app, err = app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return ctx, err
	}
	return ctx, nil
}

func (s *session) close(ctx context.Context, cmd *cli.Command) error {
	if s.app == nil {
		return nil
	}
	s.app.Logger.Sync()
	return s.app.Close(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
