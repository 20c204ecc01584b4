package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/okian/runtest/internal/bench"
	"github.com/okian/runtest/internal/domain/model"
	"github.com/okian/runtest/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is read before flags so API_KEY can come from it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("failed to load .env: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := newCommand().Run(ctx, os.Args); err != nil {
		logger.Get().Error(ctx, "bench failed", logger.Error(err))
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Repeatedly POST /runtest and record server and client timings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Base URL of the service",
				Value: bench.DefaultURL,
			},
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "Shared secret sent with every request",
				Sources: cli.EnvVars("API_KEY"),
			},
			&cli.StringFlag{
				Name:  "input",
				Usage: "JSON file holding an array of {x, y} items; random items are generated when empty",
			},
			&cli.IntFlag{
				Name:  "items",
				Usage: "Number of random items to generate when --input is empty",
				Value: bench.DefaultItems,
			},
			&cli.FloatFlag{
				Name:  "budget",
				Usage: "Weight budget sent with every request",
				Value: bench.DefaultBudget,
			},
			&cli.IntFlag{
				Name:  "runs",
				Usage: "Number of requests to send",
				Value: bench.DefaultRuns,
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Requests in flight at once",
				Value: 1,
			},
			&cli.FloatFlag{
				Name:  "rps",
				Usage: "Maximum requests per second (0 = unlimited)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-request timeout",
				Value: bench.DefaultTimeout,
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "File the timings are written to",
				Value: bench.DefaultOutput,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := logger.SetLevelString(cmd.String("log-level")); err != nil {
				return err
			}

			var items model.Items
			if path := cmd.String("input"); path != "" {
				loaded, err := bench.LoadItems(path)
				if err != nil {
					return err
				}
				items = loaded
			} else {
				items = bench.GenerateItems(int(cmd.Int("items")))
			}

			cfg := &bench.Config{
				URL:         cmd.String("url"),
				Secret:      cmd.String("secret"),
				Items:       items,
				Budget:      cmd.Float("budget"),
				Runs:        int(cmd.Int("runs")),
				Concurrency: int(cmd.Int("concurrency")),
				RPS:         cmd.Float("rps"),
				Timeout:     cmd.Duration("timeout"),
				Output:      cmd.String("output"),
			}

			res, err := bench.Run(ctx, cfg)
			if err != nil {
				return err
			}
			res.LogSummary(ctx)

			if cfg.Output == "" {
				return nil
			}
			if err := res.Save(cfg.Output); err != nil {
				return err
			}
			logger.Get().Info(ctx, "results saved", logger.String("output", cfg.Output))
			return nil
		},
	}
}
