package main

import (
	"context"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/nodeloom/nodeloom/pkg/cmd"
	"github.com/nodeloom/nodeloom/pkg/log"
	"github.com/nodeloom/nodeloom/pkg/tracing"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "nodeloom-api",
		Usage:                 "Local editor API for drafts, validation and dry runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "drafts-url",
				Usage:   "Draft storage URL (directory path or redis:// URL)",
				Value:   "./drafts",
				Sources: cli.EnvVars("DRAFTS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces (endpoint via OTEL_EXPORTER_OTLP_ENDPOINT)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Nodeloom API")

			if command.Bool("tracing") {
				if _, err := tracing.NewTracer(ctx, "nodeloom-api"); err != nil {
					return err
				}
			}

			repo, err := cmd.NewDrafts(ctx, command.String("drafts-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := repo.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close draft storage", "error", err)
				}
			}()

			brokers := strings.Split(command.String("kafka-brokers"), ",")

			eventBus := cmd.NewEventBus(command.String("event-bus"), brokers, logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			api := NewAPI(logger, repo, eventBus)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
