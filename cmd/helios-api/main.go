package main

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/helioshq/helios/pkg/cmd"
	"github.com/helioshq/helios/pkg/directory"
	"github.com/helioshq/helios/pkg/log"
	"github.com/helioshq/helios/pkg/otelhelper"
)

const defaultPort = 8081

func main() {
	command := &cli.Command{
		Name:                  "helios-api",
		Usage:                 "Manage lifecycle requests and tasks",
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
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "organization-id",
				Usage:    "The single organization this deployment serves",
				Required: true,
				Sources:  cli.EnvVars("ORGANIZATION_ID"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the directory cache (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Helios API")

			orgID := command.String("organization-id")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "helios-api"); err != nil {
					return err
				}
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "helios-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var dir directory.Directory = directory.NewStoreDirectory(persistence.UserRepository(), orgID)

			if redisURL := command.String("redis-url"); redisURL != "" {
				opts, err := redis.ParseURL(redisURL)
				if err != nil {
					return err
				}

				dir = directory.NewCachedDirectory(dir, redis.NewClient(opts), orgID, logger)
			}

			api := NewAPI(logger, persistence, eventBus, dir, orgID)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
