// Package main provides the Helios reminder daemon. It periodically sweeps
// for overdue lifecycle tasks and publishes a notification event listing
// them.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/helioshq/helios/pkg/cmd"
	"github.com/helioshq/helios/pkg/directory"
	"github.com/helioshq/helios/pkg/log"
	"github.com/helioshq/helios/pkg/notify"
	"github.com/helioshq/helios/pkg/services"
)

func main() {
	command := &cli.Command{
		Name:                  "helios-reminders",
		Usage:                 "Sweep for overdue lifecycle tasks and publish reminder events",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "schedule",
				Usage:   "Cron expression for the overdue sweep",
				Value:   "0 * * * *",
				Sources: cli.EnvVars("REMINDER_SCHEDULE"),
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

			logger := log.WithModule("reminders")
			logger.InfoContext(ctx, "Initializing Helios reminders")

			orgID := command.String("organization-id")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "helios-reminders", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			dir := directory.NewStoreDirectory(persistence.UserRepository(), orgID)
			taskService := services.NewTasks(persistence, dir, logger, orgID)
			notifier := notify.NewBusNotifier(eventBus)

			scheduler := cron.New()

			_, err = scheduler.AddFunc(command.String("schedule"), func() {
				sweep(ctx, logger, taskService, notifier, orgID)
			})
			if err != nil {
				return err
			}

			scheduler.Start()
			logger.InfoContext(ctx, "Reminder sweep scheduled", "schedule", command.String("schedule"))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			stopCtx := scheduler.Stop()
			<-stopCtx.Done()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func sweep(ctx context.Context, logger *slog.Logger, taskService *services.Tasks, notifier notify.Notifier, orgID string) {
	overdue, err := taskService.Overdue(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Overdue sweep failed", "error", err)

		return
	}

	if len(overdue) == 0 {
		return
	}

	taskIDs := make([]string, 0, len(overdue))
	for _, task := range overdue {
		taskIDs = append(taskIDs, task.ID)
	}

	err = notifier.TasksOverdue(ctx, notify.OverdueNotice{
		OrganizationID: orgID,
		TaskIDs:        taskIDs,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish overdue reminder", "error", err)

		return
	}

	logger.InfoContext(ctx, "Published overdue reminder", "count", len(taskIDs))
}
